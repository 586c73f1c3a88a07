package rollback

import (
	"context"
	"sync"
	"time"

	"medallion/internal/observability"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"

	"github.com/google/uuid"
)

// Manager moves the current-snapshot pointer and keeps an audit trail of
// every move
type Manager struct {
	store   warehouse.Store
	history *HistoryManager
	logger  *observability.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// NewManager creates a rollback manager. history may be nil, in which case
// activations are not recorded.
func NewManager(store warehouse.Store, history *HistoryManager) *Manager {
	return &Manager{
		store:   store,
		history: history,
		logger:  observability.GetDefaultLogger(),
		now:     time.Now,
	}
}

// WithLogger overrides the manager's logger
func (m *Manager) WithLogger(logger *observability.Logger) *Manager {
	m.logger = logger
	return m
}

// Plan resolves a rollback target without changing anything. An empty
// target means the snapshot published just before the current one.
func (m *Manager) Plan(ctx context.Context, target string) (*Plan, error) {
	infos, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	current := -1
	for i, info := range infos {
		if info.Current {
			current = i
			break
		}
	}
	if current < 0 {
		return nil, errors.New(errors.ErrCodeNoSnapshot, "no snapshot is current").
			WithSuggestions("Run 'medallion run' to publish a snapshot")
	}

	plan := &Plan{From: infos[current].ID}

	if target == "" {
		if current+1 >= len(infos) {
			return nil, errors.New(errors.ErrCodeSnapshotNotFound, "no earlier snapshot to roll back to").
				WithContext("current", plan.From)
		}
		plan.To = infos[current+1].ID
		plan.Skipped = current + 1
		return plan, nil
	}

	for i, info := range infos {
		if info.ID != target {
			continue
		}
		if i == current {
			return nil, errors.New(errors.ErrCodeInvalidInput, "snapshot is already current").
				WithContext("snapshot_id", target)
		}
		plan.To = target
		plan.Skipped = i
		return plan, nil
	}

	return nil, errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
		WithContext("snapshot_id", target).
		WithSuggestions("Run 'medallion snapshots list' to see available snapshots")
}

// Rollback makes target (or the previous snapshot) current
func (m *Manager) Rollback(ctx context.Context, target, reason string) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.Plan(ctx, target)
	if err != nil {
		return nil, err
	}
	return m.activate(ctx, plan.From, plan.To, reason)
}

// Activate makes id current regardless of its age
func (m *Manager) Activate(ctx context.Context, id, reason string) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := ""
	if current, err := m.store.Current(ctx); err == nil {
		from = current.ID
	} else if errors.GetErrorCode(err) != errors.ErrCodeNoSnapshot {
		return nil, err
	}
	return m.activate(ctx, from, id, reason)
}

func (m *Manager) activate(ctx context.Context, from, to, reason string) (*Activation, error) {
	if err := m.store.Activate(ctx, to); err != nil {
		return nil, err
	}

	a := &Activation{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		Reason: reason,
		Time:   m.now(),
	}

	logger := m.logger.WithContext(ctx)
	logger.InfoWithFields("snapshot activated", map[string]interface{}{
		"from":   from,
		"to":     to,
		"reason": reason,
	})

	if m.history != nil {
		if err := m.history.RecordActivation(a); err != nil {
			logger.Warnf("failed to record activation: %v", err)
		}
	}
	return a, nil
}
