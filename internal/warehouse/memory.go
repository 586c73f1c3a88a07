package warehouse

import (
	"context"
	"sort"
	"sync"

	"medallion/pkg/errors"
)

// MemoryStore keeps snapshots in process. The current pointer is swapped
// under the store lock, so readers see the old or the new snapshot only.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	seq       map[string]int
	next      int
	current   string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
		seq:       make(map[string]int),
	}
}

// Publish stores the snapshot and makes it current
func (m *MemoryStore) Publish(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodePublishFailed, "publish cancelled")
	}
	if snapshot == nil || snapshot.ID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "snapshot id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.snapshots[snapshot.ID]; exists {
		return errors.New(errors.ErrCodePublishFailed, "snapshot already published").
			WithContext("snapshot_id", snapshot.ID)
	}

	m.snapshots[snapshot.ID] = snapshot
	m.next++
	m.seq[snapshot.ID] = m.next
	m.current = snapshot.ID
	return nil
}

// Current returns the snapshot readers currently see
func (m *MemoryStore) Current(ctx context.Context) (*SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == "" {
		return nil, errors.New(errors.ErrCodeNoSnapshot, "no snapshot has been published")
	}
	info := m.snapshots[m.current].Info()
	info.Current = true
	return &info, nil
}

// List returns every snapshot, newest first
func (m *MemoryStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(), nil
}

// list requires m.mu to be held
func (m *MemoryStore) list() []SnapshotInfo {
	out := make([]SnapshotInfo, 0, len(m.snapshots))
	for id, s := range m.snapshots {
		info := s.Info()
		info.Current = id == m.current
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] > m.seq[out[j].ID] })
	return out
}

// Activate points readers at an existing snapshot
func (m *MemoryStore) Activate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[id]; !ok {
		return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", id)
	}
	m.current = id
	return nil
}

// Prune removes all but the newest keep snapshots. The current snapshot is
// never removed.
func (m *MemoryStore) Prune(ctx context.Context, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range PruneCandidates(m.list(), keep) {
		delete(m.snapshots, id)
		delete(m.seq, id)
		removed++
	}
	return removed, nil
}

// Load returns a published snapshot
func (m *MemoryStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", id)
	}
	return s, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// PruneCandidates picks the ids to delete from a newest-first listing
func PruneCandidates(infos []SnapshotInfo, keep int) []string {
	if keep < 1 {
		keep = 1
	}
	var ids []string
	for i, info := range infos {
		if i < keep || info.Current {
			continue
		}
		ids = append(ids, info.ID)
	}
	return ids
}
