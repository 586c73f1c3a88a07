package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medallion/internal/gold"
	"medallion/internal/silver"
	"medallion/internal/testutil"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, store warehouse.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.Publish(context.Background(), &warehouse.Snapshot{
			ID:     id,
			Silver: &silver.Batch{},
			Gold:   &gold.Model{},
		}))
	}
}

func TestHistoryManager(t *testing.T) {
	dir := t.TempDir()
	hm, err := NewHistoryManager(dir)
	require.NoError(t, err)

	now := time.Now()
	t.Run("RecordRun", func(t *testing.T) {
		require.NoError(t, hm.RecordRun(&models.RunResult{
			RunID:      "run-a",
			SnapshotID: "snap-a",
			Status:     models.RunSucceeded,
			Started:    now.Add(-2 * time.Hour),
		}))
		require.NoError(t, hm.RecordRun(&models.RunResult{
			RunID:            "run-b",
			Status:           models.RunFailed,
			Started:          now.Add(-time.Hour),
			ErrorCode:        string(errors.ErrCodeSourceNotFound),
			PreviousSnapshot: "snap-a",
		}))

		record, err := hm.GetRun("run-b")
		require.NoError(t, err)
		assert.Equal(t, "snap-a", record.PreviousSnapshot)
		assert.Equal(t, models.RunFailed, record.Status)

		_, err = os.Stat(filepath.Join(dir, "run-run-a.json"))
		assert.NoError(t, err)
	})

	t.Run("Runs are newest first", func(t *testing.T) {
		runs := hm.Runs(0)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-b", runs[0].RunID)
		assert.Len(t, hm.Runs(1), 1)
	})

	t.Run("LastSuccessful", func(t *testing.T) {
		record, err := hm.LastSuccessful()
		require.NoError(t, err)
		assert.Equal(t, "snap-a", record.SnapshotID)
	})

	t.Run("History survives reload", func(t *testing.T) {
		reloaded, err := NewHistoryManager(dir)
		require.NoError(t, err)
		assert.Len(t, reloaded.Runs(0), 2)
	})

	t.Run("Rejects run without id", func(t *testing.T) {
		err := hm.RecordRun(&models.RunResult{})
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	})
}

func TestHistoryRetention(t *testing.T) {
	hm, err := NewHistoryManager(t.TempDir())
	require.NoError(t, err)
	hm.maxHistory = 2

	base := time.Now()
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, hm.RecordRun(&models.RunResult{
			RunID:   id,
			Status:  models.RunSucceeded,
			Started: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, hm.RecordRun(&models.RunResult{
		RunID:   "ancient",
		Status:  models.RunSucceeded,
		Started: base.AddDate(0, -2, 0),
	}))

	runs := hm.Runs(0)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, "r2", runs[1].RunID)

	_, err = hm.GetRun("ancient")
	assert.Error(t, err)
}

func TestRollbackToPrevious(t *testing.T) {
	ctx := context.Background()
	store := warehouse.NewMemoryStore()
	publish(t, store, "snap-1", "snap-2", "snap-3")

	hm, err := NewHistoryManager(t.TempDir())
	require.NoError(t, err)
	m := NewManager(store, hm).WithLogger(testutil.QuietLogger(nil))
	tick := time.Now()
	m.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	plan, err := m.Plan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, &Plan{From: "snap-3", To: "snap-2", Skipped: 1}, plan)

	a, err := m.Rollback(ctx, "", "bad load")
	require.NoError(t, err)
	assert.Equal(t, "snap-3", a.From)
	assert.Equal(t, "snap-2", a.To)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-2", current.ID)

	a, err = m.Rollback(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", a.To)

	_, err = m.Rollback(ctx, "", "")
	assert.Equal(t, errors.ErrCodeSnapshotNotFound, errors.GetErrorCode(err))

	activations := hm.Activations(0)
	require.Len(t, activations, 2)
	assert.Equal(t, "bad load", activations[1].Reason)
}

func TestRollbackToTarget(t *testing.T) {
	ctx := context.Background()
	store := warehouse.NewMemoryStore()
	publish(t, store, "snap-1", "snap-2", "snap-3")
	m := NewManager(store, nil).WithLogger(testutil.QuietLogger(nil))

	plan, err := m.Plan(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Skipped)

	_, err = m.Plan(ctx, "snap-3")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))

	_, err = m.Plan(ctx, "snap-9")
	assert.Equal(t, errors.ErrCodeSnapshotNotFound, errors.GetErrorCode(err))

	_, err = m.Rollback(ctx, "snap-1", "")
	require.NoError(t, err)

	// Activating forward again is allowed
	a, err := m.Activate(ctx, "snap-3", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", a.From)
}

func TestRollbackWithoutSnapshots(t *testing.T) {
	m := NewManager(warehouse.NewMemoryStore(), nil).WithLogger(testutil.QuietLogger(nil))

	_, err := m.Rollback(context.Background(), "", "")
	assert.Equal(t, errors.ErrCodeNoSnapshot, errors.GetErrorCode(err))

	_, err = m.Activate(context.Background(), "snap-1", "")
	assert.Equal(t, errors.ErrCodeSnapshotNotFound, errors.GetErrorCode(err))
}
