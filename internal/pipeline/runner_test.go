package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"medallion/internal/config"
	"medallion/internal/events"
	"medallion/internal/lock"
	"medallion/internal/rollback"
	"medallion/internal/testutil"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(ctx context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func setup(t *testing.T) (*models.Config, *warehouse.MemoryStore, *Runner) {
	t.Helper()
	cfg := testutil.NewTestHelper(t).Config(t.TempDir())
	store := warehouse.NewMemoryStore()
	runner := NewRunner(cfg, store).
		WithLogger(testutil.QuietLogger(nil)).
		WithSink(&recordingSink{})
	return cfg, store, runner
}

func TestRunPublishesSnapshot(t *testing.T) {
	_, store, runner := setup(t)
	ctx := context.Background()

	result, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.Len(t, result.Checksum, 16)
	require.Len(t, result.Stages, 11)
	assert.Equal(t, StageBronze, result.Stages[0].Stage)
	assert.Equal(t, 33, result.Stages[0].RowsIn)
	assert.Equal(t, "silver.crm_cust_info", result.Stages[1].Stage)
	assert.Equal(t, "gold.fact_sales", result.Stages[9].Stage)
	assert.Equal(t, StagePublish, result.Stages[10].Stage)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.SnapshotID, current.ID)
	assert.Equal(t, result.Checksum, current.Checksum)
	assert.Equal(t, result.RunID, current.RunID)

	snap, err := store.Load(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.AsOf, snap.Gold.Customers[0].LoadedAt, "load timestamp is the processing time")
}

func TestRunIsIdempotent(t *testing.T) {
	_, store, runner := setup(t)
	ctx := context.Background()

	first, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)
	second, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, first.Checksum, second.Checksum)

	a, err := store.Load(ctx, first.SnapshotID)
	require.NoError(t, err)
	b, err := store.Load(ctx, second.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, a.Silver, b.Silver)
	assert.Equal(t, a.Gold, b.Gold)
}

func TestRunFailureKeepsPreviousSnapshot(t *testing.T) {
	cfg, store, runner := setup(t)
	ctx := context.Background()

	first, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	require.NoError(t, os.Remove(config.SourcePath(cfg.Sources, cfg.Sources.ERPLocations)))

	result, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSourceNotFound, errors.GetErrorCode(err))
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Equal(t, StageBronze, result.FailedAt)
	assert.Equal(t, string(errors.ErrCodeSourceNotFound), result.ErrorCode)
	assert.Empty(t, result.SnapshotID)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, current.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunDryRunPublishesNothing(t *testing.T) {
	_, store, runner := setup(t)

	result, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunDryRun, result.Status)
	assert.NotEmpty(t, result.Checksum)
	assert.Len(t, result.Stages, 10)

	_, err = store.Current(context.Background())
	assert.Equal(t, errors.ErrCodeNoSnapshot, errors.GetErrorCode(err))
}

func TestRunRefusedWhileLocked(t *testing.T) {
	_, store, runner := setup(t)
	locker := lock.NewLocalLocker()
	runner.WithLocker(locker)

	ok, err := locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	assert.Equal(t, errors.ErrCodeRunInProgress, errors.GetErrorCode(err))
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Empty(t, result.Stages)

	_, err = store.Current(context.Background())
	assert.Equal(t, errors.ErrCodeNoSnapshot, errors.GetErrorCode(err))
}

func TestRunReleasesLock(t *testing.T) {
	_, _, runner := setup(t)
	locker := lock.NewLocalLocker()
	runner.WithLocker(locker)

	_, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	ok, err := locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunTimeout(t *testing.T) {
	cfg, _, runner := setup(t)
	cfg.Pipeline.RunTimeout = "1ns"

	result, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTimeout, errors.GetErrorCode(err))
	assert.Equal(t, StageBronze, result.FailedAt)
}

func TestRunRetention(t *testing.T) {
	cfg, store, runner := setup(t)
	cfg.Store.Retention = 1
	ctx := context.Background()

	_, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)
	second, err := runner.Run(ctx, Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.SnapshotID, list[0].ID)
}

func TestRunEventsAndMetrics(t *testing.T) {
	cfg, _, runner := setup(t)
	sink := &recordingSink{}
	runner.WithSink(sink)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "medallion.prom")

	_, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	types := sink.types()
	require.Len(t, types, 13)
	assert.Equal(t, events.TypeRunStarted, types[0])
	assert.Equal(t, events.TypeStageDone, types[1])
	assert.Equal(t, events.TypeRunSucceeded, types[12])

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `medallion_runs_total{status="succeeded"} 1`)
	assert.Contains(t, string(data), `medallion_stage_last_rows_out{stage="gold.fact_sales"} 6`)
}

func TestRunRecordsHistory(t *testing.T) {
	_, _, runner := setup(t)
	history, err := rollback.NewHistoryManager(t.TempDir())
	require.NoError(t, err)
	runner.WithHistory(history)

	first, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	record, err := history.GetRun(second.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, record.PreviousSnapshot)
	assert.Equal(t, second.SnapshotID, record.SnapshotID)
	assert.Len(t, record.Stages, 11)

	last, err := history.LastSuccessful()
	require.NoError(t, err)
	assert.Equal(t, second.RunID, last.RunID)
}

func TestRunParallelMatchesSequential(t *testing.T) {
	cfg, _, runner := setup(t)
	sequential, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)

	cfg.Pipeline.Parallel = true
	parallel, err := runner.Run(context.Background(), Options{AsOf: testutil.AsOf})
	require.NoError(t, err)
	assert.Equal(t, sequential.Checksum, parallel.Checksum)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := &models.Config{}
	cfg.Store.Driver = "memory"
	store, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &warehouse.MemoryStore{}, store)

	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "medallion.db")
	store, err = OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &warehouse.GormStore{}, store)
	require.NoError(t, store.Close())

	cfg.Store.Driver = "oracle"
	_, err = OpenStore(ctx, cfg, nil)
	assert.Equal(t, errors.ErrCodeUnsupportedDriver, errors.GetErrorCode(err))
}

func TestOpenStoreSnowflakeResolvesPassword(t *testing.T) {
	cfg := &models.Config{}
	cfg.Store.Driver = "snowflake"
	cfg.Store.Snowflake.Password = "keyring:prod"

	_, err := OpenStore(context.Background(), cfg, func(string) (string, error) {
		return "", errors.New(errors.ErrCodeMissingCredentials, "credential not found")
	})
	assert.Equal(t, errors.ErrCodeMissingCredentials, errors.GetErrorCode(err))
}

func TestNewSinkAndLocker(t *testing.T) {
	cfg := &models.Config{}
	sink, err := NewSink(cfg, testutil.QuietLogger(nil))
	require.NoError(t, err)
	assert.NoError(t, sink.Emit(context.Background(), events.Event{Type: events.TypeRunStarted}))

	locker, err := NewLocker(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &lock.LocalLocker{}, locker)
}
