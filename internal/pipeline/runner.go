package pipeline

import (
	"context"
	"fmt"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/events"
	"medallion/internal/git"
	"medallion/internal/gold"
	"medallion/internal/lock"
	"medallion/internal/observability"
	"medallion/internal/rollback"
	"medallion/internal/silver"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/google/uuid"
)

// Stage names reported outside the silver and gold layers
const (
	StageBronze  = "bronze.load"
	StagePublish = "publish"

	lockKey = "pipeline"
)

// Options control a single run
type Options struct {
	AsOf   time.Time // processing time; zero means now
	DryRun bool      // build everything, publish nothing
}

// Runner executes bronze → silver → gold → publish as one run
type Runner struct {
	cfg     *models.Config
	store   warehouse.Store
	locker  lock.Locker
	sink    events.Sink
	metrics *observability.StageMetrics
	history *rollback.HistoryManager
	logger  *observability.Logger
	now     func() time.Time
}

// NewRunner creates a runner with an in-process lock, log events and a
// private metrics registry
func NewRunner(cfg *models.Config, store warehouse.Store) *Runner {
	logger := observability.GetDefaultLogger()
	return &Runner{
		cfg:     cfg,
		store:   store,
		locker:  lock.NewLocalLocker(),
		sink:    events.NewLogSink(logger),
		metrics: observability.NewStageMetrics(),
		logger:  logger,
		now:     time.Now,
	}
}

// WithLocker sets the single-writer lock
func (r *Runner) WithLocker(l lock.Locker) *Runner {
	r.locker = l
	return r
}

// WithSink sets where run events go
func (r *Runner) WithSink(s events.Sink) *Runner {
	r.sink = s
	return r
}

// WithMetrics shares a metrics registry across runs
func (r *Runner) WithMetrics(m *observability.StageMetrics) *Runner {
	r.metrics = m
	return r
}

// WithHistory records every finished run
func (r *Runner) WithHistory(h *rollback.HistoryManager) *Runner {
	r.history = h
	return r
}

// WithLogger overrides the runner's logger
func (r *Runner) WithLogger(logger *observability.Logger) *Runner {
	r.logger = logger
	return r
}

// Metrics returns the registry the runner reports to
func (r *Runner) Metrics() *observability.StageMetrics {
	return r.metrics
}

// Run executes one full pipeline run. The result is returned even when the
// run fails; in that case nothing was published and the previous snapshot
// stays current.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.RunResult, error) {
	started := r.now()
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	logger := r.logger.WithContext(ctx)

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = started
	}
	asOf = asOf.In(r.cfg.Pipeline.Location())

	result := &models.RunResult{
		RunID:   runID,
		AsOf:    asOf,
		Started: started,
	}

	if d := r.cfg.Pipeline.RunTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	release, err := lock.Acquire(ctx, r.locker, lockKey, r.cfg.Lock.TTLDuration())
	if err != nil {
		return r.fail(ctx, result, err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			logger.Warnf("failed to release pipeline lock: %v", err)
		}
	}()

	if current, err := r.store.Current(ctx); err == nil {
		result.PreviousSnapshot = current.ID
	}

	logger.InfoWithFields("run started", map[string]interface{}{
		"as_of":   asOf.Format(time.RFC3339),
		"dry_run": opts.DryRun,
	})
	r.emit(ctx, events.Event{Type: events.TypeRunStarted, RunID: runID, Time: started})

	snapshot, err := r.build(ctx, result, asOf)
	if err != nil {
		return r.fail(ctx, result, err)
	}

	result.SnapshotID = snapshot.ID
	result.Checksum = snapshot.Checksum

	if opts.DryRun {
		result.Status = models.RunDryRun
		result.Duration = time.Since(started)
		logger.WithField("checksum", snapshot.Checksum).Info("dry run finished, nothing published")
		r.finish(ctx, result)
		return result, nil
	}

	if err := r.publish(ctx, result, snapshot); err != nil {
		return r.fail(ctx, result, err)
	}

	if keep := r.cfg.Store.Retention; keep > 0 {
		removed, err := r.store.Prune(ctx, keep)
		if err != nil {
			logger.WarnWithFields("snapshot pruning failed", map[string]interface{}{
				"error":      err.Error(),
				"error_code": string(errors.GetErrorCode(err)),
			})
		} else if removed > 0 {
			logger.WithField("removed", removed).Info("old snapshots pruned")
		}
	}

	result.Status = models.RunSucceeded
	result.Duration = time.Since(started)
	logger.InfoWithFields("run succeeded", map[string]interface{}{
		"snapshot_id": snapshot.ID,
		"checksum":    snapshot.Checksum,
		"duration_ms": result.Duration.Milliseconds(),
	})
	r.finish(ctx, result)
	return result, nil
}

// build runs every transform stage and returns the unpublished snapshot
func (r *Runner) build(ctx context.Context, result *models.RunResult, asOf time.Time) (*warehouse.Snapshot, error) {
	stageTimeout := r.cfg.Pipeline.StageTimeoutDuration()

	var raw *bronze.Batch
	err := r.stage(ctx, result, StageBronze, func(ctx context.Context, report *models.StageReport) error {
		var err error
		raw, err = bronze.NewLoader(r.cfg.Sources).WithLogger(r.logger).Load(ctx)
		if err != nil {
			return err
		}
		for _, n := range raw.Counts() {
			report.RowsIn += n
		}
		report.RowsOut = report.RowsIn
		return nil
	})
	if err != nil {
		return nil, err
	}

	conformed, reports, err := silver.NewEngine(r.cfg.Pipeline.Parallel, stageTimeout).
		WithLogger(r.logger).
		Conform(ctx, raw, asOf)
	r.record(ctx, result, reports, err)
	if err != nil {
		return nil, err
	}

	model, reports, err := gold.NewAssembler(stageTimeout).
		WithLogger(r.logger).
		Assemble(ctx, conformed, asOf)
	r.record(ctx, result, reports, err)
	if err != nil {
		return nil, err
	}

	sum, err := warehouse.Checksum(conformed, model)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to fingerprint run output")
	}

	created := r.now().UTC()
	snapshot := &warehouse.Snapshot{
		ID:        fmt.Sprintf("%s-%s", created.Format("20060102T150405Z"), result.RunID[:8]),
		RunID:     result.RunID,
		AsOf:      asOf,
		CreatedAt: created,
		Checksum:  sum,
		Bronze:    raw,
		Silver:    conformed,
		Gold:      model,
	}

	rev, err := git.Resolve(r.cfg.Sources.Dir)
	if err != nil {
		r.logger.WithContext(ctx).Warnf("source revision unavailable: %v", err)
	}
	snapshot.SourceRevision = rev.String()

	return snapshot, nil
}

func (r *Runner) publish(ctx context.Context, result *models.RunResult, snapshot *warehouse.Snapshot) error {
	return r.stage(ctx, result, StagePublish, func(ctx context.Context, report *models.StageReport) error {
		report.RowsIn = snapshot.Rows()
		if err := r.store.Publish(ctx, snapshot); err != nil {
			return err
		}
		report.RowsOut = report.RowsIn
		return nil
	})
}

// stage times fn under the per-stage timeout and records its report
func (r *Runner) stage(ctx context.Context, result *models.RunResult, name string, fn func(context.Context, *models.StageReport) error) error {
	logger := r.logger.WithContext(ctx).WithStage(name)

	if d := r.cfg.Pipeline.StageTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	report := models.StageReport{Stage: name, Started: time.Now()}
	err := fn(ctx, &report)
	report.Duration = time.Since(report.Started)

	if err != nil {
		stageErr := errors.StageError(name, report.Duration, err)
		logger.ErrorWithFields("stage failed", map[string]interface{}{
			"error":       err.Error(),
			"code":        string(stageErr.Code),
			"duration_ms": report.Duration.Milliseconds(),
		})
		r.record(ctx, result, []models.StageReport{report}, stageErr)
		return stageErr
	}

	logger.InfoWithFields("stage completed", map[string]interface{}{
		"rows_in":     report.RowsIn,
		"rows_out":    report.RowsOut,
		"duration_ms": report.Duration.Milliseconds(),
	})
	r.record(ctx, result, []models.StageReport{report}, nil)
	return nil
}

// record appends finished stage reports to the result and publishes them
func (r *Runner) record(ctx context.Context, result *models.RunResult, reports []models.StageReport, err error) {
	failed := ""
	if err != nil {
		if stage, ok := errors.GetContext(err, "stage"); ok {
			failed, _ = stage.(string)
		}
	}
	for _, report := range reports {
		if report.Stage == "" {
			continue
		}
		result.Stages = append(result.Stages, report)
		if report.Stage == failed {
			continue
		}
		report := report
		r.metrics.ObserveStage(report)
		r.emit(ctx, events.Event{Type: events.TypeStageDone, RunID: result.RunID, Time: time.Now(), Stage: &report})
	}
}

func (r *Runner) fail(ctx context.Context, result *models.RunResult, err error) (*models.RunResult, error) {
	result.Status = models.RunFailed
	result.Duration = time.Since(result.Started)
	result.SnapshotID = ""
	result.Error = err.Error()
	result.ErrorCode = string(errors.GetErrorCode(err))
	if stage, ok := errors.GetContext(err, "stage"); ok {
		result.FailedAt, _ = stage.(string)
	}

	r.logger.WithContext(ctx).ErrorWithFields("run failed", map[string]interface{}{
		"failed_at":  result.FailedAt,
		"error_code": result.ErrorCode,
	})
	r.finish(ctx, result)
	return result, err
}

// finish records the terminal status in metrics, history and events
func (r *Runner) finish(ctx context.Context, result *models.RunResult) {
	if r.history != nil {
		if err := r.history.RecordRun(result); err != nil {
			r.logger.WithContext(ctx).Warnf("failed to record run history: %v", err)
		}
	}
	r.metrics.ObserveRun(result.Status, r.now())
	if err := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		r.logger.WithContext(ctx).Warnf("failed to write metrics textfile: %v", err)
	}

	eventType := events.TypeRunSucceeded
	if result.Status == models.RunFailed {
		eventType = events.TypeRunFailed
	}
	r.emit(ctx, events.Event{
		Type:       eventType,
		RunID:      result.RunID,
		SnapshotID: result.SnapshotID,
		Time:       r.now(),
		Result:     result,
	})
}

// emit never lets an event failure affect the run
func (r *Runner) emit(ctx context.Context, event events.Event) {
	if err := r.sink.Emit(context.WithoutCancel(ctx), event); err != nil {
		r.logger.WithContext(ctx).Warnf("failed to emit %s: %v", event.Type, err)
	}
}
