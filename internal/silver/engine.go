package silver

import (
	"context"
	"time"

	"medallion/internal/bronze"
	"medallion/internal/observability"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"golang.org/x/sync/errgroup"
)

// StagePrefix prefixes the stage name of every silver operation
const StagePrefix = "silver."

// Engine runs the six conformance operations over a bronze batch
type Engine struct {
	Parallel     bool
	StageTimeout time.Duration
	logger       *observability.Logger
}

// NewEngine creates an engine that runs sequentially unless parallel is set
func NewEngine(parallel bool, stageTimeout time.Duration) *Engine {
	return &Engine{
		Parallel:     parallel,
		StageTimeout: stageTimeout,
		logger:       observability.GetDefaultLogger(),
	}
}

// WithLogger overrides the engine's logger
func (e *Engine) WithLogger(logger *observability.Logger) *Engine {
	e.logger = logger
	return e
}

type operation struct {
	entity string
	run    func(ctx context.Context) (Stats, error)
}

// Conform builds the silver batch. Nothing is returned unless every
// operation succeeds; the first failure is reported as a stage error.
func (e *Engine) Conform(ctx context.Context, in *bronze.Batch, loadedAt time.Time) (*Batch, []models.StageReport, error) {
	out := &Batch{}

	ops := []operation{
		{bronze.EntityCRMCustomers, func(ctx context.Context) (s Stats, err error) {
			out.Customers, s, err = ConformCustomers(ctx, in.CRMCustomers, loadedAt)
			return s, err
		}},
		{bronze.EntityCRMProducts, func(ctx context.Context) (s Stats, err error) {
			out.Products, s, err = ConformProducts(ctx, in.CRMProducts, loadedAt)
			return s, err
		}},
		{bronze.EntityCRMSales, func(ctx context.Context) (s Stats, err error) {
			out.Sales, s, err = ConformSalesLines(ctx, in.CRMSales, loadedAt)
			return s, err
		}},
		{bronze.EntityERPCustomers, func(ctx context.Context) (s Stats, err error) {
			out.ERPCustomers, s, err = ConformERPCustomers(ctx, in.ERPCustomers, loadedAt)
			return s, err
		}},
		{bronze.EntityERPLocations, func(ctx context.Context) (s Stats, err error) {
			out.ERPLocations, s, err = ConformERPLocations(ctx, in.ERPLocations, loadedAt)
			return s, err
		}},
		{bronze.EntityERPCategories, func(ctx context.Context) (s Stats, err error) {
			out.ERPCategories, s, err = ConformERPCategories(ctx, in.ERPCategories, loadedAt)
			return s, err
		}},
	}

	reports := make([]models.StageReport, len(ops))

	if e.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, op := range ops {
			i, op := i, op
			g.Go(func() error {
				report, err := e.runStage(gctx, op)
				reports[i] = report
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, reports, err
		}
		return out, reports, nil
	}

	for i, op := range ops {
		report, err := e.runStage(ctx, op)
		reports[i] = report
		if err != nil {
			return nil, reports[:i+1], err
		}
	}
	return out, reports, nil
}

func (e *Engine) runStage(ctx context.Context, op operation) (models.StageReport, error) {
	stage := StagePrefix + op.entity
	logger := e.logger.WithContext(ctx).WithStage(stage)

	if e.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StageTimeout)
		defer cancel()
	}

	report := models.StageReport{Stage: stage, Started: time.Now()}
	logger.Debug("stage started")

	stats, err := op.run(ctx)
	report.Duration = time.Since(report.Started)
	report.RowsIn = stats.In

	if err != nil {
		stageErr := errors.StageError(stage, report.Duration, err)
		logger.ErrorWithFields("stage failed", map[string]interface{}{
			"error":       err.Error(),
			"code":        string(stageErr.Code),
			"duration_ms": report.Duration.Milliseconds(),
		})
		return report, stageErr
	}

	report.RowsOut = stats.Out
	report.Dropped = stats.Dropped
	report.Repaired = stats.Repaired

	logger.InfoWithFields("stage completed", map[string]interface{}{
		"rows_in":     report.RowsIn,
		"rows_out":    report.RowsOut,
		"dropped":     report.Dropped,
		"repaired":    report.Repaired,
		"duration_ms": report.Duration.Milliseconds(),
	})
	return report, nil
}
