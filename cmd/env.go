package cmd

import (
	"context"

	"medallion/internal/events"
	"medallion/internal/lock"
	"medallion/internal/observability"
	"medallion/internal/pipeline"
	"medallion/internal/rollback"
	"medallion/internal/warehouse"
	"medallion/pkg/models"
)

// openStore is replaced in tests
var openStore = func(ctx context.Context, cfg *models.Config) (warehouse.Store, error) {
	return pipeline.OpenStore(ctx, cfg, pipeline.KeyringResolver)
}

// environment holds the long-lived pieces a command needs
type environment struct {
	cfg     *models.Config
	store   warehouse.Store
	locker  lock.Locker
	sink    events.Sink
	history *rollback.HistoryManager
	logger  *observability.Logger
}

func openEnvironment(ctx context.Context, cfg *models.Config) (*environment, error) {
	env := &environment{cfg: cfg, logger: observability.GetDefaultLogger()}

	var err error
	if env.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if env.history, err = rollback.NewHistoryManager(cfg.Pipeline.HistoryDir); err != nil {
		env.Close()
		return nil, err
	}
	if env.locker, err = pipeline.NewLocker(ctx, cfg); err != nil {
		env.Close()
		return nil, err
	}
	if env.sink, err = pipeline.NewSink(cfg, env.logger); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *environment) runner() *pipeline.Runner {
	return pipeline.NewRunner(e.cfg, e.store).
		WithLocker(e.locker).
		WithSink(e.sink).
		WithHistory(e.history).
		WithLogger(e.logger)
}

func (e *environment) rollback() *rollback.Manager {
	return rollback.NewManager(e.store, e.history).WithLogger(e.logger)
}

// Close releases whatever was opened; failures are only logged
func (e *environment) Close() {
	closers := map[string]interface{ Close() error }{}
	if e.sink != nil {
		closers["events"] = e.sink
	}
	if e.locker != nil {
		closers["lock"] = e.locker
	}
	if e.store != nil {
		closers["store"] = e.store
	}
	for name, c := range closers {
		if err := c.Close(); err != nil {
			e.logger.Warnf("failed to close %s: %v", name, err)
		}
	}
}
