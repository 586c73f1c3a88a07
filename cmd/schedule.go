package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"medallion/internal/observability"
	"medallion/internal/pipeline"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule and serve /metrics and /healthz",
	Long: `Run the pipeline on schedule.cron (six fields, seconds first) until
interrupted. Overlapping runs are skipped. Prometheus metrics are served on
schedule.metrics_addr at /metrics, run state at /healthz.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openEnvironment(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		s := newScheduler(env.runner(), env.logger)
		c := cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
		if _, err := c.AddFunc(cfg.Schedule.Cron, func() { s.run(ctx) }); err != nil {
			return errors.ConfigError("invalid cron expression: "+err.Error(), "schedule.cron")
		}

		server := &http.Server{
			Addr:              cfg.Schedule.MetricsAddr,
			Handler:           s.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- err
			}
		}()

		c.Start()
		env.logger.InfoWithFields("scheduler started", map[string]interface{}{
			"cron":         cfg.Schedule.Cron,
			"metrics_addr": cfg.Schedule.MetricsAddr,
		})

		select {
		case <-ctx.Done():
		case err = <-serveErr:
			err = errors.Wrap(err, errors.ErrCodeInternal, "metrics server failed").
				WithContext("addr", cfg.Schedule.MetricsAddr)
		}

		<-c.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		env.logger.Info("scheduler stopped")
		return err
	},
}

// scheduler runs the pipeline and remembers the last outcome for /healthz
type scheduler struct {
	runner *pipeline.Runner
	logger *observability.Logger

	mu   sync.RWMutex
	last *models.RunResult
}

func newScheduler(runner *pipeline.Runner, logger *observability.Logger) *scheduler {
	return &scheduler{runner: runner, logger: logger}
}

func (s *scheduler) run(ctx context.Context) {
	result, err := s.runner.Run(ctx, pipeline.Options{})
	if err != nil {
		s.logger.Warnf("scheduled run failed: %v", err)
	}
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
}

type health struct {
	Status  string            `json:"status"`
	LastRun *models.RunResult `json:"last_run,omitempty"`
}

func (s *scheduler) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		s.mu.RLock()
		h := health{Status: "ok", LastRun: s.last}
		s.mu.RUnlock()
		if h.LastRun != nil && h.LastRun.Status == models.RunFailed {
			h.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h)
	})
	r.Method(http.MethodGet, "/metrics", s.runner.Metrics().Handler())
	return r
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
