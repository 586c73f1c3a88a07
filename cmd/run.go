package cmd

import (
	"time"

	"medallion/internal/pipeline"
	"medallion/internal/ui"
	"medallion/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	runAsOf   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run bronze, silver and gold once and publish a snapshot",
	Long: `Load the six source extracts, conform them into silver, assemble the gold
star schema and publish the result as a new current snapshot.

A failed run publishes nothing and leaves the previous snapshot current.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		asOf, err := parseAsOf(runAsOf, cfg.Pipeline.Location())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := openEnvironment(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var spinner *ui.Spinner
		if ui.Interactive() {
			spinner = ui.NewSpinner("running pipeline")
			spinner.Start()
		}

		result, runErr := env.runner().Run(ctx, pipeline.Options{AsOf: asOf, DryRun: runDryRun})
		if spinner != nil {
			spinner.Stop(runErr == nil, string(result.Status))
		}
		ui.RenderRun(cmd.OutOrStdout(), result)
		return runErr
	},
}

// parseAsOf accepts RFC3339 or a plain date in loc; empty means now
func parseAsOf(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errors.ValidationError("as-of", value, "expected RFC3339 or YYYY-MM-DD")
}

func init() {
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "processing time (RFC3339 or YYYY-MM-DD), default now")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "build every layer but publish nothing")
	rootCmd.AddCommand(runCmd)
}
