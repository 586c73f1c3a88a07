package cmd

import (
	"medallion/internal/rollback"
	"medallion/internal/ui"

	"github.com/spf13/cobra"
)

var (
	historyLimit       int
	historyActivations bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs or snapshot activations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		hm, err := rollback.NewHistoryManager(cfg.Pipeline.HistoryDir)
		if err != nil {
			return err
		}

		if historyActivations {
			ui.RenderActivations(cmd.OutOrStdout(), hm.Activations(historyLimit))
			return nil
		}
		runs := hm.Runs(historyLimit)
		if len(runs) == 0 {
			printf(cmd, "no runs recorded in %s\n", hm.Dir())
			return nil
		}
		ui.RenderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to show")
	historyCmd.Flags().BoolVar(&historyActivations, "activations", false, "show manual activations and rollbacks instead of runs")
	rootCmd.AddCommand(historyCmd)
}
