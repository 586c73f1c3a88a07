package cmd

import (
	"fmt"
	"strings"

	"medallion/internal/snowflake"
	"medallion/internal/ui"
	"medallion/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	snapshotsYes    bool
	snapshotsReason string
	snapshotsKeep   int
	snapshotsPrint  bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List, activate, roll back and prune published snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first; * marks the current one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := commandEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		infos, err := env.store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			printf(cmd, "no snapshots published yet\n")
			return nil
		}
		ui.RenderSnapshots(cmd.OutOrStdout(), infos)
		return nil
	},
}

var snapshotsActivateCmd = &cobra.Command{
	Use:   "activate [snapshot-id]",
	Short: "Make a snapshot current",
	Long: `Point readers at an existing snapshot. Without an id an interactive picker
is shown when running in a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := commandEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		ctx := cmd.Context()

		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			if !ui.Interactive() {
				return errors.New(errors.ErrCodeInvalidInput, "snapshot id is required").
					WithSuggestions("Run 'medallion snapshots list' to see available snapshots")
			}
			infos, err := env.store.List(ctx)
			if err != nil {
				return err
			}
			if id, err = ui.SelectSnapshot("Snapshot to activate:", infos); err != nil {
				return err
			}
		}

		if ok, err := confirm(fmt.Sprintf("Make %s current?", id)); err != nil || !ok {
			return err
		}
		a, err := env.rollback().Activate(ctx, id, snapshotsReason)
		if err != nil {
			return err
		}
		printf(cmd, "%s is now current (was %s)\n", a.To, orNone(a.From))
		return nil
	},
}

var snapshotsRollbackCmd = &cobra.Command{
	Use:   "rollback [snapshot-id]",
	Short: "Make the previous (or given) snapshot current",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := commandEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		ctx := cmd.Context()

		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		m := env.rollback()
		plan, err := m.Plan(ctx, target)
		if err != nil {
			return err
		}

		msg := fmt.Sprintf("Roll back from %s to %s?", plan.From, plan.To)
		if plan.Skipped > 1 {
			msg = fmt.Sprintf("Roll back from %s to %s, skipping %d newer snapshots?", plan.From, plan.To, plan.Skipped-1)
		}
		if ok, err := confirm(msg); err != nil || !ok {
			return err
		}

		a, err := m.Rollback(ctx, plan.To, snapshotsReason)
		if err != nil {
			return err
		}
		printf(cmd, "rolled back from %s to %s\n", a.From, a.To)
		return nil
	},
}

var snapshotsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots; the current one is always kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotsKeep < 1 {
			return errors.ValidationError("keep", snapshotsKeep, "must be at least 1")
		}
		env, err := commandEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		removed, err := env.store.Prune(cmd.Context(), snapshotsKeep)
		if err != nil {
			return err
		}
		printf(cmd, "removed %d snapshot(s)\n", removed)
		return nil
	},
}

var snapshotsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the snapshot tables and views in the configured store",
	Long: `Create the snapshot bookkeeping tables, the silver and gold tables and the
CURRENT_ views. Stores create their schema when opened, so this only opens the
store. With --print the Snowflake DDL is written to stdout instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotsPrint {
			printf(cmd, "%s;\n", strings.Join(snowflake.Statements(), ";\n\n"))
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		printf(cmd, "schema ready in %s store\n", cfg.Store.Driver)
		return nil
	},
}

func commandEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openEnvironment(cmd.Context(), cfg)
}

// confirm asks only when a terminal is attached and --yes was not given
func confirm(message string) (bool, error) {
	if snapshotsYes || !ui.Interactive() {
		return true, nil
	}
	return ui.Confirm(message, false)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	for _, c := range []*cobra.Command{snapshotsActivateCmd, snapshotsRollbackCmd} {
		c.Flags().BoolVarP(&snapshotsYes, "yes", "y", false, "do not ask for confirmation")
		c.Flags().StringVar(&snapshotsReason, "reason", "", "note recorded in the activation history")
	}
	snapshotsPruneCmd.Flags().IntVar(&snapshotsKeep, "keep", 3, "number of newest snapshots to keep")
	snapshotsInitCmd.Flags().BoolVar(&snapshotsPrint, "print", false, "print the Snowflake DDL instead of connecting")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsActivateCmd, snapshotsRollbackCmd, snapshotsPruneCmd, snapshotsInitCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
