package cmd

import (
	"medallion/internal/bronze"
	"medallion/internal/git"
	"medallion/internal/ui"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	inspectCommits  int
	inspectSnapshot string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show source row counts and their git history",
	Long: `Load the source extracts without transforming anything and print the row
count of each bronze entity, the source revision and the recent commits that
touched the source directory.

With --snapshot, print the silver and gold table counts of a published
snapshot instead ("current" names the current one).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if inspectSnapshot != "" {
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return inspectPublished(cmd, store, inspectSnapshot)
		}

		batch, err := bronze.NewLoader(cfg.Sources).Load(ctx)
		if err != nil {
			return err
		}
		ui.RenderCounts(out, "Source", batch.Counts())

		rev, err := git.Resolve(cfg.Sources.Dir)
		if err != nil {
			return err
		}
		if rev == nil {
			printf(cmd, "\nsources are not under version control\n")
			return nil
		}
		printf(cmd, "\nrevision %s on %s\n\n", rev, rev.Branch)

		commits, err := git.History(cfg.Sources.Dir, inspectCommits)
		if err != nil {
			return err
		}
		ui.RenderCommits(out, commits)
		return nil
	},
}

func inspectPublished(cmd *cobra.Command, store warehouse.Store, id string) error {
	reader, ok := store.(warehouse.Reader)
	if !ok {
		return errors.New(errors.ErrCodeUnsupportedDriver, "store cannot read snapshot rows back").
			WithSuggestions("Query the CURRENT_ views in the warehouse directly")
	}

	ctx := cmd.Context()
	if id == "current" {
		info, err := store.Current(ctx)
		if err != nil {
			return err
		}
		id = info.ID
	}

	snapshot, err := reader.Load(ctx, id)
	if err != nil {
		return err
	}
	printf(cmd, "snapshot %s (checksum %s)\n\n", snapshot.ID, snapshot.Checksum)
	ui.RenderCounts(cmd.OutOrStdout(), "Table", snapshot.Counts())
	return nil
}

func init() {
	inspectCmd.Flags().IntVar(&inspectCommits, "commits", 5, "number of source commits to show")
	inspectCmd.Flags().StringVar(&inspectSnapshot, "snapshot", "", `show table counts of a published snapshot ("current" for the current one)`)
	rootCmd.AddCommand(inspectCmd)
}
