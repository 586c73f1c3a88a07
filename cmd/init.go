package cmd

import (
	"medallion/internal/config"
	"medallion/internal/ui"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/spf13/cobra"
)

var (
	initSources string
	initDriver  string
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default source layout and store",
	Long: `Write a config file with every default filled in. The file goes to --config
when given, else $MEDALLION_CONFIG, else ~/.medallion/config.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.GetConfigFile()
		}
		if config.Exists(path) && !initForce {
			return errors.New(errors.ErrCodeConfigInvalid, "config file already exists").
				WithContext("path", path).
				WithSuggestions("Pass --force to overwrite it")
		}

		cfg := &models.Config{}
		cfg.Sources.Dir = initSources
		cfg.Store.Driver = initDriver
		config.ApplyDefaults(cfg)
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to write config file").
				WithContext("path", path)
		}

		printf(cmd, "%s config written to %s\n", ui.ColorSuccess("SUCCESS:"), path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initSources, "sources", "datasets", "directory holding the source_crm and source_erp extracts")
	initCmd.Flags().StringVar(&initDriver, "driver", "sqlite", "store driver: sqlite, postgres, snowflake, memory")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
}
