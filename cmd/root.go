package cmd

import (
	"fmt"
	"os"
	"strings"

	"medallion/internal/config"
	"medallion/internal/observability"
	"medallion/internal/ui"
	"medallion/pkg/models"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "medallion",
		Short: "Build bronze, silver and gold warehouse layers from CRM and ERP extracts",
		Long: `medallion loads six raw CRM/ERP CSV extracts, cleans and conforms them into
silver tables, assembles a gold star schema and publishes the result as an
immutable snapshot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.Output = os.Stderr
		ui.ShowError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./medallion.yaml or ~/.medallion/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("store-driver", "", "store driver: sqlite, postgres, snowflake, memory")
	flags.String("store-dsn", "", "store connection string for sqlite and postgres")

	bindFlags(flags, map[string]string{
		"logging.level": "log-level",
		"store.driver":  "store-driver",
		"store.dsn":     "store-dsn",
	})

	viper.SetEnvPrefix("MEDALLION")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// bindFlags maps config keys to flags so a set flag beats env and file
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile())
	// A missing file means defaults
	_ = viper.ReadInConfig()
}

// configFile resolves --config, $MEDALLION_CONFIG, ./medallion.yaml and the
// home directory file, in that order
func configFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if os.Getenv("MEDALLION_CONFIG") == "" {
		if _, err := os.Stat("medallion.yaml"); err == nil {
			return "medallion.yaml"
		}
	}
	return config.GetConfigFile()
}

// loadConfig reads the config file, applies flag and environment overrides,
// validates the result and configures logging
func loadConfig() (*models.Config, error) {
	cfg, err := config.LoadFileWith(configFile(), func(c *models.Config) {
		override(&c.Store.Driver, "store.driver")
		override(&c.Store.DSN, "store.dsn")
		override(&c.Store.Snowflake.Password, "store.snowflake.password")
		override(&c.Lock.RedisPassword, "lock.redis_password")
		override(&c.Logging.Level, "logging.level")
	})
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	observability.SetDefaultLogger(observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(cfg.Logging.Level),
		Service: "medallion",
		Version: Version,
	}))
	return cfg, nil
}

func override(field *string, key string) {
	if v := viper.GetString(key); v != "" {
		*field = v
	}
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
