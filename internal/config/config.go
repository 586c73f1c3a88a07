package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medallion/internal/common"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"gopkg.in/yaml.v3"
)

// Default source layout, matching the CRM/ERP extract directories
const (
	DefaultCRMCustomers  = "source_crm/cust_info.csv"
	DefaultCRMProducts   = "source_crm/prd_info.csv"
	DefaultCRMSales      = "source_crm/sales_details.csv"
	DefaultERPCustomers  = "source_erp/CUST_AZ12.csv"
	DefaultERPLocations  = "source_erp/LOC_A101.csv"
	DefaultERPCategories = "source_erp/PX_CAT_G1V2.csv"
)

var supportedDrivers = map[string]bool{
	"sqlite":    true,
	"postgres":  true,
	"snowflake": true,
	"memory":    true,
}

func GetConfigPath() string {
	if configPath := os.Getenv("MEDALLION_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medallion")
}

func GetConfigFile() string {
	if configFile := os.Getenv("MEDALLION_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the default config file; a missing file yields the defaults
func Load() (*models.Config, error) {
	return LoadFile(GetConfigFile())
}

// LoadFile reads the given YAML file and applies defaults
func LoadFile(path string) (*models.Config, error) {
	return LoadFileWith(path, nil)
}

// LoadFileWith is LoadFile with a hook that runs between parsing and
// defaulting, so overrides take part in driver-dependent defaults
func LoadFileWith(path string, override func(*models.Config)) (*models.Config, error) {
	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid config file path").
			WithContext("path", path)
	}

	var config models.Config
	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "failed to read config file").
			WithContext("path", cleanedPath)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to unmarshal config").
				WithContext("path", cleanedPath)
		}
	}

	if override != nil {
		override(&config)
	}
	ApplyDefaults(&config)
	return &config, nil
}

// ApplyDefaults fills every unset field with its default
func ApplyDefaults(config *models.Config) {
	src := &config.Sources
	if src.Dir == "" {
		src.Dir = "datasets"
	}
	setDefault(&src.CRMCustomers, DefaultCRMCustomers)
	setDefault(&src.CRMProducts, DefaultCRMProducts)
	setDefault(&src.CRMSales, DefaultCRMSales)
	setDefault(&src.ERPCustomers, DefaultERPCustomers)
	setDefault(&src.ERPLocations, DefaultERPLocations)
	setDefault(&src.ERPCategories, DefaultERPCategories)

	setDefault(&config.Store.Driver, "sqlite")
	if config.Store.Driver == "sqlite" {
		setDefault(&config.Store.DSN, "medallion.db")
	}
	if config.Store.BatchSize <= 0 {
		config.Store.BatchSize = 500
	}
	if config.Store.Retention < 0 {
		config.Store.Retention = 0
	}

	setDefault(&config.Pipeline.StageTimeout, "5m")
	setDefault(&config.Pipeline.RunTimeout, "30m")
	setDefault(&config.Pipeline.Timezone, "UTC")
	setDefault(&config.Pipeline.HistoryDir, filepath.Join(GetConfigPath(), "history"))

	setDefault(&config.Schedule.Cron, "0 0 2 * * *")
	setDefault(&config.Schedule.MetricsAddr, ":9090")

	setDefault(&config.Lock.TTL, "1h")
	setDefault(&config.Events.Kafka.Topic, "medallion.runs")
	setDefault(&config.Logging.Level, "info")
}

// Validate reports the first invalid field
func Validate(config *models.Config) error {
	if !supportedDrivers[config.Store.Driver] {
		return errors.ConfigError(fmt.Sprintf("unsupported store driver %q", config.Store.Driver), "store.driver").
			WithContext("supported", "sqlite, postgres, snowflake, memory")
	}

	switch config.Store.Driver {
	case "sqlite", "postgres":
		if config.Store.DSN == "" {
			return errors.ConfigError("store.dsn is required", "store.dsn")
		}
	case "snowflake":
		sf := config.Store.Snowflake
		required := []struct{ field, value string }{
			{"store.snowflake.account", sf.Account},
			{"store.snowflake.username", sf.Username},
			{"store.snowflake.warehouse", sf.Warehouse},
			{"store.snowflake.database", sf.Database},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return errors.ConfigError(fmt.Sprintf("%s is required", r.field), r.field)
			}
		}
	}

	durations := []struct{ field, value string }{
		{"pipeline.stage_timeout", config.Pipeline.StageTimeout},
		{"pipeline.run_timeout", config.Pipeline.RunTimeout},
		{"lock.ttl", config.Lock.TTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if parsed, err := time.ParseDuration(d.value); err != nil || parsed <= 0 {
			return errors.ConfigError(fmt.Sprintf("%s must be a positive duration, got %q", d.field, d.value), d.field)
		}
	}

	return nil
}

// SourcePath resolves a source file against Sources.Dir
func SourcePath(sources models.Sources, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(sources.Dir, file)
}

// Save writes config as YAML to path, creating its directory
func Save(path string, config *models.Config) error {
	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid config file path").
			WithContext("path", path)
	}
	if err := os.MkdirAll(filepath.Dir(cleanedPath), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleanedPath, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists reports whether a config file is present at path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
