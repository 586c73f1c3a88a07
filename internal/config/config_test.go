package config

import (
	"os"
	"path/filepath"
	"testing"

	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("MEDALLION_CONFIG", "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".medallion"), GetConfigPath())
	assert.Equal(t, filepath.Join(home, ".medallion", "config.yaml"), GetConfigFile())
}

func TestGetConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medallion.yaml")
	t.Setenv("MEDALLION_CONFIG", path)

	assert.Equal(t, path, GetConfigFile())
	assert.Equal(t, dir, GetConfigPath())
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	config, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "datasets", config.Sources.Dir)
	assert.Equal(t, DefaultCRMSales, config.Sources.CRMSales)
	assert.Equal(t, "sqlite", config.Store.Driver)
	assert.Equal(t, "medallion.db", config.Store.DSN)
	assert.Equal(t, 500, config.Store.BatchSize)
	assert.Equal(t, "5m", config.Pipeline.StageTimeout)
	assert.Equal(t, "medallion.runs", config.Events.Kafka.Topic)
	assert.NoError(t, Validate(config))
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medallion.yaml")
	content := `
sources:
  dir: /data/raw
  erp_locations: loc.csv
store:
  driver: postgres
  dsn: host=localhost user=etl dbname=dwh
pipeline:
  parallel: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	config, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/raw", config.Sources.Dir)
	assert.Equal(t, "loc.csv", config.Sources.ERPLocations)
	assert.Equal(t, DefaultERPCustomers, config.Sources.ERPCustomers)
	assert.Equal(t, "postgres", config.Store.Driver)
	assert.True(t, config.Pipeline.Parallel)
	assert.NoError(t, Validate(config))
}

func TestLoadFileWithOverrideRunsBeforeDefaults(t *testing.T) {
	config, err := LoadFileWith(filepath.Join(t.TempDir(), "absent.yaml"), func(c *models.Config) {
		c.Store.Driver = "memory"
	})
	require.NoError(t, err)

	assert.Equal(t, "memory", config.Store.Driver)
	assert.Empty(t, config.Store.DSN, "sqlite dsn default is not applied to other drivers")
	assert.NotEmpty(t, config.Pipeline.HistoryDir)
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *models.Config)
		field   string
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *models.Config) {}},
		{name: "unknown driver", mutate: func(c *models.Config) { c.Store.Driver = "oracle" }, field: "store.driver", wantErr: true},
		{name: "postgres without dsn", mutate: func(c *models.Config) { c.Store.Driver = "postgres"; c.Store.DSN = "" }, field: "store.dsn", wantErr: true},
		{name: "snowflake without account", mutate: func(c *models.Config) {
			c.Store.Driver = "snowflake"
			c.Store.Snowflake = models.Snowflake{Username: "etl", Warehouse: "WH", Database: "DWH"}
		}, field: "store.snowflake.account", wantErr: true},
		{name: "snowflake complete", mutate: func(c *models.Config) {
			c.Store.Driver = "snowflake"
			c.Store.Snowflake = models.Snowflake{Account: "xy1", Username: "etl", Warehouse: "WH", Database: "DWH"}
		}},
		{name: "bad timeout", mutate: func(c *models.Config) { c.Pipeline.StageTimeout = "forever" }, field: "pipeline.stage_timeout", wantErr: true},
		{name: "zero timeout", mutate: func(c *models.Config) { c.Pipeline.RunTimeout = "0s" }, field: "pipeline.run_timeout", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &models.Config{}
			ApplyDefaults(config)
			tt.mutate(config)

			err := Validate(config)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			field, ok := errors.GetContext(err, "field")
			require.True(t, ok)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestSourcePath(t *testing.T) {
	sources := models.Sources{Dir: "datasets"}
	assert.Equal(t, filepath.Join("datasets", "source_crm", "cust_info.csv"), SourcePath(sources, "source_crm/cust_info.csv"))
	assert.Equal(t, "/abs/file.csv", SourcePath(sources, "/abs/file.csv"))
}

func TestSaveAndExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	assert.False(t, Exists(path))

	config := &models.Config{Store: models.Store{Driver: "memory"}}
	require.NoError(t, Save(path, config))
	assert.True(t, Exists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Driver)
}
