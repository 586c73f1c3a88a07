package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medallion/internal/config"
	"medallion/internal/pipeline"
	"medallion/internal/security"
	"medallion/internal/testutil"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return b.String(), err
}

// writeConfig writes a memory-store config over the fixture sources and
// shares one store across commands
func writeConfig(t *testing.T) (string, *warehouse.MemoryStore) {
	t.Helper()
	dir := t.TempDir()
	cfg := testutil.NewTestHelper(t).Config(filepath.Join(dir, "sources"))
	cfg.Pipeline.HistoryDir = filepath.Join(dir, "history")
	cfg.Logging.Level = "error"

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "medallion.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))

	store := warehouse.NewMemoryStore()
	old := openStore
	openStore = func(context.Context, *models.Config) (warehouse.Store, error) { return store, nil }
	t.Cleanup(func() { openStore = old })
	return path, store
}

func TestRootCommandHelp(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "Available Commands:")
	for _, name := range []string{"run", "inspect", "snapshots", "schedule", "credentials", "history", "version"} {
		assert.Contains(t, output, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	_, err := execute(t, "invalid-command")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "medallion version dev")
}

func TestParseAsOf(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	zero, err := parseAsOf("", time.UTC)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	ts, err := parseAsOf("2025-10-16T08:30:00Z", berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 16, 8, 30, 0, 0, time.UTC), ts.UTC())

	day, err := parseAsOf("2025-10-16", berlin)
	require.NoError(t, err)
	assert.Equal(t, berlin, day.Location())
	assert.Equal(t, 16, day.Day())

	_, err = parseAsOf("16/10/2025", time.UTC)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetErrorCode(err))
}

func TestRunAndSnapshotCommands(t *testing.T) {
	path, store := writeConfig(t)
	ctx := context.Background()

	output, err := execute(t, "run", "--config", path, "--as-of", "2025-10-16", "--dry-run=false")
	require.NoError(t, err)
	assert.Contains(t, output, "succeeded")
	assert.Contains(t, output, "gold.fact_sales")

	first, err := store.Current(ctx)
	require.NoError(t, err)

	_, err = execute(t, "run", "--config", path, "--as-of", "2025-10-16")
	require.NoError(t, err)

	output, err = execute(t, "snapshots", "list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, output, first.ID)

	output, err = execute(t, "snapshots", "rollback", "--config", path, "--yes", "--reason", "bad load")
	require.NoError(t, err)
	assert.Contains(t, output, "to "+first.ID)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	output, err = execute(t, "history", "--config", path, "--activations")
	require.NoError(t, err)
	assert.Contains(t, output, "bad load")

	output, err = execute(t, "history", "--config", path, "--activations=false")
	require.NoError(t, err)
	assert.Contains(t, output, "succeeded")

	// The newest snapshot and the rolled-back current one are both kept
	output, err = execute(t, "snapshots", "prune", "--config", path, "--keep", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "removed 0 snapshot(s)")

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].Current)
}

func TestRunDryRunCommand(t *testing.T) {
	path, store := writeConfig(t)

	output, err := execute(t, "run", "--config", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, output, "dry_run")

	_, err = store.Current(context.Background())
	assert.Equal(t, errors.ErrCodeNoSnapshot, errors.GetErrorCode(err))
	runDryRun = false
}

func TestActivateRequiresIDWithoutTerminal(t *testing.T) {
	path, _ := writeConfig(t)

	_, err := execute(t, "snapshots", "activate", "--config", path)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
}

func TestInspectCommand(t *testing.T) {
	path, _ := writeConfig(t)

	output, err := execute(t, "inspect", "--config", path, "--snapshot", "")
	require.NoError(t, err)
	assert.Contains(t, output, "crm_sales_details")
	assert.Contains(t, output, "33")

	_, err = execute(t, "run", "--config", path, "--as-of", "2025-10-16", "--dry-run=false")
	require.NoError(t, err)

	output, err = execute(t, "inspect", "--config", path, "--snapshot", "current")
	require.NoError(t, err)
	assert.Contains(t, output, "gold.fact_sales")
	inspectSnapshot = ""
}

func TestSnapshotsInitPrint(t *testing.T) {
	output, err := execute(t, "snapshots", "init", "--print")
	require.NoError(t, err)
	assert.Contains(t, output, "MEDALLION_SNAPSHOTS")
	assert.Contains(t, output, "CREATE OR REPLACE VIEW CURRENT_GOLD_FACT_SALES")
	snapshotsPrint = false
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "medallion.yaml")
	t.Cleanup(func() {
		cfgFile = ""
		initSources = "datasets"
		initDriver = "sqlite"
		initForce = false
	})

	output, err := execute(t, "init", "--config", path, "--sources", "extracts", "--driver", "memory")
	require.NoError(t, err)
	assert.Contains(t, output, "config written to "+path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "extracts", cfg.Sources.Dir)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, config.DefaultCRMSales, cfg.Sources.CRMSales)

	_, err = execute(t, "init", "--config", path)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))

	_, err = execute(t, "init", "--config", path, "--driver", "sqlite", "--force")
	require.NoError(t, err)
	cfg, err = config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestCredentialsCommands(t *testing.T) {
	dir := t.TempDir()
	old := newCredentialManager
	newCredentialManager = func() (*security.CredentialManager, error) {
		return security.NewFileCredentialManager(dir)
	}
	defer func() { newCredentialManager = old }()

	output, err := execute(t, "credentials", "set", "warehouse", "--value", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, output, "keyring:warehouse")

	output, err = execute(t, "credentials", "list")
	require.NoError(t, err)
	assert.Equal(t, "warehouse\n", output)

	_, err = execute(t, "credentials", "delete", "warehouse")
	require.NoError(t, err)

	output, err = execute(t, "credentials", "list")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(output))
	credentialValue = ""
}

func TestSchedulerRouter(t *testing.T) {
	cfg := testutil.NewTestHelper(t).Config(t.TempDir())
	runner := pipeline.NewRunner(cfg, warehouse.NewMemoryStore()).WithLogger(testutil.QuietLogger(nil))
	s := newScheduler(runner, testutil.QuietLogger(nil))
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var h health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Nil(t, h.LastRun)

	s.run(context.Background())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.NotNil(t, h.LastRun)
	assert.Equal(t, models.RunSucceeded, h.LastRun.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `medallion_runs_total{status="succeeded"} 1`)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	old := cfgFile
	cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() { cfgFile = old }()

	t.Setenv("MEDALLION_STORE_DRIVER", "postgres")
	t.Setenv("MEDALLION_STORE_DSN", "host=localhost dbname=dwh")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "host=localhost dbname=dwh", cfg.Store.DSN)

	t.Setenv("MEDALLION_STORE_DRIVER", "oracle")
	_, err = loadConfig()
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))
}
