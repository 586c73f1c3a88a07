package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medallion/pkg/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:   DebugLevel,
		Output:  &buf,
		Service: "test-service",
		Version: "1.0.0",
		Encoder: NewJSONEncoder(false),
	})

	logger.Info("test message")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry.Message)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "test-service", entry.Service)
	assert.Empty(t, entry.Stack)
}

func TestLoggerRunAndStage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf, Service: "medallion"})

	ctx := WithRunID(context.Background(), "run-42")
	logger.WithContext(ctx).WithStage("silver.crm_customers").InfoWithFields("stage completed", map[string]interface{}{
		"rows_out": 18484,
	})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-42", entry.RunID)
	assert.Equal(t, "silver.crm_customers", entry.Stage)
	assert.EqualValues(t, 18484, entry.Fields["rows_out"])
	assert.NotContains(t, entry.Fields, "run_id")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: WarnLevel, Output: &buf})

	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	logger.Errorf("visible %s", "error")
	assert.Contains(t, buf.String(), "visible error")
	assert.Contains(t, buf.String(), "\"stack\"")
}

func TestLogLevelFromString(t *testing.T) {
	assert.Equal(t, DebugLevel, LogLevelFromString("debug"))
	assert.Equal(t, WarnLevel, LogLevelFromString("WARNING"))
	assert.Equal(t, InfoLevel, LogLevelFromString("verbose"))
}

func TestGetRunIDMissing(t *testing.T) {
	assert.Empty(t, GetRunID(context.Background()))
}

func TestStageMetrics(t *testing.T) {
	m := NewStageMetrics()

	m.ObserveStage(models.StageReport{Stage: "silver.crm_sales_details", RowsIn: 10, RowsOut: 9, Dropped: 1, Repaired: 3, Duration: 5 * time.Millisecond})
	m.ObserveRun(models.RunSucceeded, time.Unix(1700000000, 0))
	m.ObserveRun(models.RunFailed, time.Now())

	assert.Equal(t, 9.0, testutil.ToFloat64(m.stageRows.WithLabelValues("silver.crm_sales_details", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageRows.WithLabelValues("silver.crm_sales_details", "dropped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.stageRows.WithLabelValues("silver.crm_sales_details", "repaired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failed")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess))
}

func TestStageMetricsHandlerAndTextfile(t *testing.T) {
	m := NewStageMetrics()
	m.ObserveStage(models.StageReport{Stage: "gold.dim_customers", RowsIn: 2, RowsOut: 2})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "medallion_stage_rows_total")

	path := filepath.Join(t.TempDir(), "medallion.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `stage="gold.dim_customers"`))

	assert.NoError(t, m.WriteTextfile(""))
}
