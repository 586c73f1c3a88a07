package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"medallion/internal/git"
	"medallion/internal/rollback"
	"medallion/internal/warehouse"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func plainOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldColor, oldNoColor := Output, supportsColor, color.NoColor
	Output, supportsColor, color.NoColor = &buf, false, true
	t.Cleanup(func() {
		Output, supportsColor, color.NoColor = oldOut, oldColor, oldNoColor
	})
	return &buf
}

func TestColorFunc(t *testing.T) {
	old := supportsColor
	defer func() { supportsColor = old }()

	supportsColor = false
	assert.Equal(t, "text", ColorSuccess("text"))

	supportsColor = true
	assert.NotEqual(t, "text", ColorError("text"))
	assert.Contains(t, ColorError("text"), "text")
}

func TestMessages(t *testing.T) {
	buf := plainOutput(t)

	ShowHeader("medallion")
	ShowSuccess("published")
	ShowWarning("pruning failed")
	ShowInfo("dry run")
	KeyValue("snapshot", "snap-1")

	out := buf.String()
	assert.Contains(t, out, "|                   medallion                    |")
	assert.Contains(t, out, "SUCCESS: published")
	assert.Contains(t, out, "WARNING: pruning failed")
	assert.Contains(t, out, "INFO: dry run")
	assert.Contains(t, out, "snapshot:")
}

func TestShowError(t *testing.T) {
	buf := plainOutput(t)

	ShowError(errors.New(errors.ErrCodeNoSnapshot, "no snapshot has been published").
		WithSuggestions("Run 'medallion run'"))

	out := buf.String()
	assert.Contains(t, out, "ERROR: MDW8002")
	assert.Contains(t, out, "no snapshot has been published")
	assert.Contains(t, out, "Run 'medallion run'")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", FormatRelativeTime(now))
	assert.Equal(t, "1 hour ago", FormatRelativeTime(now.Add(-90*time.Minute)))
	assert.Equal(t, "3 days ago", FormatRelativeTime(now.Add(-73*time.Hour)))
	assert.Equal(t, "2020-01-02", FormatRelativeTime(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestRenderRun(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer

	RenderRun(&buf, &models.RunResult{
		RunID:     "run-1",
		Status:    models.RunFailed,
		AsOf:      time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC),
		FailedAt:  "silver.crm_sales_details",
		ErrorCode: "MDW9005",
		Stages: []models.StageReport{
			{Stage: "bronze.load", RowsIn: 33, RowsOut: 33},
			{Stage: "silver.crm_sales_details", RowsIn: 8, RowsOut: 5, Dropped: 3, Repaired: 2},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Run run-1 failed")
	assert.Contains(t, out, "failed at: silver.crm_sales_details (MDW9005)")
	assert.Contains(t, out, "bronze.load")
	assert.NotContains(t, out, "snapshot:")

	lines := strings.Split(out, "\n")
	var salesLine string
	for _, l := range lines {
		if strings.Contains(l, "silver.crm_sales_details") && !strings.Contains(l, "failed at") {
			salesLine = l
		}
	}
	assert.Regexp(t, `8\s+\|\s+5\s+\|\s+3\s+\|\s+2`, salesLine)
}

func TestRenderSnapshots(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer

	RenderSnapshots(&buf, []warehouse.SnapshotInfo{
		{ID: "snap-2", Rows: 60, Checksum: "abc", Current: true, CreatedAt: time.Now()},
		{ID: "snap-1", Rows: 58, Checksum: "def", CreatedAt: time.Now()},
	})

	out := buf.String()
	assert.Regexp(t, `\*\s+\|\s+snap-2`, out)
	assert.Contains(t, out, "snap-1")
	assert.Contains(t, out, "just now")
}

func TestRenderCountsAndHistory(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer

	RenderCounts(&buf, "Source", map[string]int{"crm_sales_details": 8, "crm_cust_info": 7})
	out := buf.String()
	assert.Less(t, strings.Index(out, "crm_cust_info"), strings.Index(out, "crm_sales_details"))
	assert.Contains(t, out, "15")

	buf.Reset()
	RenderRuns(&buf, []*rollback.RunRecord{{RunResult: models.RunResult{RunID: "run-9", Status: models.RunSucceeded}}})
	assert.Contains(t, buf.String(), "run-9")

	buf.Reset()
	RenderActivations(&buf, []*rollback.Activation{{From: "snap-2", To: "snap-1", Reason: "bad load"}})
	assert.Contains(t, buf.String(), "bad load")

	buf.Reset()
	RenderCommits(&buf, []git.CommitInfo{{Hash: "0123456789abcdef", Author: "dev", Message: "add sales extract\n\nbody", Date: time.Now()}})
	assert.Contains(t, buf.String(), "0123456")
	assert.Contains(t, buf.String(), "add sales extract")
	assert.NotContains(t, buf.String(), "body")
}

func TestSpinner(t *testing.T) {
	buf := plainOutput(t)

	s := NewSpinner("building")
	s.Start()
	s.UpdateMessage("publishing")
	s.Stop(true, "published")

	assert.Contains(t, buf.String(), "✓ published")
}
