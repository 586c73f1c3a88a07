package ui

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"medallion/internal/git"
	"medallion/internal/rollback"
	"medallion/internal/warehouse"
	"medallion/pkg/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Status renders a run status, colored when the terminal allows it
func Status(s models.RunStatus) string {
	switch s {
	case models.RunSucceeded:
		return color.GreenString(string(s))
	case models.RunFailed:
		return color.RedString(string(s))
	case models.RunDryRun:
		return color.YellowString(string(s))
	}
	return string(s)
}

// RenderRun writes the summary and per-stage table of a run
func RenderRun(w io.Writer, r *models.RunResult) {
	fmt.Fprintf(w, "Run %s %s in %s\n", r.RunID, Status(r.Status), FormatDuration(r.Duration))
	fmt.Fprintf(w, "  as of:     %s\n", r.AsOf.Format(time.RFC3339))
	if r.SnapshotID != "" {
		fmt.Fprintf(w, "  snapshot:  %s\n", r.SnapshotID)
	}
	if r.Checksum != "" {
		fmt.Fprintf(w, "  checksum:  %s\n", r.Checksum)
	}
	if r.Status == models.RunFailed {
		fmt.Fprintf(w, "  failed at: %s (%s)\n", r.FailedAt, r.ErrorCode)
	}
	fmt.Fprintln(w)

	table := newTable(w, "Stage", "Rows in", "Rows out", "Dropped", "Repaired", "Duration")
	for _, s := range r.Stages {
		stage := s.Stage
		if s.Stage == r.FailedAt {
			stage = color.RedString(stage)
		}
		table.Append([]string{
			stage,
			strconv.Itoa(s.RowsIn),
			strconv.Itoa(s.RowsOut),
			strconv.Itoa(s.Dropped),
			strconv.Itoa(s.Repaired),
			FormatDuration(s.Duration),
		})
	}
	table.Render()
}

// RenderSnapshots writes a newest-first snapshot listing
func RenderSnapshots(w io.Writer, infos []warehouse.SnapshotInfo) {
	table := newTable(w, "", "Snapshot", "As of", "Created", "Rows", "Checksum", "Source")
	for _, info := range infos {
		marker := ""
		if info.Current {
			marker = color.GreenString("*")
		}
		table.Append([]string{
			marker,
			info.ID,
			info.AsOf.Format("2006-01-02"),
			FormatRelativeTime(info.CreatedAt),
			strconv.Itoa(info.Rows),
			info.Checksum,
			info.SourceRevision,
		})
	}
	table.Render()
}

// RenderRuns writes recorded runs, newest first
func RenderRuns(w io.Writer, runs []*rollback.RunRecord) {
	table := newTable(w, "Run", "Status", "Started", "Duration", "Snapshot", "Error")
	for _, r := range runs {
		table.Append([]string{
			r.RunID,
			Status(r.Status),
			r.Started.Format(time.RFC3339),
			FormatDuration(r.Duration),
			r.SnapshotID,
			r.ErrorCode,
		})
	}
	table.Render()
}

// RenderActivations writes manual pointer moves, newest first
func RenderActivations(w io.Writer, activations []*rollback.Activation) {
	table := newTable(w, "When", "From", "To", "Reason")
	for _, a := range activations {
		table.Append([]string{a.Time.Format(time.RFC3339), a.From, a.To, a.Reason})
	}
	table.Render()
}

// RenderCounts writes a table of name -> row count, sorted by name
func RenderCounts(w io.Writer, title string, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	table := newTable(w, title, "Rows")
	total := 0
	for _, name := range names {
		total += counts[name]
		table.Append([]string{name, strconv.Itoa(counts[name])})
	}
	table.SetFooter([]string{"total", strconv.Itoa(total)})
	table.Render()
}

// RenderCommits writes the commits that touched the source directory
func RenderCommits(w io.Writer, commits []git.CommitInfo) {
	table := newTable(w, "Commit", "Author", "When", "Message")
	for _, c := range commits {
		hash := c.Hash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		table.Append([]string{hash, c.Author, FormatRelativeTime(c.Date), firstLine(c.Message, 60)})
	}
	table.Render()
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
