package models

import "time"

// RunStatus is the terminal state of a pipeline run
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunDryRun    RunStatus = "dry_run"
)

// StageReport records what a single stage did to its input
type StageReport struct {
	Stage    string        `json:"stage"`
	RowsIn   int           `json:"rows_in"`
	RowsOut  int           `json:"rows_out"`
	Dropped  int           `json:"dropped"`
	Repaired int           `json:"repaired"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// RunResult summarizes a complete pipeline run
type RunResult struct {
	RunID            string        `json:"run_id"`
	SnapshotID       string        `json:"snapshot_id,omitempty"`
	PreviousSnapshot string        `json:"previous_snapshot,omitempty"` // current when the run started
	Checksum         string        `json:"checksum,omitempty"`
	Status           RunStatus     `json:"status"`
	AsOf             time.Time     `json:"as_of"`
	Started          time.Time     `json:"started"`
	Duration         time.Duration `json:"duration"`
	Stages           []StageReport `json:"stages"`
	FailedAt         string        `json:"failed_at,omitempty"`
	Error            string        `json:"error,omitempty"`
	ErrorCode        string        `json:"error_code,omitempty"`
}
