package rollback

import (
	"time"

	"medallion/pkg/models"
)

// RunRecord is a persisted pipeline run
type RunRecord struct {
	models.RunResult
	RecordedAt time.Time `json:"recorded_at"`
}

// Activation records a manual change of the current snapshot
type Activation struct {
	ID     string    `json:"id"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Plan describes what a rollback will do before it is applied
type Plan struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Skipped int    `json:"skipped"` // snapshots newer than To that stay published
}
