package domain

import "time"

// Stage names.
const (
	StageExtract     = "extract"
	StageTransform   = "transform"
	StageConsolidate = "consolidate"
)

// Stage outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// StageRun is one execution of one stage, as kept in the run history.
type StageRun struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Outcome    string    `json:"outcome"`
	Forced     bool      `json:"forced"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Files      int       `json:"files"`
	Rows       int       `json:"rows,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duration is the stage's wall time.
func (r StageRun) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Delivery is the consolidated result handed to the optional sinks.
type Delivery struct {
	RunID       string
	Path        string
	Table       *Table
	Summary     Summary
	CompletedAt time.Time
}
