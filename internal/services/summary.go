package services

import (
	"time"

	"savings/internal/core"
)

// Status is the aggregate outcome of a reconciliation run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Failure records why one user could not be reconciled.
type Failure struct {
	UserID string `json:"user_id"`
	Month  string `json:"month,omitempty"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Summary is the result of one reconciliation run. Processed, Skipped and
// Failed count users of the target month; Repaired and RepairFailed count
// pending ledger entries of any month that the run applied or could not apply.
type Summary struct {
	RunID     string `json:"run_id"`
	Month     string `json:"month"`
	Policy    string `json:"policy"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Repaired  int    `json:"repaired"`
	// RepairFailed counts pending entries the sweep could not apply.
	RepairFailed int       `json:"repair_failed"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
	Failures     []Failure `json:"failures,omitempty"`

	// Aborted is set when the run returned a batch-level error.
	Aborted bool `json:"aborted,omitempty"`
	// Cancelled is set when the context ended before every user was attempted.
	Cancelled bool `json:"cancelled,omitempty"`

	// Recorded holds the entries this run applied, in completion order.
	Recorded []core.LedgerEntry `json:"-"`
}

// Status derives the run status from the counters.
func (s Summary) Status() Status {
	switch {
	case s.Aborted:
		return StatusFailed
	case s.Failed+s.RepairFailed == 0 && !s.Cancelled:
		return StatusSuccess
	case s.Failed+s.RepairFailed > 0 && s.Processed+s.Skipped+s.Repaired == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
