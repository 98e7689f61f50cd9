// Package model holds the records persisted by the run store.
package model

import (
	"time"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// RunStatus represents the current state of a recomputation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Run is one recomputation: the parameters it ran with and, once finished,
// its summary or failure reason.
type Run struct {
	ID        string            `json:"id"`
	Service   string            `json:"service,omitempty"`
	Status    RunStatus         `json:"status"`
	Params    capacity.Params   `json:"params"`
	Summary   *capacity.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusFailed
}
