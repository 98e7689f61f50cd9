// Package store records recomputation runs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/model"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = eris.New("store: run not found")

// defaultListLimit caps ListRuns when the filter sets no limit.
const defaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Service string          `json:"service,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for recomputation runs.
type Store interface {
	// CreateRun records a running recomputation and returns it with a new id.
	CreateRun(ctx context.Context, service string, params capacity.Params) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary capacity.Summary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
