// Package store is the run archive: a queryable history of coordinator
// runs. The JSON progress stores remain the source of truth for per-code
// state; the archive only records run-level outcomes.
package store

import (
	"context"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus
	Mode   string
	Limit  int
}

// Store persists run records.
type Store interface {
	Migrate(ctx context.Context) error
	CreateRun(ctx context.Context, mode string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	Close() error
}
