// Package trace persists dispatch traces: one run per simulator session and
// one event per callback invocation.
package trace

import (
	"context"

	"github.com/me/coopsched/pkg/model"
)

// Store defines the persistence layer for traced runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, state model.RunState, ticks uint64) error

	// Events
	AppendEvents(ctx context.Context, events []model.Event) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
