package scheduler

import "context"

// Scheduler drives a dispatcher: a tick source plays the role of the timer
// interrupt and a foreground loop runs whatever the ticks made ready.
type Scheduler interface {
	// Start begins the loop. Blocks until ctx is cancelled, Stop is called
	// or the configured tick limit is reached.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop.
	Stop() error

	// Tick fires a single tick. Used for testing and manual stepping.
	Tick() int
}
