package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/coopsched/pkg/dispatch"
)

// Config holds scheduler configuration.
type Config struct {
	TickInterval time.Duration
	MaxTicks     uint64 // stop after this many ticks; 0 runs until cancelled
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

// Stats is a point-in-time view of the loop counters.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	DroppedTicks uint64 `json:"dropped_ticks"`
	Activations  uint64 `json:"activations"`
	Dispatches   uint64 `json:"dispatches"`
}

// Loop implements the Scheduler interface with a ticker goroutine and a
// foreground execution loop.
type Loop struct {
	disp   *dispatch.Dispatcher
	config Config
	logger *slog.Logger

	ticks       atomic.Uint64
	activations atomic.Uint64
	dispatches  atomic.Uint64

	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewLoop creates a new scheduler loop around d.
func NewLoop(d *dispatch.Dispatcher, cfg Config, logger *slog.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Loop{
		disp:   d,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Dispatcher returns the dispatcher the loop drives.
func (l *Loop) Dispatcher() *dispatch.Dispatcher { return l.disp }

// Ticks returns how many ticks have fired.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:        l.ticks.Load(),
		DroppedTicks: l.disp.DroppedTicks(),
		Activations:  l.activations.Load(),
		Dispatches:   l.dispatches.Load(),
	}
}

// Start begins the loop. Blocks until ctx is cancelled, Stop is called or
// MaxTicks ticks have fired and the resulting work has been run.
func (l *Loop) Start(ctx context.Context) error {
	l.started.Store(true)
	defer close(l.doneCh)
	l.logger.Info("scheduler started",
		"tick_interval", l.config.TickInterval, "max_ticks", l.config.MaxTicks,
		"tasks", l.disp.Registry().Len())

	limitCh := make(chan struct{})
	tickCtx, cancelTicks := context.WithCancel(ctx)
	defer cancelTicks()
	go l.tickLoop(tickCtx, limitCh)

	// Work registered as ready before the first tick.
	l.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)", "ticks", l.Ticks())
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)", "ticks", l.Ticks())
			return nil
		case <-limitCh:
			l.drain(ctx)
			l.logger.Info("scheduler stopping (tick limit reached)", "ticks", l.Ticks())
			return nil
		case <-l.wake:
			l.drain(ctx)
		}
	}
}

// tickLoop is the simulated timer interrupt.
func (l *Loop) tickLoop(ctx context.Context, limitCh chan<- struct{}) {
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			// Tasks readied by an override also count, not only activations.
			if l.Tick() > 0 || l.disp.Registry().HasReady() {
				l.Wake()
			}
			if limit := l.config.MaxTicks; limit > 0 && l.Ticks() >= limit {
				close(limitCh)
				return
			}
		}
	}
}

// Wake requests an execution pass from the foreground loop without waiting
// for the next tick. It never blocks; requests coalesce while one is pending.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// drain runs execution passes until nothing is ready or ctx is done.
func (l *Loop) drain(ctx context.Context) {
	for l.disp.Registry().HasReady() {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-l.stopCh:
			return
		default:
		}
		if l.RunOnce() == 0 {
			// Another pass is in progress or the ready task was overridden.
			return
		}
	}
}

// Stop gracefully shuts down the loop and waits for the current pass to finish.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.doneCh
	}
	return nil
}

// Tick fires one tick and returns the number of tasks it made ready.
func (l *Loop) Tick() int {
	n := l.disp.Tick()
	l.ticks.Add(1)
	l.activations.Add(uint64(n))
	if n > 0 {
		l.logger.Debug("tick", "tick", l.Ticks(), "activated", n)
	}
	return n
}

// RunOnce performs one execution pass and returns the number of callbacks run.
func (l *Loop) RunOnce() int {
	n := l.disp.RunReady()
	l.dispatches.Add(uint64(n))
	return n
}
