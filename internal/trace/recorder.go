package trace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
)

// EventAppender is the part of Store the recorder writes through.
type EventAppender interface {
	AppendEvents(ctx context.Context, events []model.Event) error
}

// RecorderConfig tunes the recorder's buffering.
type RecorderConfig struct {
	Buffer        int           // pending events; further events are dropped
	BatchSize     int           // events per insert transaction
	FlushInterval time.Duration // max age of a partial batch
	WriteTimeout  time.Duration // per-batch store deadline
}

// DefaultRecorderConfig returns sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Buffer:        4096,
		BatchSize:     128,
		FlushInterval: 250 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
	}
}

// Recorder collects dispatch events off the foreground loop and writes them
// to the store in batches from its own goroutine. Record never blocks; when
// the buffer is full the event is counted as dropped.
type Recorder struct {
	store  EventAppender
	runID  string
	cfg    RecorderConfig
	logger *slog.Logger

	mu     sync.RWMutex // guards closed against Record racing Close
	closed bool
	events chan model.Event
	done   chan struct{}

	seq     atomic.Int64
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder starts a recorder for runID.
func NewRecorder(store EventAppender, runID string, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	r := &Recorder{
		store:  store,
		runID:  runID,
		cfg:    cfg,
		logger: logger.With("component", "recorder", "run_id", runID),
		events: make(chan model.Event, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Record queues ev. RunID and Seq are assigned here. It reports whether the
// event was accepted; events recorded after Close are dropped.
func (r *Recorder) Record(ev model.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	ev.RunID = r.runID
	ev.Seq = r.seq.Add(1)
	select {
	case r.events <- ev:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Wrap returns a callback that runs cb and records one event per invocation.
// ticks reports the current tick count and may be nil.
func (r *Recorder) Wrap(cb dispatch.Callback, reg *dispatch.Registry, ticks func() uint64) dispatch.Callback {
	return dispatch.IndexFunc(func(index int) {
		start := time.Now()
		cb.Run(index)
		elapsed := time.Since(start)

		ev := model.Event{TaskIndex: index, Duration: elapsed, At: start}
		if info, err := reg.Info(index); err == nil {
			ev.TaskName = info.Name
			ev.StateAfter = info.State.String()
		}
		if ticks != nil {
			ev.Tick = ticks()
		}
		r.Record(ev)
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many events reached the store.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Close stops accepting events, flushes what is queued and waits for the
// writer goroutine until ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.Event, 0, r.cfg.BatchSize)
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.flush(batch)
				r.logger.Debug("recorder closed",
					"written", r.written.Load(), "dropped", r.dropped.Load(), "failed", r.failed.Load())
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []model.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.store.AppendEvents(ctx, batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.logger.Error("write events", "count", len(batch), "error", err)
		return
	}
	r.written.Add(uint64(len(batch)))
}
