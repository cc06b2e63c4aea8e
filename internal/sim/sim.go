// Package sim assembles a runnable simulator from a board: registry,
// dispatcher, GPIO port, scheduler loop and the optional dispatch trace.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/coopsched/internal/action"
	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/logging"
	"github.com/me/coopsched/internal/scheduler"
	"github.com/me/coopsched/internal/trace"
	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
)

// Options configures a Simulator.
type Options struct {
	Logger       *slog.Logger
	TickInterval time.Duration // overrides the board tick when non-zero
	MaxTicks     uint64        // stop after this many ticks; 0 runs until cancelled
	ScriptBudget time.Duration // per-run limit for script bodies; 0 disables
	Trace        trace.Store   // optional; records a run and its dispatch events
	Recorder     trace.RecorderConfig
}

// Simulator is a board wired to a live task table.
type Simulator struct {
	Board      *config.Board
	Registry   *dispatch.Registry
	Dispatcher *dispatch.Dispatcher
	Loop       *scheduler.Loop
	Port       *action.Port

	scripts  map[int]*action.Script
	store    trace.Store
	run      *model.Run
	recorder *trace.Recorder
	logger   *slog.Logger
}

// New builds a simulator for board. When opts.Trace is set a run is created
// in the store and every callback is wrapped to record its invocations.
func New(ctx context.Context, board *config.Board, opts Options) (*Simulator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cfg, err := board.DispatchConfig()
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", board.Name, err)
	}
	reg, err := dispatch.NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", board.Name, err)
	}

	interval := board.Tick
	if opts.TickInterval > 0 {
		interval = opts.TickInterval
	}
	disp := dispatch.NewDispatcher(reg)
	loop := scheduler.NewLoop(disp, scheduler.Config{TickInterval: interval, MaxTicks: opts.MaxTicks}, logger)

	s := &Simulator{
		Board:      board,
		Registry:   reg,
		Dispatcher: disp,
		Loop:       loop,
		Port:       action.NewPort(board.Pins),
		scripts:    make(map[int]*action.Script),
		store:      opts.Trace,
		logger:     logger.With("component", "sim", "board", board.Name),
	}

	if s.store != nil {
		s.run = &model.Run{Board: board.Name, TickInterval: interval}
		if err := s.store.CreateRun(ctx, s.run); err != nil {
			return nil, fmt.Errorf("create trace run: %w", err)
		}
		s.recorder = trace.NewRecorder(s.store, s.run.ID, opts.Recorder, logger)
	}

	env := action.Env{
		Registry:     reg,
		Port:         s.Port,
		Logger:       logger,
		Ticks:        loop.Ticks,
		ScriptBudget: opts.ScriptBudget,
	}
	for i, ts := range board.Tasks {
		if err := s.install(ts, env); err != nil {
			s.abort()
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
	}
	return s, nil
}

func (s *Simulator) install(ts config.TaskSpec, env action.Env) error {
	cb, err := action.Build(ts, env)
	if err != nil {
		return err
	}
	script, _ := cb.(*action.Script)
	if s.recorder != nil {
		cb = s.recorder.Wrap(cb, s.Registry, s.Loop.Ticks)
	}
	st, err := ts.InitialState()
	if err != nil {
		return err
	}
	idx, err := s.Registry.Register(cb, ts.Name, ts.Period, st)
	if err != nil {
		return err
	}
	if script != nil {
		s.scripts[idx] = script
	}
	s.logger.Debug("task registered", "task", idx, "task_name", ts.Name,
		"period", ts.Period, "state", st, "action", ts.Action())
	return nil
}

// RunID returns the trace run ID, or "" when tracing is off.
func (s *Simulator) RunID() string {
	if s.run == nil {
		return ""
	}
	return s.run.ID
}

// Run drives the loop until ctx is done or the tick limit is reached, then
// flushes the trace and closes the run.
func (s *Simulator) Run(ctx context.Context) error {
	err := s.Loop.Start(ctx)

	state := model.RunStateFinished
	if err != nil && !errors.Is(err, context.Canceled) {
		state = model.RunStateAborted
	}
	if ferr := s.finish(state); ferr != nil {
		s.logger.Error("finish trace run", "run_id", s.RunID(), "error", ferr)
	}

	s.reportScripts()

	st := s.Loop.Stats()
	s.logger.Info("simulation finished", "ticks", st.Ticks, "dispatches", st.Dispatches,
		"dropped_ticks", st.DroppedTicks, "run_id", s.RunID())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ScriptFailures returns, per task index, how many runs of each script task
// ended in an exception or budget interrupt. Tasks without failures are
// omitted.
func (s *Simulator) ScriptFailures() map[int]uint64 {
	out := make(map[int]uint64)
	for idx, sc := range s.scripts {
		if n := sc.Failures(); n > 0 {
			out[idx] = n
		}
	}
	return out
}

func (s *Simulator) reportScripts() {
	for idx, sc := range s.scripts {
		if sc.Failures() == 0 {
			continue
		}
		name, _ := s.Registry.Name(idx)
		logging.ForTask(s.logger, idx, name).Warn("script task failed during run",
			"runs", sc.Runs(), "failures", sc.Failures(), "last_error", sc.LastError())
	}
}

// finish flushes the recorder and marks the run terminal.
func (s *Simulator) finish(state model.RunState) error {
	if s.recorder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.recorder.Close(ctx); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if dropped := s.recorder.Dropped(); dropped > 0 {
		s.logger.Warn("trace events dropped", "run_id", s.RunID(), "dropped", dropped)
	}
	return s.store.FinishRun(ctx, s.run.ID, state, s.Loop.Ticks())
}

// abort closes a run whose simulator never started.
func (s *Simulator) abort() {
	if err := s.finish(model.RunStateAborted); err != nil {
		s.logger.Error("abort trace run", "run_id", s.RunID(), "error", err)
	}
}
