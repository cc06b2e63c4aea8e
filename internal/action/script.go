package action

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/me/coopsched/internal/logging"
	"github.com/me/coopsched/pkg/dispatch"
)

var errBudgetExceeded = errors.New("script budget exceeded")

// Script is a task body written in JavaScript. The program is compiled once
// and re-run on every dispatch inside a single runtime, so globals and the
// `store` object persist between runs.
//
// Globals available to the program:
//
//	task.index, task.name
//	task.state(), task.counter(), task.period()
//	task.suspend(), task.block(), task.ready(), task.setPeriod(n)
//	sched.find(name) -> index or -1
//	sched.state(name), sched.setState(name, state)
//	pins.toggle(n), pins.set(n, high), pins.get(n)
//	log(...args), tick(), store
//
// Script is not safe for concurrent use; the dispatcher only runs it from the
// foreground pass.
type Script struct {
	name   string
	vm     *goja.Runtime
	prog   *goja.Program
	env    Env
	logger *slog.Logger

	boundIndex int
	runs       uint64
	failures   uint64
	lastErr    error
}

// NewScript compiles src and prepares its runtime.
func NewScript(name, src string, env Env) (*Script, error) {
	if env.Registry == nil {
		return nil, fmt.Errorf("script %q: registry is required", name)
	}
	if env.Logger == nil {
		env.Logger = logging.Discard()
	}
	prog, err := goja.Compile(scriptFileName(name), src, false)
	if err != nil {
		return nil, fmt.Errorf("compile script %q: %w", name, err)
	}

	s := &Script{
		name:       name,
		vm:         goja.New(),
		prog:       prog,
		env:        env,
		logger:     env.Logger.With("component", "script"),
		boundIndex: -1,
	}
	if err := s.setupGlobals(); err != nil {
		return nil, fmt.Errorf("script %q: %w", name, err)
	}
	return s, nil
}

func scriptFileName(name string) string {
	if name == "" {
		return "task.js"
	}
	return name + ".js"
}

// setupGlobals installs the objects that do not depend on the task index.
func (s *Script) setupGlobals() error {
	vm := s.vm
	reg := s.env.Registry

	sched := vm.NewObject()
	sched.Set("find", func(name string) int {
		idx, err := reg.FindByName(name)
		if err != nil {
			return -1
		}
		return idx
	})
	sched.Set("state", func(name string) (string, error) {
		idx, err := reg.FindByName(name)
		if err != nil {
			return "", err
		}
		st, err := reg.State(idx)
		return strings.ToLower(st.String()), err
	})
	sched.Set("setState", func(name, state string) error {
		st, err := dispatch.ParseState(state)
		if err != nil {
			return err
		}
		idx, err := reg.FindByName(name)
		if err != nil {
			return err
		}
		return reg.SetState(idx, st)
	})
	if err := vm.Set("sched", sched); err != nil {
		return fmt.Errorf("set sched: %w", err)
	}

	if s.env.Port != nil {
		port := s.env.Port
		pins := vm.NewObject()
		pins.Set("toggle", func(pin int) (bool, error) { return port.Toggle(pin) })
		pins.Set("set", func(pin int, high bool) error { return port.Set(pin, high) })
		pins.Set("get", func(pin int) (bool, error) { return port.Get(pin) })
		pins.Set("width", port.Width())
		if err := vm.Set("pins", pins); err != nil {
			return fmt.Errorf("set pins: %w", err)
		}
	}

	if err := vm.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		s.taskLogger().Info(strings.Join(parts, " "), "tick", s.env.ticks())
		return goja.Undefined()
	}); err != nil {
		return fmt.Errorf("set log: %w", err)
	}
	if err := vm.Set("tick", func() uint64 { return s.env.ticks() }); err != nil {
		return fmt.Errorf("set tick: %w", err)
	}
	if err := vm.Set("store", vm.NewObject()); err != nil {
		return fmt.Errorf("set store: %w", err)
	}
	return nil
}

// bind installs the `task` object for the index the script runs under.
func (s *Script) bind(index int) {
	if s.boundIndex == index {
		return
	}
	s.boundIndex = index
	reg := s.env.Registry

	task := s.vm.NewObject()
	task.Set("index", index)
	task.Set("name", s.name)
	task.Set("state", func() (string, error) {
		st, err := reg.State(index)
		return strings.ToLower(st.String()), err
	})
	task.Set("counter", func() (uint32, error) { return reg.Counter(index) })
	task.Set("period", func() (uint32, error) { return reg.Period(index) })
	task.Set("suspend", func() error { return reg.SetState(index, dispatch.Suspended) })
	task.Set("block", func() error { return reg.SetState(index, dispatch.Blocked) })
	task.Set("ready", func() error { return reg.SetState(index, dispatch.Ready) })
	task.Set("setPeriod", func(p uint32) error { return reg.SetPeriod(index, p) })
	s.vm.Set("task", task)
}

func (s *Script) taskLogger() *slog.Logger {
	return logging.ForTask(s.logger, s.boundIndex, s.name)
}

// Run executes the program once. Exceptions and budget overruns are logged
// and recorded; they never escape into the dispatcher.
func (s *Script) Run(index int) {
	s.bind(index)
	s.runs++

	if budget := s.env.ScriptBudget; budget > 0 {
		g := &budgetGuard{vm: s.vm}
		timer := time.AfterFunc(budget, g.fire)
		defer func() {
			timer.Stop()
			g.release()
		}()
	}

	if _, err := s.vm.RunProgram(s.prog); err != nil {
		s.failures++
		s.lastErr = err
		s.taskLogger().Error("script failed", "error", err, "tick", s.env.ticks())
	}
}

// budgetGuard delivers the budget interrupt of one run. Once released, a
// timer callback that is still in flight no longer reaches the runtime.
type budgetGuard struct {
	mu       sync.Mutex
	released bool
	vm       *goja.Runtime
}

func (g *budgetGuard) fire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.released {
		g.vm.Interrupt(errBudgetExceeded)
	}
}

func (g *budgetGuard) release() {
	g.mu.Lock()
	g.released = true
	g.mu.Unlock()
	g.vm.ClearInterrupt()
}

// Runs returns how many times the script has been invoked.
func (s *Script) Runs() uint64 { return s.runs }

// Failures returns how many runs ended in an exception or interrupt.
func (s *Script) Failures() uint64 { return s.failures }

// LastError returns the most recent failure, or nil.
func (s *Script) LastError() error { return s.lastErr }
