// Package action builds task bodies from board entries: pin toggles, log
// heartbeats and JavaScript scripts.
package action

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/logging"
	"github.com/me/coopsched/pkg/dispatch"
)

// Env is what task bodies can reach.
type Env struct {
	Registry     *dispatch.Registry
	Port         *Port
	Logger       *slog.Logger
	Ticks        func() uint64 // current tick count; may be nil
	ScriptBudget time.Duration // per-run limit for script bodies; 0 disables
}

func (e Env) ticks() uint64 {
	if e.Ticks == nil {
		return 0
	}
	return e.Ticks()
}

// Build returns the callback for one board task.
func Build(ts config.TaskSpec, env Env) (dispatch.Callback, error) {
	if env.Logger == nil {
		env.Logger = logging.Discard()
	}
	switch ts.Action() {
	case config.ActionToggle:
		return newToggle(ts, env)
	case config.ActionLog:
		return newLog(ts, env), nil
	case config.ActionScript:
		return NewScript(ts.Name, ts.Script, env)
	}
	return nil, fmt.Errorf("task %q: no action", ts.Name)
}

func newToggle(ts config.TaskSpec, env Env) (dispatch.Callback, error) {
	if env.Port == nil {
		return nil, fmt.Errorf("task %q: toggle needs a port", ts.Name)
	}
	pin := *ts.Toggle
	if _, err := env.Port.mask(pin); err != nil {
		return nil, fmt.Errorf("task %q: %w", ts.Name, err)
	}
	return dispatch.IndexFunc(func(index int) {
		high, _ := env.Port.Toggle(pin)
		logging.ForTask(env.Logger, index, ts.Name).Debug("pin toggled",
			"pin", pin, "high", high, "port", env.Port.String(), "tick", env.ticks())
	}), nil
}

func newLog(ts config.TaskSpec, env Env) dispatch.Callback {
	msg := ts.Log
	return dispatch.IndexFunc(func(index int) {
		logging.ForTask(env.Logger, index, ts.Name).Info(msg, "tick", env.ticks())
	})
}
