package sim

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/trace"
	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
)

const blinky = `
name: blinky
tick: 1ms
pins: 4
tasks:
  - name: led0
    period: 1
    toggle: 0
  - name: led1
    period: 2
    state: suspended
    toggle: 1
  - name: wake-led1
    period: 3
    script: |
      sched.setState("led1", "blocked");
      task.suspend();
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadBoard(t *testing.T, src string) *config.Board {
	t.Helper()
	b, err := config.ParseBoard([]byte(src))
	if err != nil {
		t.Fatalf("ParseBoard: %v", err)
	}
	return b
}

func TestNew_RegistersBoardTasks(t *testing.T) {
	s, err := New(context.Background(), loadBoard(t, blinky), Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Registry.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Registry.Len())
	}
	if st, _ := s.Registry.State(1); st != dispatch.Suspended {
		t.Errorf("led1 state = %v, want SUSPENDED", st)
	}
	if s.Port.Width() != 4 {
		t.Errorf("port width = %d, want 4", s.Port.Width())
	}
	if s.RunID() != "" {
		t.Errorf("RunID = %q without trace, want empty", s.RunID())
	}
}

func TestSimulator_ManualSteps(t *testing.T) {
	s, err := New(context.Background(), loadBoard(t, blinky), Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.Loop.Tick()
		s.Loop.RunOnce()
	}
	// wake-led1 ran on tick 3 and released led1.
	if st, _ := s.Registry.State(2); st != dispatch.Suspended {
		t.Errorf("wake-led1 state = %v, want SUSPENDED", st)
	}
	if st, _ := s.Registry.State(1); st != dispatch.Blocked {
		t.Errorf("led1 state = %v, want BLOCKED", st)
	}
	if on, _ := s.Port.Get(0); !on {
		t.Error("led0 pin low after three toggles, want high")
	}

	for i := 0; i < 2; i++ {
		s.Loop.Tick()
		s.Loop.RunOnce()
	}
	if on, _ := s.Port.Get(1); !on {
		t.Error("led1 pin low after its first period, want high")
	}
}

func TestSimulator_RunWithTrace(t *testing.T) {
	st, err := trace.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s, err := New(ctx, loadBoard(t, blinky), Options{
		Logger:   testLogger(),
		MaxTicks: 12,
		Trace:    st,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := st.GetRun(ctx, s.RunID())
	if err != nil || run == nil {
		t.Fatalf("GetRun = %v, %v", run, err)
	}
	if run.State != model.RunStateFinished {
		t.Errorf("run state = %s, want FINISHED", run.State)
	}
	if run.Ticks != 12 {
		t.Errorf("run ticks = %d, want 12", run.Ticks)
	}
	if run.Dispatches == 0 {
		t.Error("no dispatch events recorded")
	}
	if uint64(run.Dispatches) != s.Loop.Stats().Dispatches {
		t.Errorf("recorded %d events, loop dispatched %d", run.Dispatches, s.Loop.Stats().Dispatches)
	}

	events, _, _ := st.ListEvents(ctx, s.RunID(), model.ListOptions{Limit: 500})
	sawWake := false
	for _, ev := range events {
		if ev.TaskName == "wake-led1" {
			sawWake = true
			if ev.StateAfter != "SUSPENDED" {
				t.Errorf("wake-led1 state_after = %s, want SUSPENDED", ev.StateAfter)
			}
		}
	}
	if !sawWake {
		t.Error("no event for wake-led1")
	}
}

func TestNew_BadBoardLimits(t *testing.T) {
	b := loadBoard(t, blinky)
	b.Limits = &config.Limits{NameMatch: "fuzzy"}
	if _, err := New(context.Background(), b, Options{}); err == nil {
		t.Error("New with bad name_match: error = nil, want error")
	}
}

func TestSimulator_RunReportsScriptFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	board := loadBoard(t, `
name: faulty
tick: 1ms
pins: 1
tasks:
  - name: led0
    period: 1
    toggle: 0
  - name: broken
    period: 1
    script: |
      throw new Error("boom");
`)
	s, err := New(context.Background(), board, Options{Logger: logger, MaxTicks: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	failures := s.ScriptFailures()
	if len(failures) != 1 || failures[1] == 0 {
		t.Fatalf("ScriptFailures() = %v, want failures for task 1 only", failures)
	}
	out := buf.String()
	if !strings.Contains(out, "script task failed during run") || !strings.Contains(out, "task_name=broken") {
		t.Errorf("missing failure report in log:\n%s", out)
	}
}
