package trace

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/me/coopsched/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun() *model.Run {
	return &model.Run{
		Board:        "blinky",
		TickInterval: 10 * time.Millisecond,
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	run := sampleRun()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if !strings.HasPrefix(run.ID, "run_") {
		t.Errorf("ID = %q, want run_ prefix", run.ID)
	}
	if run.State != model.RunStateRunning {
		t.Errorf("State = %s, want RUNNING", run.State)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Board != "blinky" {
		t.Errorf("Board = %q, want blinky", got.Board)
	}
	if got.TickInterval != 10*time.Millisecond {
		t.Errorf("TickInterval = %s, want 10ms", got.TickInterval)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, run.StartedAt)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestFinishRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()
	st.CreateRun(ctx, run)

	if err := st.FinishRun(ctx, run.ID, model.RunStateFinished, 42); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, _ := st.GetRun(ctx, run.ID)
	if got.State != model.RunStateFinished {
		t.Errorf("State = %s, want FINISHED", got.State)
	}
	if got.Ticks != 42 {
		t.Errorf("Ticks = %d, want 42", got.Ticks)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt = nil, want set")
	}

	err := st.FinishRun(ctx, run.ID, model.RunStateAborted, 43)
	var ite *model.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("second FinishRun error = %v, want InvalidTransitionError", err)
	}

	err = st.FinishRun(ctx, "run_missing", model.RunStateFinished, 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrNotFound {
		t.Errorf("FinishRun(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestListRuns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i := 0; i < 3; i++ {
		run := sampleRun()
		run.StartedAt = base.Add(time.Duration(i) * time.Second)
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		ids = append(ids, run.ID)
	}
	st.FinishRun(ctx, ids[0], model.RunStateFinished, 5)

	runs, total, err := st.ListRuns(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 3 || len(runs) != 3 {
		t.Fatalf("ListRuns = %d runs (total %d), want 3", len(runs), total)
	}
	if runs[0].ID != ids[2] {
		t.Errorf("first run = %s, want newest %s", runs[0].ID, ids[2])
	}

	runs, total, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, State: "RUNNING"})
	if err != nil {
		t.Fatalf("ListRuns(RUNNING): %v", err)
	}
	if total != 2 || len(runs) != 2 {
		t.Errorf("ListRuns(RUNNING) = %d (total %d), want 2", len(runs), total)
	}

	runs, _, _ = st.ListRuns(ctx, model.ListOptions{Limit: 1, Offset: 1})
	if len(runs) != 1 || runs[0].ID != ids[1] {
		t.Errorf("paged ListRuns = %v, want [%s]", runs, ids[1])
	}
}

func TestAppendAndListEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun()
	st.CreateRun(ctx, run)

	at := time.Now().UTC().Truncate(time.Microsecond)
	events := []model.Event{
		{RunID: run.ID, Seq: 2, Tick: 3, TaskIndex: 1, TaskName: "slow", StateAfter: "BLOCKED", Duration: 150 * time.Microsecond, At: at},
		{RunID: run.ID, Seq: 1, Tick: 1, TaskIndex: 0, TaskName: "fast", StateAfter: "BLOCKED", At: at},
		{RunID: run.ID, Seq: 3, Tick: 3, TaskIndex: 0, StateAfter: "SUSPENDED", At: at},
	}
	if err := st.AppendEvents(ctx, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, total, err := st.ListEvents(ctx, run.ID, model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("ListEvents = %d (total %d), want 3", len(got), total)
	}
	if got[0].Seq != 1 || got[0].TaskName != "fast" {
		t.Errorf("first event = %+v, want seq 1 fast", got[0])
	}
	if got[1].Duration != 150*time.Microsecond {
		t.Errorf("Duration = %s, want 150µs", got[1].Duration)
	}
	if got[2].StateAfter != "SUSPENDED" || got[2].TaskName != "" {
		t.Errorf("third event = %+v", got[2])
	}
	if !got[0].At.Equal(at) {
		t.Errorf("At = %v, want %v", got[0].At, at)
	}

	r, _ := st.GetRun(ctx, run.ID)
	if r.Dispatches != 3 {
		t.Errorf("Dispatches = %d, want 3", r.Dispatches)
	}
}

func TestAppendEvents_UnknownRun(t *testing.T) {
	st := testStore(t)
	err := st.AppendEvents(context.Background(), []model.Event{{RunID: "run_nope", Seq: 1, StateAfter: "BLOCKED", At: time.Now()}})
	if err == nil {
		t.Error("AppendEvents(unknown run) error = nil, want foreign key error")
	}
}
