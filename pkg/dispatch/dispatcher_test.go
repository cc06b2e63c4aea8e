package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
)

func tickN(d *Dispatcher, n int) {
	for i := 0; i < n; i++ {
		d.Tick()
	}
}

func assertTask(t *testing.T, reg *Registry, idx int, st State, counter uint32) {
	t.Helper()
	info, err := reg.Info(idx)
	if err != nil {
		t.Fatalf("Info(%d): %v", idx, err)
	}
	if info.State != st || info.Counter != counter {
		t.Errorf("task %d = (%v, counter %d), want (%v, counter %d)", idx, info.State, info.Counter, st, counter)
	}
}

func TestTick_PeriodCycle(t *testing.T) {
	for period := uint32(1); period <= DefaultMaxPeriod; period++ {
		reg := newTestRegistry(t, DefaultConfig())
		idx := mustRegister(t, reg, "t", period, Blocked)
		d := NewDispatcher(reg)

		tickN(d, int(period)-1)
		assertTask(t, reg, idx, Blocked, period)

		if got := d.Tick(); got != 1 {
			t.Errorf("period %d: Tick() = %d activations, want 1", period, got)
		}
		assertTask(t, reg, idx, Ready, 1)
	}
}

func TestTick_SuspendedIsSticky(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	idx := mustRegister(t, reg, "c", 2, Suspended)
	if err := reg.SetCounter(idx, 2); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}
	d := NewDispatcher(reg)

	for i := 0; i < 50; i++ {
		if got := d.Tick(); got != 0 {
			t.Fatalf("tick %d activated %d tasks, want 0", i, got)
		}
		assertTask(t, reg, idx, Suspended, 2)
	}
}

func TestTick_ReadyTaskRefires(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	idx := mustRegister(t, reg, "slow", 2, Blocked)
	d := NewDispatcher(reg)

	tickN(d, 2)
	assertTask(t, reg, idx, Ready, 1)
	d.Tick()
	assertTask(t, reg, idx, Ready, 2)
	d.Tick()
	assertTask(t, reg, idx, Ready, 1)
}

func TestTick_ZeroPeriodFiresEveryTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckPeriod = false
	reg := newTestRegistry(t, cfg)
	idx := mustRegister(t, reg, "zero", 0, Blocked)
	d := NewDispatcher(reg)

	for i := 0; i < 3; i++ {
		if got := d.Tick(); got != 1 {
			t.Fatalf("tick %d: activations = %d, want 1", i, got)
		}
		assertTask(t, reg, idx, Ready, 1)
		d.RunReady()
	}
}

func TestRunReady_NothingReadyIsNoop(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var calls int
	reg.Register(Func(func() { calls++ }), "a", 3, Blocked)
	reg.Register(Func(func() { calls++ }), "b", 2, Suspended)
	d := NewDispatcher(reg)
	d.Tick()

	before := reg.Snapshot()
	for i := 0; i < 5; i++ {
		if got := d.RunReady(); got != 0 {
			t.Fatalf("RunReady() = %d, want 0", got)
		}
	}
	after := reg.Snapshot()

	if calls != 0 {
		t.Errorf("callbacks invoked %d times, want 0", calls)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("task %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestRunReady_OncePerPassAndBlocked(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	counts := make([]int, 3)
	for i := 0; i < 3; i++ {
		if _, err := reg.Register(IndexFunc(func(idx int) { counts[idx]++ }), "", 1, Ready); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	d := NewDispatcher(reg)

	if got := d.RunReady(); got != 3 {
		t.Fatalf("RunReady() = %d, want 3", got)
	}
	for i, c := range counts {
		if c != 1 {
			t.Errorf("task %d invoked %d times, want 1", i, c)
		}
		assertTask(t, reg, i, Blocked, 1)
	}
	if got := d.RunReady(); got != 0 {
		t.Errorf("second RunReady() = %d, want 0", got)
	}
}

func TestRunReady_StateIsBlockedDuringCallback(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var seen State = Ready
	reg.Register(IndexFunc(func(idx int) { seen, _ = reg.State(idx) }), "", 1, Ready)

	NewDispatcher(reg).RunReady()
	if seen != Blocked {
		t.Errorf("state observed inside callback = %v, want BLOCKED", seen)
	}
}

func TestRunReady_CallbackOverrides(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var runs int
	suspender, _ := reg.Register(IndexFunc(func(idx int) { reg.SetState(idx, Suspended) }), "suspender", 1, Ready)
	rearm, _ := reg.Register(IndexFunc(func(idx int) {
		runs++
		reg.SetState(idx, Ready)
	}), "rearm", 1, Ready)
	d := NewDispatcher(reg)

	d.RunReady()
	assertTask(t, reg, suspender, Suspended, 1)
	assertTask(t, reg, rearm, Ready, 1)
	if runs != 1 {
		t.Fatalf("re-arming task ran %d times in one pass, want 1", runs)
	}

	d.RunReady()
	if runs != 2 {
		t.Errorf("re-arming task ran %d times after two passes, want 2", runs)
	}
}

func TestRunReady_LaterTaskReadiedDuringPass(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var order []string
	first, _ := reg.Register(Func(func() { order = append(order, "first") }), "first", 1, Blocked)
	reg.Register(Func(func() {
		order = append(order, "second")
		reg.SetState(first, Ready)
		reg.SetState(2, Ready)
	}), "second", 1, Ready)
	reg.Register(Func(func() { order = append(order, "third") }), "third", 1, Blocked)

	if got := NewDispatcher(reg).RunReady(); got != 2 {
		t.Fatalf("RunReady() = %d, want 2", got)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "third" {
		t.Errorf("run order = %v, want [second third]", order)
	}
	assertTask(t, reg, first, Ready, 1)
}

func TestRunReady_NestedCallIsDropped(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	d := NewDispatcher(reg)
	nested := -1
	reg.Register(Func(func() { nested = d.RunReady() }), "outer", 1, Ready)
	reg.Register(Func(noop), "other", 1, Ready)

	if got := d.RunReady(); got != 2 {
		t.Errorf("RunReady() = %d, want 2", got)
	}
	if nested != 0 {
		t.Errorf("nested RunReady() = %d, want 0", nested)
	}
}

func TestScenario_TwoPeriods(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var aRuns, bRuns int
	a, _ := reg.Register(Func(func() { aRuns++ }), "A", 1, Blocked)
	b, _ := reg.Register(Func(func() { bRuns++ }), "B", 3, Blocked)
	d := NewDispatcher(reg)

	d.Tick()
	assertTask(t, reg, a, Ready, 1)
	assertTask(t, reg, b, Blocked, 2)

	d.RunReady()
	if aRuns != 1 || bRuns != 0 {
		t.Fatalf("after first pass: A=%d B=%d, want A=1 B=0", aRuns, bRuns)
	}
	assertTask(t, reg, a, Blocked, 1)

	tickN(d, 2)
	assertTask(t, reg, b, Ready, 1)

	d.RunReady()
	if bRuns != 1 {
		t.Errorf("B invoked %d times, want 1", bRuns)
	}
	assertTask(t, reg, b, Blocked, 1)
}

func TestScenario_SuspendedFromStart(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	var runs int
	c, _ := reg.Register(Func(func() { runs++ }), "C", 2, Suspended)
	d := NewDispatcher(reg)

	for i := 0; i < 10; i++ {
		d.Tick()
		d.RunReady()
	}
	assertTask(t, reg, c, Suspended, 1)
	if runs != 0 {
		t.Errorf("suspended task ran %d times, want 0", runs)
	}
}

func TestTick_OverlappingCallIsDropped(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	idx := mustRegister(t, reg, "t", 5, Blocked)
	d := NewDispatcher(reg)

	// Simulate a tick that is still in service.
	d.ticking.Store(true)
	if got := d.Tick(); got != 0 {
		t.Errorf("overlapping Tick() = %d, want 0", got)
	}
	d.ticking.Store(false)

	if d.DroppedTicks() != 1 {
		t.Errorf("DroppedTicks() = %d, want 1", d.DroppedTicks())
	}
	assertTask(t, reg, idx, Blocked, 1)
}

// TestConcurrentTickAndRun exercises the tick and execution paths from
// separate goroutines; run with -race.
func TestConcurrentTickAndRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTasks = 8
	reg := newTestRegistry(t, cfg)
	var invoked atomic.Int64
	for i := 0; i < cfg.MaxTasks; i++ {
		period := uint32(i%3 + 1)
		reg.Register(IndexFunc(func(idx int) {
			invoked.Add(1)
			if idx == 0 {
				reg.SetCounter(idx, 1)
			}
		}), "", period, Blocked)
	}
	d := NewDispatcher(reg)

	const ticks = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < ticks; i++ {
			d.Tick()
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				d.RunReady()
				return
			default:
				d.RunReady()
			}
		}
	}()
	wg.Wait()

	if invoked.Load() == 0 {
		t.Fatal("no callbacks invoked")
	}
	for _, info := range reg.Snapshot() {
		if info.State == Suspended {
			t.Errorf("task %d became SUSPENDED", info.Index)
		}
		if info.Counter < 1 || info.Counter > info.Period {
			t.Errorf("task %d counter %d outside [1, %d]", info.Index, info.Counter, info.Period)
		}
	}
}
