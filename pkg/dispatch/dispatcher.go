package dispatch

import "sync/atomic"

// Dispatcher advances and executes the tasks of one Registry.
type Dispatcher struct {
	reg     *Registry
	ticking atomic.Bool
	running atomic.Bool
	dropped atomic.Uint64
}

// NewDispatcher returns a Dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Registry returns the table the dispatcher drives.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Tick advances every non-suspended task by one tick. A task whose counter
// has reached its period is reset to counter 1 and made Ready; any other task
// has its counter incremented. Suspended tasks are not touched.
//
// Tick never blocks and never invokes callbacks. It returns the number of
// tasks activated by this tick. A call made while another Tick is still in
// progress is dropped, counted in DroppedTicks, and returns 0.
func (d *Dispatcher) Tick() int {
	if !d.ticking.CompareAndSwap(false, true) {
		d.dropped.Add(1)
		return 0
	}
	defer d.ticking.Store(false)

	activated := 0
	n := d.reg.Len()
	for i := 0; i < n; i++ {
		if d.reg.slots[i].advance() {
			activated++
		}
	}
	return activated
}

// DroppedTicks returns how many overlapping Tick calls were discarded.
func (d *Dispatcher) DroppedTicks() uint64 {
	return d.dropped.Load()
}

// RunReady makes one pass over the table in registration order. Each task
// found Ready is set to Blocked and then its callback is invoked exactly
// once. A task is judged when the pass reaches it: tasks made Ready behind
// the current position, including a callback re-arming itself, are left for
// the next call.
//
// It returns the number of callbacks invoked. A nested call from inside a
// callback returns 0 without running anything. Panics raised by a callback
// are not recovered.
func (d *Dispatcher) RunReady() int {
	if !d.running.CompareAndSwap(false, true) {
		return 0
	}
	defer d.running.Store(false)

	ran := 0
	n := d.reg.Len()
	for i := 0; i < n; i++ {
		s := &d.reg.slots[i]
		if !s.claim() {
			continue
		}
		s.cb.Run(i)
		ran++
	}
	return ran
}
