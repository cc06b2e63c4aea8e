package dispatch

import "sync/atomic"

// slot is one task descriptor. cb and name are written once before the slot
// is published by Registry.count and are read-only afterwards.
//
// word packs the state (bits 32..39) and the tick counter (bits 0..31) so
// that the pair is always observed and replaced together.
type slot struct {
	cb     Callback
	name   string
	period atomic.Uint32
	word   atomic.Uint64
}

func pack(s State, counter uint32) uint64 {
	return uint64(s)<<32 | uint64(counter)
}

func unpack(w uint64) (State, uint32) {
	return State(w >> 32), uint32(w)
}

func (s *slot) load() (State, uint32) {
	return unpack(s.word.Load())
}

// update applies fn to the current (state, counter) pair until the
// compare-and-swap succeeds. fn returning ok=false leaves the word unchanged.
func (s *slot) update(fn func(State, uint32) (State, uint32, bool)) bool {
	for {
		old := s.word.Load()
		st, c := unpack(old)
		nst, nc, ok := fn(st, c)
		if !ok {
			return false
		}
		if s.word.CompareAndSwap(old, pack(nst, nc)) {
			return true
		}
	}
}

// advance is the tick transition. It reports whether the task was activated.
func (s *slot) advance() bool {
	for {
		old := s.word.Load()
		st, c := unpack(old)
		if st == Suspended {
			return false
		}
		fired := c >= s.period.Load()
		next := pack(st, c+1)
		if fired {
			next = pack(Ready, 1)
		}
		if s.word.CompareAndSwap(old, next) {
			return fired
		}
	}
}

// claim moves a Ready task to Blocked, keeping its counter. It reports
// whether the task was Ready.
func (s *slot) claim() bool {
	return s.update(func(st State, c uint32) (State, uint32, bool) {
		return Blocked, c, st == Ready
	})
}

// maxCounter is the largest counter value that keeps counter <= period.
// A zero period behaves like one.
func maxCounter(period uint32) uint32 {
	if period < 1 {
		return 1
	}
	return period
}
