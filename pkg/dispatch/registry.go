package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Info is a point-in-time copy of one task descriptor.
type Info struct {
	Index   int
	Name    string
	State   State
	Counter uint32
	Period  uint32
}

// Registry is the fixed-capacity task table. The slot array is allocated
// once by NewRegistry and never grows.
type Registry struct {
	cfg   Config
	mu    sync.Mutex // serializes Register; never taken by Tick or RunReady
	slots []slot
	count atomic.Int32
}

// NewRegistry allocates a table with cfg.MaxTasks slots.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:   cfg,
		slots: make([]slot, cfg.MaxTasks),
	}, nil
}

// Config returns the limits the registry was created with.
func (r *Registry) Config() Config { return r.cfg }

// Len returns the number of registered tasks.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Cap returns the table capacity.
func (r *Registry) Cap() int { return len(r.slots) }

// Register appends a task and returns its index. Checks run in order: nil
// callback, period range (when enabled), capacity, initial state. The first
// failing check is reported and the table is left unchanged.
//
// The new task starts with counter 1.
func (r *Registry) Register(cb Callback, name string, period uint32, initial State) (int, error) {
	if isNilCallback(cb) {
		return -1, ErrNullCallback
	}
	if !r.cfg.periodAllowed(period) {
		return -1, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPeriod, period, r.cfg.MinPeriod, r.cfg.MaxPeriod)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.Len()
	if n >= len(r.slots) {
		return -1, fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, len(r.slots))
	}
	if !initial.Valid() {
		return -1, fmt.Errorf("%w: %d", ErrInvalidState, uint8(initial))
	}

	s := &r.slots[n]
	s.cb = cb
	s.name = name
	s.period.Store(period)
	s.word.Store(pack(initial, 1))
	// Publish after the slot is fully written.
	r.count.Store(int32(n + 1))
	return n, nil
}

func (r *Registry) slot(index int) (*slot, error) {
	if index < 0 || index >= r.Len() {
		return nil, fmt.Errorf("%w: %d (registered %d)", ErrIndexOutOfRange, index, r.Len())
	}
	return &r.slots[index], nil
}

// State returns the state of the task at index.
func (r *Registry) State(index int) (State, error) {
	s, err := r.slot(index)
	if err != nil {
		return 0, err
	}
	st, _ := s.load()
	return st, nil
}

// SetState overrides the state of the task at index. The counter is kept.
func (r *Registry) SetState(index int, state State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, uint8(state))
	}
	s, err := r.slot(index)
	if err != nil {
		return err
	}
	s.update(func(_ State, c uint32) (State, uint32, bool) {
		return state, c, true
	})
	return nil
}

// Period returns the period of the task at index, in ticks.
func (r *Registry) Period(index int) (uint32, error) {
	s, err := r.slot(index)
	if err != nil {
		return 0, err
	}
	return s.period.Load(), nil
}

// SetPeriod changes the period of the task at index. When the counter of a
// non-suspended task already exceeds the new period it is lowered to the
// period, so the task activates on the next tick.
func (r *Registry) SetPeriod(index int, period uint32) error {
	s, err := r.slot(index)
	if err != nil {
		return err
	}
	if !r.cfg.periodAllowed(period) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPeriod, period, r.cfg.MinPeriod, r.cfg.MaxPeriod)
	}
	s.period.Store(period)
	limit := maxCounter(period)
	s.update(func(st State, c uint32) (State, uint32, bool) {
		if st == Suspended || c <= limit {
			return st, c, false
		}
		return st, limit, true
	})
	return nil
}

// Counter returns the current tick counter of the task at index.
func (r *Registry) Counter(index int) (uint32, error) {
	s, err := r.slot(index)
	if err != nil {
		return 0, err
	}
	_, c := s.load()
	return c, nil
}

// SetCounter overrides the tick counter of the task at index. The value
// must lie in [1, period].
func (r *Registry) SetCounter(index int, counter uint32) error {
	s, err := r.slot(index)
	if err != nil {
		return err
	}
	if limit := maxCounter(s.period.Load()); counter < 1 || counter > limit {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCounter, counter, limit)
	}
	s.update(func(st State, _ uint32) (State, uint32, bool) {
		return st, counter, true
	})
	return nil
}

// Name returns the name the task at index was registered with.
func (r *Registry) Name(index int) (string, error) {
	s, err := r.slot(index)
	if err != nil {
		return "", err
	}
	return s.name, nil
}

// Info returns a snapshot of the task at index.
func (r *Registry) Info(index int) (Info, error) {
	s, err := r.slot(index)
	if err != nil {
		return Info{}, err
	}
	return s.info(index), nil
}

// Snapshot returns a copy of every registered task in registration order.
// Each entry is consistent on its own; entries are not captured atomically
// as a group.
func (r *Registry) Snapshot() []Info {
	n := r.Len()
	out := make([]Info, n)
	for i := 0; i < n; i++ {
		out[i] = r.slots[i].info(i)
	}
	return out
}

// HasReady reports whether any registered task is currently Ready.
func (r *Registry) HasReady() bool {
	n := r.Len()
	for i := 0; i < n; i++ {
		if st, _ := r.slots[i].load(); st == Ready {
			return true
		}
	}
	return false
}

// FindByName returns the index of the first registered task, in
// registration order, whose name matches query under the configured
// MatchMode. Empty queries and unnamed tasks never match.
func (r *Registry) FindByName(query string) (int, error) {
	if query != "" {
		n := r.Len()
		for i := 0; i < n; i++ {
			if r.matches(r.slots[i].name, query) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrNotFound, query)
}

func (r *Registry) matches(name, query string) bool {
	if name == "" {
		return false
	}
	if r.cfg.NameMatch == MatchPrefix {
		return strings.HasPrefix(name, query)
	}
	return name == query
}

func (s *slot) info(index int) Info {
	st, c := s.load()
	return Info{
		Index:   index,
		Name:    s.name,
		State:   st,
		Counter: c,
		Period:  s.period.Load(),
	}
}
