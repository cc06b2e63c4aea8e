package dispatch

import (
	"fmt"
	"strings"
)

// State is the scheduling state of a task.
type State uint8

const (
	// Blocked tasks wait for their period to elapse.
	Blocked State = iota
	// Ready tasks run on the next execution pass.
	Ready
	// Suspended tasks are ignored by Tick until their state is set manually.
	Suspended
)

// String returns the upper-case name of the state.
func (s State) String() string {
	switch s {
	case Blocked:
		return "BLOCKED"
	case Ready:
		return "READY"
	case Suspended:
		return "SUSPENDED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s <= Suspended
}

// ParseState converts a state name (case-insensitive) to a State.
func ParseState(name string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "blocked":
		return Blocked, nil
	case "ready":
		return Ready, nil
	case "suspended":
		return Suspended, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
