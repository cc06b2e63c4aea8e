package dispatch

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxTasks is the table capacity used by DefaultConfig.
	DefaultMaxTasks = 10
	// DefaultMinPeriod is the smallest period accepted by DefaultConfig.
	DefaultMinPeriod = 1
	// DefaultMaxPeriod is the largest period accepted by DefaultConfig.
	DefaultMaxPeriod = 10
)

// MatchMode selects how FindByName compares names.
type MatchMode int

const (
	// MatchExact matches only names equal to the query.
	MatchExact MatchMode = iota
	// MatchPrefix matches names that start with the query. This mirrors
	// firmware that compared only len(query) bytes of the stored name.
	MatchPrefix
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// ParseMatchMode converts "exact" or "prefix" to a MatchMode. An empty
// string selects MatchExact.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return MatchExact, nil
	case "prefix":
		return MatchPrefix, nil
	}
	return 0, fmt.Errorf("%w: unknown name match mode %q", ErrInvalidConfig, s)
}

// Config holds the limits of a Registry.
type Config struct {
	MaxTasks    int       // table capacity
	MinPeriod   uint32    // smallest accepted period, in ticks
	MaxPeriod   uint32    // largest accepted period, in ticks
	CheckPeriod bool      // enforce [MinPeriod, MaxPeriod] on Register and SetPeriod
	NameMatch   MatchMode // FindByName semantics
}

// DefaultConfig returns the limits of the reference firmware: ten tasks with
// periods between 1 and 10 ticks, range-checked, exact name matching.
func DefaultConfig() Config {
	return Config{
		MaxTasks:    DefaultMaxTasks,
		MinPeriod:   DefaultMinPeriod,
		MaxPeriod:   DefaultMaxPeriod,
		CheckPeriod: true,
		NameMatch:   MatchExact,
	}
}

// Validate reports whether c can back a Registry.
func (c Config) Validate() error {
	if c.MaxTasks < 1 {
		return fmt.Errorf("%w: max tasks %d < 1", ErrInvalidConfig, c.MaxTasks)
	}
	if c.CheckPeriod && c.MinPeriod > c.MaxPeriod {
		return fmt.Errorf("%w: min period %d > max period %d", ErrInvalidConfig, c.MinPeriod, c.MaxPeriod)
	}
	if c.NameMatch != MatchExact && c.NameMatch != MatchPrefix {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.NameMatch)
	}
	return nil
}

func (c Config) periodAllowed(p uint32) bool {
	return !c.CheckPeriod || (p >= c.MinPeriod && p <= c.MaxPeriod)
}
