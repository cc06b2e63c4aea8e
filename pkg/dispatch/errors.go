package dispatch

import "errors"

var (
	// ErrNullCallback is returned by Register when no callback is supplied.
	ErrNullCallback = errors.New("dispatch: nil callback")
	// ErrInvalidPeriod is returned when a period falls outside the configured range.
	ErrInvalidPeriod = errors.New("dispatch: period out of range")
	// ErrCapacityExceeded is returned by Register when the table is full.
	ErrCapacityExceeded = errors.New("dispatch: task table full")
	// ErrNotFound is returned by FindByName when no task matches.
	ErrNotFound = errors.New("dispatch: task not found")
	// ErrIndexOutOfRange is returned for an index that does not name a registered task.
	ErrIndexOutOfRange = errors.New("dispatch: task index out of range")
	// ErrInvalidState is returned for a state value other than Blocked, Ready or Suspended.
	ErrInvalidState = errors.New("dispatch: invalid task state")
	// ErrInvalidCounter is returned by SetCounter for a value outside [1, period].
	ErrInvalidCounter = errors.New("dispatch: counter out of range")
	// ErrInvalidConfig is returned by NewRegistry for an unusable Config.
	ErrInvalidConfig = errors.New("dispatch: invalid config")
)
