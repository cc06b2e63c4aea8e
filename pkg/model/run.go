package model

import "time"

// Run is one traced execution of a board in the simulator.
type Run struct {
	ID           string        `json:"id"`
	Board        string        `json:"board"`
	State        RunState      `json:"state"`
	TickInterval time.Duration `json:"tick_interval"`
	Ticks        uint64        `json:"ticks"`
	Dispatches   int           `json:"dispatches"` // Computed field, not stored
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
}

// Event records one callback invocation made by the execution pass.
type Event struct {
	RunID      string        `json:"run_id"`
	Seq        int64         `json:"seq"`
	Tick       uint64        `json:"tick"`
	TaskIndex  int           `json:"task_index"`
	TaskName   string        `json:"task_name,omitempty"`
	StateAfter string        `json:"state_after"` // task state once the callback returned
	Duration   time.Duration `json:"duration"`
	At         time.Time     `json:"at"`
}
