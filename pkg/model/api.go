package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures list queries over trace runs and events.
type ListOptions struct {
	Limit  int
	Offset int
	State  string // Optional run state filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 500, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Page builds the pagination block for a page of n items out of total.
func (o ListOptions) Page(total, n int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+n < total,
	}
}

// StateUpdate is the body of PUT /tasks/{ref}/state.
type StateUpdate struct {
	State string `json:"state"`
}

// PeriodUpdate is the body of PUT /tasks/{ref}/period.
type PeriodUpdate struct {
	Period uint32 `json:"period"`
}

// CounterUpdate is the body of PUT /tasks/{ref}/counter.
type CounterUpdate struct {
	Counter uint32 `json:"counter"`
}
