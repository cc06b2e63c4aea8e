package model

import "github.com/me/coopsched/pkg/dispatch"

// TaskView is the JSON form of one task descriptor.
type TaskView struct {
	Index   int    `json:"index"`
	Name    string `json:"name,omitempty"`
	State   string `json:"state"`
	Counter uint32 `json:"counter"`
	Period  uint32 `json:"period"`
}

// NewTaskView converts a registry snapshot entry.
func NewTaskView(info dispatch.Info) TaskView {
	return TaskView{
		Index:   info.Index,
		Name:    info.Name,
		State:   info.State.String(),
		Counter: info.Counter,
		Period:  info.Period,
	}
}

// NewTaskViews converts a full registry snapshot.
func NewTaskViews(infos []dispatch.Info) []TaskView {
	out := make([]TaskView, len(infos))
	for i, info := range infos {
		out[i] = NewTaskView(info)
	}
	return out
}

// TaskSummary counts tasks per state.
type TaskSummary struct {
	Total     int `json:"total"`
	Blocked   int `json:"blocked"`
	Ready     int `json:"ready"`
	Suspended int `json:"suspended"`
}

// ComputeTaskSummary calculates the TaskSummary from a registry snapshot.
func ComputeTaskSummary(infos []dispatch.Info) TaskSummary {
	s := TaskSummary{Total: len(infos)}
	for _, info := range infos {
		switch info.State {
		case dispatch.Blocked:
			s.Blocked++
		case dispatch.Ready:
			s.Ready++
		case dispatch.Suspended:
			s.Suspended++
		}
	}
	return s
}
