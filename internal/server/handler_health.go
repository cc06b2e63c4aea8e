package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/coopsched/pkg/model"
)

// Version is the API version reported by /health.
const Version = "0.1.0"

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	Board        string `json:"board,omitempty"`
	Scheduler    string `json:"scheduler"`
	Trace        string `json:"trace"`
	Tasks        int    `json:"tasks"`
	Capacity     int    `json:"capacity"`
	Ticks        uint64 `json:"ticks"`
	DroppedTicks uint64 `json:"dropped_ticks"`
	Dispatches   uint64 `json:"dispatches"`

	Summary model.TaskSummary `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Board:     s.board,
		Scheduler: "not_attached",
		Trace:     "disabled",
		Tasks:     s.registry.Len(),
		Capacity:  s.registry.Cap(),
		Summary:   model.ComputeTaskSummary(s.registry.Snapshot()),
	}
	if s.loop != nil {
		st := s.loop.Stats()
		resp.Scheduler = "attached"
		resp.Ticks = st.Ticks
		resp.DroppedTicks = st.DroppedTicks
		resp.Dispatches = st.Dispatches
	}
	if s.store != nil {
		resp.Trace = "enabled"
	}
	respondOK(w, reqID, resp)
}
