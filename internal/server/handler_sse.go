package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/me/coopsched/pkg/model"
)

// tableEvent is the payload of the init and update events.
type tableEvent struct {
	Ticks uint64           `json:"ticks"`
	Tasks []model.TaskView `json:"tasks"`
}

func (s *Server) tableEvent() tableEvent {
	ev := tableEvent{Tasks: model.NewTaskViews(s.registry.Snapshot())}
	if s.loop != nil {
		ev.Ticks = s.loop.Ticks()
	}
	return ev
}

// handleSSETasks streams the task table via Server-Sent Events. An "init"
// event carries the first snapshot. An "update" follows whenever any task
// changes; otherwise a heartbeat comment is sent every interval.
// GET /api/v1/sse/tasks
func (s *Server) handleSSETasks(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, RequestIDFromContext(r.Context()), model.NewInternalError("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	last := s.tableEvent()
	if err := sendSSEEvent(w, flusher, "init", last); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			cur := s.tableEvent()
			if slices.Equal(cur.Tasks, last.Tasks) {
				if _, err := fmt.Fprintf(w, ": heartbeat tick=%d\n\n", cur.Ticks); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			if err := sendSSEEvent(w, flusher, "update", cur); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
			last = cur
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
