package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/coopsched/internal/diag"
	"github.com/me/coopsched/internal/logging"
	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
)

// resolveTask maps a {ref} path segment to a task index. A decimal ref is an
// index; anything else is looked up by name.
func (s *Server) resolveTask(ref string) (int, error) {
	if idx, err := strconv.Atoi(ref); err == nil {
		if _, err := s.registry.Info(idx); err != nil {
			return -1, err
		}
		return idx, nil
	}
	return s.registry.FindByName(ref)
}

// taskError converts a dispatch error into an API error.
func taskError(ref, field string, err error) *model.APIError {
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, dispatch.ErrIndexOutOfRange):
		return model.NewNotFoundError("task", ref)
	case errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, dispatch.ErrInvalidPeriod),
		errors.Is(err, dispatch.ErrInvalidCounter):
		return model.NewValidationError("invalid "+field,
			model.FieldError{Field: field, Message: err.Error()})
	}
	return model.NewInternalError(err.Error())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	views := model.NewTaskViews(s.registry.Snapshot())
	respondList(w, reqID, views, &model.Pagination{
		Total:   len(views),
		Limit:   s.registry.Cap(),
		Offset:  0,
		HasMore: false,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	ref := chi.URLParam(r, "ref")

	idx, err := s.resolveTask(ref)
	if err != nil {
		respondError(w, reqID, taskError(ref, "ref", err))
		return
	}
	info, err := s.registry.Info(idx)
	if err != nil {
		respondError(w, reqID, taskError(ref, "ref", err))
		return
	}
	respondOK(w, reqID, model.NewTaskView(info))
}

func (s *Server) handleDumpTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	ref := chi.URLParam(r, "ref")

	idx, err := s.resolveTask(ref)
	if err != nil {
		respondError(w, reqID, taskError(ref, "ref", err))
		return
	}
	info, _ := s.registry.Info(idx)

	var buf bytes.Buffer
	diag.WriteTask(&buf, info)
	respondText(w, reqID, buf.Bytes())
}

func (s *Server) handleDumpTable(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var buf bytes.Buffer
	diag.WriteTable(&buf, s.registry.Snapshot())
	if s.loop != nil {
		st := s.loop.Stats()
		diag.WriteStats(&buf, st.Ticks, st.DroppedTicks, int(st.Dispatches))
	}
	respondText(w, reqID, buf.Bytes())
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var body model.StateUpdate
	s.handleOverride(w, r, "state", &body, func(idx int) error {
		st, err := dispatch.ParseState(body.State)
		if err != nil {
			return err
		}
		return s.registry.SetState(idx, st)
	})
}

func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	var body model.PeriodUpdate
	s.handleOverride(w, r, "period", &body, func(idx int) error {
		return s.registry.SetPeriod(idx, body.Period)
	})
}

func (s *Server) handleSetCounter(w http.ResponseWriter, r *http.Request) {
	var body model.CounterUpdate
	s.handleOverride(w, r, "counter", &body, func(idx int) error {
		return s.registry.SetCounter(idx, body.Counter)
	})
}

// handleOverride decodes body, resolves {ref} and applies one manual override.
// The updated task is returned.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request, field string, body any, apply func(idx int) error) {
	reqID := RequestIDFromContext(r.Context())
	ref := chi.URLParam(r, "ref")

	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		respondError(w, reqID,
			model.NewValidationError("invalid JSON body", model.FieldError{Message: err.Error()}))
		return
	}

	idx, err := s.resolveTask(ref)
	if err != nil {
		respondError(w, reqID, taskError(ref, "ref", err))
		return
	}
	if err := apply(idx); err != nil {
		respondError(w, reqID, taskError(ref, field, err))
		return
	}

	info, _ := s.registry.Info(idx)
	if s.loop != nil && info.State == dispatch.Ready {
		s.loop.Wake()
	}
	logging.ForTask(s.logger, idx, info.Name).Info("task override",
		"field", field, "state", info.State, "counter", info.Counter, "period", info.Period,
		"request_id", reqID)
	respondOK(w, reqID, model.NewTaskView(info))
}
