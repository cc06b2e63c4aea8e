package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/coopsched/pkg/model"
)

// listOptions reads limit, offset and state from the query string.
func listOptions(r *http.Request) model.ListOptions {
	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	opts.State = q.Get("state")
	opts.Clamp()
	return opts
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts := listOptions(r)
	if opts.State != "" {
		st, ok := model.ParseRunState(opts.State)
		if !ok {
			respondError(w, reqID, model.NewValidationError("invalid state filter",
				model.FieldError{Field: "state", Message: "want RUNNING, FINISHED or ABORTED"}))
			return
		}
		opts.State = st.String()
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, opts.Page(total, len(runs)))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	opts := listOptions(r)

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if run == nil {
		respondError(w, reqID, model.NewNotFoundError("run", id))
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), id, opts)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondList(w, reqID, events, opts.Page(total, len(events)))
}
