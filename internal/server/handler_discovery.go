package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/health", []string{"GET"}, "Server health, tick and dispatch counters"},
		{"/api/v1/dump", []string{"GET"}, "Text dump of the whole task table"},
		{"/api/v1/tasks", []string{"GET"}, "Snapshot of every registered task"},
		{"/api/v1/tasks/{ref}", []string{"GET"}, "Single task by index or name"},
		{"/api/v1/tasks/{ref}/dump", []string{"GET"}, "Text dump of a single task"},
		{"/api/v1/tasks/{ref}/state", []string{"PUT"}, "Override task state (blocked, ready, suspended)"},
		{"/api/v1/tasks/{ref}/period", []string{"PUT"}, "Change task period"},
		{"/api/v1/tasks/{ref}/counter", []string{"PUT"}, "Override task tick counter"},
		{"/api/v1/sse/tasks", []string{"GET"}, "Server-Sent Events stream of table changes"},
	}
	if s.store != nil {
		endpoints = append(endpoints,
			endpointInfo{"/api/v1/runs", []string{"GET"}, "Traced simulator runs"},
			endpointInfo{"/api/v1/runs/{id}", []string{"GET"}, "Single traced run"},
			endpointInfo{"/api/v1/runs/{id}/events", []string{"GET"}, "Dispatch events of a run"},
		)
	}
	respondOK(w, reqID, discoveryResponse{
		Name:        "coopsched API",
		Version:     "v1",
		Description: "Cooperative periodic task dispatcher: diagnostics, manual control and dispatch traces",
		Endpoints:   endpoints,
	})
}
