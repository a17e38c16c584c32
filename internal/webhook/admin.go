package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/clubworks/reqsync/internal/request"
	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/types"
)

// The admin routes expose the request lifecycle to the host application
// over the same listener the webhook uses. They are meant for the
// application network; only the GitHub delivery path needs outside
// exposure.

// RequestResponse is the JSON response body for lifecycle operations.
type RequestResponse struct {
	Success  bool                        `json:"success"`
	Request  *types.DevelopmentRequest   `json:"request,omitempty"`
	Requests []*types.DevelopmentRequest `json:"requests,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func (s *Server) registerAdminRoutes() {
	s.mux.HandleFunc("POST /requests", s.handleCreateRequest)
	s.mux.HandleFunc("GET /requests", s.handleListRequests)
	s.mux.HandleFunc("GET /requests/{id}", s.handleGetRequest)
	s.mux.HandleFunc("PATCH /requests/{id}", s.handleUpdateRequest)
	s.mux.HandleFunc("POST /requests/{id}/status", s.handleChangeStatus)
	s.mux.HandleFunc("DELETE /requests/{id}", s.handleDeleteRequest)
}

// handleCreateRequest handles POST /requests.
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var in struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Type        string `json:"type"`
		Priority    string `json:"priority"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := s.requests.Create(r.Context(), request.CreateInput{
		Title:       in.Title,
		Description: in.Description,
		Type:        types.RequestType(in.Type),
		Priority:    types.Priority(in.Priority),
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.msg("created request %s", req.ID)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(RequestResponse{Success: true, Request: req})
}

// handleListRequests handles GET /requests with optional status, type,
// priority, linked and sync_pending query filters.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var filter types.RequestFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := types.Status(v)
		if !status.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := q.Get("type"); v != "" {
		typ := types.RequestType(v)
		if !typ.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid type %q", v))
			return
		}
		filter.Type = &typ
	}
	if v := q.Get("priority"); v != "" {
		priority := types.Priority(v)
		if !priority.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid priority %q", v))
			return
		}
		filter.Priority = &priority
	}
	filter.LinkedOnly = q.Get("linked") == "true"
	filter.SyncPending = q.Get("sync_pending") == "true"

	reqs, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RequestResponse{Success: true, Requests: reqs})
}

// handleGetRequest handles GET /requests/{id}.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	req, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("lookup failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RequestResponse{Success: true, Request: req})
}

// handleUpdateRequest handles PATCH /requests/{id}. The body is a partial
// field map; unknown fields are rejected.
func (s *Server) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := r.PathValue("id")

	var updates map[string]interface{}
	if err := decodeBody(r, &updates); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(updates) == 0 {
		s.writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := s.requests.Update(r.Context(), id, updates); err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.respondWithRequest(w, r, id)
}

// handleChangeStatus handles POST /requests/{id}/status.
func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := r.PathValue("id")

	var in struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
		Actor   string `json:"actor"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	change := types.StatusChange{
		Status:  types.Status(in.Status),
		Comment: in.Comment,
		Actor:   in.Actor,
	}
	if err := s.requests.ChangeStatus(r.Context(), id, change); err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.msg("status of %s changed to %s", id, change.Status)
	s.respondWithRequest(w, r, id)
}

// handleDeleteRequest handles DELETE /requests/{id}.
func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := r.PathValue("id")

	if err := s.requests.Delete(r.Context(), id); err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.msg("deleted request %s", id)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RequestResponse{Success: true})
}

// respondWithRequest writes the stored record after a successful mutation.
func (s *Server) respondWithRequest(w http.ResponseWriter, r *http.Request, id string) {
	req, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("lookup failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RequestResponse{Success: true, Request: req})
}

// writeLifecycleError maps a lifecycle failure onto a status code. A
// missing record is 404; anything else the service rejects is a caller
// problem, since store-side failures already surfaced as validation.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
}

// decodeBody reads and unmarshals a JSON request body.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return fmt.Errorf("failed to read request body")
	}
	defer func() { _ = r.Body.Close() }()
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("malformed JSON: %v", err)
	}
	return nil
}
