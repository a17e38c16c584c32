// Package webhook receives GitHub issue events and applies them to the
// local request store. Deliveries are authenticated with the repository
// webhook secret, filtered down to the issue actions that can change local
// state, and applied idempotently so redeliveries are harmless.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/request"
	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/telemetry"
	"github.com/clubworks/reqsync/internal/types"
)

// EventPath is the route GitHub deliveries are pointed at.
const EventPath = "/webhook/github"

// Server handles HTTP requests for inbound GitHub issue events and, when a
// lifecycle service is configured, the admin request routes.
type Server struct {
	store      storage.RequestStore
	requests   *request.Service
	secret     []byte
	mux        *http.ServeMux
	httpServer *http.Server

	onMessage func(msg string)
	onWarning func(msg string)
	metrics   *telemetry.SyncMetrics
}

// ServerConfig holds configuration for the webhook server.
type ServerConfig struct {
	Store  storage.RequestStore
	Secret []byte // HMAC secret for delivery verification; empty disables it

	// Requests enables the admin lifecycle routes under /requests.
	Requests *request.Service

	OnMessage func(msg string)
	OnWarning func(msg string)
	Metrics   *telemetry.SyncMetrics
}

// NewServer creates a new webhook server. Running without a secret is
// permitted for local development but warned about loudly, since anyone
// who can reach the endpoint can then forge state changes.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		store:     cfg.Store,
		requests:  cfg.Requests,
		secret:    cfg.Secret,
		mux:       http.NewServeMux(),
		onMessage: cfg.OnMessage,
		onWarning: cfg.OnWarning,
		metrics:   cfg.Metrics,
	}

	s.mux.HandleFunc(EventPath, s.handleIssueEvent)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.requests != nil {
		s.registerAdminRoutes()
	}

	if len(s.secret) == 0 {
		s.warn("webhook signature verification disabled: no secret configured")
	}
	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// EventResponse is the JSON response body for delivery attempts.
type EventResponse struct {
	Success   bool   `json:"success"`
	Ignored   bool   `json:"ignored,omitempty"`
	Changed   bool   `json:"changed,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleIssueEvent handles POST /webhook/github.
func (s *Server) handleIssueEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	ctx := r.Context()

	// Authenticate before parsing: the body of a forged delivery is not
	// worth decoding.
	if len(s.secret) > 0 {
		if err := VerifySignature(s.secret, body, r.Header.Get(SignatureHeader)); err != nil {
			s.metrics.CountWebhook(ctx, "rejected")
			s.warn("rejected delivery %s: %v", r.Header.Get(DeliveryHeader), err)
			s.writeError(w, http.StatusUnauthorized, fmt.Sprintf("signature verification failed: %v", err))
			return
		}
	}

	// Non-issue events (ping, push, label edits, ...) are acknowledged so
	// GitHub does not mark the hook as failing, but never touch state.
	if event := r.Header.Get(EventHeader); event != "issues" {
		s.metrics.CountWebhook(ctx, "ignored")
		s.writeIgnored(w)
		return
	}

	ev, err := ParseIssueEvent(body)
	if err != nil {
		s.metrics.CountWebhook(ctx, "rejected")
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	if !handledActions[ev.Action] {
		s.metrics.CountWebhook(ctx, "ignored")
		s.writeIgnored(w)
		return
	}

	req, err := s.store.GetByIssueNumber(ctx, ev.Issue.Number)
	if errors.Is(err, storage.ErrNotFound) {
		// Issues created directly in the repository have no local
		// counterpart. Not an error: the hook covers the whole repo.
		s.metrics.CountWebhook(ctx, "ignored")
		s.writeIgnored(w)
		return
	}
	if err != nil {
		s.metrics.CountWebhook(ctx, "error")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("lookup failed: %v", err))
		return
	}

	changed, err := s.applyEvent(ctx, req, ev)
	if err != nil {
		s.metrics.CountWebhook(ctx, "error")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("apply failed: %v", err))
		return
	}

	s.metrics.CountWebhook(ctx, "applied")
	if changed {
		s.msg("applied %s event for issue #%d to %s", ev.Action, ev.Issue.Number, req.ID)
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success:   true,
		Changed:   changed,
		RequestID: req.ID,
		Status:    string(github.ToLocalStatus(ev.Issue.State, github.LabelNames(ev.Issue.Labels))),
	})
}

// applyEvent maps the event onto the stored request and writes only the
// fields that actually differ. Applying the same delivery twice writes
// nothing the second time.
func (s *Server) applyEvent(ctx context.Context, req *types.DevelopmentRequest, ev *IssueEvent) (bool, error) {
	labels := github.LabelNames(ev.Issue.Labels)
	status := github.ToLocalStatus(ev.Issue.State, labels)

	updates := make(map[string]interface{})
	if status != req.Status {
		updates["status"] = status
	}
	if req.ExternalState == nil || *req.ExternalState != ev.Issue.State {
		updates["external_state"] = ev.Issue.State
	}
	if ev.Issue.HTMLURL != "" && (req.ExternalIssueURL == nil || *req.ExternalIssueURL != ev.Issue.HTMLURL) {
		updates["external_issue_url"] = ev.Issue.HTMLURL
	}
	// The webhook is the only channel that pulls title changes inward.
	if ev.Issue.Title != "" && ev.Issue.Title != req.Title {
		updates["title"] = ev.Issue.Title
	}

	if len(updates) == 0 {
		return false, nil
	}
	updates["last_synced_at"] = time.Now().UTC()

	if err := s.store.Update(ctx, req.ID, updates); err != nil {
		return false, err
	}
	return true, nil
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeIgnored acknowledges a delivery that required no action.
func (s *Server) writeIgnored(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(EventResponse{Success: true, Ignored: true})
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success: false,
		Error:   message,
	})
}

func (s *Server) msg(format string, args ...interface{}) {
	if s.onMessage != nil {
		s.onMessage(fmt.Sprintf(format, args...))
	}
}

func (s *Server) warn(format string, args ...interface{}) {
	if s.onWarning != nil {
		s.onWarning(fmt.Sprintf(format, args...))
	}
}
