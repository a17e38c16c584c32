// Package request implements the business-facing lifecycle of development
// requests: create, update, privileged status changes, delete, and manual
// re-sync. It owns the decision of when a local mutation is pushed to the
// external tracker; the push itself is delegated to the tracker port and
// is always best-effort.
package request

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/tracker"
	"github.com/clubworks/reqsync/internal/types"
)

// pushTimeout bounds a single fire-and-forget outbound push. The caller's
// context is deliberately not used: the local write is acknowledged before
// the push, so the push must outlive the request that triggered it.
const pushTimeout = 60 * time.Second

// syncRelevantFields are the local fields whose change is visible on the
// external issue. Edits touching none of these never cause a push.
var syncRelevantFields = map[string]bool{
	"title":       true,
	"description": true,
	"type":        true,
	"priority":    true,
	"status":      true,
}

// Resyncer reconciles one request on demand, outside the scheduler.
type Resyncer interface {
	ResyncOne(ctx context.Context, id string, strict bool) error
}

// Service orchestrates the request lifecycle over a store and a sync port.
type Service struct {
	Store storage.RequestStore
	Port  tracker.OutboundSyncPort

	// Resync handles manual single-record reconciliation (optional; the
	// operation errors when absent).
	Resync Resyncer

	OnMessage func(msg string)
	OnWarning func(msg string)

	pushes sync.WaitGroup
}

// NewService wires a lifecycle service.
func NewService(store storage.RequestStore, port tracker.OutboundSyncPort) *Service {
	return &Service{Store: store, Port: port}
}

// CreateInput holds the caller-supplied fields for a new request.
type CreateInput struct {
	Title       string
	Description string
	Type        types.RequestType
	Priority    types.Priority
}

// Create persists a new pending request, then attempts the external issue
// creation outside the synchronous path. The returned record is always the
// stored, unlinked one; linking lands asynchronously or via the reconciler.
func (s *Service) Create(ctx context.Context, in CreateInput) (*types.DevelopmentRequest, error) {
	if in.Priority == "" {
		in.Priority = types.PriorityMedium
	}
	req := &types.DevelopmentRequest{
		ID:          NewID(),
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Priority:    in.Priority,
		Status:      types.StatusPending,
		SyncPending: s.Port.Enabled(),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if s.Port.Enabled() {
		s.async(func(pctx context.Context) { s.pushCreate(pctx, req.ID) })
	}
	return req, nil
}

// Update persists field changes, then pushes the sync-relevant subset to
// the external issue when the record is linked. Store errors are returned;
// push failures are not.
func (s *Service) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if err := storage.ValidateUpdates(updates); err != nil {
		return err
	}
	if err := s.Store.Update(ctx, id, updates); err != nil {
		return err
	}

	relevant := false
	for field := range updates {
		if syncRelevantFields[field] {
			relevant = true
			break
		}
	}
	if !relevant || !s.Port.Enabled() {
		return nil
	}

	req, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.Linked() {
		return nil
	}

	if err := s.markPending(ctx, id); err != nil {
		s.warn("marking %s for sync: %v", id, err)
	}
	s.async(func(pctx context.Context) { s.pushDetails(pctx, req) })
	return nil
}

// ChangeStatus applies a privileged status change with its audit fields,
// then pushes the derived state and label set, plus the admin comment when
// one was given.
func (s *Service) ChangeStatus(ctx context.Context, id string, change types.StatusChange) error {
	if !change.Status.IsValid() {
		return fmt.Errorf("invalid status %q", change.Status)
	}
	if err := s.Store.UpdateStatus(ctx, id, change); err != nil {
		return err
	}

	req, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.Linked() || !s.Port.Enabled() {
		return nil
	}

	if err := s.markPending(ctx, id); err != nil {
		s.warn("marking %s for sync: %v", id, err)
	}
	s.async(func(pctx context.Context) { s.pushStatus(pctx, req, change) })
	return nil
}

// Delete removes the request. A linked record's external issue is closed as
// not planned first, best-effort: the local delete proceeds regardless of
// whether the close landed.
func (s *Service) Delete(ctx context.Context, id string) error {
	req, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Linked() && s.Port.Enabled() {
		if !s.Port.Close(ctx, *req.ExternalIssueNumber, github.CloseNotPlanned) {
			s.warn("closing issue #%d for deleted request %s failed; deleting anyway", *req.ExternalIssueNumber, id)
		}
	}
	return s.Store.Delete(ctx, id)
}

// ResyncNow reconciles one record immediately, bypassing the scheduler.
func (s *Service) ResyncNow(ctx context.Context, id string, strict bool) error {
	if s.Resync == nil {
		return fmt.Errorf("manual re-sync is not available")
	}
	return s.Resync.ResyncOne(ctx, id, strict)
}

// Wait blocks until all in-flight outbound pushes finish. Used at shutdown
// so fire-and-forget work is not cut off mid-call.
func (s *Service) Wait() {
	s.pushes.Wait()
}

// pushCreate creates the external issue for a freshly stored request and
// patches the link fields back. Failure leaves the outbox marker set for
// the reconciler.
func (s *Service) pushCreate(ctx context.Context, id string) {
	req, err := s.Store.Get(ctx, id)
	if err != nil {
		s.warn("loading %s for issue creation: %v", id, err)
		return
	}
	ref := s.Port.Create(ctx, req)
	if ref == nil {
		s.recordFailure(ctx, id, "issue creation failed")
		return
	}
	err = s.Store.Update(ctx, id, map[string]interface{}{
		"external_issue_number": ref.Number,
		"external_issue_url":    ref.URL,
		"external_state":        "open",
		"sync_pending":          false,
		"last_sync_error":       nil,
		"last_synced_at":        time.Now().UTC(),
	})
	if err != nil {
		s.warn("recording external link for %s: %v", id, err)
		return
	}
	s.msg("linked %s to issue #%d", id, ref.Number)
}

// pushDetails rebuilds title, body, labels and state from the stored fields
// and pushes them in one partial update.
func (s *Service) pushDetails(ctx context.Context, req *types.DevelopmentRequest) {
	state := github.ToExternalState(req.Status)
	title := req.Title
	body := tracker.BuildIssueBody(req)
	issue := s.Port.UpdateDetails(ctx, *req.ExternalIssueNumber, tracker.DetailUpdate{
		Title:  &title,
		Body:   &body,
		Labels: github.BuildLabelSet(req.Status, req.Type, req.Priority),
		State:  &state,
	})
	if issue == nil {
		s.recordFailure(ctx, req.ID, "detail push failed")
		return
	}
	s.recordSynced(ctx, req.ID, issue.State)
}

// pushStatus pushes the state and label set derived from the new status,
// then posts the admin comment when one accompanied the change.
func (s *Service) pushStatus(ctx context.Context, req *types.DevelopmentRequest, change types.StatusChange) {
	state := github.ToExternalState(change.Status)
	labels := github.BuildLabelSet(change.Status, req.Type, req.Priority)
	issue := s.Port.UpdateStatus(ctx, *req.ExternalIssueNumber, state, labels)
	if issue == nil {
		s.recordFailure(ctx, req.ID, "status push failed")
		return
	}
	s.recordSynced(ctx, req.ID, issue.State)

	if change.Comment != "" {
		body := fmt.Sprintf("Status changed to **%s**", change.Status)
		if change.Actor != "" {
			body += " by " + change.Actor
		}
		body += "\n\n" + change.Comment
		s.Port.Comment(ctx, *req.ExternalIssueNumber, body)
	}
}

func (s *Service) markPending(ctx context.Context, id string) error {
	return s.Store.Update(ctx, id, map[string]interface{}{"sync_pending": true})
}

func (s *Service) recordSynced(ctx context.Context, id, externalState string) {
	err := s.Store.Update(ctx, id, map[string]interface{}{
		"external_state":  externalState,
		"sync_pending":    false,
		"last_sync_error": nil,
		"last_synced_at":  time.Now().UTC(),
	})
	if err != nil {
		s.warn("clearing sync marker for %s: %v", id, err)
	}
}

// recordFailure notes the failed push on the row so admins can see it and
// the reconciler retries it.
func (s *Service) recordFailure(ctx context.Context, id, reason string) {
	err := s.Store.Update(ctx, id, map[string]interface{}{
		"sync_pending":    true,
		"last_sync_error": reason,
	})
	if err != nil {
		s.warn("recording sync failure for %s: %v", id, err)
	}
}

// async runs a push in the background with its own bounded context.
func (s *Service) async(fn func(ctx context.Context)) {
	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// NewID generates a request identifier.
func NewID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "dr-" + hex.EncodeToString(buf)
}

func (s *Service) msg(format string, args ...interface{}) {
	if s.OnMessage != nil {
		s.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (s *Service) warn(format string, args ...interface{}) {
	if s.OnWarning != nil {
		s.OnWarning(fmt.Sprintf(format, args...))
	}
}
