// Package memory implements the request store using in-memory data
// structures. Used by tests and by dev mode where no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/types"
)

// Store implements storage.RequestStore with maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*types.DevelopmentRequest

	// Index for O(1) lookup by external issue number.
	issueNumberToID map[int]string

	nextID int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		requests:        make(map[string]*types.DevelopmentRequest),
		issueNumberToID: make(map[int]string),
	}
}

var _ storage.RequestStore = (*Store)(nil)

// Create stores a new request. An empty ID is assigned a sequential one.
func (s *Store) Create(_ context.Context, req *types.DevelopmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		s.nextID++
		req.ID = fmt.Sprintf("dr-%d", s.nextID)
	}
	if _, exists := s.requests[req.ID]; exists {
		return storage.ErrDuplicateID
	}

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	cp := *req
	s.requests[req.ID] = &cp
	if req.ExternalIssueNumber != nil {
		s.issueNumberToID[*req.ExternalIssueNumber] = req.ID
	}
	return nil
}

// Get returns a copy of the request with the given ID.
func (s *Store) Get(_ context.Context, id string) (*types.DevelopmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// GetByIssueNumber looks up a request by external issue number via the index.
func (s *Store) GetByIssueNumber(_ context.Context, number int) (*types.DevelopmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.issueNumberToID[number]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.requests[id]
	return &cp, nil
}

// List returns copies of all requests matching the filter, ordered by ID.
func (s *Store) List(_ context.Context, filter types.RequestFilter) ([]*types.DevelopmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.DevelopmentRequest
	for _, req := range s.requests {
		if !matches(req, filter) {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matches(req *types.DevelopmentRequest, f types.RequestFilter) bool {
	if f.Status != nil && req.Status != *f.Status {
		return false
	}
	if f.Type != nil && req.Type != *f.Type {
		return false
	}
	if f.Priority != nil && req.Priority != *f.Priority {
		return false
	}
	if f.LinkedOnly && req.ExternalIssueNumber == nil {
		return false
	}
	if f.SyncPending && !req.SyncPending {
		return false
	}
	return true
}

// Update applies a partial field map to the stored request.
func (s *Store) Update(_ context.Context, id string, updates map[string]interface{}) error {
	if err := storage.ValidateUpdates(updates); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}

	for key, val := range updates {
		switch key {
		case "title":
			req.Title = toString(val)
		case "description":
			req.Description = toString(val)
		case "type":
			req.Type = types.RequestType(toString(val))
		case "priority":
			req.Priority = types.Priority(toString(val))
		case "status":
			req.Status = types.Status(toString(val))
		case "external_issue_number":
			if req.ExternalIssueNumber != nil {
				delete(s.issueNumberToID, *req.ExternalIssueNumber)
			}
			n := toIntPtr(val)
			req.ExternalIssueNumber = n
			if n != nil {
				s.issueNumberToID[*n] = id
			}
		case "external_issue_url":
			req.ExternalIssueURL = toStringPtr(val)
		case "external_state":
			req.ExternalState = toStringPtr(val)
		case "sync_pending":
			req.SyncPending = toBool(val)
		case "last_sync_error":
			req.LastSyncError = toStringPtr(val)
		case "last_synced_at":
			req.LastSyncedAt = toTimePtr(val)
		}
	}
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus records an explicit status change with its audit fields.
func (s *Store) UpdateStatus(_ context.Context, id string, change types.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	req.Status = change.Status
	req.AdminComment = change.Comment
	req.LastStatusChangeBy = change.Actor
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the request. Missing IDs are an ErrNotFound.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	if req.ExternalIssueNumber != nil {
		delete(s.issueNumberToID, *req.ExternalIssueNumber)
	}
	delete(s.requests, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case types.Status:
		return string(t)
	case types.RequestType:
		return string(t)
	case types.Priority:
		return string(t)
	}
	return fmt.Sprintf("%v", v)
}

func toBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func toStringPtr(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		return t
	case string:
		return &t
	}
	s := fmt.Sprintf("%v", v)
	return &s
}

func toIntPtr(v interface{}) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case *int:
		return t
	case int:
		return &t
	}
	return nil
}

func toTimePtr(v interface{}) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case *time.Time:
		return t
	case time.Time:
		return &t
	}
	return nil
}
