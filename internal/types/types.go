// Package types defines core data structures for development requests.
package types

import (
	"fmt"
	"time"
)

// Status is the local status domain for a development request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status value.
var Statuses = []Status{StatusPending, StatusInProgress, StatusDone, StatusCancelled}

// IsValid returns true if s is one of the recognized status values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// RequestType classifies a development request.
type RequestType string

const (
	TypeBug     RequestType = "bug"
	TypeFeature RequestType = "feature"
)

// IsValid returns true if t is a recognized request type.
func (t RequestType) IsValid() bool {
	return t == TypeBug || t == TypeFeature
}

// Priority is the urgency of a development request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid returns true if p is a recognized priority value.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DevelopmentRequest is a staff-raised bug or feature ticket, optionally
// linked to an issue on the external tracker.
//
// ExternalIssueNumber and ExternalIssueURL are set together after the first
// successful external creation, never one without the other. ExternalState
// holds the last raw state string ("open"/"closed") observed from the
// external side. LastSyncedAt is touched only by inbound or outbound sync,
// never by local-only edits.
type DevelopmentRequest struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Type        RequestType `json:"type"`
	Priority    Priority    `json:"priority"`
	Status      Status      `json:"status"`

	ExternalIssueNumber *int    `json:"external_issue_number,omitempty"`
	ExternalIssueURL    *string `json:"external_issue_url,omitempty"`
	ExternalState       *string `json:"external_state,omitempty"`

	// SyncPending marks a row with an outbound push that has not landed yet.
	// The reconciler drains these, giving at-least-once delivery.
	SyncPending   bool    `json:"sync_pending,omitempty"`
	LastSyncError *string `json:"last_sync_error,omitempty"`

	AdminComment       string `json:"admin_comment,omitempty"`
	LastStatusChangeBy string `json:"last_status_change_by,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Linked returns true if the request has been created on the external tracker.
func (r *DevelopmentRequest) Linked() bool {
	return r.ExternalIssueNumber != nil
}

// Validate checks the authored fields of a request.
func (r *DevelopmentRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid request type: %q", r.Type)
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %q", r.Priority)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", r.Status)
	}
	return nil
}

// RequestFilter narrows queries over development requests.
type RequestFilter struct {
	Status      *Status
	Type        *RequestType
	Priority    *Priority
	LinkedOnly  bool // only requests with an external issue number
	SyncPending bool // only requests with an undrained outbound push
}

// StatusChange captures an explicit, audit-tracked status transition.
type StatusChange struct {
	Status  Status
	Comment string
	Actor   string
}
