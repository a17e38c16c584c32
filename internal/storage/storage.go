// Package storage defines the interface for the development-request store.
//
// The concrete implementations live in the mysql and memory sub-packages.
// Consumers depend on this interface rather than a concrete type so that
// alternative implementations (in-memory doubles, proxies) can be
// substituted.
package storage

import (
	"context"
	"errors"

	"github.com/clubworks/reqsync/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when creating a record whose ID already exists.
var ErrDuplicateID = errors.New("duplicate id")

// RequestStore persists development requests.
//
// Update takes a partial field map keyed by column name; unknown keys are
// rejected. UpdateStatus is the audited status-change path: it writes the
// status together with the admin comment and actor in one operation.
type RequestStore interface {
	Create(ctx context.Context, req *types.DevelopmentRequest) error
	Get(ctx context.Context, id string) (*types.DevelopmentRequest, error)
	GetByIssueNumber(ctx context.Context, number int) (*types.DevelopmentRequest, error)
	List(ctx context.Context, filter types.RequestFilter) ([]*types.DevelopmentRequest, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id string, change types.StatusChange) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// UpdatableFields enumerates the column names accepted by Update.
var UpdatableFields = map[string]bool{
	"title":                 true,
	"description":           true,
	"type":                  true,
	"priority":              true,
	"status":                true,
	"external_issue_number": true,
	"external_issue_url":    true,
	"external_state":        true,
	"sync_pending":          true,
	"last_sync_error":       true,
	"last_synced_at":        true,
}

// ValidateUpdates rejects maps containing unknown field names.
func ValidateUpdates(updates map[string]interface{}) error {
	for k := range updates {
		if !UpdatableFields[k] {
			return errors.New("unknown update field: " + k)
		}
	}
	return nil
}
