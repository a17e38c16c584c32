package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/types"
)

const requestColumns = `id, title, description, type, priority, status,
	external_issue_number, external_issue_url, external_state,
	sync_pending, last_sync_error, admin_comment, last_status_change_by,
	created_at, updated_at, last_synced_at`

// Create inserts a new request row.
func (s *Store) Create(ctx context.Context, req *types.DevelopmentRequest) error {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO development_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Title, req.Description, string(req.Type), string(req.Priority),
		string(req.Status), req.ExternalIssueNumber, req.ExternalIssueURL,
		req.ExternalState, req.SyncPending, req.LastSyncError, req.AdminComment,
		req.LastStatusChangeBy, req.CreatedAt, req.UpdatedAt, req.LastSyncedAt,
	)
	if err != nil {
		if isDuplicateErr(err) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Get fetches a single request by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.DevelopmentRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM development_requests WHERE id = ?`, id)
	return scanRequest(row)
}

// GetByIssueNumber fetches a request by external issue number. The column is
// indexed, so webhook correlation stays a point lookup at any table size.
func (s *Store) GetByIssueNumber(ctx context.Context, number int) (*types.DevelopmentRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM development_requests WHERE external_issue_number = ?`, number)
	return scanRequest(row)
}

// List returns all requests matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter types.RequestFilter) ([]*types.DevelopmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM development_requests WHERE 1=1`
	var args []interface{}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*filter.Type))
	}
	if filter.Priority != nil {
		query += ` AND priority = ?`
		args = append(args, string(*filter.Priority))
	}
	if filter.LinkedOnly {
		query += ` AND external_issue_number IS NOT NULL`
	}
	if filter.SyncPending {
		query += ` AND sync_pending = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.DevelopmentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Update applies a partial field map. Unknown fields are rejected before any
// SQL is built.
func (s *Store) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := storage.ValidateUpdates(updates); err != nil {
		return err
	}

	setClause, args := buildSetClause(normalizeValues(updates))
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE development_requests SET `+setClause+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateStatus records an explicit status change with its audit fields.
func (s *Store) UpdateStatus(ctx context.Context, id string, change types.StatusChange) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE development_requests
		SET status = ?, admin_comment = ?, last_status_change_by = ?, updated_at = ?
		WHERE id = ?`,
		string(change.Status), change.Comment, change.Actor, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes the request row.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM development_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	return requireRow(res, id)
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("request %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// normalizeValues converts typed enum values to their string form so the
// driver sees plain SQL types.
func normalizeValues(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		switch t := v.(type) {
		case types.Status:
			out[k] = string(t)
		case types.RequestType:
			out[k] = string(t)
		case types.Priority:
			out[k] = string(t)
		default:
			out[k] = v
		}
	}
	return out
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*types.DevelopmentRequest, error) {
	var req types.DevelopmentRequest
	var (
		issueNumber sql.NullInt64
		issueURL    sql.NullString
		extState    sql.NullString
		syncErr     sql.NullString
		description sql.NullString
		comment     sql.NullString
		syncedAt    sql.NullTime
		typ, prio   string
		status      string
	)

	err := row.Scan(
		&req.ID, &req.Title, &description, &typ, &prio, &status,
		&issueNumber, &issueURL, &extState,
		&req.SyncPending, &syncErr, &comment, &req.LastStatusChangeBy,
		&req.CreatedAt, &req.UpdatedAt, &syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	req.Description = description.String
	req.AdminComment = comment.String
	req.Type = types.RequestType(typ)
	req.Priority = types.Priority(prio)
	req.Status = types.Status(status)

	if issueNumber.Valid {
		n := int(issueNumber.Int64)
		req.ExternalIssueNumber = &n
	}
	if issueURL.Valid {
		req.ExternalIssueURL = &issueURL.String
	}
	if extState.Valid {
		req.ExternalState = &extState.String
	}
	if syncErr.Valid {
		req.LastSyncError = &syncErr.String
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		req.LastSyncedAt = &t
	}
	return &req, nil
}
