package mysql

import (
	"context"
	"fmt"
)

// schema is applied at startup. external_issue_number carries its own index
// so webhook correlation is a point lookup, not a table scan; sync_pending
// is indexed for the reconciler's outbox drain.
const schema = `
CREATE TABLE IF NOT EXISTS development_requests (
    id                    VARCHAR(64)  NOT NULL PRIMARY KEY,
    title                 VARCHAR(512) NOT NULL,
    description           TEXT,
    type                  VARCHAR(16)  NOT NULL,
    priority              VARCHAR(16)  NOT NULL,
    status                VARCHAR(32)  NOT NULL DEFAULT 'pending',
    external_issue_number INT          NULL,
    external_issue_url    VARCHAR(512) NULL,
    external_state        VARCHAR(16)  NULL,
    sync_pending          TINYINT(1)   NOT NULL DEFAULT 0,
    last_sync_error       TEXT         NULL,
    admin_comment         TEXT,
    last_status_change_by VARCHAR(128) NOT NULL DEFAULT '',
    created_at            DATETIME(6)  NOT NULL,
    updated_at            DATETIME(6)  NOT NULL,
    last_synced_at        DATETIME(6)  NULL,
    KEY idx_requests_external_issue_number (external_issue_number),
    KEY idx_requests_sync_pending (sync_pending)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
