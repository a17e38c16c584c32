// Package mysql implements the request store on MySQL/MariaDB, the
// relational store backing the surrounding membership application.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/clubworks/reqsync/internal/storage"
)

// Store implements storage.RequestStore on a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ storage.RequestStore = (*Store)(nil)

// New opens a connection pool for the given DSN, verifies connectivity and
// ensures the schema exists. Timestamps round-trip as time.Time, so
// parseTime is forced on regardless of what the DSN says.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// isDuplicateErr reports whether err is a MySQL duplicate-key error (1062).
func isDuplicateErr(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// buildSetClause turns an update map into "col1 = ?, col2 = ?" plus args,
// in deterministic column order.
func buildSetClause(updates map[string]interface{}) (string, []interface{}) {
	cols := make([]string, 0, len(updates))
	for col := range updates {
		cols = append(cols, col)
	}
	// Stable order keeps queries cacheable and tests deterministic.
	sort.Strings(cols)

	parts := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, col+" = ?")
		args = append(args, updates[col])
	}
	return strings.Join(parts, ", "), args
}
