/**
 * Job and document persistence
 *
 * One schema served over database/sql by either PostgreSQL (lib/pq) or
 * SQLite (modernc.org/sqlite). Queries are written with "?" placeholders and
 * rebound to "$N" for PostgreSQL. Timestamps are stored as unix milliseconds
 * and metadata as JSON text so both engines read them back the same way.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Store persists digitization jobs and their output documents
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// every sqlite connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStore(db, driver), nil
}

// NewStore wraps an open database handle
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id            VARCHAR(64) PRIMARY KEY,
		status        VARCHAR(32) NOT NULL,
		source        TEXT NOT NULL DEFAULT '',
		mode          VARCHAR(32) NOT NULL DEFAULT '',
		error_code    VARCHAR(64),
		error_message TEXT,
		metadata      TEXT NOT NULL DEFAULT '{}',
		created_at    BIGINT NOT NULL,
		updated_at    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id                VARCHAR(64) PRIMARY KEY,
		job_id            VARCHAR(64) NOT NULL,
		source            TEXT NOT NULL,
		kind              VARCHAR(32) NOT NULL,
		text_path         TEXT NOT NULL DEFAULT '',
		spellchecked_path TEXT NOT NULL DEFAULT '',
		page_count        INTEGER NOT NULL DEFAULT 0,
		paragraph_count   INTEGER NOT NULL DEFAULT 0,
		created_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_job_id_idx ON documents (job_id)`,
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders as "$1", "$2", ... for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
