package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// one writer at a time; WAL lets readers proceed
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS equipment (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		manufacturer TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		search_key TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_equipment_tenant ON equipment(tenant_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_equipment_type ON equipment(lower(type));

	CREATE TABLE IF NOT EXISTS problems (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		equipment_id TEXT NOT NULL REFERENCES equipment(id),
		description TEXT NOT NULL,
		categories TEXT NOT NULL DEFAULT '[]',
		reported_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_problems_equipment ON problems(equipment_id, created_at);

	CREATE TABLE IF NOT EXISTS solutions (
		id TEXT PRIMARY KEY,
		problem_id TEXT NOT NULL REFERENCES problems(id),
		treatment TEXT NOT NULL,
		effectiveness INTEGER NOT NULL CHECK (effectiveness BETWEEN 0 AND 100),
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_solutions_problem ON solutions(problem_id);

	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		problem_id TEXT NOT NULL REFERENCES problems(id),
		solution_id TEXT REFERENCES solutions(id),
		opened_by TEXT NOT NULL DEFAULT '',
		closed_by TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('open', 'pending_technician', 'closed')),
		assignment_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_tenant ON issues(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		equipment_id TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL,
		history TEXT NOT NULL DEFAULT '[]',
		context TEXT NOT NULL DEFAULT '{}',
		language TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		payload TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS session_outcomes (
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('resolution', 'escalation')),
		issue_id TEXT NOT NULL,
		problem_id TEXT NOT NULL DEFAULT '',
		solution_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, kind)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing only if fn returns nil.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// timestamps are stored as unix nanoseconds so recency ordering is stable
func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (s *SQLiteStore) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// likePattern builds a case-insensitive LIKE operand for a substring match.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
