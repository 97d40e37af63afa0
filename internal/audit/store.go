package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one label update applied to Jira.
type Entry struct {
	ID           int64     `json:"id"`
	IssueKey     string    `json:"issue_key"`
	Label        string    `json:"research_project"`
	ChargeableID string    `json:"chargeable,omitempty"`
	Actor        string    `json:"actor"`
	NextIssue    string    `json:"next_issue,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists label updates in SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS label_updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_key TEXT NOT NULL,
	label TEXT NOT NULL,
	chargeable_id TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	next_issue TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_label_updates_created_at ON label_updates(created_at);
CREATE INDEX IF NOT EXISTS idx_label_updates_issue_key ON label_updates(issue_key);
`

// Open creates or opens the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer; also keeps a :memory: database alive

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.IssueKey == "" || e.Label == "" {
		return fmt.Errorf("audit entry requires issue key and label")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO label_updates (issue_key, label, chargeable_id, actor, next_issue, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.IssueKey, e.Label, e.ChargeableID, e.Actor, e.NextIssue, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record update for %s: %w", e.IssueKey, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_key, label, chargeable_id, actor, next_issue, created_at
		 FROM label_updates ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.IssueKey, &e.Label, &e.ChargeableID, &e.Actor, &e.NextIssue, &created); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
