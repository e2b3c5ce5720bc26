// Package journal keeps a SQLite record of every command invocation.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Status values stored per invocation.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 50

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Entry struct {
	ID          string
	Command     string
	ArgBytes    int
	Status      string
	Error       string
	Applied     int
	Skipped     int
	StartedAt   time.Time
	CompletedAt time.Time
}

func (e Entry) Duration() time.Duration {
	return e.CompletedAt.Sub(e.StartedAt)
}

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Open opens the database at path and returns a journal over it.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("journal entry has no id")
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	var lastErr sql.NullString
	if e.Error != "" {
		lastErr = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO invocation_log(id, command, arg_bytes, status, last_error, applied, skipped, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Command, e.ArgBytes, e.Status, lastErr, e.Applied, e.Skipped,
		e.StartedAt.UTC().Format(timeLayout), e.CompletedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, command, arg_bytes, status, last_error, applied, skipped, started_at, completed_at
FROM invocation_log
ORDER BY started_at DESC, id
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			lastErr            sql.NullString
			started, completed string
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.ArgBytes, &e.Status, &lastErr, &e.Applied, &e.Skipped, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		e.Error = lastErr.String
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if e.CompletedAt, err = time.Parse(timeLayout, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return out, nil
}

// Prune deletes entries started more than retention ago and returns how many
// were removed. A non-positive retention keeps everything.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)
	res, err := j.db.ExecContext(ctx, "DELETE FROM invocation_log WHERE started_at < ?;", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}
