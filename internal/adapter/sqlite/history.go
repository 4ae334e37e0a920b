// Package sqlite keeps the stage run history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/victor-cakess/hometown/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS stage_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	outcome TEXT NOT NULL,
	forced BOOLEAN NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	files INTEGER NOT NULL,
	rows INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS stage_runs_run_id ON stage_runs (run_id);
`

// History stores one row per stage execution.
type History struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrPersistence, filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open history: %v", domain.ErrPersistence, err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create history schema: %v", domain.ErrPersistence, err)
	}
	return &History{db: db}, nil
}

// Record inserts run.
func (h *History) Record(ctx context.Context, run domain.StageRun) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, outcome, forced, started_at, finished_at, files, rows, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Stage, run.Outcome, run.Forced,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Files, run.Rows, run.Error,
	)
	if err != nil {
		return fmt.Errorf("%w: record stage run: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]domain.StageRun, error) {
	if limit <= 0 {
		return []domain.StageRun{}, nil
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_id, stage, outcome, forced, started_at, finished_at, files, rows, error
		 FROM stage_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query stage runs: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	runs := []domain.StageRun{}
	for rows.Next() {
		var r domain.StageRun
		if err := rows.Scan(&r.RunID, &r.Stage, &r.Outcome, &r.Forced,
			&r.StartedAt, &r.FinishedAt, &r.Files, &r.Rows, &r.Error); err != nil {
			return nil, fmt.Errorf("%w: scan stage run: %v", domain.ErrPersistence, err)
		}
		r.StartedAt, r.FinishedAt = r.StartedAt.UTC(), r.FinishedAt.UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stage runs: %v", domain.ErrPersistence, err)
	}
	return runs, nil
}

// Close releases the database.
func (h *History) Close() error {
	return h.db.Close()
}
