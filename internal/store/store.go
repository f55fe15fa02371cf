// Package store provides the local SQLite persistence layer.
//
// The database runs embedded with WAL mode so the CLI, the sync daemon and
// background sync runs can read and write concurrently. Records are never
// physically removed by normal operations: deletion sets a tombstone flag
// which the sync engine propagates to the cloud store.
//
// The store is the sole owner of task and group records. Conflict
// resolution between writers is last-write-wins on the full record; the
// store serializes concurrent statements internally (WAL + busy timeout)
// and adds no application-level locking on top.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tasknest/tasknest/internal/task"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the local task tables.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a connection to the database at path, creating the parent
// directory if needed. The caller must call Close when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "tasknest.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{conn: conn, path: path}

	// WAL mode lets the daemon read while the CLI writes.
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return st, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the task tables if they don't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		due_at INTEGER NOT NULL DEFAULT 0,
		place TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'medium',
		focus TEXT,  -- JSON, NULL when the timer is not configured
		points INTEGER NOT NULL DEFAULT 0,
		in_group INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		remote_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS task_groups (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		estimated_days INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		task_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array
		deleted INTEGER NOT NULL DEFAULT 0,
		remote_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_visible ON tasks(owner_id, deleted, in_group);
	CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category);
	CREATE INDEX IF NOT EXISTS idx_groups_owner ON task_groups(owner_id);
	CREATE INDEX IF NOT EXISTS idx_groups_visible ON task_groups(owner_id, deleted);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// UpsertTask inserts or fully replaces a task by id.
//
// This is the whole-record overwrite the sync algorithm relies on: the
// incoming record wins wholesale, no field-level merging.
func (s *Store) UpsertTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	focusJSON, err := focusToNullString(t.Focus)
	if err != nil {
		return fmt.Errorf("failed to marshal focus settings: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, owner_id, title, due_at, place, category, completed,
		priority, focus, points, in_group, updated_at, deleted, remote_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		title = excluded.title,
		due_at = excluded.due_at,
		place = excluded.place,
		category = excluded.category,
		completed = excluded.completed,
		priority = excluded.priority,
		focus = excluded.focus,
		points = excluded.points,
		in_group = excluded.in_group,
		updated_at = excluded.updated_at,
		deleted = excluded.deleted,
		remote_id = excluded.remote_id
	`

	_, err = s.conn.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.Title, t.DueAt, t.Place, t.Category,
		boolToInt(t.Completed), string(t.Priority), focusJSON, t.Points,
		boolToInt(t.InGroup), t.UpdatedAt, boolToInt(t.Deleted), t.RemoteID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a single task by id scoped to its owner.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetTask(ctx context.Context, ownerID, id string) (*task.Task, error) {
	row := s.conn.QueryRowContext(ctx, taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanTask(row)
}

// AllTasks returns every task for the owner, tombstones included.
// The sync engine uses this scan so deletions propagate on upload.
func (s *Store) AllTasks(ctx context.Context, ownerID string) ([]*task.Task, error) {
	rows, err := s.conn.QueryContext(ctx, taskColumns+` FROM tasks WHERE owner_id = ? ORDER BY updated_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// VisibleTasks returns the owner's live, ungrouped tasks for display.
func (s *Store) VisibleTasks(ctx context.Context, ownerID string) ([]*task.Task, error) {
	rows, err := s.conn.QueryContext(ctx,
		taskColumns+` FROM tasks WHERE owner_id = ? AND deleted = 0 AND in_group = 0 ORDER BY due_at ASC, updated_at ASC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// SoftDeleteTask marks the task as deleted and advances its modification
// timestamp so the tombstone wins against older copies elsewhere.
func (s *Store) SoftDeleteTask(ctx context.Context, ownerID, id string) error {
	t, err := s.GetTask(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}
	t.MarkDeleted()
	return s.UpsertTask(ctx, t)
}

// DeleteAllForOwner physically removes every task and group belonging to
// the owner. Used when the owner logs out of this device.
func (s *Store) DeleteAllForOwner(ctx context.Context, ownerID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete tasks for %s: %w", ownerID, err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM task_groups WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete groups for %s: %w", ownerID, err)
	}
	return nil
}

// TaskCount returns the number of task rows, tombstones included.
func (s *Store) TaskCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

const taskColumns = `SELECT id, owner_id, title, due_at, place, category, completed,
	priority, focus, points, in_group, updated_at, deleted, remote_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var completed, inGroup, deleted int
	var priority string
	var focus sql.NullString

	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.DueAt, &t.Place, &t.Category,
		&completed, &priority, &focus, &t.Points, &inGroup,
		&t.UpdatedAt, &deleted, &t.RemoteID,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	t.InGroup = inGroup != 0
	t.Deleted = deleted != 0
	t.Priority = task.Priority(priority)

	if focus.Valid && focus.String != "" {
		var fs task.FocusSettings
		if err := json.Unmarshal([]byte(focus.String), &fs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal focus settings: %w", err)
		}
		t.Focus = &fs
	}

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func focusToNullString(fs *task.FocusSettings) (sql.NullString, error) {
	if fs == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fs)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CategoryCounts returns the number of live tasks per category for the
// owner. Used by the status command.
func (s *Store) CategoryCounts(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM tasks WHERE owner_id = ? AND deleted = 0 GROUP BY category`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		if cat == "" {
			cat = "(none)"
		}
		counts[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return counts, nil
}
