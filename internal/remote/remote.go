// Package remote provides the cloud store client used by the sync engine.
//
// The cloud backend is a libSQL database holding one document row per task
// or group, keyed (owner_id, id). Documents carry the full record as a JSON
// payload plus the columns the backend indexes on (updated_at, deleted).
//
// The client connects lazily: New performs no I/O, Init brings the
// connection up and creates the schema. Init is idempotent so the
// initialization sequencer can guard it with its own one-shot flag without
// worrying about double bring-up.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tasknest/tasknest/internal/task"

	_ "github.com/tursodatabase/go-libsql"
)

// ErrNotInitialized is returned when a store operation runs before Init.
var ErrNotInitialized = fmt.Errorf("remote client not initialized: %w", errUnavailable)

// Client talks to the cloud document store.
type Client struct {
	url    string
	logger *log.Logger

	mu   sync.Mutex
	conn *sql.DB
}

// New creates a client for the given libSQL URL. No connection is made
// until Init is called.
//
// If logger is nil, a default logger writing to stderr is used.
func New(url string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{url: url, logger: logger}
}

// Init brings up the connection and creates the document schema.
// Safe to call more than once; subsequent calls are no-ops.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := sql.Open("libsql", c.url)
	if err != nil {
		return fmt.Errorf("failed to open remote database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to reach remote database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(time.Minute)

	// One statement per exec: the libsql driver only runs the first
	// statement of a multi-statement string.
	schema := []string{
		`CREATE TABLE IF NOT EXISTS task_docs (
			owner_id TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (owner_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_docs (
			owner_id TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (owner_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_docs_owner ON task_docs(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_group_docs_owner ON group_docs(owner_id)`,
	}

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to initialize remote schema: %w", err)
		}
	}

	c.conn = conn
	c.logger.Printf("Remote client initialized: %s", c.url)
	return nil
}

// Initialized reports whether Init has completed successfully.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) db() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotInitialized
	}
	return c.conn, nil
}

// PutTask uploads the full task record keyed (ownerID, t.ID), replacing
// any previous document wholesale. Tombstoned records are uploaded like
// any other so deletions propagate.
func (c *Client) PutTask(ctx context.Context, ownerID string, t *task.Task) error {
	conn, err := c.db()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
	}

	query := `
	INSERT INTO task_docs (owner_id, id, payload, updated_at, deleted)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(owner_id, id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		deleted = excluded.deleted
	`
	_, err = conn.ExecContext(ctx, query, ownerID, t.ID, string(payload), t.UpdatedAt, boolToInt(t.Deleted))
	if err != nil {
		return fmt.Errorf("failed to put task document %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks fetches the owner's full task document set. Documents whose
// payload no longer parses are skipped with a logged warning rather than
// failing the whole listing.
func (c *Client) ListTasks(ctx context.Context, ownerID string) ([]*task.Task, error) {
	conn, err := c.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, payload FROM task_docs WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task documents: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan task document: %w", err)
		}

		var t task.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			c.logger.Printf("WARNING: skipping malformed task document %s: %v", id, err)
			continue
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task documents: %w", err)
	}
	return tasks, nil
}

// GetTask fetches a single task document. Returns sql.ErrNoRows if absent.
func (c *Client) GetTask(ctx context.Context, ownerID, id string) (*task.Task, error) {
	conn, err := c.db()
	if err != nil {
		return nil, err
	}

	var payload string
	err = conn.QueryRowContext(ctx,
		`SELECT payload FROM task_docs WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&payload)
	if err != nil {
		return nil, err
	}

	var t task.Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("malformed task document %s: %w", id, err)
	}
	return &t, nil
}

// PutGroup uploads the full group record keyed (ownerID, g.ID).
func (c *Client) PutGroup(ctx context.Context, ownerID string, g *task.Group) error {
	conn, err := c.db()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal group %s: %w", g.ID, err)
	}

	query := `
	INSERT INTO group_docs (owner_id, id, payload, updated_at, deleted)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(owner_id, id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		deleted = excluded.deleted
	`
	_, err = conn.ExecContext(ctx, query, ownerID, g.ID, string(payload), g.UpdatedAt, boolToInt(g.Deleted))
	if err != nil {
		return fmt.Errorf("failed to put group document %s: %w", g.ID, err)
	}
	return nil
}

// ListGroups fetches the owner's full group document set, skipping
// malformed payloads with a logged warning.
func (c *Client) ListGroups(ctx context.Context, ownerID string) ([]*task.Group, error) {
	conn, err := c.db()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, payload FROM group_docs WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group documents: %w", err)
	}
	defer rows.Close()

	var groups []*task.Group
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan group document: %w", err)
		}

		var g task.Group
		if err := json.Unmarshal([]byte(payload), &g); err != nil {
			c.logger.Printf("WARNING: skipping malformed group document %s: %v", id, err)
			continue
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group documents: %w", err)
	}
	return groups, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
