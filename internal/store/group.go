package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tasknest/tasknest/internal/task"
)

// UpsertGroup inserts or fully replaces a task group by id.
func (s *Store) UpsertGroup(ctx context.Context, g *task.Group) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid group: %w", err)
	}

	taskIDs, err := json.Marshal(g.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal member ids: %w", err)
	}

	query := `
	INSERT INTO task_groups (
		id, owner_id, title, category, estimated_days,
		created_at, updated_at, task_ids, deleted, remote_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		title = excluded.title,
		category = excluded.category,
		estimated_days = excluded.estimated_days,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		task_ids = excluded.task_ids,
		deleted = excluded.deleted,
		remote_id = excluded.remote_id
	`

	_, err = s.conn.ExecContext(ctx, query,
		g.ID, g.OwnerID, g.Title, g.Category, g.EstimatedDays,
		g.CreatedAt, g.UpdatedAt, string(taskIDs), boolToInt(g.Deleted), g.RemoteID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group %s: %w", g.ID, err)
	}
	return nil
}

// GetGroup retrieves a single group by id scoped to its owner.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetGroup(ctx context.Context, ownerID, id string) (*task.Group, error) {
	row := s.conn.QueryRowContext(ctx, groupColumns+` FROM task_groups WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanGroup(row)
}

// AllGroups returns every group for the owner, tombstones included.
func (s *Store) AllGroups(ctx context.Context, ownerID string) ([]*task.Group, error) {
	rows, err := s.conn.QueryContext(ctx, groupColumns+` FROM task_groups WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// VisibleGroups returns the owner's live groups for display.
func (s *Store) VisibleGroups(ctx context.Context, ownerID string) ([]*task.Group, error) {
	rows, err := s.conn.QueryContext(ctx,
		groupColumns+` FROM task_groups WHERE owner_id = ? AND deleted = 0 ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// SoftDeleteGroup marks the group as deleted and advances its timestamp.
// Member tasks are left untouched; they carry their own tombstones.
func (s *Store) SoftDeleteGroup(ctx context.Context, ownerID, id string) error {
	g, err := s.GetGroup(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to load group %s: %w", id, err)
	}
	g.MarkDeleted()
	return s.UpsertGroup(ctx, g)
}

// GroupCount returns the number of group rows, tombstones included.
func (s *Store) GroupCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_groups`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	return count, nil
}

const groupColumns = `SELECT id, owner_id, title, category, estimated_days,
	created_at, updated_at, task_ids, deleted, remote_id`

func scanGroup(row rowScanner) (*task.Group, error) {
	var g task.Group
	var deleted int
	var taskIDs string

	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Title, &g.Category, &g.EstimatedDays,
		&g.CreatedAt, &g.UpdatedAt, &taskIDs, &deleted, &g.RemoteID,
	)
	if err != nil {
		return nil, err
	}

	g.Deleted = deleted != 0
	if taskIDs != "" && taskIDs != "null" {
		if err := json.Unmarshal([]byte(taskIDs), &g.TaskIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal member ids: %w", err)
		}
	}
	if g.TaskIDs == nil {
		g.TaskIDs = []string{}
	}

	return &g, nil
}

func scanGroups(rows *sql.Rows) ([]*task.Group, error) {
	var groups []*task.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}
