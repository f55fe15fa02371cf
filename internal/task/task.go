// Package task provides the data structures shared by the local store,
// the remote store and the sync engine.
//
// Records carry flat fields with last-write-wins semantics: every mutation
// advances UpdatedAt, and whoever holds the newest full record wins. Deletes
// are soft (tombstones) so they can propagate between devices.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgent a task is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priority values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// FocusSettings holds the optional focus-timer configuration for a task.
type FocusSettings struct {
	FocusMinutes int `json:"focus_minutes"`
	BreakMinutes int `json:"break_minutes"`
}

// Task is a single to-do item.
//
// The ID is assigned at creation and never reused. RemoteID stays empty
// until the record's first successful upload and never changes afterwards.
// UpdatedAt is a millisecond epoch timestamp that strictly increases on
// every local mutation, including soft deletion.
type Task struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	DueAt     int64  `json:"due_at,omitempty"` // milliseconds since epoch, 0 = unscheduled
	Place     string `json:"place,omitempty"`
	Category  string `json:"category,omitempty"`
	Completed bool   `json:"completed"`

	Priority Priority       `json:"priority"`
	Focus    *FocusSettings `json:"focus,omitempty"`
	Points   int            `json:"points"`

	InGroup   bool   `json:"in_group"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
	RemoteID  string `json:"remote_id,omitempty"`
}

// New creates a task owned by ownerID with a fresh ID and the current
// modification timestamp.
func New(ownerID, title string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Priority:  PriorityMedium,
		UpdatedAt: nowMillis(),
	}
}

// Validate checks that the task has usable field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if t.UpdatedAt <= 0 {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = nowMillis()
	}
}

// Touch advances UpdatedAt. The timestamp is guaranteed to strictly
// increase even when the wall clock has not moved between two mutations.
func (t *Task) Touch() {
	t.UpdatedAt = nextMillis(t.UpdatedAt)
}

// MarkDeleted sets the tombstone flag and advances UpdatedAt so the
// deletion wins against any older copy of the record.
func (t *Task) MarkDeleted() {
	t.Deleted = true
	t.Touch()
}

// Group is a collection of tasks worked on as one unit.
//
// Membership mutations always advance UpdatedAt.
type Group struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"owner_id"`
	Title         string   `json:"title"`
	Category      string   `json:"category,omitempty"`
	EstimatedDays int      `json:"estimated_days"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	TaskIDs       []string `json:"task_ids"`
	Deleted       bool     `json:"deleted"`
	RemoteID      string   `json:"remote_id,omitempty"`
}

// NewGroup creates a group owned by ownerID with a fresh ID.
func NewGroup(ownerID, title, category string, estimatedDays int) *Group {
	now := nowMillis()
	return &Group{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         title,
		Category:      category,
		EstimatedDays: estimatedDays,
		CreatedAt:     now,
		UpdatedAt:     now,
		TaskIDs:       []string{},
	}
}

// Validate checks that the group has usable field values.
func (g *Group) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if g.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if g.Title == "" {
		return fmt.Errorf("title is required")
	}
	if g.EstimatedDays < 0 {
		return fmt.Errorf("estimated_days must not be negative (got %d)", g.EstimatedDays)
	}
	if g.UpdatedAt <= 0 {
		return fmt.Errorf("updated_at is required")
	}
	seen := make(map[string]bool, len(g.TaskIDs))
	for _, id := range g.TaskIDs {
		if seen[id] {
			return fmt.Errorf("duplicate member task %s", id)
		}
		seen[id] = true
	}
	return nil
}

// AddTask appends taskID to the member list if it is not already present.
// Returns true if the membership changed.
func (g *Group) AddTask(taskID string) bool {
	for _, id := range g.TaskIDs {
		if id == taskID {
			return false
		}
	}
	g.TaskIDs = append(g.TaskIDs, taskID)
	g.Touch()
	return true
}

// RemoveTask drops taskID from the member list. Returns true if the
// membership changed.
func (g *Group) RemoveTask(taskID string) bool {
	for i, id := range g.TaskIDs {
		if id == taskID {
			g.TaskIDs = append(g.TaskIDs[:i], g.TaskIDs[i+1:]...)
			g.Touch()
			return true
		}
	}
	return false
}

// Touch advances UpdatedAt, strictly increasing.
func (g *Group) Touch() {
	g.UpdatedAt = nextMillis(g.UpdatedAt)
}

// MarkDeleted sets the tombstone flag and advances UpdatedAt.
func (g *Group) MarkDeleted() {
	g.Deleted = true
	g.Touch()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// nextMillis returns the current time in milliseconds, bumped past prev
// so consecutive mutations within the same millisecond stay ordered.
func nextMillis(prev int64) int64 {
	now := nowMillis()
	if now <= prev {
		return prev + 1
	}
	return now
}
