// Package sync reconciles the local task store with the cloud store for
// the authenticated owner.
//
// The algorithm is deliberately simple: every record id on either side
// (tombstones included) resolves to the copy with the newer modification
// timestamp, local winning ties, and the winner is upserted wholesale to
// the losing side. There is no field-level merging. Because resolution
// is deterministic and both directions are pure upserts of full records,
// re-running a sync with no intervening mutations changes nothing, which
// is what makes concurrent runs safe without any serialization between
// them.
package sync

import (
	"context"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/task"
)

// Result is the outcome of a sync run.
type Result int

const (
	// Success means both phases completed (or there was nothing to do).
	Success Result = iota
	// Retry means a network-layer failure aborted the run; the caller's
	// scheduler decides when to try again.
	Retry
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// LocalStore is the slice of the persistence layer the engine consumes.
// Scans include tombstoned records: deletions must propagate on upload.
type LocalStore interface {
	AllTasks(ctx context.Context, ownerID string) ([]*task.Task, error)
	UpsertTask(ctx context.Context, t *task.Task) error
	AllGroups(ctx context.Context, ownerID string) ([]*task.Group, error)
	UpsertGroup(ctx context.Context, g *task.Group) error
}

// RemoteStore is the cloud document collection the engine consumes,
// keyed (ownerID, record id).
type RemoteStore interface {
	PutTask(ctx context.Context, ownerID string, t *task.Task) error
	ListTasks(ctx context.Context, ownerID string) ([]*task.Task, error)
	PutGroup(ctx context.Context, ownerID string, g *task.Group) error
	ListGroups(ctx context.Context, ownerID string) ([]*task.Group, error)
}

// IdentitySource gates sync on authentication.
type IdentitySource interface {
	Current() *auth.Identity
}
