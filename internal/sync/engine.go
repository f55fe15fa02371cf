package sync

import (
	"context"
	"log"
	"os"

	"github.com/tasknest/tasknest/internal/remote"
	"github.com/tasknest/tasknest/internal/task"
)

// Engine runs bidirectional reconciliation between the local and remote
// stores. It performs no internal retries and holds no record state of
// its own; the invoking scheduler owns backoff.
type Engine struct {
	local  LocalStore
	remote RemoteStore
	ids    IdentitySource
	logger *log.Logger
}

// New creates a sync engine.
//
// If logger is nil, a default logger writing to stderr is used.
func New(local LocalStore, rem RemoteStore, ids IdentitySource, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{local: local, remote: rem, ids: ids, logger: logger}
}

// Run synchronizes all task and group records for ownerID.
//
// Without an authenticated identity the run is a defined no-op reported
// as Success. Every record id present on either side resolves to the
// copy with the newer modification timestamp, local winning ties, and
// the winner is written wholesale to the losing side. A network-layer
// failure aborts the run with Retry; an unpersistable individual record
// is skipped with a logged warning and its counterpart stays untouched.
func (e *Engine) Run(ctx context.Context, ownerID string) Result {
	if e.ids.Current() == nil {
		e.logger.Printf("Sync skipped: no authenticated identity")
		return Success
	}

	e.logger.Printf("Sync starting for owner %s", ownerID)

	if res := e.syncTasks(ctx, ownerID); res != Success {
		return res
	}
	if res := e.syncGroups(ctx, ownerID); res != Success {
		return res
	}

	e.logger.Printf("Sync complete for owner %s", ownerID)
	return Success
}

func (e *Engine) syncTasks(ctx context.Context, ownerID string) Result {
	locals, err := e.local.AllTasks(ctx, ownerID)
	if err != nil {
		e.logger.Printf("Failed to enumerate local tasks: %v", err)
		return Retry
	}
	remotes, err := e.remote.ListTasks(ctx, ownerID)
	if err != nil {
		e.logger.Printf("Failed to list remote tasks: %v", err)
		return Retry
	}

	remoteByID := make(map[string]*task.Task, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}

	var pushed, pulled, skipped int
	for _, l := range locals {
		r := remoteByID[l.ID]
		delete(remoteByID, l.ID)

		// Tombstones ride along like any other record; a deletion is
		// just the newest version of it.
		if r == nil || l.UpdatedAt >= r.UpdatedAt {
			stamped := l.RemoteID == ""
			if stamped {
				// Stamped before the upload so the remote document
				// carries the identifier and a later pull re-applies
				// the same value.
				l.RemoteID = l.ID
			}
			if err := e.remote.PutTask(ctx, ownerID, l); err != nil {
				if remote.IsUnavailable(err) {
					e.logger.Printf("Sync aborted (network): %v", err)
					return Retry
				}
				e.logger.Printf("WARNING: skipping task %s on upload: %v", l.ID, err)
				skipped++
				continue
			}
			pushed++
			if stamped {
				// Metadata only: the stamp does not advance UpdatedAt,
				// so a re-run stays idempotent.
				if err := e.local.UpsertTask(ctx, l); err != nil {
					e.logger.Printf("WARNING: failed to record remote id for task %s: %v", l.ID, err)
				}
			}
		} else {
			if err := e.local.UpsertTask(ctx, r); err != nil {
				e.logger.Printf("WARNING: skipping remote task %s: %v", r.ID, err)
				skipped++
				continue
			}
			pulled++
		}
	}

	// Remote-only records: created on another device.
	for _, r := range remoteByID {
		if err := e.local.UpsertTask(ctx, r); err != nil {
			e.logger.Printf("WARNING: skipping remote task %s: %v", r.ID, err)
			skipped++
			continue
		}
		pulled++
	}

	e.logger.Printf("Tasks reconciled: pushed=%d pulled=%d skipped=%d", pushed, pulled, skipped)
	return Success
}

func (e *Engine) syncGroups(ctx context.Context, ownerID string) Result {
	locals, err := e.local.AllGroups(ctx, ownerID)
	if err != nil {
		e.logger.Printf("Failed to enumerate local groups: %v", err)
		return Retry
	}
	remotes, err := e.remote.ListGroups(ctx, ownerID)
	if err != nil {
		e.logger.Printf("Failed to list remote groups: %v", err)
		return Retry
	}

	remoteByID := make(map[string]*task.Group, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}

	var pushed, pulled, skipped int
	for _, l := range locals {
		r := remoteByID[l.ID]
		delete(remoteByID, l.ID)

		if r == nil || l.UpdatedAt >= r.UpdatedAt {
			stamped := l.RemoteID == ""
			if stamped {
				l.RemoteID = l.ID
			}
			if err := e.remote.PutGroup(ctx, ownerID, l); err != nil {
				if remote.IsUnavailable(err) {
					e.logger.Printf("Sync aborted (network): %v", err)
					return Retry
				}
				e.logger.Printf("WARNING: skipping group %s on upload: %v", l.ID, err)
				skipped++
				continue
			}
			pushed++
			if stamped {
				if err := e.local.UpsertGroup(ctx, l); err != nil {
					e.logger.Printf("WARNING: failed to record remote id for group %s: %v", l.ID, err)
				}
			}
		} else {
			if err := e.local.UpsertGroup(ctx, r); err != nil {
				e.logger.Printf("WARNING: skipping remote group %s: %v", r.ID, err)
				skipped++
				continue
			}
			pulled++
		}
	}

	for _, r := range remoteByID {
		if err := e.local.UpsertGroup(ctx, r); err != nil {
			e.logger.Printf("WARNING: skipping remote group %s: %v", r.ID, err)
			skipped++
			continue
		}
		pulled++
	}

	e.logger.Printf("Groups reconciled: pushed=%d pulled=%d skipped=%d", pushed, pulled, skipped)
	return Success
}
