// Package daemon runs the long-lived background process that keeps the
// local database and the cloud store converged.
//
// The daemon:
//  1. Waits for startup to complete (network, cloud store, session)
//  2. Syncs on a fixed cadence while the network is up
//  3. Watches the database directory and syncs after local changes
//  4. Listens to the cloud change feed and syncs after remote changes
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tasknest/tasknest/internal/boot"
	"github.com/tasknest/tasknest/internal/sched"
	tasksync "github.com/tasknest/tasknest/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run the periodic sync.
	SyncInterval time.Duration

	// DebounceInterval is how long the database must stay quiet after a
	// local change before a sync is triggered. This batches rapid
	// updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Feed is an optional push channel for remote change notifications.
type Feed interface {
	Start(ctx context.Context)
	Stop()
}

// Daemon wires startup, scheduling, and change detection around the
// sync engine.
type Daemon struct {
	cfg    *Config
	seq    *boot.Sequencer
	sched  *sched.Scheduler
	engine *tasksync.Engine
	ids    tasksync.IdentitySource
	feed   Feed // may be nil

	dbDir   string
	dbBase  string
	watcher *fsnotify.Watcher

	pendingMu stdsync.Mutex
	pendingAt time.Time // zero when nothing is pending

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a daemon. dbPath is the local database file whose parent
// directory is watched for changes; feed may be nil when the deployment
// has no change feed.
func New(cfg *Config, seq *boot.Sequencer, scheduler *sched.Scheduler, engine *tasksync.Engine, ids tasksync.IdentitySource, feed Feed, dbPath string) (*Daemon, error) {
	if seq == nil || scheduler == nil || engine == nil || ids == nil {
		return nil, fmt.Errorf("daemon dependencies cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		cfg:     cfg,
		seq:     seq,
		sched:   scheduler,
		engine:  engine,
		ids:     ids,
		feed:    feed,
		dbDir:   filepath.Dir(dbPath),
		dbBase:  filepath.Base(dbPath),
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.cfg.Logger.Println("Starting daemon")

	d.seq.Start(ctx)
	select {
	case <-d.seq.Ready():
	case <-ctx.Done():
		return d.Stop()
	}

	if err := d.watcher.Add(d.dbDir); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.cfg.Logger.Printf("Watching: %s", d.dbDir)

	d.sched.RegisterPeriodic(d.ctx, "sync", d.cfg.SyncInterval, d.runSync)
	if d.feed != nil {
		d.feed.Start(d.ctx)
	}

	// Converge once right away rather than waiting out the first tick.
	d.sched.RunOnce(d.ctx, "sync-startup", d.runSync)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.cfg.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. In-flight sync runs complete.
func (d *Daemon) Stop() error {
	d.cfg.Logger.Println("Stopping daemon")

	d.cancel()
	if d.feed != nil {
		d.feed.Stop()
	}
	if err := d.watcher.Close(); err != nil {
		d.cfg.Logger.Printf("Error closing watcher: %v", err)
	}
	d.sched.Stop()
	d.wg.Wait()

	d.cfg.Logger.Println("Daemon stopped")
	return nil
}

// OnRemoteChange schedules a sync in response to a change-feed event.
// Offline it parks until connectivity returns.
func (d *Daemon) OnRemoteChange() {
	d.cfg.Logger.Println("Remote change notification")
	d.sched.RunOnce(d.ctx, "sync-feed", d.runSync)
}

// runSync is the job body behind every trigger.
func (d *Daemon) runSync(ctx context.Context) {
	id := d.ids.Current()
	if id == nil {
		d.cfg.Logger.Println("Sync skipped: signed out")
		return
	}

	res := d.engine.Run(ctx, id.ID)
	if res == tasksync.Retry {
		d.cfg.Logger.Println("Sync hit a network failure; next trigger retries")
	}

	// The run itself writes to the database; drain anything the watcher
	// queued meanwhile so a sync does not trigger the next one.
	d.clearPending()
}

// watchFileEvents monitors filesystem events and marks the database
// dirty.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !d.isDatabaseFile(event.Name) {
				continue
			}
			d.markPending()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.cfg.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// isDatabaseFile matches the database and its WAL sidecars.
func (d *Daemon) isDatabaseFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), d.dbBase)
}

func (d *Daemon) markPending() {
	d.pendingMu.Lock()
	d.pendingAt = time.Now()
	d.pendingMu.Unlock()
}

func (d *Daemon) clearPending() {
	d.pendingMu.Lock()
	d.pendingAt = time.Time{}
	d.pendingMu.Unlock()
}

// processChangeQueue fires a sync once the database has been quiet for
// a full debounce interval.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pendingMu.Lock()
			pending := !d.pendingAt.IsZero() && time.Since(d.pendingAt) >= d.cfg.DebounceInterval
			if pending {
				d.pendingAt = time.Time{}
			}
			d.pendingMu.Unlock()

			if pending {
				d.cfg.Logger.Println("Local changes detected")
				d.sched.RunOnce(d.ctx, "sync-local", d.runSync)
			}
		}
	}
}
