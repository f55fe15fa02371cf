package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/boot"
	"github.com/tasknest/tasknest/internal/daemon"
	"github.com/tasknest/tasknest/internal/logging"
	"github.com/tasknest/tasknest/internal/netmon"
	"github.com/tasknest/tasknest/internal/remote"
	"github.com/tasknest/tasknest/internal/sched"
	tasksync "github.com/tasknest/tasknest/internal/sync"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon waits for a network, connects the cloud store, restores the
saved session, and then keeps the local database converged: on a fixed
cadence, after local changes, and on cloud change notifications.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		if e.cfg.RemoteURL == "" {
			fail(fmt.Errorf("remote_url is not configured; edit %s/config.toml", e.dir))
		}

		logger := logging.NewStderr("daemon")
		if e.cfg.LogPath != "" && !daemonForeground {
			rotating, closer := logging.NewRotating(e.cfg.LogPath, "daemon")
			defer closer.Close()
			logger = rotating
		}

		monitor := netmon.New(
			netmon.DialProbe(e.cfg.ProbeAddr, 5*time.Second),
			e.cfg.ProbeInterval, logger)
		monitor.Start(ctx)
		defer monitor.Stop()

		rc := remote.New(e.cfg.RemoteURL, logger)
		defer rc.Close()

		seq := boot.New(monitor, rc, e.session, logger)
		scheduler := sched.New(monitor, logger)
		engine := tasksync.New(e.store, rc, e.client, logger)

		var d *daemon.Daemon
		feed := &feedAdapter{
			endpoint: e.cfg.FeedURL,
			ids:      e.client,
			logger:   logger,
			onChange: func() {
				if d != nil {
					d.OnRemoteChange()
				}
			},
		}

		cfg := &daemon.Config{
			SyncInterval:     e.cfg.SyncInterval,
			DebounceInterval: e.cfg.DebounceInterval,
			Logger:           logger,
		}
		d, err = daemon.New(cfg, seq, scheduler, engine, e.client, feed, e.cfg.DBPath)
		if err != nil {
			fail(err)
		}

		if err := d.Start(ctx); err != nil {
			fail(err)
		}
	},
}

// feedAdapter defers feed construction until the session is restored,
// since the subscription is scoped to the signed-in owner.
type feedAdapter struct {
	endpoint string
	ids      tasksync.IdentitySource
	onChange func()
	logger   *log.Logger

	feed *remote.Feed
}

func (f *feedAdapter) Start(ctx context.Context) {
	if f.endpoint == "" {
		return
	}
	id := f.ids.Current()
	if id == nil {
		f.logger.Printf("Change feed disabled: signed out")
		return
	}
	f.feed = remote.NewFeed(f.endpoint, id.ID, f.onChange, f.logger)
	f.feed.Start(ctx)
}

func (f *feedAdapter) Stop() {
	if f.feed != nil {
		f.feed.Stop()
	}
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "log to stderr instead of the log file")
}
