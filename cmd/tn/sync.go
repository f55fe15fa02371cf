package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/logging"
	"github.com/tasknest/tasknest/internal/netmon"
	"github.com/tasknest/tasknest/internal/remote"
	tasksync "github.com/tasknest/tasknest/internal/sync"
	"github.com/tasknest/tasknest/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync the local database with the cloud store",
	Long: `Run one full sync: upload every local record, deletions
included, then download the owner's full remote set.

A network failure leaves both sides untouched; just run it again.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		if e.cfg.RemoteURL == "" {
			fail(fmt.Errorf("remote_url is not configured; edit %s/config.toml", e.dir))
		}

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		rc := remote.New(e.cfg.RemoteURL, logging.NewStderr("remote"))
		if err := rc.Init(ctx); err != nil {
			fail(fmt.Errorf("cloud store unreachable: %w", err))
		}
		defer rc.Close()

		engine := tasksync.New(e.store, rc, e.client, logging.NewStderr("sync"))

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		res := engine.Run(ctx, id.ID)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch res {
		case tasksync.Success:
			fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed)
		case tasksync.Retry:
			fail(fmt.Errorf("sync hit a network failure after %v; run 'tn sync' again", elapsed))
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show database, session, and network status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		taskCount, _ := e.store.TaskCount(ctx)
		groupCount, _ := e.store.GroupCount(ctx)

		fmt.Printf("\n%s\n", ui.RenderTitle("tasknest status"))
		fmt.Printf("   Database: %s\n", e.store.Path())
		fmt.Printf("   Tasks: %d  Groups: %d\n", taskCount, groupCount)

		if email := e.session.SavedEmail(); email != "" {
			tokenNote := ""
			if e.session.HasToken() {
				tokenNote = " (session saved)"
			}
			fmt.Printf("   Account: %s%s\n", email, tokenNote)
		} else {
			fmt.Printf("   Account: %s\n", ui.RenderDim("signed out"))
		}

		probe := netmon.DialProbe(e.cfg.ProbeAddr, 3*time.Second)
		if probe(ctx) {
			fmt.Printf("   Network: %s\n", ui.RenderPass("online"))
		} else {
			fmt.Printf("   Network: %s\n", ui.RenderWarn("offline"))
		}

		if e.cfg.RemoteURL == "" {
			fmt.Printf("   Cloud: %s\n", ui.RenderDim("not configured"))
		} else {
			fmt.Printf("   Cloud: %s\n", e.cfg.RemoteURL)
		}
		fmt.Println()
	},
}
