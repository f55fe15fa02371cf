// Command tn is the tasknest CLI: an offline-first task manager that
// keeps a local SQLite database and syncs it with a cloud store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/config"
	"github.com/tasknest/tasknest/internal/crash"
	"github.com/tasknest/tasknest/internal/logging"
	"github.com/tasknest/tasknest/internal/store"
	"github.com/tasknest/tasknest/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "tn",
	Short: "Offline-first task manager with cloud sync",
	Long: `tn manages tasks in a local SQLite database and keeps them in
sync with a cloud store when a network is available.

All commands work offline; changes are reconciled on the next sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task commands:"},
		&cobra.Group{ID: "account", Title: "Account commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
	)
	rootCmd.AddCommand(
		addCmd, listCmd, doneCmd, rmCmd, groupCmd,
		loginCmd, logoutCmd,
		syncCmd, statusCmd, daemonCmd, exportCmd, importCmd,
	)
}

func main() {
	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	crashStore := crash.NewStore(config.CrashPath(dir), logging.NewStderr("crash"))
	defer crashStore.Capture()

	if m := crashStore.CheckPrevious(); m != nil {
		fmt.Fprintf(os.Stderr, "%s Previous run crashed at %s: %s\n",
			ui.RenderWarn("⚠"), m.Time().Format("2006-01-02 15:04:05"), m.Message)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles everything a command needs: resolved config, the local
// database, and the account client with its saved session.
type env struct {
	dir     string
	cfg     *config.Config
	store   *store.Store
	client  *auth.Client
	session *auth.Manager
}

// openEnv resolves configuration and opens the local database, writing
// the default config on first use.
func openEnv(ctx context.Context) (*env, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if _, err := config.WriteDefault(dir); err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}

	client := auth.NewClient(cfg.AuthURL)
	session := auth.NewManager(config.SessionPath(dir), client, logging.NewStderr("auth"))

	return &env{dir: dir, cfg: cfg, store: st, client: client, session: session}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// identity re-establishes the saved session and returns the signed-in
// identity, or an error telling the user to log in.
func (e *env) identity(ctx context.Context) (*auth.Identity, error) {
	if id := e.client.Current(); id != nil {
		return id, nil
	}
	if e.session.RestoreFromToken(ctx) {
		return e.client.Current(), nil
	}
	ok, err := e.session.AutoLogin(ctx)
	if err != nil {
		return nil, fmt.Errorf("saved credentials were rejected: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("not signed in; run 'tn login'")
	}
	return e.client.Current(), nil
}

// fail prints err and exits, the shared error path for command bodies.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
