package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tasknest/tasknest/internal/ui"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "account",
	Short:   "Sign in to the account service",
	Long: `Sign in with email and password.

With "remember me" enabled the credentials are kept locally so the
session can be re-established automatically after the token expires.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		email := loginEmail
		if email == "" {
			email = e.session.SavedEmail()
		}
		var password string
		remember := true

		if term.IsTerminal(int(os.Stdin.Fd())) {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Email").Value(&email),
				huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
				huh.NewConfirm().Title("Remember me?").Value(&remember),
			))
			if err := form.Run(); err != nil {
				fail(err)
			}
		} else {
			// Piped input: email then password, one per line.
			scanner := bufio.NewScanner(os.Stdin)
			if email == "" && scanner.Scan() {
				email = strings.TrimSpace(scanner.Text())
			}
			if scanner.Scan() {
				password = strings.TrimSpace(scanner.Text())
			}
		}

		if email == "" || password == "" {
			fail(fmt.Errorf("email and password are required"))
		}

		ident, err := e.client.Login(ctx, email, password)
		if err != nil {
			fail(err)
		}
		e.session.Save(email, password, ident.SessionToken, remember)

		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), ident.Email)
	},
}

var logoutPurge bool

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Sign out and discard the saved session",
	Long: `Sign out, discarding the saved token and credentials.

With --purge the user's local records are deleted as well. Unsynced
changes are lost; run 'tn sync' first if they matter.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		if logoutPurge {
			if id, err := e.identity(ctx); err == nil {
				if err := e.store.DeleteAllForOwner(ctx, id.ID); err != nil {
					fail(err)
				}
				fmt.Printf("%s Local records removed\n", ui.RenderPass("✓"))
			}
		}

		e.client.Logout()
		e.session.ClearSession()
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (skips the prompt)")
	logoutCmd.Flags().BoolVar(&logoutPurge, "purge", false, "also delete this user's local records")
}
