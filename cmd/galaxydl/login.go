package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"galaxydl/internal/auth"
)

var (
	loginCode  string
	loginAccessToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session in the auth file",
	Long: `The interactive OAuth exchange itself is out of scope for this tool
(spec.md): login writes an auth.json structurally compatible with what a
real login flow would produce. --code is accepted as a placeholder for
where that exchange would plug in; --access-token stores a bearer token
directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := auth.LoadFileStore(flagAuthPath, nil)
		if err != nil {
			return err
		}

		session := auth.Session{
			AccessToken: loginAccessToken,
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		}
		if loginAccessToken == "" {
			// No external exchange available in this scope; record the
			// code as a placeholder access token so the file shape is
			// still valid and downstream commands have something to send.
			session.AccessToken = loginCode
		}

		if err := store.SetSession(session); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "session stored")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginCode, "code", "", "OAuth authorization code")
	loginCmd.Flags().StringVar(&loginAccessToken, "access-token", "", "store this access token directly")
	rootCmd.AddCommand(loginCmd)
}
