package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Checker-Finance/authr-client/internal/authclient"
	"github.com/Checker-Finance/authr-client/pkg/utils"
)

func newLoginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a token pair",
		Long: `Login posts {"username","password"} to the login endpoint and prints the
issued session. With --session-file the session is also written to that file.

Example:
  authr login --username alexj --password goose --session-file .authr.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			s, err := a.client.Login(cmd.Context(), creds, a.cfg.URL(a.cfg.LoginPath))
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			return a.reportSession(cmd, "Login successful", s)
		},
	}
	addCredentialFlags(cmd, false)
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and receive a token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			s, err := a.client.Register(cmd.Context(), creds, a.cfg.URL(a.cfg.RegisterPath))
			if err != nil {
				return fmt.Errorf("register failed: %w", err)
			}
			return a.reportSession(cmd, "Registration successful", s)
		},
	}
	addCredentialFlags(cmd, true)
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [refresh-token]",
		Short: "Exchange a refresh token for a new token pair",
		Long: `Refresh sends the refresh token (the argument, or the one stored in
--session-file) to the refresh endpoint. The body is form-encoded unless
--refresh-encoding=json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var refreshToken string
			if len(args) == 1 {
				refreshToken = args[0]
			} else {
				s, err := a.loadSession()
				if err != nil {
					return err
				}
				refreshToken = s.RefreshToken
			}
			if refreshToken == "" {
				return fmt.Errorf("no refresh token: pass it as an argument or keep one in --session-file")
			}

			s, err := a.client.Refresh(cmd.Context(), refreshToken, a.cfg.URL(a.cfg.RefreshPath))
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			return a.reportSession(cmd, "Tokens refreshed", s)
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current session on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			if err := a.client.Logout(cmd.Context(), s, a.cfg.URL(a.cfg.LogoutPath)); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			if err := a.dropSession(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return printJSON(out, map[string]string{
					"status":  "success",
					"message": "Logged out",
				})
			}
			okLabel.Fprintln(out, "✓ Logged out")
			return nil
		},
	}
}

// reportSession stores s when a session file is configured and prints it.
// JSON output carries the full tokens; text output masks them.
func (a *app) reportSession(cmd *cobra.Command, msg string, s authclient.Session) error {
	if err := a.saveSession(s); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return printJSON(out, s)
	}
	okLabel.Fprintf(out, "✓ %s\n", msg)
	printSession(out, s)
	if a.sessionFile != "" {
		fmt.Fprintf(out, "Session saved to %s\n", a.sessionFile)
	}
	return nil
}

func printSession(w io.Writer, s authclient.Session) {
	if s.Username != "" {
		fmt.Fprintf(w, "User: %s\n", s.Username)
	}
	fmt.Fprintf(w, "Access token: %s\n", utils.MaskToken(s.AccessToken))
	if s.RefreshToken != "" {
		fmt.Fprintf(w, "Refresh token: %s\n", utils.MaskToken(s.RefreshToken))
	}
	if exp, ok := s.ExpiresAt(); ok {
		fmt.Fprintf(w, "Token expires at: %s\n", exp.Format(time.RFC3339))
	}
}
