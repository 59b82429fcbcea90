package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Checker-Finance/authr-client/internal/authclient"
)

type smokeStep struct {
	Name   string `json:"name"`
	Expect string `json:"expect"`
	Got    string `json:"got"`
	Passed bool   `json:"passed"`
}

type smokeReport struct {
	Passed bool        `json:"passed"`
	Steps  []smokeStep `json:"steps"`
}

func (r *smokeReport) record(name, expect, got string, passed bool) bool {
	r.Steps = append(r.Steps, smokeStep{Name: name, Expect: expect, Got: got, Passed: passed})
	return passed
}

var smokeTodo = map[string]any{
	"user_id": "1",
	"title":   "my title",
	"body":    "my text body",
}

func newSmokeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the login / post / logout / post-again check",
		Long: `Smoke logs in, posts a todo with the issued token, logs out and posts
twice more with the same token, which must be rejected with 401 each time.
With --refresh it also rotates the token pair before logging out and checks
that the replaced access token is refused.

Exits non-zero when any step does not behave as expected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			withRefresh, _ := cmd.Flags().GetBool("refresh")

			report := a.runSmoke(cmd.Context(), creds, withRefresh)
			if err := a.printSmoke(cmd, report); err != nil {
				return err
			}
			if !report.Passed {
				return ErrAlreadyHandled
			}
			return nil
		},
	}
	addCredentialFlags(cmd, false)
	cmd.Flags().Bool("refresh", false, "Also check refresh token rotation")
	return cmd
}

// runSmoke stops at the first step whose outcome makes the rest meaningless.
func (a *app) runSmoke(ctx context.Context, creds authclient.Credentials, withRefresh bool) smokeReport {
	var r smokeReport
	todoURL := a.cfg.URL(a.cfg.TodoPath)

	s, err := a.client.Login(ctx, creds, a.cfg.URL(a.cfg.LoginPath))
	if !r.record("login", "session", outcome(err, "session"), err == nil) {
		return r
	}

	if !a.expectStatus(ctx, &r, "post before logout", todoURL, s, http.StatusOK) {
		return r
	}

	if withRefresh {
		next, err := a.client.Refresh(ctx, s.RefreshToken, a.cfg.URL(a.cfg.RefreshPath))
		if !r.record("refresh", "new session", outcome(err, "new session"), err == nil && next.AccessToken != s.AccessToken) {
			return r
		}
		a.expectStatus(ctx, &r, "post with replaced token", todoURL, s, http.StatusUnauthorized)
		if !a.expectStatus(ctx, &r, "post with refreshed token", todoURL, next, http.StatusOK) {
			return r
		}
		s = next
	}

	err = a.client.Logout(ctx, s, a.cfg.URL(a.cfg.LogoutPath))
	if !r.record("logout", "ok", outcome(err, "ok"), err == nil) {
		return r
	}

	// A revoked token must stay rejected on every attempt.
	a.expectStatus(ctx, &r, "post after logout", todoURL, s, http.StatusUnauthorized)
	a.expectStatus(ctx, &r, "post after logout again", todoURL, s, http.StatusUnauthorized)

	r.Passed = true
	for _, step := range r.Steps {
		r.Passed = r.Passed && step.Passed
	}
	return r
}

func (a *app) expectStatus(ctx context.Context, r *smokeReport, name, url string, s authclient.Session, want int) bool {
	resp, err := a.client.AuthorizedPost(ctx, url, s, smokeTodo)
	if err != nil {
		return r.record(name, fmt.Sprint(want), err.Error(), false)
	}
	return r.record(name, fmt.Sprint(want), fmt.Sprint(resp.StatusCode), resp.StatusCode == want)
}

func outcome(err error, ok string) string {
	if err != nil {
		return err.Error()
	}
	return ok
}

func (a *app) printSmoke(cmd *cobra.Command, r smokeReport) error {
	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return printJSON(out, r)
	}

	for _, step := range r.Steps {
		if step.Passed {
			okLabel.Fprintf(out, "✓ %-26s %s\n", step.Name, step.Got)
		} else {
			errorLabel.Fprintf(out, "✗ %-26s expected %s, got %s\n", step.Name, step.Expect, step.Got)
		}
	}
	if r.Passed {
		okLabel.Fprintln(out, "Smoke check passed")
	} else {
		errorLabel.Fprintln(out, "Smoke check failed")
	}
	return nil
}
