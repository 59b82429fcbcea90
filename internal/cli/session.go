package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Checker-Finance/authr-client/internal/authclient"
	"github.com/Checker-Finance/authr-client/pkg/secrets"
)

var errNoSession = errors.New("no session: pass --token or --session-file")

// loadSession returns the session named by --token or --session-file, in that order.
func (a *app) loadSession() (authclient.Session, error) {
	if a.token != "" {
		return authclient.Session{AccessToken: a.token}, nil
	}
	if a.sessionFile == "" {
		return authclient.Session{}, errNoSession
	}

	data, err := os.ReadFile(a.sessionFile)
	if err != nil {
		return authclient.Session{}, fmt.Errorf("read session file: %w", err)
	}
	var s authclient.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return authclient.Session{}, fmt.Errorf("parse session file %s: %w", a.sessionFile, err)
	}
	if !s.Valid() {
		return authclient.Session{}, fmt.Errorf("session file %s has no access token", a.sessionFile)
	}
	return s, nil
}

// saveSession writes s to --session-file when one is set.
func (a *app) saveSession(s authclient.Session) error {
	if a.sessionFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.sessionFile, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// dropSession removes --session-file after a logout.
func (a *app) dropSession() error {
	if a.sessionFile == "" {
		return nil
	}
	if err := os.Remove(a.sessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func addCredentialFlags(cmd *cobra.Command, withEmail bool) {
	cmd.Flags().String("username", "", "Username (defaults to AUTHR_USERNAME)")
	cmd.Flags().String("password", "", "Password (defaults to AUTHR_PASSWORD)")
	if withEmail {
		cmd.Flags().String("email", "", "Email (defaults to AUTHR_EMAIL)")
	}
}

// credentials merges flags over config. When no username is known and
// AUTHR_CREDENTIALS_SECRET is set, the credentials come from that secret.
func (a *app) credentials(cmd *cobra.Command) (authclient.Credentials, error) {
	creds := authclient.Credentials{
		Username: a.cfg.Username,
		Password: a.cfg.Password,
		Email:    a.cfg.Email,
	}
	if v, _ := cmd.Flags().GetString("username"); v != "" {
		creds.Username = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		creds.Password = v
	}
	if v, _ := cmd.Flags().GetString("email"); v != "" {
		creds.Email = v
	}

	if creds.Username == "" && a.cfg.CredentialsSecret != "" {
		return a.secretCredentials(cmd.Context())
	}
	if creds.Username == "" || creds.Password == "" {
		return authclient.Credentials{}, fmt.Errorf("no credentials provided. Use --username/--password, AUTHR_USERNAME/AUTHR_PASSWORD or AUTHR_CREDENTIALS_SECRET")
	}
	return creds, nil
}

func (a *app) secretCredentials(ctx context.Context) (authclient.Credentials, error) {
	provider := a.secrets
	if provider == nil {
		var err error
		provider, err = secrets.NewAWSProvider(ctx, a.cfg.AWSRegion)
		if err != nil {
			return authclient.Credentials{}, err
		}
	}

	resolver := secrets.NewResolver(a.logger, provider, secrets.NewCache[authclient.Credentials](a.cfg.CacheTTL))
	return resolver.Resolve(ctx, a.cfg.CredentialsSecret, parseCredentials)
}

func parseCredentials(raw map[string]string) (authclient.Credentials, error) {
	creds := authclient.Credentials{
		Username: raw["username"],
		Password: raw["password"],
		Email:    raw["email"],
	}
	if creds.Username == "" || creds.Password == "" {
		return authclient.Credentials{}, errors.New("secret must contain username and password")
	}
	return creds, nil
}
