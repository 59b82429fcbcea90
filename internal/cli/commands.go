package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authr-client/internal/authclient"
	"github.com/Checker-Finance/authr-client/pkg/config"
	"github.com/Checker-Finance/authr-client/pkg/logger"
	"github.com/Checker-Finance/authr-client/pkg/secrets"
)

// ErrAlreadyHandled is returned by commands that have already reported their failure.
var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// app carries the configuration and collaborators shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpClient *http.Client
	secrets    secrets.Provider // nil builds the AWS provider on demand

	jsonOutput  bool
	sessionFile string
	token       string

	client *authclient.Client
}

// Execute builds the command tree from the environment and runs it.
// This is called by main.main().
func Execute() {
	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)

	a := &app{cfg: cfg, logger: logger.L()}
	rootCmd := newRootCmd(a)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if a.jsonOutput {
			_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "authr [command] [flags]",
		Short: "authr - exercise a token-authenticated HTTP API",
		Long: `authr logs in against a remote authentication API, calls protected
endpoints with the issued bearer token, refreshes and revokes tokens.

Configuration comes from the environment (or a .env file); flags override it.

Examples:
  # Log in and keep the session in a file
  authr login --username alexj --password goose --session-file .authr.json

  # Call a protected endpoint with that session
  authr post /todo --data '{"title":"t","body":"b"}' --session-file .authr.json

  # Run the full login / call / logout / call-again check
  authr smoke --username alexj --password goose`,
		PersistentPreRunE: a.preRun,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&a.jsonOutput, "json", "j", false, "Output in JSON format")
	flags.StringVar(&a.cfg.BaseURL, "base-url", a.cfg.BaseURL, "Base URL of the API")
	flags.DurationVar(&a.cfg.RequestTimeout, "timeout", a.cfg.RequestTimeout, "Per-request timeout (0 keeps the transport default)")
	flags.StringVar(&a.cfg.RefreshEncoding, "refresh-encoding", a.cfg.RefreshEncoding, "Refresh request body encoding: form or json")
	flags.StringVar(&a.sessionFile, "session-file", "", "File the session is read from and written to")
	flags.StringVar(&a.token, "token", "", "Access token to use instead of a session file")

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newRegisterCmd(a))
	rootCmd.AddCommand(newRefreshCmd(a))
	rootCmd.AddCommand(newLogoutCmd(a))
	rootCmd.AddCommand(newGetCmd(a))
	rootCmd.AddCommand(newPostCmd(a))
	rootCmd.AddCommand(newWhoamiCmd(a))
	rootCmd.AddCommand(newSmokeCmd(a))
	return rootCmd
}

// preRun validates the merged configuration and builds the API client.
func (a *app) preRun(cmd *cobra.Command, args []string) error {
	var enc authclient.RefreshEncoding
	switch a.cfg.RefreshEncoding {
	case config.RefreshEncodingForm:
		enc = authclient.RefreshForm
	case config.RefreshEncodingJSON:
		enc = authclient.RefreshJSON
	default:
		return fmt.Errorf("invalid --refresh-encoding %q: want %s or %s",
			a.cfg.RefreshEncoding, config.RefreshEncodingForm, config.RefreshEncodingJSON)
	}
	if a.cfg.RequestTimeout < 0 {
		return fmt.Errorf("invalid --timeout %s", a.cfg.RequestTimeout)
	}

	a.client = authclient.New(a.logger, a.httpClient,
		authclient.WithTimeout(a.cfg.RequestTimeout),
		authclient.WithRefreshEncoding(enc))
	return nil
}

// printJSON writes data as indented JSON
func printJSON(w io.Writer, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}
