package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/Checker-Finance/authr-client/internal/authclient"
)

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path-or-url>",
		Short: "Send an authorized GET",
		Long: `Get sends a GET with the session's bearer token and prints the status and body.
Any status, 401 included, is printed as a response; --fail exits non-zero on non-2xx.

Example:
  authr get /todo --session-file .authr.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			resp, err := a.client.AuthorizedGet(cmd.Context(), a.cfg.URL(args[0]), s)
			if err != nil {
				return err
			}
			return a.reportResponse(cmd, resp)
		},
	}
	cmd.Flags().Bool("fail", false, "Exit non-zero when the status is not 2xx")
	return cmd
}

func newPostCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post <path-or-url>",
		Short: "Send an authorized POST with a JSON body",
		Long: `Post sends the JSON given by --data (or read from --data-file, "-" for stdin)
with the session's bearer token and prints the status and body.

Example:
  authr post /todo --data '{"title":"my title","body":"my text body"}' --token $TOKEN`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd)
			if err != nil {
				return err
			}
			s, err := a.loadSession()
			if err != nil {
				return err
			}

			var body any
			if payload != nil {
				body = payload
			}
			resp, err := a.client.AuthorizedPost(cmd.Context(), a.cfg.URL(args[0]), s, body)
			if err != nil {
				return err
			}
			return a.reportResponse(cmd, resp)
		},
	}
	cmd.Flags().StringP("data", "d", "", "JSON request body")
	cmd.Flags().String("data-file", "", "File holding the JSON request body (- for stdin)")
	cmd.Flags().Bool("fail", false, "Exit non-zero when the status is not 2xx")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Ask the server who the current token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			resp, err := a.client.AuthorizedGet(cmd.Context(), a.cfg.URL(a.cfg.WhoamiPath), s)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("whoami: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return printJSON(out, jsonBody(resp.Body))
			}
			msg := gjson.GetBytes(resp.Body, "message")
			if msg.Exists() {
				okLabel.Fprintln(out, msg.String())
			} else {
				fmt.Fprintln(out, resp.Text())
			}
			return nil
		},
	}
}

// readPayload returns the raw JSON body given by --data or --data-file, or nil.
func readPayload(cmd *cobra.Command) (json.RawMessage, error) {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("data-file")
	if data != "" && file != "" {
		return nil, fmt.Errorf("--data and --data-file are mutually exclusive")
	}
	if data != "" {
		return json.RawMessage(data), nil
	}
	if file == "" {
		return nil, nil
	}

	var (
		b   []byte
		err error
	)
	if file == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return json.RawMessage(b), nil
}

func (a *app) reportResponse(cmd *cobra.Command, resp *authclient.Response) error {
	out := cmd.OutOrStdout()
	if a.jsonOutput {
		if err := printJSON(out, map[string]any{
			"status":     resp.StatusCode,
			"request_id": resp.RequestID,
			"elapsed_ms": resp.Elapsed.Milliseconds(),
			"body":       jsonBody(resp.Body),
		}); err != nil {
			return err
		}
	} else {
		label := okLabel
		if !resp.OK() {
			label = errorLabel
		}
		label.Fprintf(out, "HTTP %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), resp.Elapsed.Round(time.Millisecond))
		if len(resp.Body) > 0 {
			fmt.Fprintln(out, resp.Text())
		}
	}

	if fail, _ := cmd.Flags().GetBool("fail"); fail && !resp.OK() {
		return ErrAlreadyHandled
	}
	return nil
}

// jsonBody embeds a JSON body as-is and anything else as a string.
func jsonBody(b []byte) any {
	if len(b) > 0 && gjson.ValidBytes(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
