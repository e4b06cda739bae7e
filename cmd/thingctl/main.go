// Command thingctl sends direct methods to Edgeberry devices and manages
// device ownership through the Edgeberry Core API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	envServer   = "EDGEBERRY_SERVER"
	envToken    = "EDGEBERRY_TOKEN"
	envUser     = "EDGEBERRY_USER"
	envPassword = "EDGEBERRY_PASSWORD"

	defaultServer = "http://127.0.0.1:8080"

	// defaultHTTPTimeout outlasts the server's longest direct method wait.
	defaultHTTPTimeout = 75 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps server responses to distinct exit statuses so scripts can
// tell a device timeout from an ownership conflict.
func exitCode(err error) int {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return 1
	}
	switch apiErr.Status {
	case 401, 403:
		return 3
	case 404:
		return 4
	case 409:
		return 5
	case 502, 504:
		return 6
	default:
		return 2
	}
}

type cliConfig struct {
	server   string
	token    string
	username string
	password string
	timeout  time.Duration
}

func (c *cliConfig) client() (*apiClient, error) {
	cl, err := newAPIClient(c.server, c.timeout)
	if err != nil {
		return nil, err
	}
	cl.token = c.token
	cl.username = c.username
	cl.password = c.password
	return cl, nil
}

func newRootCommand() *cobra.Command {
	cfg := &cliConfig{}
	cmd := &cobra.Command{
		Use:           "thingctl",
		Short:         "Send direct methods to devices and manage ownership",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.server, "server", envOr(envServer, defaultServer), "Edgeberry Core base URL (env "+envServer+")")
	flags.StringVar(&cfg.token, "token", os.Getenv(envToken), "bearer token (env "+envToken+")")
	flags.StringVarP(&cfg.username, "user", "u", os.Getenv(envUser), "username to log in with when no token is set (env "+envUser+")")
	flags.StringVar(&cfg.password, "password", os.Getenv(envPassword), "password for --user (env "+envPassword+")")
	flags.DurationVar(&cfg.timeout, "http-timeout", defaultHTTPTimeout, "HTTP client timeout")

	cmd.AddCommand(
		newInvokeCommand(cfg),
		newClaimCommand(cfg),
		newReleaseCommand(cfg),
		newListCommand(cfg),
	)
	return cmd
}

func newInvokeCommand(cfg *cliConfig) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "invoke <device-id> <method> [body|-]",
		Short: "Call a direct method on a device and print its response",
		Long: "Call a direct method on a device and print its response.\n" +
			"The body is passed to the device as a string; use - to read it from stdin.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout < 0 {
				return errors.New("--timeout must not be negative")
			}
			if timeout%time.Second != 0 {
				return errors.New("--timeout must be a whole number of seconds")
			}
			req := directMethod{
				DeviceID:   args[0],
				MethodName: args[1],
				Timeout:    int(timeout / time.Second),
			}
			if len(args) == 3 {
				body, err := readBody(args[2], cmd.InOrStdin())
				if err != nil {
					return err
				}
				req.MethodBody = body
			}

			cl, err := cfg.client()
			if err != nil {
				return err
			}
			raw, err := cl.Invoke(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "how long the device has to answer in whole seconds (0 uses the server default)")
	return cmd
}

func newClaimCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <device-id>",
		Short: "Claim an unclaimed device; the device must confirm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := cfg.client()
			if err != nil {
				return err
			}
			raw, err := cl.Claim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newReleaseCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "release <device-id>",
		Short: "Give up ownership of a device you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := cfg.client()
			if err != nil {
				return err
			}
			raw, err := cl.Release(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newListCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the devices you own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := cfg.client()
			if err != nil {
				return err
			}
			raw, err := cl.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func readBody(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading body from stdin: %w", err)
	}
	return string(bytes.TrimRight(data, "\r\n")), nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
