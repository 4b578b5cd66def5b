// Package askmeshctl implements the askmesh command line client. Remote
// commands call the HTTP API; pack and guard work offline on a schema file.
package askmeshctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/askmesh/askmesh/internal/storage"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer

	// SchemaKey is the default object key for schema push.
	SchemaKey  string
	TopTables  int
	MaxColumns int
	GuardLimit int
	// OpenStore connects to the object store for the push commands.
	OpenStore func(ctx context.Context) (storage.ObjectStore, error)
	Now       func() time.Time
}

type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// Run executes one command line and returns the process exit code: 0 on
// success, 1 on failure and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	defaults.Stdout = stdout
	defaults.Stderr = stderr

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		var usage *usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type globalFlags struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewRootCommand(opts Options) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "askmeshctl",
		Short:         "Ask questions over a relational schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return usageErrorf("a command is required")
			}
			return usageErrorf("unknown command %q", args[0])
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(opts.BaseURL, "http://localhost:8080"), "askmesh API base URL")
	root.PersistentFlags().StringVar(&flags.apiKey, "api-key", opts.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(opts.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	client := func() *apiClient {
		httpClient := opts.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: flags.timeout}
		}
		return &apiClient{
			baseURL: strings.TrimRight(flags.baseURL, "/"),
			apiKey:  strings.TrimSpace(flags.apiKey),
			http:    httpClient,
		}
	}

	root.AddCommand(
		newGetCommand("health", "Check API liveness", "/v1/health", client),
		newGetCommand("ready", "Check API readiness", "/v1/ready", client),
		newGetCommand("schema", "Print the schema catalog served by the API", "/v1/schema", client),
		newAskCommand(client),
		newTranslateCommand(client),
		newContextCommand(client),
		newCheckCommand(client),
		newAuditCommand(client),
		newPackCommand(opts),
		newGuardCommand(opts),
		newPushCommand(opts),
	)
	return root
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
