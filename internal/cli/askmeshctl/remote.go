package askmeshctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{Status: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}
	return responseBody, nil
}

func printResponse(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func newGetCommand(name, short, path string, client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

type questionPayload struct {
	Question string `json:"question"`
	Limit    int    `json:"limit,omitempty"`
	Sample   int    `json:"sample,omitempty"`
	Debug    *bool  `json:"debug,omitempty"`
}

type questionFlags struct {
	limit  int
	sample int
	debug  bool
}

func (f *questionFlags) register(cmd *cobra.Command, withSample bool) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "row limit added to the statement (0 uses the server default)")
	if withSample {
		cmd.Flags().IntVar(&f.sample, "sample", 0, "rows sent to the summary model and returned in the preview")
	}
	cmd.Flags().BoolVar(&f.debug, "debug", false, "include intermediate prompts and statements")
}

func (f *questionFlags) payload(cmd *cobra.Command, args []string) questionPayload {
	payload := questionPayload{
		Question: strings.Join(args, " "),
		Limit:    f.limit,
		Sample:   f.sample,
	}
	if cmd.Flags().Changed("debug") {
		debug := f.debug
		payload.Debug = &debug
	}
	return payload
}

func newAskCommand(client func() *apiClient) *cobra.Command {
	flags := &questionFlags{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question: translate, guard, execute and summarize",
		Example: `  askmeshctl ask "how many open projects per status?"
  askmeshctl ask --limit 100 --debug "projects started in 2014"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().do(cmd.Context(), http.MethodPost, "/v1/ask", flags.payload(cmd, args))
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newTranslateCommand(client func() *apiClient) *cobra.Command {
	flags := &questionFlags{}
	cmd := &cobra.Command{
		Use:   "translate <question>",
		Short: "Translate a question to an authorized statement without running it",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().do(cmd.Context(), http.MethodPost, "/v1/translate", flags.payload(cmd, args))
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newContextCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "context <question>",
		Short: "Show the schema context the model would receive",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().do(cmd.Context(), http.MethodPost, "/v1/context", map[string]string{
				"question": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

func newCheckCommand(client func() *apiClient) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "check <sql>",
		Short: "Run the server guard on a statement",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().do(cmd.Context(), http.MethodPost, "/v1/guard/check", map[string]any{
				"sql":    strings.Join(args, " "),
				"tables": tables,
			})
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "allowed table names, comma separated")
	return cmd
}

func newAuditCommand(client func() *apiClient) *cobra.Command {
	var limit int
	var rejected bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent guard decisions",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if rejected {
				query.Set("rejected", "true")
			}
			path := "/v1/audit"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			raw, err := client().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "only show rejected statements")
	return cmd
}
