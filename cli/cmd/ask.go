package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"econova/pkg/clients"
	"econova/pkg/nova"
	"econova/pkg/version"
)

const defaultNovaURL = "http://localhost:18030"

type askOptions struct {
	BaseURL   string
	Token     string
	Tenant    string
	CompanyID *int
	Question  string
}

func newAskCmd() *cobra.Command {
	var (
		opts    askOptions
		company int
		timeout time.Duration
		showSQL bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a running Nova API a question",
		Long: `Send a question to /api/nova/chat and print the answer.

The token is a tenant API key, a JWT or the service token. Service tokens
must name the tenant with --tenant.

Environment:
  NOVA_URL     API base URL (default ` + defaultNovaURL + `)
  NOVA_TOKEN   bearer token

Examples:
  novactl ask "¿Cuánto vendimos en marzo?"
  novactl ask --company 2 --show-sql "Top 5 clientes por volumen"
  NOVA_TOKEN=$SERVICE_TOKEN novactl ask --tenant econova "kpis del mes"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Question = strings.Join(args, " ")
			if opts.Token == "" {
				return errors.New("no token: pass --token or set NOVA_TOKEN")
			}
			if cmd.Flags().Changed("company") {
				opts.CompanyID = &company
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := askNova(ctx, clients.NewHTTPClient(timeout), opts)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, result.Answer)
			if showSQL && result.Query != "" {
				fmt.Fprintf(w, "\nSQL: %s\n", result.Query)
			}
			fmt.Fprintf(w, "\n[%s · %d in / %d out tokens · $%.4f · %d iterations]\n",
				result.Usage.Model, result.Usage.InputTokens, result.Usage.OutputTokens,
				result.Usage.CostUSD, result.Iterations)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "url", envOr("NOVA_URL", defaultNovaURL), "Nova API base URL")
	cmd.Flags().StringVar(&opts.Token, "token", os.Getenv("NOVA_TOKEN"), "bearer token (API key, JWT or service token)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id, required with a service token")
	cmd.Flags().IntVar(&company, "company", 0, "restrict the answer to one company (1 DURA, 2 ORSEGA)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the last query the agent ran")

	return cmd
}

// askNova posts one question. Chat requests are billed, so they are never retried.
func askNova(ctx context.Context, client *http.Client, opts askOptions) (nova.SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"question":   opts.Question,
		"company_id": opts.CompanyID,
	})
	if err != nil {
		return nova.SearchResult{}, err
	}

	endpoint := strings.TrimRight(opts.BaseURL, "/") + "/api/nova/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nova.SearchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.Token)
	req.Header.Set("User-Agent", version.UserAgent())
	if opts.Tenant != "" {
		req.Header.Set("X-Tenant-ID", opts.Tenant)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nova.SearchResult{}, fmt.Errorf("call nova: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nova.SearchResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nova.SearchResult{}, fmt.Errorf("nova returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nova.SearchResult{}, fmt.Errorf("nova returned %d", resp.StatusCode)
	}

	var result nova.SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nova.SearchResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
