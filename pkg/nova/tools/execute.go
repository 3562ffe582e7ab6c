package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"econova/pkg/nova/sqlguard"
	"econova/pkg/nova/tenant"
)

// ErrNotEnabled is the error text for disabled or unknown tools.
const ErrNotEnabled = "tool not enabled"

// Result is handed back to the model as the tool's output. Failures are
// reported here rather than returned, so the model can correct itself.
type Result struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Query     string `json:"query,omitempty"`
	Source    string `json:"source,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Execute runs the named tool with its raw JSON input.
func Execute(ctx context.Context, name string, input json.RawMessage, cfg tenant.Config, actx *tenant.Context) (res Result) {
	tool, ok := tenant.ParseTool(name)
	if !ok || !isEnabled(tool, cfg) {
		return Result{Success: false, Error: ErrNotEnabled}
	}
	defer func() {
		if r := recover(); r != nil {
			res = failure("%s failed: %v", name, r)
		}
	}()
	if len(strings.TrimSpace(string(input))) == 0 {
		input = json.RawMessage("{}")
	}

	switch tool {
	case tenant.ToolQueryDatabase:
		return queryDatabase(ctx, input, cfg)
	case tenant.ToolExchangeRate:
		return exchangeRate(ctx, input, cfg)
	case tenant.ToolBusinessSummary:
		return businessSummary(ctx, input, cfg, actx)
	default:
		return Result{Success: false, Error: ErrNotEnabled}
	}
}

type queryDatabaseInput struct {
	Query   string `json:"query"`
	Purpose string `json:"purpose"`
}

func queryDatabase(ctx context.Context, input json.RawMessage, cfg tenant.Config) Result {
	var in queryDatabaseInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("invalid input for query_database: %v", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return failure("query is required")
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return failure("purpose is required")
	}

	exec := sqlguard.ExecuteSafeQuery(ctx, in.Query, cfg.DataSource)
	if !exec.Success {
		return Result{Success: false, Error: exec.Error, Query: exec.Query}
	}

	limit := cfg.MaxRows
	if limit <= 0 {
		limit = tenant.DefaultMaxRows
	}
	rows := exec.Data
	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}
	return Result{
		Success:   true,
		Data:      rows,
		Query:     exec.Query,
		Source:    "database",
		Truncated: truncated,
	}
}

type exchangeRateInput struct {
	Currency string `json:"currency"`
}

func exchangeRate(ctx context.Context, input json.RawMessage, cfg tenant.Config) Result {
	var in exchangeRateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("invalid input for get_exchange_rate: %v", err)
	}
	if cfg.ExchangeRates == nil {
		return failure("exchange rate source is not configured")
	}
	rates, err := cfg.ExchangeRates.Latest(ctx)
	if err != nil {
		return failure("exchange rate lookup failed: %v", err)
	}

	if currency := strings.ToUpper(strings.TrimSpace(in.Currency)); currency != "" {
		filtered := make([]tenant.ExchangeRate, 0, 1)
		for _, rate := range rates {
			if strings.EqualFold(rate.Currency, currency) {
				filtered = append(filtered, rate)
			}
		}
		if len(filtered) == 0 {
			return failure("no exchange rate available for %s", currency)
		}
		rates = filtered
	}
	if len(rates) == 0 {
		return failure("no exchange rates available")
	}

	source := rates[0].Source
	if source == "" {
		source = "exchange_rate"
	}
	return Result{Success: true, Data: rates, Source: source}
}

type businessSummaryInput struct {
	Focus string `json:"focus"`
}

func businessSummary(ctx context.Context, input json.RawMessage, cfg tenant.Config, actx *tenant.Context) Result {
	var in businessSummaryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("invalid input for get_business_summary: %v", err)
	}
	focus, ok := tenant.ParseFocus(in.Focus)
	if !ok {
		return failure("invalid focus %q (expected ventas, kpis, clientes or general)", in.Focus)
	}
	if cfg.Summaries == nil {
		return failure("business summary is not configured")
	}
	var companyID *int
	if actx != nil {
		companyID = actx.CompanyID
	}
	summary, err := cfg.Summaries.Summary(ctx, focus, companyID)
	if err != nil {
		return failure("business summary failed: %v", err)
	}
	return Result{Success: true, Data: summary, Source: "summary:" + string(focus)}
}
