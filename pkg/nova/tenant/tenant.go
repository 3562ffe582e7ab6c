// Package tenant holds the per-tenant configuration and per-request context
// shared by the agent, its tool registry and its prompt builder.
package tenant

import (
	"context"
	"errors"
	"maps"
	"slices"

	"econova/pkg/nova/usage"
)

const (
	DefaultModel                  = "claude-sonnet-4-5"
	DefaultMaxIterations          = 5
	DefaultMaxTokensPerRequest    = 4096
	DefaultMaxConversationHistory = 10
	DefaultMaxRows                = 200
)

var (
	ErrMissingTenantID   = errors.New("tenant id is required")
	ErrMissingTenantName = errors.New("tenant name is required")
	ErrMissingDataSource = errors.New("tenant data source is required")
)

// DataSource executes one already-validated SQL statement against the
// tenant's own store. The host owns the connection and its scoping.
type DataSource interface {
	Query(ctx context.Context, sql string) ([]map[string]any, error)
}

// DataSourceFunc adapts a plain function to DataSource.
type DataSourceFunc func(ctx context.Context, sql string) ([]map[string]any, error)

func (f DataSourceFunc) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	return f(ctx, sql)
}

// ExchangeRate is one published reference rate against MXN.
type ExchangeRate struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
	Date     string  `json:"date"`
	Series   string  `json:"series,omitempty"`
	Source   string  `json:"source"`
}

type ExchangeRateSource interface {
	Latest(ctx context.Context) ([]ExchangeRate, error)
}

// SummaryProvider produces the canned business summary for a focus area,
// optionally scoped to one company of the tenant.
type SummaryProvider interface {
	Summary(ctx context.Context, focus SummaryFocus, companyID *int) (map[string]any, error)
}

// UsageFunc receives the usage record of every completed chat. Returned
// errors and panics are logged by the agent and never reach the caller.
type UsageFunc func(ctx context.Context, data usage.Data) error

// Config is the immutable configuration of one tenant's agent.
type Config struct {
	TenantID   string
	TenantName string

	DataSource    DataSource
	ExchangeRates ExchangeRateSource
	Summaries     SummaryProvider
	OnUsage       UsageFunc

	DatabaseSchema        string
	SystemPromptAdditions string
	// EnabledTools nil means every tool is enabled; an empty slice disables all.
	EnabledTools []Tool

	Model                  string
	APIKey                 string
	MaxTokensPerRequest    int
	MaxIterations          int
	MaxConversationHistory int
	MaxRows                int
	CompactPrompt          bool
}

// WithDefaults fills zero-valued limits and the model.
func (c Config) WithDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokensPerRequest <= 0 {
		c.MaxTokensPerRequest = DefaultMaxTokensPerRequest
	}
	if c.MaxConversationHistory <= 0 {
		c.MaxConversationHistory = DefaultMaxConversationHistory
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.TenantID == "":
		return ErrMissingTenantID
	case c.TenantName == "":
		return ErrMissingTenantName
	case c.DataSource == nil:
		return ErrMissingDataSource
	}
	return nil
}

// Clone returns a copy that shares no mutable state with c.
func (c Config) Clone() Config {
	if c.EnabledTools != nil {
		c.EnabledTools = slices.Clone(c.EnabledTools)
	}
	return c
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation turn supplied by the caller.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the per-request context of a chat call.
type Context struct {
	UserID    string    `json:"user_id,omitempty"`
	CompanyID *int      `json:"company_id,omitempty"`
	History   []Message `json:"history,omitempty"`
}

// CompanyName maps the two known company ids to their display names.
func CompanyName(id int) string {
	if name, ok := companyNames[id]; ok {
		return name
	}
	return ""
}

var companyNames = map[int]string{
	1: "DURA",
	2: "ORSEGA",
}

// Companies lists the known companies keyed by id.
func Companies() map[int]string {
	return maps.Clone(companyNames)
}
