// Package usage accounts tokens, cost and tool invocations of agent requests.
package usage

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Data is the usage record of one completed chat request.
type Data struct {
	RequestID    string        `json:"request_id"`
	TenantID     string        `json:"tenant_id"`
	UserID       string        `json:"user_id,omitempty"`
	CompanyID    *int          `json:"company_id,omitempty"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	Duration     time.Duration `json:"duration_ns"`
	ToolsUsed    []string      `json:"tools_used"`
	Timestamp    time.Time     `json:"timestamp"`
}

// DataParams are the raw inputs of NewData. Prices and Now are optional.
type DataParams struct {
	RequestID    string
	TenantID     string
	UserID       string
	CompanyID    *int
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	ToolsUsed    []string
	Prices       *PriceTable
	Now          func() time.Time
}

// NewData assembles a usage record, pricing it and stamping the time.
func NewData(p DataParams) Data {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	table := defaultTable
	if p.Prices != nil {
		table = *p.Prices
	}
	requestID := p.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	in, out := max(p.InputTokens, 0), max(p.OutputTokens, 0)
	tools := slices.Clone(p.ToolsUsed)
	if tools == nil {
		tools = []string{}
	}
	var company *int
	if p.CompanyID != nil {
		id := *p.CompanyID
		company = &id
	}
	return Data{
		RequestID:    requestID,
		TenantID:     p.TenantID,
		UserID:       p.UserID,
		CompanyID:    company,
		Model:        p.Model,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		CostUSD:      table.Cost(in, out, p.Model),
		Duration:     p.Duration,
		ToolsUsed:    tools,
		Timestamp:    now(),
	}
}

// Stats are running totals since the tracker was created or last reset.
type Stats struct {
	TotalRequests     int            `json:"total_requests"`
	TotalInputTokens  int            `json:"total_input_tokens"`
	TotalOutputTokens int            `json:"total_output_tokens"`
	TotalTokens       int            `json:"total_tokens"`
	TotalCostUSD      float64        `json:"total_cost_usd"`
	ToolUsage         map[string]int `json:"tool_usage"`
}

// Tracker accumulates Stats. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	stats Stats
}

func NewTracker() *Tracker {
	return &Tracker{stats: Stats{ToolUsage: make(map[string]int)}}
}

// Record adds one request. A tool listed twice counts twice.
func (t *Tracker) Record(d Data) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats.ToolUsage == nil {
		t.stats.ToolUsage = make(map[string]int)
	}
	t.stats.TotalRequests++
	t.stats.TotalInputTokens += d.InputTokens
	t.stats.TotalOutputTokens += d.OutputTokens
	t.stats.TotalTokens += d.TotalTokens
	t.stats.TotalCostUSD += d.CostUSD
	for _, tool := range d.ToolsUsed {
		t.stats.ToolUsage[tool]++
	}
}

// Stats returns a snapshot that later Record calls do not modify.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.stats
	snapshot.ToolUsage = maps.Clone(t.stats.ToolUsage)
	if snapshot.ToolUsage == nil {
		snapshot.ToolUsage = make(map[string]int)
	}
	return snapshot
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{ToolUsage: make(map[string]int)}
}
