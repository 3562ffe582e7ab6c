package tenant

import (
	"fmt"
	"strings"
)

// Tool is the closed set of tools the agent can expose to the model.
type Tool int

const (
	ToolQueryDatabase Tool = iota + 1
	ToolExchangeRate
	ToolBusinessSummary
)

// AllTools is every tool in presentation order.
var AllTools = []Tool{ToolQueryDatabase, ToolExchangeRate, ToolBusinessSummary}

func (t Tool) String() string {
	switch t {
	case ToolQueryDatabase:
		return "query_database"
	case ToolExchangeRate:
		return "get_exchange_rate"
	case ToolBusinessSummary:
		return "get_business_summary"
	default:
		return fmt.Sprintf("tool(%d)", int(t))
	}
}

// ParseTool resolves a wire name to a Tool.
func ParseTool(name string) (Tool, bool) {
	for _, t := range AllTools {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func (t Tool) MarshalText() ([]byte, error) {
	if _, ok := ParseTool(t.String()); !ok {
		return nil, fmt.Errorf("unknown tool %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tool) UnmarshalText(text []byte) error {
	parsed, ok := ParseTool(strings.TrimSpace(string(text)))
	if !ok {
		return fmt.Errorf("unknown tool %q", string(text))
	}
	*t = parsed
	return nil
}

// SummaryFocus selects the canned business summary.
type SummaryFocus string

const (
	FocusVentas   SummaryFocus = "ventas"
	FocusKPIs     SummaryFocus = "kpis"
	FocusClientes SummaryFocus = "clientes"
	FocusGeneral  SummaryFocus = "general"
)

var AllFocuses = []SummaryFocus{FocusVentas, FocusKPIs, FocusClientes, FocusGeneral}

// ParseFocus accepts an empty string as FocusGeneral.
func ParseFocus(s string) (SummaryFocus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FocusGeneral, true
	}
	for _, f := range AllFocuses {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}
