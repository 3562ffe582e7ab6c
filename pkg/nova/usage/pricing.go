package usage

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Price is a model's list price in USD per million tokens.
type Price struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// Cost prices a token count. Negative counts are treated as zero so the
// result never decreases as either count grows.
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}

// DefaultPrice applies to models missing from a table. It is the Sonnet
// list price, so unknown models are billed at a mid-tier rate instead of
// failing the request.
var DefaultPrice = Price{InputPerMTok: 3, OutputPerMTok: 15}

// PriceTable maps model ids to prices. Lookups match the longest model id
// that prefixes the requested one, so dated ids such as
// claude-sonnet-4-5-20250929 resolve to claude-sonnet-4-5.
type PriceTable struct {
	Default Price            `yaml:"default"`
	Models  map[string]Price `yaml:"models"`
}

// DefaultPriceTable returns the built-in Anthropic list prices.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Default: DefaultPrice,
		Models: map[string]Price{
			"claude-opus-4-5":   {InputPerMTok: 5, OutputPerMTok: 25},
			"claude-opus-4":     {InputPerMTok: 15, OutputPerMTok: 75},
			"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
			"claude-sonnet-4":   {InputPerMTok: 3, OutputPerMTok: 15},
			"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},
			"claude-3-7-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
			"claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
			"claude-3-5-haiku":  {InputPerMTok: 0.8, OutputPerMTok: 4},
			"claude-3-opus":     {InputPerMTok: 15, OutputPerMTok: 75},
			"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
		},
	}
}

var defaultTable = DefaultPriceTable()

// Lookup reports the price for model and whether it came from the table.
func (t PriceTable) Lookup(model string) (Price, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := t.Models[model]; ok {
		return p, true
	}
	best := ""
	for id := range t.Models {
		if strings.HasPrefix(model, id) && len(id) > len(best) {
			best = id
		}
	}
	if best != "" {
		return t.Models[best], true
	}
	if t.Default == (Price{}) {
		return DefaultPrice, false
	}
	return t.Default, false
}

func (t PriceTable) Cost(inputTokens, outputTokens int, model string) float64 {
	price, _ := t.Lookup(model)
	return price.Cost(inputTokens, outputTokens)
}

// CalculateCost prices a request with the built-in table.
func CalculateCost(inputTokens, outputTokens int, model string) float64 {
	return defaultTable.Cost(inputTokens, outputTokens, model)
}

// LoadPriceTable reads a YAML price list and overlays it on the built-in
// table, so a file only needs the entries it changes:
//
//	default: {input_per_mtok: 3, output_per_mtok: 15}
//	models:
//	  claude-sonnet-4-5: {input_per_mtok: 3, output_per_mtok: 15}
func LoadPriceTable(path string) (PriceTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PriceTable{}, fmt.Errorf("read price table: %w", err)
	}
	var file PriceTable
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return PriceTable{}, fmt.Errorf("parse price table %s: %w", path, err)
	}

	table := DefaultPriceTable()
	if file.Default != (Price{}) {
		table.Default = file.Default
	}
	for id, price := range file.Models {
		if price.InputPerMTok < 0 || price.OutputPerMTok < 0 {
			return PriceTable{}, fmt.Errorf("price table %s: negative price for %q", path, id)
		}
		table.Models[strings.ToLower(strings.TrimSpace(id))] = price
	}
	if table.Default.InputPerMTok < 0 || table.Default.OutputPerMTok < 0 {
		return PriceTable{}, fmt.Errorf("price table %s: negative default price", path)
	}
	return table, nil
}

// Clone returns a table that does not share its model map with t.
func (t PriceTable) Clone() PriceTable {
	t.Models = maps.Clone(t.Models)
	return t
}
