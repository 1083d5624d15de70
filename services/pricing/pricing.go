// Package pricing maps token usage to monetary cost using per-provider rate
// tables that are loaded once at startup and never mutated afterwards.
package pricing

import (
	"fmt"
	"math"
	"sort"
)

const tokensPerMillion = 1_000_000

// Rate is the USD price per million tokens for one model
type Rate struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// Cost is a full-precision cost breakdown in USD
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Add aggregates two costs without rounding
func (c Cost) Add(other Cost) Cost {
	return Cost{
		Input:  c.Input + other.Input,
		Output: c.Output + other.Output,
		Total:  c.Total + other.Total,
	}
}

// Display formats the total for presentation. Totals under a cent keep six
// decimals so small requests do not render as $0.00.
func (c Cost) Display() string {
	if c.Total != 0 && math.Abs(c.Total) < 0.01 {
		return fmt.Sprintf("$%.6f", c.Total)
	}
	return fmt.Sprintf("$%.2f", c.Total)
}

// Table is an immutable pricing table for one provider
type Table struct {
	defaultModel string
	rates        map[string]Rate
}

// NewTable copies rates into a new Table. defaultModel should name a row in
// rates; when it does not, unknown models are priced at zero.
func NewTable(defaultModel string, rates map[string]Rate) Table {
	copied := make(map[string]Rate, len(rates))
	for model, rate := range rates {
		copied[model] = rate
	}
	return Table{defaultModel: defaultModel, rates: copied}
}

// DefaultModel returns the model whose row prices unknown models
func (t Table) DefaultModel() string {
	return t.defaultModel
}

// Rate returns the row for model, falling back to the default model's row.
// The second return value reports whether model had its own row.
func (t Table) Rate(model string) (Rate, bool) {
	if rate, ok := t.rates[model]; ok {
		return rate, true
	}
	return t.rates[t.defaultModel], false
}

// Models returns the priced models in lexical order
func (t Table) Models() []string {
	models := make([]string, 0, len(t.rates))
	for model := range t.rates {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Rates returns a copy of every row
func (t Table) Rates() map[string]Rate {
	out := make(map[string]Rate, len(t.rates))
	for model, rate := range t.rates {
		out[model] = rate
	}
	return out
}

// Estimate computes the cost of a call. It never fails: unknown models use
// the default row and non-positive token counts contribute nothing.
func (t Table) Estimate(model string, inputTokens, outputTokens int) Cost {
	rate, _ := t.Rate(model)

	var cost Cost
	if inputTokens > 0 {
		cost.Input = float64(inputTokens) / tokensPerMillion * rate.InputPerMillion
	}
	if outputTokens > 0 {
		cost.Output = float64(outputTokens) / tokensPerMillion * rate.OutputPerMillion
	}
	cost.Total = cost.Input + cost.Output
	return cost
}
