package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds one Table per provider id
type Catalog map[string]Table

// Table returns the table for provider. A provider without a table prices
// everything at zero.
func (c Catalog) Table(provider string) Table {
	if t, ok := c[provider]; ok {
		return t
	}
	return NewTable("", nil)
}

// DefaultCatalog returns the built-in pricing snapshot. Prices drift, so
// deployments are expected to override them with a pricing file.
func DefaultCatalog() Catalog {
	return Catalog{
		"ollama": NewTable("llama3.2", map[string]Rate{
			"llama3.2": {},
		}),
		"openai": NewTable("gpt-4o-mini", map[string]Rate{
			"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
			"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"gpt-4-turbo":   {InputPerMillion: 10.00, OutputPerMillion: 30.00},
			"gpt-4":         {InputPerMillion: 30.00, OutputPerMillion: 60.00},
			"gpt-3.5-turbo": {InputPerMillion: 0.50, OutputPerMillion: 1.50},
		}),
		"anthropic": NewTable("claude-3-5-sonnet-20241022", map[string]Rate{
			"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
			"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
			"claude-3-opus-20240229":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
			"claude-3-haiku-20240307":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		}),
	}
}

// fileFormat is the on-disk shape of a pricing file:
//
//	providers:
//	  openai:
//	    default_model: gpt-4o-mini
//	    models:
//	      gpt-4o-mini: {input_per_million: 0.15, output_per_million: 0.6}
type fileFormat struct {
	Providers map[string]struct {
		DefaultModel string          `yaml:"default_model"`
		Models       map[string]Rate `yaml:"models"`
	} `yaml:"providers"`
}

// LoadCatalog reads a YAML pricing file and overlays it on the defaults.
// Rows in the file replace built-in rows of the same model; a provider's
// default model is replaced only when the file names one.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog is LoadCatalog for an in-memory document
func ParseCatalog(data []byte) (Catalog, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	catalog := DefaultCatalog()
	for provider, entry := range doc.Providers {
		base := catalog.Table(provider)
		rates := base.Rates()
		for model, rate := range entry.Models {
			if rate.InputPerMillion < 0 || rate.OutputPerMillion < 0 {
				return nil, fmt.Errorf("pricing for %s/%s must not be negative", provider, model)
			}
			rates[model] = rate
		}
		defaultModel := base.DefaultModel()
		if entry.DefaultModel != "" {
			defaultModel = entry.DefaultModel
		}
		if _, ok := rates[defaultModel]; !ok && len(rates) > 0 {
			return nil, fmt.Errorf("default model %q for %s has no pricing row", defaultModel, provider)
		}
		catalog[provider] = NewTable(defaultModel, rates)
	}
	return catalog, nil
}
