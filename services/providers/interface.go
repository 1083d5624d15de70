package providers

import (
	"context"
	"time"

	"github.com/upb/llm-job-gateway/services/pricing"
)

// Provider represents a unified LLM provider interface. Each backend
// translates the normalized request into its own API and back.
type Provider interface {
	// ID returns the registry key (e.g., "ollama", "openai", "anthropic")
	ID() string

	// Descriptor returns the provider's static capability metadata
	Descriptor() Descriptor

	// CheckConnection issues a minimal probe. It never returns an error;
	// failures are reported through ConnectionStatus.
	CheckConnection(ctx context.Context, credential string) ConnectionStatus

	// Generate performs a completion with the provider's default output cap
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	// GenerateLong performs a completion with the output cap raised to the
	// provider's practical maximum
	GenerateLong(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	// EstimateCost prices a call without any I/O
	EstimateCost(model string, inputTokens, outputTokens int) pricing.Cost
}

// GenerationRequest represents a provider-agnostic generation request
type GenerationRequest struct {
	// Model identifier; empty selects the provider default
	Model string `json:"model,omitempty"`

	// Prompt is the user instruction
	Prompt string `json:"prompt"`

	// Context is optional background merged per provider convention
	Context string `json:"context,omitempty"`

	// Credential authenticates hosted providers. Never serialized.
	Credential string `json:"-"`

	Options GenerationOptions `json:"options,omitempty"`
}

// GenerationOptions holds optional sampling parameters. Nil means "use the
// provider default".
type GenerationOptions struct {
	// Temperature controls randomness (0.0 to 2.0)
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxOutputTokens limits the response length
	MaxOutputTokens *int `json:"max_output_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0)
	TopP *float64 `json:"top_p,omitempty"`

	// Stop sequences
	Stop []string `json:"stop,omitempty"`
}

// StopReason is the normalized reason a provider stopped generating
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonLength        StopReason = "length"
	StopReasonStopSequence  StopReason = "stop_sequence"
	StopReasonContentFilter StopReason = "content_filter"
	StopReasonOther         StopReason = "other"
)

// GenerationResult represents a provider-agnostic generation response
type GenerationResult struct {
	Text       string        `json:"text"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model"`
	StopReason StopReason    `json:"stop_reason,omitempty"`
	Provider   string        `json:"provider"`
	Latency    time.Duration `json:"latency"`
}

// Usage represents token usage statistics
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Estimated is set when the provider did not report usage and the
	// counts were approximated locally
	Estimated bool `json:"estimated,omitempty"`
}

// Descriptor contains the capability metadata of a provider
type Descriptor struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	RequiresCredential bool          `json:"requires_credential"`
	DefaultModel       string        `json:"default_model"`
	AvailableModels    []string      `json:"available_models"`
	Pricing            pricing.Table `json:"-"`
}

// ConnectionStatus is the outcome of a connectivity probe
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail"`
}

// Probe details shared by every adapter
const (
	DetailConnected          = "connected"
	DetailCredentialRequired = "credential required"
	DetailInvalidCredential  = "invalid credential"
)

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for a single call. Zero means no bound.
	Timeout time.Duration

	// DefaultModel overrides the adapter's built-in default
	DefaultModel string

	// Models overrides the adapter's static model list
	Models []string

	// Pricing is the provider's rate table
	Pricing pricing.Table

	// Additional headers
	Headers map[string]string
}

// OutputLimits are an adapter's output-length caps
type OutputLimits struct {
	// Default applies to Generate when the caller sets no cap
	Default int

	// Max is the provider's documented maximum
	Max int
}

// Long returns the cap used by GenerateLong when the caller sets none: the
// provider maximum, which is never less than min(2*Default, Max).
func (l OutputLimits) Long() int {
	return l.Max
}

// Resolve picks the effective cap for a request
func (l OutputLimits) Resolve(opts GenerationOptions, long bool) int {
	limit := l.Default
	if long {
		limit = l.Long()
	}
	if opts.MaxOutputTokens != nil {
		limit = *opts.MaxOutputTokens
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}
