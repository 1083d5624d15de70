package jobs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/upb/llm-job-gateway/services"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
)

// Generation job kinds
const (
	KindGeneratePRD           = "generate-prd"
	KindGenerateSpecification = "generate-specification"
)

// ProviderLookup resolves a provider by id
type ProviderLookup interface {
	Get(id string) (providers.Provider, error)
}

// GenerationPayload is the payload accepted by both generation kinds
type GenerationPayload struct {
	// Provider id; empty selects the runner default
	Provider   string                      `json:"provider,omitempty"`
	Prompt     string                      `json:"prompt"`
	Model      string                      `json:"model,omitempty"`
	Context    string                      `json:"context,omitempty"`
	Credential string                      `json:"credential,omitempty"`
	Options    providers.GenerationOptions `json:"options,omitempty"`
}

// GenerationOutput is the stored result of a generation job
type GenerationOutput struct {
	*providers.GenerationResult
	Cost pricing.Cost `json:"cost"`
}

// GenerationRunner runs a generation job against a registered provider.
// Long runners call GenerateLong.
type GenerationRunner struct {
	lookup          ProviderLookup
	defaultProvider string
	long            bool
}

// NewGenerationRunner creates a runner
func NewGenerationRunner(lookup ProviderLookup, defaultProvider string, long bool) *GenerationRunner {
	return &GenerationRunner{
		lookup:          lookup,
		defaultProvider: defaultProvider,
		long:            long,
	}
}

// GenerationRunners returns the runners for both generation kinds
func GenerationRunners(lookup ProviderLookup, defaultProvider string) map[string]Runner {
	return map[string]Runner{
		KindGeneratePRD:           NewGenerationRunner(lookup, defaultProvider, false),
		KindGenerateSpecification: NewGenerationRunner(lookup, defaultProvider, true),
	}
}

// Validate rejects payloads that could never succeed: malformed JSON,
// invalid parameters or an unknown provider
func (r *GenerationRunner) Validate(payload json.RawMessage) error {
	p, err := r.decode(payload)
	if err != nil {
		return err
	}
	if err := providers.ValidateRequest(p.request()); err != nil {
		return err
	}
	_, err = r.lookup.Get(p.Provider)
	return err
}

// Run performs the generation and prices the reported usage
func (r *GenerationRunner) Run(ctx context.Context, payload json.RawMessage) (any, error) {
	p, err := r.decode(payload)
	if err != nil {
		return nil, err
	}

	provider, err := r.lookup.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	generate := provider.Generate
	if r.long {
		generate = provider.GenerateLong
	}

	result, err := generate(ctx, p.request())
	if err != nil {
		return nil, err
	}

	return &GenerationOutput{
		GenerationResult: result,
		Cost:             provider.EstimateCost(result.Model, result.Usage.InputTokens, result.Usage.OutputTokens),
	}, nil
}

func (r *GenerationRunner) decode(payload json.RawMessage) (*GenerationPayload, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, services.BadRequest("payload is required")
	}

	var p GenerationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeBadRequest, "invalid payload", err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, services.BadRequest("prompt is required")
	}
	if p.Provider == "" {
		p.Provider = r.defaultProvider
	}
	return &p, nil
}

func (p *GenerationPayload) request() *providers.GenerationRequest {
	return &providers.GenerationRequest{
		Model:      p.Model,
		Prompt:     p.Prompt,
		Context:    p.Context,
		Credential: p.Credential,
		Options:    p.Options,
	}
}
