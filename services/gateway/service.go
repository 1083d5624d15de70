package gateway

import (
	"context"
	"encoding/json"

	"github.com/upb/llm-job-gateway/services/jobs"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
	"go.uber.org/zap"
)

// CostEstimate is the priced forecast of one call
type CostEstimate struct {
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Cost         pricing.Cost `json:"cost"`
	Display      string       `json:"display"`
}

// Service is the in-process entry point: synchronous calls go straight to a
// provider, long-running work goes through the job manager.
type Service struct {
	registry *providers.Registry
	jobs     *jobs.Manager
	logger   *zap.Logger
}

// NewService creates a new gateway service
func NewService(registry *providers.Registry, manager *jobs.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		jobs:     manager,
		logger:   logger,
	}
}

// Generate performs a synchronous completion on providerID
func (s *Service) Generate(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	provider, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	return provider.Generate(ctx, req)
}

// GenerateLong performs a synchronous completion with the raised output cap
func (s *Service) GenerateLong(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	provider, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	return provider.GenerateLong(ctx, req)
}

// ListProviders returns every configured provider in registration order
func (s *Service) ListProviders() []providers.Descriptor {
	return s.registry.List()
}

// Probe checks one provider's connectivity
func (s *Service) Probe(ctx context.Context, providerID, credential string) (providers.ConnectionStatus, error) {
	return s.registry.Probe(ctx, providerID, credential)
}

// ProbeAll checks every provider concurrently
func (s *Service) ProbeAll(ctx context.Context, credentials map[string]string) map[string]providers.ConnectionStatus {
	return s.registry.ProbeAll(ctx, credentials)
}

// EstimateCost prices a call without contacting the provider. An empty model
// selects the provider default.
func (s *Service) EstimateCost(providerID, model string, inputTokens, outputTokens int) (*CostEstimate, error) {
	provider, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	model = providers.ResolveModel(model, provider.Descriptor().DefaultModel)
	cost := provider.EstimateCost(model, inputTokens, outputTokens)

	return &CostEstimate{
		Provider:     providerID,
		Model:        model,
		InputTokens:  max(inputTokens, 0),
		OutputTokens: max(outputTokens, 0),
		Cost:         cost,
		Display:      cost.Display(),
	}, nil
}

// SubmitJob enqueues a job of kind and returns its id
func (s *Service) SubmitJob(kind string, payload json.RawMessage) (string, error) {
	return s.jobs.Submit(kind, payload)
}

// JobStatus returns a job snapshot
func (s *Service) JobStatus(id string) (jobs.Status, error) {
	return s.jobs.Status(id)
}

// JobResult polls a job
func (s *Service) JobResult(id string) (jobs.Outcome, error) {
	return s.jobs.Result(id)
}

// CancelJob cancels a pending or running job
func (s *Service) CancelJob(id string) bool {
	return s.jobs.Cancel(id)
}

// ListJobs returns every visible job
func (s *Service) ListJobs() []jobs.Status {
	return s.jobs.List()
}

// JobKinds returns the accepted job kinds
func (s *Service) JobKinds() []string {
	return s.jobs.Kinds()
}

// Ready reports whether at least one provider is configured
func (s *Service) Ready() bool {
	return s.registry.Count() > 0
}
