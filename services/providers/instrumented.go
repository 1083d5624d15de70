package providers

import (
	"context"
	"time"

	"github.com/upb/llm-job-gateway/internal/observability"
	"github.com/upb/llm-job-gateway/services"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Instrumented wraps a Provider with tracing, metrics and logging. It never
// alters requests, results or errors.
type Instrumented struct {
	Provider
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Instrument decorates provider. metrics may be nil.
func Instrument(provider Provider, metrics *observability.Metrics, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{
		Provider: provider,
		metrics:  metrics,
		logger:   logger.With(zap.String("provider", provider.ID())),
	}
}

// Generate performs a traced completion with the default output cap
func (p *Instrumented) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	return p.observe(ctx, "provider.generate", req, p.Provider.Generate)
}

// GenerateLong performs a traced completion with the maximum output cap
func (p *Instrumented) GenerateLong(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	return p.observe(ctx, "provider.generate_long", req, p.Provider.GenerateLong)
}

func (p *Instrumented) observe(
	ctx context.Context,
	operation string,
	req *GenerationRequest,
	call func(context.Context, *GenerationRequest) (*GenerationResult, error),
) (*GenerationResult, error) {
	model := ""
	if req != nil {
		model = ResolveModel(req.Model, p.Descriptor().DefaultModel)
	}

	ctx, span := observability.StartSpan(ctx, operation,
		attribute.String("provider", p.ID()),
		attribute.String("model", model),
	)
	start := time.Now()
	result, err := call(ctx, req)
	latency := time.Since(start)
	observability.EndSpan(span, err)

	if err != nil {
		kind := services.KindOf(err)
		p.metrics.ProviderCall(p.ID(), string(kind), latency)
		p.logger.Warn("generation failed",
			zap.String("operation", operation),
			zap.String("model", model),
			zap.String("error_kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, err
	}

	cost := p.EstimateCost(result.Model, result.Usage.InputTokens, result.Usage.OutputTokens)
	p.metrics.ProviderCall(p.ID(), "ok", latency)
	p.metrics.Usage(p.ID(), result.Usage.InputTokens, result.Usage.OutputTokens, cost.Total)
	p.logger.Debug("generation completed",
		zap.String("operation", operation),
		zap.String("model", result.Model),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
		zap.Bool("usage_estimated", result.Usage.Estimated),
		zap.Duration("latency", latency))
	return result, nil
}
