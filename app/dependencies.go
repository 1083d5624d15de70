package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/llm-job-gateway/config"
	"github.com/upb/llm-job-gateway/internal/observability"
	"github.com/upb/llm-job-gateway/services/gateway"
	"github.com/upb/llm-job-gateway/services/jobs"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
	"github.com/upb/llm-job-gateway/services/providers/anthropic"
	"github.com/upb/llm-job-gateway/services/providers/ollama"
	"github.com/upb/llm-job-gateway/services/providers/openai"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Pricing catalog shared by every adapter
	Pricing pricing.Catalog

	// Provider Registry
	ProviderRegistry *providers.Registry

	// Job Manager
	Jobs *jobs.Manager

	// Gateway is the service facade used by the HTTP handlers
	Gateway *gateway.Service

	shutdownTracing func(context.Context) error
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics and tracing
	if err := deps.initObservability(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	// Initialize pricing catalog
	if err := deps.initPricing(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize pricing: %w", err)
	}

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Initialize job manager
	if err := deps.initJobs(cfg); err != nil {
		_ = deps.shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	deps.Gateway = gateway.NewService(deps.ProviderRegistry, deps.Jobs, logger)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.ProviderRegistry.IDs()),
		zap.Strings("job_kinds", deps.Jobs.Kinds()))
	return deps, nil
}

func (d *Dependencies) initObservability(ctx context.Context, cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics()
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: "llm-job-gateway",
		Environment: cfg.Environment,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRate:  cfg.Observability.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	d.shutdownTracing = shutdown

	d.Logger.Info("observability initialized",
		zap.Bool("metrics", d.Metrics != nil),
		zap.Bool("tracing", cfg.Observability.TracingEnabled))
	return nil
}

func (d *Dependencies) initPricing(cfg *config.Config) error {
	if cfg.Pricing.File == "" {
		d.Pricing = pricing.DefaultCatalog()
		return nil
	}

	catalog, err := pricing.LoadCatalog(cfg.Pricing.File)
	if err != nil {
		return err
	}
	d.Pricing = catalog
	d.Logger.Info("pricing catalog loaded", zap.String("file", cfg.Pricing.File))
	return nil
}

// initProviders registers every configured adapter. Hosted adapters are
// always registered; their credentials arrive with each call.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	var adapters []providers.Provider

	if cfg.Providers.Ollama.Enabled {
		adapters = append(adapters, ollama.NewOllamaAdapter(providers.ProviderConfig{
			BaseURL:      cfg.Providers.Ollama.BaseURL,
			DefaultModel: cfg.Providers.Ollama.DefaultModel,
			Pricing:      d.Pricing.Table(ollama.ProviderID),
		}))
	}

	adapters = append(adapters,
		openai.NewOpenAIAdapter(providers.ProviderConfig{
			BaseURL:      cfg.Providers.OpenAI.BaseURL,
			Timeout:      cfg.Providers.OpenAI.Timeout,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
			Pricing:      d.Pricing.Table(openai.ProviderID),
		}),
		anthropic.NewAnthropicAdapter(providers.ProviderConfig{
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			Timeout:      cfg.Providers.Anthropic.Timeout,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
			Pricing:      d.Pricing.Table(anthropic.ProviderID),
			Headers:      map[string]string{"anthropic-version": cfg.Providers.Anthropic.Version},
		}),
	)

	for _, adapter := range adapters {
		if err := registry.Register(providers.Instrument(adapter, d.Metrics, d.Logger)); err != nil {
			return err
		}
		d.Logger.Info("registered provider", zap.String("provider", adapter.ID()))
	}

	d.ProviderRegistry = registry
	return nil
}

func (d *Dependencies) initJobs(cfg *config.Config) error {
	if _, err := d.ProviderRegistry.Get(cfg.Jobs.DefaultProvider); err != nil {
		d.Logger.Warn("default job provider is not registered; jobs must name a provider",
			zap.String("provider", cfg.Jobs.DefaultProvider))
	}

	manager, err := jobs.NewManager(
		jobs.GenerationRunners(d.ProviderRegistry, cfg.Jobs.DefaultProvider),
		jobs.Options{
			Retention:     cfg.Jobs.Retention,
			SweepInterval: cfg.Jobs.SweepInterval,
			MaxConcurrent: cfg.Jobs.MaxConcurrent,
			NodeID:        cfg.Jobs.NodeID,
			Logger:        d.Logger,
			Metrics:       d.Metrics,
		},
	)
	if err != nil {
		return err
	}

	d.Jobs = manager
	return nil
}

// Close stops the job manager, waiting for in-flight jobs until ctx
// expires, and flushes traces
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	if d.Jobs != nil {
		if err := d.Jobs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job manager shutdown: %w", err))
		}
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	d.Logger.Info("dependencies closed")
	return errors.Join(errs...)
}
