package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/upb/llm-job-gateway/services"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
)

const (
	ProviderID = "openai"

	defaultBaseURL = "https://api.openai.com/v1/"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

var limits = providers.OutputLimits{Default: 4096, Max: 16384}

var staticModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
}

// OpenAIAdapter implements the Provider interface on top of the official
// OpenAI SDK. The credential is supplied per call; the SDK retry loop is
// disabled so the job layer owns retry decisions.
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client openai.Client
	models []string
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	if config.DefaultModel == "" {
		config.DefaultModel = defaultModel
	}

	models := config.Models
	if len(models) == 0 {
		models = staticModels
	}

	opts := []option.RequestOption{
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(config.Timeout),
	}
	for k, v := range config.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAIAdapter{
		config: config,
		client: openai.NewClient(opts...),
		models: append([]string(nil), models...),
	}
}

// ID returns the provider id
func (a *OpenAIAdapter) ID() string {
	return ProviderID
}

// Descriptor returns the provider's capability metadata
func (a *OpenAIAdapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:                 ProviderID,
		Name:               "OpenAI",
		RequiresCredential: true,
		DefaultModel:       a.config.DefaultModel,
		AvailableModels:    append([]string(nil), a.models...),
		Pricing:            a.config.Pricing,
	}
}

// CheckConnection lists models as a zero-cost probe
func (a *OpenAIAdapter) CheckConnection(ctx context.Context, credential string) providers.ConnectionStatus {
	if err := providers.RequireCredential(ProviderID, credential); err != nil {
		return providers.ConnectionFromError(err)
	}

	if _, err := a.client.Models.List(ctx, option.WithAPIKey(credential)); err != nil {
		return providers.ConnectionFromError(classifyError(err))
	}

	return providers.ConnectionStatus{Connected: true, Detail: providers.DetailConnected}
}

// Generate performs a completion with the default output cap
func (a *OpenAIAdapter) Generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, false)
}

// GenerateLong performs a completion with the maximum output cap
func (a *OpenAIAdapter) GenerateLong(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, true)
}

// EstimateCost prices a call from the configured table
func (a *OpenAIAdapter) EstimateCost(model string, inputTokens, outputTokens int) pricing.Cost {
	return a.config.Pricing.Estimate(providers.ResolveModel(model, a.config.DefaultModel), inputTokens, outputTokens)
}

func (a *OpenAIAdapter) generate(ctx context.Context, req *providers.GenerationRequest, long bool) (*providers.GenerationResult, error) {
	startTime := time.Now()

	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := providers.RequireCredential(ProviderID, req.Credential); err != nil {
		return nil, err
	}

	params := a.buildParams(req, long)

	resp, err := a.client.Chat.Completions.New(ctx, params, option.WithAPIKey(req.Credential))
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, 0, "no choices in response", nil)
	}
	choice := resp.Choices[0]

	model := resp.Model
	if model == "" {
		model = params.Model
	}

	usage := providers.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}

	return &providers.GenerationResult{
		Text:       choice.Message.Content,
		Usage:      providers.FillUsage(usage, req.Context+" "+req.Prompt, choice.Message.Content),
		Model:      model,
		StopReason: convertFinishReason(string(choice.FinishReason)),
		Provider:   ProviderID,
		Latency:    time.Since(startTime),
	}, nil
}

// buildParams converts the normalized request to chat completion params.
// Context travels as a system message.
func (a *OpenAIAdapter) buildParams(req *providers.GenerationRequest, long bool) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if background := strings.TrimSpace(req.Context); background != "" {
		messages = append(messages, openai.SystemMessage(background))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               providers.ResolveModel(req.Model, a.config.DefaultModel),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(limits.Resolve(req.Options, long))),
	}
	if req.Options.Temperature != nil {
		params.Temperature = openai.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = openai.Float(*req.Options.TopP)
	}
	if len(req.Options.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Options.Stop}
	}
	return params
}

func convertFinishReason(reason string) providers.StopReason {
	switch reason {
	case "":
		return ""
	case "stop":
		return providers.StopReasonStop
	case "length":
		return providers.StopReasonLength
	case "content_filter":
		return providers.StopReasonContentFilter
	default:
		return providers.StopReasonOther
	}
}

// classifyError maps SDK errors onto the gateway taxonomy
func classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return providers.ClassifyTransportError(ProviderID, err)
	}

	kind := providers.ClassifyStatus(apiErr.StatusCode, true)
	if apiErr.Code == "model_not_found" {
		kind = services.ErrorTypeModelNotFound
	}

	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("openai returned status %d", apiErr.StatusCode)
	}

	domainErr := providers.NewError(ProviderID, kind, apiErr.StatusCode, message, nil)
	if apiErr.Code != "" {
		domainErr = domainErr.WithDetail("provider_error_code", apiErr.Code)
	}
	return domainErr
}
