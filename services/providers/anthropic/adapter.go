package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/llm-job-gateway/services"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
)

const (
	ProviderID = "anthropic"

	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultModel      = "claude-3-5-sonnet-20241022"
	defaultTimeout    = 120 * time.Second
)

var limits = providers.OutputLimits{Default: 4096, Max: 8192}

var staticModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-haiku-20240307",
}

// AnthropicAdapter implements the Provider interface for the Anthropic
// Messages API. Context is sent through the dedicated system field.
type AnthropicAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     []string
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(config providers.ProviderConfig) *AnthropicAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

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

	return &AnthropicAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		models: append([]string(nil), models...),
	}
}

// ID returns the provider id
func (a *AnthropicAdapter) ID() string {
	return ProviderID
}

// Descriptor returns the provider's capability metadata
func (a *AnthropicAdapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:                 ProviderID,
		Name:               "Anthropic",
		RequiresCredential: true,
		DefaultModel:       a.config.DefaultModel,
		AvailableModels:    append([]string(nil), a.models...),
		Pricing:            a.config.Pricing,
	}
}

// CheckConnection lists one model as a zero-cost probe
func (a *AnthropicAdapter) CheckConnection(ctx context.Context, credential string) providers.ConnectionStatus {
	if err := providers.RequireCredential(ProviderID, credential); err != nil {
		return providers.ConnectionFromError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/v1/models?limit=1", nil)
	if err != nil {
		return providers.ConnectionStatus{Connected: false, Detail: err.Error()}
	}
	a.setHeaders(httpReq, credential)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.ConnectionFromError(providers.ClassifyTransportError(ProviderID, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return providers.ConnectionFromError(a.handleErrorResponse(resp.StatusCode, body))
	}

	return providers.ConnectionStatus{Connected: true, Detail: providers.DetailConnected}
}

// Generate performs a completion with the default output cap
func (a *AnthropicAdapter) Generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, false)
}

// GenerateLong performs a completion with the maximum output cap
func (a *AnthropicAdapter) GenerateLong(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, true)
}

// EstimateCost prices a call from the configured table
func (a *AnthropicAdapter) EstimateCost(model string, inputTokens, outputTokens int) pricing.Cost {
	return a.config.Pricing.Estimate(providers.ResolveModel(model, a.config.DefaultModel), inputTokens, outputTokens)
}

func (a *AnthropicAdapter) generate(ctx context.Context, req *providers.GenerationRequest, long bool) (*providers.GenerationResult, error) {
	startTime := time.Now()

	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := providers.RequireCredential(ProviderID, req.Credential); err != nil {
		return nil, err
	}

	messagesReq := a.buildMessagesRequest(req, long)

	reqBody, err := json.Marshal(messagesReq)
	if err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeBadRequest, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, 0, "failed to create request", err)
	}
	a.setHeaders(httpReq, req.Credential)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransportError(ProviderID, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.ClassifyTransportError(ProviderID, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var messagesResp MessagesResponse
	if err := json.Unmarshal(respBody, &messagesResp); err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, httpResp.StatusCode, "failed to unmarshal response", err)
	}

	return a.convertToResult(&messagesResp, req, messagesReq.Model, time.Since(startTime)), nil
}

func (a *AnthropicAdapter) setHeaders(httpReq *http.Request, credential string) {
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", credential)
	httpReq.Header.Set("anthropic-version", defaultAPIVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
}

// buildMessagesRequest converts the normalized request to Anthropic format
func (a *AnthropicAdapter) buildMessagesRequest(req *providers.GenerationRequest, long bool) *MessagesRequest {
	messagesReq := &MessagesRequest{
		Model:     providers.ResolveModel(req.Model, a.config.DefaultModel),
		MaxTokens: limits.Resolve(req.Options, long),
		System:    strings.TrimSpace(req.Context),
		Messages: []Message{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
	}
	if len(req.Options.Stop) > 0 {
		messagesReq.StopSequences = req.Options.Stop
	}
	return messagesReq
}

// convertToResult converts an Anthropic response to the normalized result
func (a *AnthropicAdapter) convertToResult(resp *MessagesResponse, req *providers.GenerationRequest, requestedModel string, latency time.Duration) *providers.GenerationResult {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	usage := providers.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	return &providers.GenerationResult{
		Text:       text.String(),
		Usage:      providers.FillUsage(usage, req.Context+" "+req.Prompt, text.String()),
		Model:      model,
		StopReason: convertStopReason(resp.StopReason),
		Provider:   ProviderID,
		Latency:    latency,
	}
}

func convertStopReason(reason string) providers.StopReason {
	switch reason {
	case "":
		return ""
	case "end_turn":
		return providers.StopReasonStop
	case "max_tokens":
		return providers.StopReasonLength
	case "stop_sequence":
		return providers.StopReasonStopSequence
	case "refusal":
		return providers.StopReasonContentFilter
	default:
		return providers.StopReasonOther
	}
}

// handleErrorResponse classifies Anthropic error responses
func (a *AnthropicAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewError(ProviderID, providers.ClassifyStatus(statusCode, true), statusCode,
			fmt.Sprintf("anthropic returned status %d", statusCode), nil)
	}

	kind := providers.ClassifyStatus(statusCode, true)
	switch errResp.Error.Type {
	case "authentication_error", "permission_error":
		kind = services.ErrorTypeInvalidCredential
	case "rate_limit_error":
		kind = services.ErrorTypeRateLimited
	case "overloaded_error", "api_error":
		kind = services.ErrorTypeUpstreamUnavailable
	case "not_found_error":
		kind = services.ErrorTypeModelNotFound
	case "invalid_request_error":
		kind = services.ErrorTypeBadRequest
	}

	return providers.NewError(ProviderID, kind, statusCode, errResp.Error.Message, nil).
		WithDetail("provider_error_type", errResp.Error.Type)
}

// Anthropic-specific request/response types

type MessagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []Message `json:"messages"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      MessagesUsage  `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ErrorResponse struct {
	Type  string       `json:"type"`
	Error ErrorDetails `json:"error"`
}

type ErrorDetails struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
