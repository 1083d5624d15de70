package ollama

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
	ProviderID = "ollama"

	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"
)

var limits = providers.OutputLimits{Default: 2048, Max: 8192}

// OllamaAdapter implements the Provider interface for a locally hosted
// Ollama server. Calls carry no deadline: local generations of document
// length routinely take minutes.
type OllamaAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	models     []string
}

// NewOllamaAdapter creates a new Ollama adapter. config.Timeout is ignored.
func NewOllamaAdapter(config providers.ProviderConfig) *OllamaAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.Timeout = 0

	if config.DefaultModel == "" {
		config.DefaultModel = defaultModel
	}

	models := config.Models
	if len(models) == 0 {
		models = []string{config.DefaultModel}
	}

	return &OllamaAdapter{
		config:     config,
		httpClient: &http.Client{},
		models:     append([]string(nil), models...),
	}
}

// ID returns the provider id
func (a *OllamaAdapter) ID() string {
	return ProviderID
}

// Descriptor returns the provider's capability metadata
func (a *OllamaAdapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		ID:                 ProviderID,
		Name:               "Ollama (local)",
		RequiresCredential: false,
		DefaultModel:       a.config.DefaultModel,
		AvailableModels:    append([]string(nil), a.models...),
		Pricing:            a.config.Pricing,
	}
}

// CheckConnection lists local models. The credential is ignored.
func (a *OllamaAdapter) CheckConnection(ctx context.Context, _ string) providers.ConnectionStatus {
	if _, err := a.ListModels(ctx); err != nil {
		return providers.ConnectionFromError(err)
	}
	return providers.ConnectionStatus{Connected: true, Detail: providers.DetailConnected}
}

// ListModels returns the models installed on the server
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, 0, "failed to create request", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransportError(ProviderID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.ClassifyTransportError(ProviderID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	var tags TagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, resp.StatusCode, "failed to unmarshal response", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Generate performs a completion with the default output cap
func (a *OllamaAdapter) Generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, false)
}

// GenerateLong performs a completion with the maximum output cap
func (a *OllamaAdapter) GenerateLong(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	return a.generate(ctx, req, true)
}

// EstimateCost prices a call from the configured table
func (a *OllamaAdapter) EstimateCost(model string, inputTokens, outputTokens int) pricing.Cost {
	return a.config.Pricing.Estimate(providers.ResolveModel(model, a.config.DefaultModel), inputTokens, outputTokens)
}

func (a *OllamaAdapter) generate(ctx context.Context, req *providers.GenerationRequest, long bool) (*providers.GenerationResult, error) {
	startTime := time.Now()

	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	genReq := a.buildGenerateRequest(req, long)

	reqBody, err := json.Marshal(genReq)
	if err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeBadRequest, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

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
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewError(ProviderID, services.ErrorTypeUnknown, httpResp.StatusCode, "failed to unmarshal response", err)
	}

	model := genResp.Model
	if model == "" {
		model = genReq.Model
	}

	usage := providers.Usage{
		InputTokens:  genResp.PromptEvalCount,
		OutputTokens: genResp.EvalCount,
	}

	return &providers.GenerationResult{
		Text:       genResp.Response,
		Usage:      providers.FillUsage(usage, genReq.Prompt, genResp.Response),
		Model:      model,
		StopReason: convertStopReason(genResp.DoneReason),
		Provider:   ProviderID,
		Latency:    time.Since(startTime),
	}, nil
}

// buildGenerateRequest converts the normalized request to Ollama format.
// Ollama gets context folded into the prompt.
func (a *OllamaAdapter) buildGenerateRequest(req *providers.GenerationRequest, long bool) *GenerateRequest {
	return &GenerateRequest{
		Model:  providers.ResolveModel(req.Model, a.config.DefaultModel),
		Prompt: providers.MergeContext(req.Context, req.Prompt),
		Stream: false,
		Options: &GenerateOptions{
			Temperature: req.Options.Temperature,
			TopP:        req.Options.TopP,
			NumPredict:  limits.Resolve(req.Options, long),
			Stop:        req.Options.Stop,
		},
	}
}

func convertStopReason(reason string) providers.StopReason {
	switch reason {
	case "":
		return ""
	case "stop":
		return providers.StopReasonStop
	case "length":
		return providers.StopReasonLength
	default:
		return providers.StopReasonOther
	}
}

// handleErrorResponse classifies Ollama error responses. Ollama answers 404
// only for unknown models.
func handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("ollama returned status %d", statusCode)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}
	return providers.NewError(ProviderID, providers.ClassifyStatus(statusCode, true), statusCode, message, nil)
}

// Ollama-specific request/response types

type GenerateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *GenerateOptions `json:"options,omitempty"`
}

type GenerateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type TagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
