package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/llm-job-gateway/middleware"
	"github.com/upb/llm-job-gateway/services/gateway"
	"github.com/upb/llm-job-gateway/services/providers"
	"github.com/upb/llm-job-gateway/utils"
	"go.uber.org/zap"
)

// ProviderService defines the provider operations exposed over HTTP
type ProviderService interface {
	ListProviders() []providers.Descriptor
	Probe(ctx context.Context, providerID, credential string) (providers.ConnectionStatus, error)
	ProbeAll(ctx context.Context, credentials map[string]string) map[string]providers.ConnectionStatus
	Generate(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error)
	GenerateLong(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error)
	EstimateCost(providerID, model string, inputTokens, outputTokens int) (*gateway.CostEstimate, error)
}

// ProbeRequest is the body of a single-provider probe
type ProbeRequest struct {
	Credential string `json:"credential,omitempty"`
}

// ProbeAllRequest carries one credential per provider id
type ProbeAllRequest struct {
	Credentials map[string]string `json:"credentials,omitempty"`
}

// GenerateRequest is the body of a synchronous generation
type GenerateRequest struct {
	Model      string          `json:"model,omitempty"`
	Prompt     string          `json:"prompt" validate:"required"`
	Context    string          `json:"context,omitempty"`
	Credential string          `json:"credential,omitempty"`
	Options    GenerateOptions `json:"options"`
}

// GenerateOptions are the tunable generation parameters
type GenerateOptions struct {
	Temperature     *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP            *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stop            []string `json:"stop,omitempty" validate:"omitempty,max=4"`
}

// EstimateRequest is the body of a cost estimate. Negative counts are
// treated as zero.
type EstimateRequest struct {
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ProviderHandler handles provider-related HTTP requests
type ProviderHandler struct {
	service ProviderService
	logger  *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(service ProviderService, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.ListProviders())
}

// HandleProbeAll handles POST /api/v1/providers/probe
func (h *ProviderHandler) HandleProbeAll(w http.ResponseWriter, r *http.Request) {
	var req ProbeAllRequest
	if err := utils.DecodeJSON(w, r, &req, true); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, h.service.ProbeAll(r.Context(), req.Credentials))
}

// HandleProbe handles POST /api/v1/providers/{id}/probe
func (h *ProviderHandler) HandleProbe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := utils.DecodeJSON(w, r, &req, true); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	status, err := h.service.Probe(r.Context(), chi.URLParam(r, "id"), credential(r, req.Credential))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, status)
}

// HandleGenerate handles POST /api/v1/providers/{id}/generate.
// ?long=true selects the raised output cap.
func (h *ProviderHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID := chi.URLParam(r, "id")

	long := false
	if raw := r.URL.Query().Get("long"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "long must be a boolean", nil)
			return
		}
		long = parsed
	}

	var req GenerateRequest
	if err := utils.DecodeJSON(w, r, &req, false); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	genReq := &providers.GenerationRequest{
		Model:      req.Model,
		Prompt:     req.Prompt,
		Context:    req.Context,
		Credential: credential(r, req.Credential),
		Options: providers.GenerationOptions{
			Temperature:     req.Options.Temperature,
			MaxOutputTokens: req.Options.MaxOutputTokens,
			TopP:            req.Options.TopP,
			Stop:            req.Options.Stop,
		},
	}

	generate := h.service.Generate
	if long {
		generate = h.service.GenerateLong
	}

	result, err := generate(ctx, providerID, genReq)
	if err != nil {
		h.logger.Warn("generation failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("provider", providerID),
			zap.Bool("long", long),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleEstimate handles POST /api/v1/providers/{id}/estimate
func (h *ProviderHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := utils.DecodeJSON(w, r, &req, false); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	estimate, err := h.service.EstimateCost(chi.URLParam(r, "id"), req.Model, req.InputTokens, req.OutputTokens)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, estimate)
}

// credential prefers the body value over the header value
func credential(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.GetCredentialFromContext(r.Context())
}
