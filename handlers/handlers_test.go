package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-job-gateway/middleware"
	"github.com/upb/llm-job-gateway/services"
	"github.com/upb/llm-job-gateway/services/gateway"
	"github.com/upb/llm-job-gateway/services/jobs"
	"github.com/upb/llm-job-gateway/services/pricing"
	"github.com/upb/llm-job-gateway/services/providers"
	"github.com/upb/llm-job-gateway/utils"
	"go.uber.org/zap"
)

// MockProviderService is a mock implementation of ProviderService
type MockProviderService struct {
	mock.Mock
}

func (m *MockProviderService) ListProviders() []providers.Descriptor {
	args := m.Called()
	return args.Get(0).([]providers.Descriptor)
}

func (m *MockProviderService) Probe(ctx context.Context, providerID, credential string) (providers.ConnectionStatus, error) {
	args := m.Called(ctx, providerID, credential)
	return args.Get(0).(providers.ConnectionStatus), args.Error(1)
}

func (m *MockProviderService) ProbeAll(ctx context.Context, credentials map[string]string) map[string]providers.ConnectionStatus {
	args := m.Called(ctx, credentials)
	return args.Get(0).(map[string]providers.ConnectionStatus)
}

func (m *MockProviderService) Generate(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	args := m.Called(ctx, providerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.GenerationResult), args.Error(1)
}

func (m *MockProviderService) GenerateLong(ctx context.Context, providerID string, req *providers.GenerationRequest) (*providers.GenerationResult, error) {
	args := m.Called(ctx, providerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.GenerationResult), args.Error(1)
}

func (m *MockProviderService) EstimateCost(providerID, model string, inputTokens, outputTokens int) (*gateway.CostEstimate, error) {
	args := m.Called(providerID, model, inputTokens, outputTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CostEstimate), args.Error(1)
}

// MockJobService is a mock implementation of JobService
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) SubmitJob(kind string, payload json.RawMessage) (string, error) {
	args := m.Called(kind, payload)
	return args.String(0), args.Error(1)
}

func (m *MockJobService) JobStatus(id string) (jobs.Status, error) {
	args := m.Called(id)
	return args.Get(0).(jobs.Status), args.Error(1)
}

func (m *MockJobService) JobResult(id string) (jobs.Outcome, error) {
	args := m.Called(id)
	return args.Get(0).(jobs.Outcome), args.Error(1)
}

func (m *MockJobService) CancelJob(id string) bool {
	return m.Called(id).Bool(0)
}

func (m *MockJobService) ListJobs() []jobs.Status {
	return m.Called().Get(0).([]jobs.Status)
}

func (m *MockJobService) JobKinds() []string {
	return m.Called().Get(0).([]string)
}

func providerRouter(svc ProviderService) http.Handler {
	h := NewProviderHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Use(middleware.Credential)
	r.Get("/providers", h.HandleList)
	r.Post("/providers/probe", h.HandleProbeAll)
	r.Post("/providers/{id}/probe", h.HandleProbe)
	r.Post("/providers/{id}/generate", h.HandleGenerate)
	r.Post("/providers/{id}/estimate", h.HandleEstimate)
	return r
}

func jobRouter(svc JobService) http.Handler {
	h := NewJobHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/jobs", h.HandleSubmit)
	r.Get("/jobs", h.HandleList)
	r.Get("/jobs/kinds", h.HandleKinds)
	r.Get("/jobs/{id}", h.HandleStatus)
	r.Get("/jobs/{id}/result", h.HandleResult)
	r.Post("/jobs/{id}/cancel", h.HandleCancel)
	return r
}

func serve(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has a data object")
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrMissingCredential, http.StatusUnauthorized},
		{services.ErrInvalidCredential, http.StatusUnauthorized},
		{services.ErrRateLimited, http.StatusTooManyRequests},
		{services.ErrBadRequest, http.StatusBadRequest},
		{services.ErrModelNotFound, http.StatusNotFound},
		{services.ErrJobNotFound, http.StatusNotFound},
		{services.ErrUnknownProvider, http.StatusNotFound},
		{services.ErrUpstreamUnavailable, http.StatusBadGateway},
		{services.ErrUnknown, http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(services.KindOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	t.Run("classified error keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := services.NewDomainError(services.ErrorTypeRateLimited, "slow down", nil).WithDetail("provider", "openai")
		HandleServiceError(w, err, zap.NewNop())

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "rate_limited", body.Error)
		assert.Equal(t, "slow down", body.Message)
		assert.Equal(t, "openai", body.Details["provider"])
	})

	t.Run("foreign error is masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, assert.AnError, zap.NewNop())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "unknown", body.Error)
		assert.NotContains(t, body.Message, assert.AnError.Error())
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, zap.NewNop())
		assert.Zero(t, w.Body.Len())
	})
}

func TestProviderHandler_List(t *testing.T) {
	svc := new(MockProviderService)
	svc.On("ListProviders").Return([]providers.Descriptor{
		{ID: "ollama", Name: "Ollama", DefaultModel: "llama3.2"},
		{ID: "openai", Name: "OpenAI", RequiresCredential: true, DefaultModel: "gpt-4o-mini"},
	})

	w := serve(t, providerRouter(svc), http.MethodGet, "/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []providers.Descriptor `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, "ollama", response.Data[0].ID)
	assert.True(t, response.Data[1].RequiresCredential)
}

func TestProviderHandler_Probe(t *testing.T) {
	t.Run("body credential", func(t *testing.T) {
		svc := new(MockProviderService)
		svc.On("Probe", mock.Anything, "openai", "sk-body").
			Return(providers.ConnectionStatus{Connected: false, Detail: providers.DetailInvalidCredential}, nil)

		w := serve(t, providerRouter(svc), http.MethodPost, "/providers/openai/probe", `{"credential":"sk-body"}`,
			map[string]string{middleware.CredentialHeader: "sk-header"})

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, false, data["connected"])
		assert.Equal(t, "invalid credential", data["detail"])
		svc.AssertExpectations(t)
	})

	t.Run("header credential and empty body", func(t *testing.T) {
		svc := new(MockProviderService)
		svc.On("Probe", mock.Anything, "openai", "sk-header").
			Return(providers.ConnectionStatus{Connected: true, Detail: providers.DetailConnected}, nil)

		w := serve(t, providerRouter(svc), http.MethodPost, "/providers/openai/probe", "",
			map[string]string{middleware.CredentialHeader: "sk-header"})

		require.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown provider", func(t *testing.T) {
		svc := new(MockProviderService)
		svc.On("Probe", mock.Anything, "gemini", "").
			Return(providers.ConnectionStatus{}, services.NewDomainError(services.ErrorTypeUnknownProvider, "provider gemini is not registered", nil))

		w := serve(t, providerRouter(svc), http.MethodPost, "/providers/gemini/probe", "{}", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "unknown_provider", decodeError(t, w).Error)
	})
}

func TestProviderHandler_ProbeAll(t *testing.T) {
	svc := new(MockProviderService)
	svc.On("ProbeAll", mock.Anything, map[string]string{"openai": "sk-1"}).Return(map[string]providers.ConnectionStatus{
		"ollama": {Connected: true, Detail: providers.DetailConnected},
		"openai": {Connected: true, Detail: providers.DetailConnected},
	})

	w := serve(t, providerRouter(svc), http.MethodPost, "/providers/probe", `{"credentials":{"openai":"sk-1"}}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Len(t, data, 2)
	svc.AssertExpectations(t)
}

func TestProviderHandler_Generate(t *testing.T) {
	result := &providers.GenerationResult{
		Text:     "TodoPro PRD",
		Usage:    providers.Usage{InputTokens: 10, OutputTokens: 4},
		Model:    "gpt-4o-mini",
		Provider: "openai",
		Latency:  20 * time.Millisecond,
	}

	t.Run("short call", func(t *testing.T) {
		svc := new(MockProviderService)
		svc.On("Generate", mock.Anything, "openai", mock.MatchedBy(func(req *providers.GenerationRequest) bool {
			return req.Prompt == "Write a PRD" && req.Credential == "sk-header" &&
				req.Options.Temperature != nil && *req.Options.Temperature == 0.5
		})).Return(result, nil)

		w := serve(t, providerRouter(svc), http.MethodPost, "/providers/openai/generate",
			`{"prompt":"Write a PRD","options":{"temperature":0.5}}`,
			map[string]string{middleware.CredentialHeader: "sk-header"})

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, "TodoPro PRD", data["text"])
		assert.NotContains(t, w.Body.String(), "sk-header")
		svc.AssertExpectations(t)
	})

	t.Run("long call", func(t *testing.T) {
		svc := new(MockProviderService)
		svc.On("GenerateLong", mock.Anything, "anthropic", mock.Anything).Return(result, nil)

		w := serve(t, providerRouter(svc), http.MethodPost, "/providers/anthropic/generate?long=true", `{"prompt":"spec"}`, nil)

		require.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
		svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			body string
		}{
			{"missing prompt", "/providers/openai/generate", `{"model":"gpt-4o"}`},
			{"temperature out of range", "/providers/openai/generate", `{"prompt":"x","options":{"temperature":2.5}}`},
			{"non-positive cap", "/providers/openai/generate", `{"prompt":"x","options":{"max_output_tokens":0}}`},
			{"malformed body", "/providers/openai/generate", `{"prompt":`},
			{"empty body", "/providers/openai/generate", ``},
			{"bad long flag", "/providers/openai/generate?long=maybe", `{"prompt":"x"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockProviderService)
				w := serve(t, providerRouter(svc), http.MethodPost, tt.path, tt.body, nil)

				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, "bad_request", decodeError(t, w).Error)
				svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("provider errors map to status", func(t *testing.T) {
		tests := []struct {
			kind   services.ErrorType
			status int
		}{
			{services.ErrorTypeMissingCredential, http.StatusUnauthorized},
			{services.ErrorTypeRateLimited, http.StatusTooManyRequests},
			{services.ErrorTypeModelNotFound, http.StatusNotFound},
			{services.ErrorTypeUpstreamUnavailable, http.StatusBadGateway},
		}

		for _, tt := range tests {
			t.Run(string(tt.kind), func(t *testing.T) {
				svc := new(MockProviderService)
				svc.On("Generate", mock.Anything, "openai", mock.Anything).
					Return(nil, services.NewDomainError(tt.kind, "failed", nil))

				w := serve(t, providerRouter(svc), http.MethodPost, "/providers/openai/generate", `{"prompt":"x"}`, nil)

				assert.Equal(t, tt.status, w.Code)
				body := decodeError(t, w)
				assert.Equal(t, string(tt.kind), body.Error)
				assert.Equal(t, "failed", body.Message)
			})
		}
	})
}

func TestProviderHandler_Estimate(t *testing.T) {
	svc := new(MockProviderService)
	cost := pricing.Cost{Input: 3, Output: 15, Total: 18}
	svc.On("EstimateCost", "anthropic", "", 1_000_000, 1_000_000).Return(&gateway.CostEstimate{
		Provider:     "anthropic",
		Model:        "claude-3-5-sonnet-20241022",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		Cost:         cost,
		Display:      "$18.00",
	}, nil)

	w := serve(t, providerRouter(svc), http.MethodPost, "/providers/anthropic/estimate",
		`{"input_tokens":1000000,"output_tokens":1000000}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "$18.00", data["display"])
	svc.AssertExpectations(t)
}

func TestJobHandler_Submit(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("SubmitJob", "generate-prd", json.RawMessage(`{"prompt":"hi"}`)).Return("1790000000000000000", nil)

		w := serve(t, jobRouter(svc), http.MethodPost, "/jobs", `{"kind":"generate-prd","payload":{"prompt":"hi"}}`, nil)

		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "1790000000000000000", decodeData(t, w)["id"])
		svc.AssertExpectations(t)
	})

	t.Run("missing kind", func(t *testing.T) {
		svc := new(MockJobService)
		w := serve(t, jobRouter(svc), http.MethodPost, "/jobs", `{"payload":{}}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "Kind is required", body.Details["Kind"])
		svc.AssertNotCalled(t, "SubmitJob", mock.Anything, mock.Anything)
	})

	t.Run("rejected by manager", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("SubmitJob", "translate", mock.Anything).Return("", services.BadRequest("unknown job kind %q", "translate"))

		w := serve(t, jobRouter(svc), http.MethodPost, "/jobs", `{"kind":"translate","payload":{}}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}

func TestJobHandler_StatusAndResult(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := new(MockJobService)
	svc.On("JobStatus", "42").Return(jobs.Status{ID: "42", Kind: "generate-prd", State: jobs.StatePending, CreatedAt: created}, nil)
	svc.On("JobResult", "42").Return(jobs.Outcome{Pending: true}, nil)
	svc.On("JobStatus", "missing").Return(jobs.Status{}, services.NewDomainError(services.ErrorTypeJobNotFound, "job not found", nil))
	svc.On("JobResult", "missing").Return(jobs.Outcome{}, services.NewDomainError(services.ErrorTypeJobNotFound, "job not found", nil))

	router := jobRouter(svc)

	w := serve(t, router, http.MethodGet, "/jobs/42", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decodeData(t, w)["state"])

	w = serve(t, router, http.MethodGet, "/jobs/42/result", "", nil)
	require.Equal(t, http.StatusOK, w.Code, "pending is not an error")
	assert.Equal(t, true, decodeData(t, w)["pending"])

	for _, path := range []string{"/jobs/missing", "/jobs/missing/result"} {
		w = serve(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "job_not_found", decodeError(t, w).Error)
	}
}

func TestJobHandler_CancelListKinds(t *testing.T) {
	svc := new(MockJobService)
	svc.On("CancelJob", "42").Return(true)
	svc.On("CancelJob", "done").Return(false)
	svc.On("ListJobs").Return([]jobs.Status{{ID: "42", State: jobs.StateCancelled}})
	svc.On("JobKinds").Return([]string{"generate-prd", "generate-specification"})

	router := jobRouter(svc)

	w := serve(t, router, http.MethodPost, "/jobs/42/cancel", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["cancelled"])

	w = serve(t, router, http.MethodPost, "/jobs/done/cancel", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeData(t, w)["cancelled"])

	w = serve(t, router, http.MethodGet, "/jobs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"cancelled"`)

	w = serve(t, router, http.MethodGet, "/jobs/kinds", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "generate-specification")

	svc.AssertExpectations(t)
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func TestHealthChecks(t *testing.T) {
	w := httptest.NewRecorder()
	HealthCheck()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	ReadinessCheck(readiness(true))(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"providers":"configured"}}`, w.Body.String())

	w = httptest.NewRecorder()
	ReadinessCheck(readiness(false))(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not_ready","checks":{"providers":"none_configured"}}`, w.Body.String())
}
