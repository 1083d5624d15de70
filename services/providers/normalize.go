package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/upb/llm-job-gateway/services"
)

// ValidateRequest rejects malformed parameters before any network call
func ValidateRequest(req *GenerationRequest) error {
	if req == nil {
		return services.BadRequest("request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return services.BadRequest("prompt is required")
	}
	opts := req.Options
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		return services.BadRequest("temperature must be between 0 and 2, got %g", *opts.Temperature)
	}
	if opts.TopP != nil && (*opts.TopP < 0 || *opts.TopP > 1) {
		return services.BadRequest("top_p must be between 0 and 1, got %g", *opts.TopP)
	}
	if opts.MaxOutputTokens != nil && *opts.MaxOutputTokens <= 0 {
		return services.BadRequest("max_output_tokens must be greater than 0, got %d", *opts.MaxOutputTokens)
	}
	return nil
}

// RequireCredential fails with missing_credential when a credential-requiring
// provider receives none
func RequireCredential(provider, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return NewError(provider, services.ErrorTypeMissingCredential, 0,
			fmt.Sprintf("%s requires a credential", provider), nil)
	}
	return nil
}

// ResolveModel returns model, or fallback when model is empty
func ResolveModel(model, fallback string) string {
	if model = strings.TrimSpace(model); model != "" {
		return model
	}
	return fallback
}

// MergeContext folds context into the prompt for providers without a
// separate system channel
func MergeContext(background, prompt string) string {
	if strings.TrimSpace(background) == "" {
		return prompt
	}
	return background + "\n\n" + prompt
}

// EstimateTokens approximates a token count by whitespace splitting
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// FillUsage estimates usage when the provider reported none
func FillUsage(usage Usage, input, output string) Usage {
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		return usage
	}
	if input == "" && output == "" {
		return usage
	}
	return Usage{
		InputTokens:  EstimateTokens(input),
		OutputTokens: EstimateTokens(output),
		Estimated:    true,
	}
}

// NewError builds a classified provider error
func NewError(provider string, kind services.ErrorType, statusCode int, message string, cause error) *services.DomainError {
	err := services.NewDomainError(kind, message, cause).WithDetail("provider", provider)
	if statusCode != 0 {
		err.WithDetail("status_code", statusCode)
	}
	return err
}

// ClassifyStatus maps an HTTP status from any provider to an error kind.
// notFoundIsModel lets adapters whose only 404 source is an unknown model
// say so; otherwise a 404 is treated as a bad request path.
func ClassifyStatus(statusCode int, notFoundIsModel bool) services.ErrorType {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return services.ErrorTypeInvalidCredential
	case statusCode == http.StatusTooManyRequests:
		return services.ErrorTypeRateLimited
	case statusCode == http.StatusNotFound:
		if notFoundIsModel {
			return services.ErrorTypeModelNotFound
		}
		return services.ErrorTypeBadRequest
	case statusCode == http.StatusRequestTimeout:
		return services.ErrorTypeUpstreamUnavailable
	case statusCode >= 500:
		return services.ErrorTypeUpstreamUnavailable
	case statusCode >= 400:
		return services.ErrorTypeBadRequest
	default:
		return services.ErrorTypeUnknown
	}
}

// ClassifyTransportError maps a failed round trip to an error kind. Timeouts
// and network failures are retryable; caller cancellation is not.
func ClassifyTransportError(provider string, err error) *services.DomainError {
	if errors.Is(err, context.Canceled) {
		return NewError(provider, services.ErrorTypeUnknown, 0, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, services.ErrorTypeUpstreamUnavailable, 0, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(provider, services.ErrorTypeUpstreamUnavailable, 0, "network error", err)
	}
	return NewError(provider, services.ErrorTypeUpstreamUnavailable, 0, "request failed", err)
}

// ConnectionFromError converts a probe failure to a ConnectionStatus
func ConnectionFromError(err error) ConnectionStatus {
	if services.KindOf(err) == services.ErrorTypeInvalidCredential {
		return ConnectionStatus{Connected: false, Detail: DetailInvalidCredential}
	}
	if services.KindOf(err) == services.ErrorTypeMissingCredential {
		return ConnectionStatus{Connected: false, Detail: DetailCredentialRequired}
	}
	return ConnectionStatus{Connected: false, Detail: services.Summary(err)}
}
