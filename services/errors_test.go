package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("connection reset")
	domainErr := NewDomainError(ErrorTypeUpstreamUnavailable, "provider unreachable", baseErr)

	assert.Equal(t, ErrorTypeUpstreamUnavailable, domainErr.Type)
	assert.Equal(t, "provider unreachable", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUpstreamUnavailable,
				Message: "request failed",
				Err:     errors.New("i/o timeout"),
			},
			wantMsg: "upstream_unavailable: request failed (i/o timeout)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeBadRequest,
				Message: "prompt is required",
			},
			wantMsg: "bad_request: prompt is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same kind", NewDomainError(ErrorTypeJobNotFound, "job 42 not found", nil), ErrJobNotFound, true},
		{"different kind", NewDomainError(ErrorTypeBadRequest, "bad", nil), ErrJobNotFound, false},
		{"wrapped", fmt.Errorf("submit: %w", NewDomainError(ErrorTypeRateLimited, "slow down", nil)), ErrRateLimited, true},
		{"foreign target", NewDomainError(ErrorTypeUnknown, "x", nil), errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeInvalidCredential, "rejected", nil)

	err.WithDetail("provider", "openai").WithDetail("status_code", 401)

	assert.Equal(t, "openai", err.Details["provider"])
	assert.Equal(t, 401, err.Details["status_code"])
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", ErrRateLimited, true},
		{"upstream unavailable", ErrUpstreamUnavailable, true},
		{"wrapped upstream", fmt.Errorf("call: %w", ErrUpstreamUnavailable), true},
		{"missing credential", ErrMissingCredential, false},
		{"invalid credential", ErrInvalidCredential, false},
		{"bad request", ErrBadRequest, false},
		{"model not found", ErrModelNotFound, false},
		{"unknown", ErrUnknown, false},
		{"foreign error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorType(""), KindOf(nil))
	assert.Equal(t, ErrorTypeUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeModelNotFound, KindOf(fmt.Errorf("x: %w", ErrModelNotFound)))
}

func TestIsCredentialError(t *testing.T) {
	assert.True(t, IsCredentialError(ErrMissingCredential))
	assert.True(t, IsCredentialError(ErrInvalidCredential))
	assert.False(t, IsCredentialError(ErrRateLimited))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrJobNotFound))
	assert.True(t, IsNotFoundError(ErrUnknownProvider))
	assert.True(t, IsNotFoundError(ErrModelNotFound))
	assert.False(t, IsNotFoundError(ErrBadRequest))
	assert.False(t, IsNotFoundError(nil))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "", Summary(nil))
	assert.Equal(t, "plain", Summary(errors.New("plain")))
	assert.Equal(t, "rate limited by provider", Summary(ErrRateLimited))
	assert.Equal(t, "request failed: eof",
		Summary(NewDomainError(ErrorTypeUpstreamUnavailable, "request failed", errors.New("eof"))))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	classified := NewDomainError(ErrorTypeRateLimited, "slow", nil)
	assert.Same(t, classified, Classify(classified))

	wrapped := Classify(errors.New("weird"))
	assert.Equal(t, ErrorTypeUnknown, KindOf(wrapped))
	assert.Equal(t, "unclassified error: weird", Summary(wrapped))
}

func TestBadRequest(t *testing.T) {
	err := BadRequest("temperature %.1f out of range", 3.5)
	assert.Equal(t, ErrorTypeBadRequest, err.Type)
	assert.Equal(t, "temperature 3.5 out of range", err.Message)
}
