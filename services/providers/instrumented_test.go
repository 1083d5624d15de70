package providers

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-job-gateway/internal/observability"
	"github.com/upb/llm-job-gateway/services"
	"go.uber.org/zap"
)

type failingProvider struct {
	*MockProvider
}

func (f failingProvider) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	return nil, services.NewDomainError(services.ErrorTypeRateLimited, "slow down", nil)
}

func TestInstrumented_PassesThrough(t *testing.T) {
	metrics := observability.NewMetrics()
	wrapped := Instrument(NewMockProvider("ollama", false), metrics, zap.NewNop())

	assert.Equal(t, "ollama", wrapped.ID())

	result, err := wrapped.Generate(context.Background(), &GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)

	_, err = wrapped.GenerateLong(context.Background(), &GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)

	count := testutil.CollectAndCount(metrics.Registry(), "gateway_provider_calls_total")
	assert.Equal(t, 1, count)
}

func TestInstrumented_PreservesErrors(t *testing.T) {
	wrapped := Instrument(failingProvider{NewMockProvider("openai", true)}, nil, nil)

	_, err := wrapped.Generate(context.Background(), &GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, services.ErrRateLimited)
	assert.True(t, services.IsRetryable(err))
}
