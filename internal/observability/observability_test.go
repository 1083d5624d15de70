package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggerConfig
		wantErr bool
	}{
		{"json info", LoggerConfig{Level: "info", Format: "json"}, false},
		{"console debug", LoggerConfig{Level: "DEBUG", Format: "console"}, false},
		{"default format", LoggerConfig{Level: "warn"}, false},
		{"bad level", LoggerConfig{Level: "loud"}, true},
		{"bad format", LoggerConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	logger, err := NewLogger(LoggerConfig{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()
	assert.FileExists(t, path)
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := StartSpan(context.Background(), "test")
	assert.False(t, span.SpanContext().IsValid())
	EndSpan(span, nil)

	assert.NoError(t, shutdown(context.Background()))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.JobSubmitted("generate-prd")
	m.JobSubmitted("generate-prd")
	m.JobFinished("generate-prd", "completed", time.Second)
	m.ProviderCall("openai", "ok", 2*time.Second)
	m.Usage("openai", 10, 4, 0.0001)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted.WithLabelValues("generate-prd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("generate-prd", "completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.tokens.WithLabelValues("openai", "output")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_jobs_submitted_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted("x")
		m.JobFinished("x", "failed", time.Second)
		m.ProviderCall("x", "ok", time.Second)
		m.Usage("x", 1, 1, 1)
	})
	assert.Nil(t, m.Registry())
}
