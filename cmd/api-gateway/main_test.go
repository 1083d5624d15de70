package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-job-gateway/app"
	"github.com/upb/llm-job-gateway/config"
	"github.com/upb/llm-job-gateway/routes"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OLLAMA_ENABLED", "false")
	t.Setenv("JOB_SWEEP_INTERVAL", "-1s")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "2s")

	cfg, err := config.New(context.Background())
	require.NoError(t, err)
	return cfg
}

func TestInitLogger(t *testing.T) {
	cfg := testConfig(t)

	logger, err := initLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Observability.LogLevel = "loud"
	_, err = initLogger(cfg)
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, cfg.Server.Address(), srv.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, srv.ReadTimeout)
	assert.Equal(t, cfg.Server.WriteTimeout, srv.WriteTimeout)
}

func TestServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	deps, err := app.NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	server := httptest.NewServer(routes.SetupRoutes(deps))
	defer server.Close()

	resp, err := http.Get(server.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv := newServer(cfg, routes.SetupRoutes(deps))
	start := time.Now()
	require.NoError(t, shutdown(srv, deps, cfg, logger))
	assert.Less(t, time.Since(start), cfg.Server.ShutdownTimeout)

	_, err = deps.Gateway.SubmitJob("generate-prd", []byte(`{"prompt":"hi"}`))
	assert.Error(t, err)
}
