package handlers

import (
	"net/http"

	"github.com/upb/llm-job-gateway/utils"
)

// ReadinessChecker reports whether the gateway can serve traffic
type ReadinessChecker interface {
	Ready() bool
}

// HealthCheck returns a simple health check handler
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck reports ready once at least one provider is registered
func ReadinessCheck(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"status": "ready",
			"checks": map[string]string{"providers": "configured"},
		}

		status := http.StatusOK
		if !checker.Ready() {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
			response["checks"] = map[string]string{"providers": "none_configured"}
		}

		_ = utils.WriteJSON(w, status, response)
	}
}
