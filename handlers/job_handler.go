package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/llm-job-gateway/middleware"
	"github.com/upb/llm-job-gateway/services/jobs"
	"github.com/upb/llm-job-gateway/utils"
	"go.uber.org/zap"
)

// JobService defines the job operations exposed over HTTP
type JobService interface {
	SubmitJob(kind string, payload json.RawMessage) (string, error)
	JobStatus(id string) (jobs.Status, error)
	JobResult(id string) (jobs.Outcome, error)
	CancelJob(id string) bool
	ListJobs() []jobs.Status
	JobKinds() []string
}

// SubmitJobRequest is the body of a job submission
type SubmitJobRequest struct {
	Kind    string          `json:"kind" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitJobResponse carries the new job id
type SubmitJobResponse struct {
	ID string `json:"id"`
}

// CancelJobResponse reports whether the job was moved to cancelled
type CancelJobResponse struct {
	Cancelled bool `json:"cancelled"`
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSubmit handles POST /api/v1/jobs
func (h *JobHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := utils.DecodeJSON(w, r, &req, false); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	id, err := h.service.SubmitJob(req.Kind, req.Payload)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("job submitted",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("job_id", id),
		zap.String("kind", req.Kind))

	_ = utils.WriteAccepted(w, SubmitJobResponse{ID: id})
}

// HandleList handles GET /api/v1/jobs
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.ListJobs())
}

// HandleKinds handles GET /api/v1/jobs/kinds
func (h *JobHandler) HandleKinds(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.JobKinds())
}

// HandleStatus handles GET /api/v1/jobs/{id}
func (h *JobHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.JobStatus(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, status)
}

// HandleResult handles GET /api/v1/jobs/{id}/result. A pending job is a
// normal response, not an error.
func (h *JobHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.service.JobResult(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, outcome)
}

// HandleCancel handles POST /api/v1/jobs/{id}/cancel
func (h *JobHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled := h.service.CancelJob(id)

	h.logger.Info("job cancel requested",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("job_id", id),
		zap.Bool("cancelled", cancelled))

	_ = utils.WriteOK(w, CancelJobResponse{Cancelled: cancelled})
}
