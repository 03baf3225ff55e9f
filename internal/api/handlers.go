package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/internal/request"
	"github.com/lei/pipeline-trigger/internal/service"
)

// HeaderSubmissionID carries the id under which a trigger outcome was recorded
const HeaderSubmissionID = "X-Submission-ID"

// maxBodyBytes caps trigger request bodies
const maxBodyBytes = 1 << 20

// Handlers contains HTTP handler functions
type Handlers struct {
	service *service.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// TriggerPipelineRun handles POST /v1/pipeline-runs
func (h *Handlers) TriggerPipelineRun(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	body := decodeTriggerBody(w, r)

	req, err := request.Parse(body)
	if err != nil {
		if logger != nil {
			logger.Warn("trigger request rejected", "error", err)
		}
		if request.IsTopLevel(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondSubmission(w, "", models.RejectedResponse(request.Message(err)))
		return
	}

	if logger != nil {
		logger.Debug("decoded trigger request",
			"display_name", req.Config.PipelineDisplayName,
			"parameter_count", len(req.Parameters))
	}

	sub := h.service.Submit(r.Context(), req)

	if logger != nil {
		logger.Info("trigger completed",
			"submission_id", sub.ID,
			"pipeline_status", sub.Response.PipelineStatus,
			"status", sub.Response.StatusCode)
	}

	respondSubmission(w, sub.ID, sub.Response)
}

// ListPipelines handles GET /v1/pipelines
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines := h.service.ListPipelines(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pipelines": pipelines,
	})
}

// TriggerCatalogRun handles POST /v1/pipelines/{pipeline_id}/runs
func (h *Handlers) TriggerCatalogRun(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	pipelineID := chi.URLParam(r, "pipeline_id")

	if logger != nil {
		logger.Debug("triggering catalog pipeline", "pipeline_id", pipelineID)
	}

	var req struct {
		ConfigValues    map[string]interface{} `json:"config_values"`
		ParameterValues map[string]interface{} `json:"parameter_values"`
	}

	// An empty body runs the catalog entry as configured
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if logger != nil {
			logger.Warn("invalid request body", "error", err)
		}
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.service.SubmitPipeline(r.Context(), pipelineID, req.ConfigValues, req.ParameterValues)
	if err != nil {
		if request.IsValidation(err) {
			if logger != nil {
				logger.Warn("catalog trigger rejected", "pipeline_id", pipelineID, "error", err)
			}
			respondSubmission(w, "", models.RejectedResponse(request.Message(err)))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("catalog trigger completed",
			"pipeline_id", pipelineID,
			"submission_id", sub.ID,
			"pipeline_status", sub.Response.PipelineStatus)
	}

	respondSubmission(w, sub.ID, sub.Response)
}

// GetPipelineJob handles GET /v1/pipeline-jobs/*
func (h *Handlers) GetPipelineJob(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	name := strings.Trim(chi.URLParam(r, "*"), "/")

	if name == "" {
		respondError(w, r, http.StatusBadRequest, "job name is required")
		return
	}

	if logger != nil {
		logger.Debug("fetching pipeline job", "job_name", name)
	}

	job, err := h.service.GetJob(r.Context(), name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job": job,
	})
}

// CancelPipelineJob handles POST /v1/pipeline-jobs/cancel
func (h *Handlers) CancelPipelineJob(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	var req struct {
		JobName string `json:"job_name"`
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		if logger != nil {
			logger.Warn("invalid request body", "error", err)
		}
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobName == "" {
		respondError(w, r, http.StatusBadRequest, "job_name is required")
		return
	}

	if logger != nil {
		logger.Info("canceling pipeline job", "job_name", req.JobName)
	}

	if err := h.service.CancelJob(r.Context(), req.JobName); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSubmission handles GET /v1/submissions/{submission_id}
func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submission_id")

	record, err := h.service.GetSubmission(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"submission": record,
	})
}

// decodeTriggerBody reads a JSON object body, falling back to form fields whose
// values are JSON documents. Anything unreadable yields an empty body, which
// validation then reports as missing parameters.
func decodeTriggerBody(w http.ResponseWriter, r *http.Request) map[string]interface{} {
	logger := GetLogger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		return decodeForm(r)
	}

	body := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if logger != nil {
			logger.Debug("request body is not a JSON object", "error", err)
		}
		return map[string]interface{}{}
	}
	return body
}

func decodeForm(r *http.Request) map[string]interface{} {
	logger := GetLogger(r.Context())
	body := map[string]interface{}{}

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		if logger != nil {
			logger.Debug("request form is unreadable", "error", err)
		}
		return body
	}

	for key, values := range r.Form {
		if len(values) == 0 {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(values[0]), &decoded); err != nil {
			body[key] = values[0]
			continue
		}
		body[key] = decoded
	}
	return body
}

// respondSubmission writes a trigger outcome with its own status code
func respondSubmission(w http.ResponseWriter, submissionID string, resp models.Response) {
	if submissionID != "" {
		w.Header().Set(HeaderSubmissionID, submissionID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	json.NewEncoder(w).Encode(resp)
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}

// handleServiceError maps service errors to HTTP responses with detailed logging
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("service error occurred",
			"error", err.Error(),
			"error_type", fmt.Sprintf("%T", err),
			"request_id", requestID)
	}

	switch {
	case errors.Is(err, service.ErrPipelineNotFound):
		respondError(w, r, http.StatusNotFound, "pipeline not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		respondError(w, r, http.StatusNotFound, "submission not found")
	case errors.Is(err, provider.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, "pipeline job not found")
	case errors.Is(err, provider.ErrUnauthorized):
		respondError(w, r, http.StatusUnauthorized, "provider authentication failed")
	case errors.Is(err, provider.ErrProviderUnavailable):
		respondError(w, r, http.StatusBadGateway, "provider temporarily unavailable")
	default:
		var providerErr *provider.ProviderError
		if errors.As(err, &providerErr) {
			if logger != nil {
				logger.Error("provider error details",
					"provider_code", providerErr.Code,
					"provider_status", providerErr.Status,
					"provider_message", providerErr.Message,
					"underlying_error", providerErr.Err)
			}

			if providerErr.Code >= 400 && providerErr.Code < 500 {
				respondError(w, r, providerErr.Code, providerErr.Message)
			} else {
				respondError(w, r, http.StatusBadGateway, "provider error")
			}
		} else {
			respondError(w, r, http.StatusInternalServerError, "internal server error")
		}
	}
}
