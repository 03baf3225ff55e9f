package models

import (
	"fmt"
	"net/http"
	"time"
)

// SubmissionConfig is the operational half of a submission request
type SubmissionConfig struct {
	ProjectID           string            `json:"project_id" mapstructure:"project_id" yaml:"project_id"`
	Location            string            `json:"location" mapstructure:"location" yaml:"location"`
	StagingBucket       string            `json:"staging_bucket" mapstructure:"staging_bucket" yaml:"staging_bucket"`
	ServiceAccount      string            `json:"service_account" mapstructure:"service_account" yaml:"service_account"`
	PipelineDisplayName string            `json:"pipeline_display_name" mapstructure:"pipeline_display_name" yaml:"pipeline_display_name"`
	PipelineRepo        string            `json:"pipeline_repo" mapstructure:"pipeline_repo" yaml:"pipeline_repo"`
	PipelineName        string            `json:"pipeline_name" mapstructure:"pipeline_name" yaml:"pipeline_name"`
	PipelineTag         string            `json:"pipeline_tag" mapstructure:"pipeline_tag" yaml:"pipeline_tag"`
	Labels              map[string]string `json:"labels,omitempty" mapstructure:"labels" yaml:"labels"`
	JobID               string            `json:"job_id,omitempty" mapstructure:"job_id" yaml:"job_id"`
}

// SubmissionRequest is a validated submission
type SubmissionRequest struct {
	Config     SubmissionConfig
	Parameters map[string]interface{}
}

// PipelineState mirrors the execution service's job state enumeration
type PipelineState string

const (
	StateUnspecified PipelineState = "PIPELINE_STATE_UNSPECIFIED"
	StateQueued      PipelineState = "PIPELINE_STATE_QUEUED"
	StatePending     PipelineState = "PIPELINE_STATE_PENDING"
	StateRunning     PipelineState = "PIPELINE_STATE_RUNNING"
	StateSucceeded   PipelineState = "PIPELINE_STATE_SUCCEEDED"
	StateFailed      PipelineState = "PIPELINE_STATE_FAILED"
	StateCancelling  PipelineState = "PIPELINE_STATE_CANCELLING"
	StateCancelled   PipelineState = "PIPELINE_STATE_CANCELLED"
	StatePaused      PipelineState = "PIPELINE_STATE_PAUSED"
)

// StopsPolling reports whether the submission poll loop ends on this state.
// Only RUNNING and FAILED count; a job that already SUCCEEDED keeps being polled.
func (s PipelineState) StopsPolling() bool {
	return s == StateRunning || s == StateFailed
}

// PipelineJob is the execution service's view of a submitted job
type PipelineJob struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	State       PipelineState `json:"state"`
	TemplateURI string        `json:"template_uri,omitempty"`
	CreateTime  *time.Time    `json:"create_time,omitempty"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// PipelineStatus is the label returned to trigger callers
type PipelineStatus string

const (
	PipelineStatusRunning  PipelineStatus = "RUNNING"
	PipelineStatusFailed   PipelineStatus = "FAILED"
	PipelineStatusTimedOut PipelineStatus = "TIMED_OUT"
)

// Response is the fixed-shape trigger result. Values are built once per outcome.
type Response struct {
	StatusCode     int            `json:"statusCode"`
	PipelineStatus PipelineStatus `json:"pipelineStatus"`
	Message        string         `json:"message"`
	JobName        *string        `json:"jobName"`
}

// RunningResponse reports a job that reached RUNNING
func RunningResponse(job *PipelineJob) Response {
	name := job.Name
	return Response{
		StatusCode:     http.StatusOK,
		PipelineStatus: PipelineStatusRunning,
		Message:        fmt.Sprintf("Pipeline job %s is running.", job.DisplayName),
		JobName:        &name,
	}
}

// FailedResponse reports a job that reached FAILED
func FailedResponse(job *PipelineJob) Response {
	name := job.Name
	return Response{
		StatusCode:     http.StatusBadRequest,
		PipelineStatus: PipelineStatusFailed,
		Message:        fmt.Sprintf("Pipeline job %s failed.", job.DisplayName),
		JobName:        &name,
	}
}

// TimedOutResponse reports a job that never reached RUNNING or FAILED within budget
func TimedOutResponse(job *PipelineJob, budget time.Duration) Response {
	name := job.Name
	return Response{
		StatusCode:     http.StatusGatewayTimeout,
		PipelineStatus: PipelineStatusTimedOut,
		Message: fmt.Sprintf("Pipeline job %s did not reach a running or failed state within %s.",
			job.DisplayName, budget),
		JobName: &name,
	}
}

// RejectedResponse reports a submission that never produced a job
func RejectedResponse(message string) Response {
	return Response{
		StatusCode:     http.StatusBadRequest,
		PipelineStatus: PipelineStatusFailed,
		Message:        message,
	}
}

// Pipeline is a catalog entry naming a compiled template and its defaults
type Pipeline struct {
	PipelineID  string                 `json:"pipeline_id"`
	Description string                 `json:"description,omitempty"`
	Config      map[string]interface{} `json:"config"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// SubmissionRecord is the stored outcome of one submission
type SubmissionRecord struct {
	ID           string    `json:"submission_id"`
	PipelineID   string    `json:"pipeline_id,omitempty"`
	DisplayName  string    `json:"display_name"`
	TemplatePath string    `json:"template_path"`
	JobName      string    `json:"job_name,omitempty"`
	Response     Response  `json:"response"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
