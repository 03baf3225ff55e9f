package models

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestPipelineState_StopsPolling(t *testing.T) {
	tests := []struct {
		state PipelineState
		want  bool
	}{
		{StateRunning, true},
		{StateFailed, true},
		{StateSucceeded, false},
		{StatePending, false},
		{StateQueued, false},
		{StateCancelled, false},
		{StateUnspecified, false},
	}

	for _, tt := range tests {
		if got := tt.state.StopsPolling(); got != tt.want {
			t.Errorf("%s.StopsPolling() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestResponses(t *testing.T) {
	job := &PipelineJob{Name: "projects/p/locations/l/pipelineJobs/beans-1", DisplayName: "beans"}

	tests := []struct {
		name       string
		resp       Response
		wantCode   int
		wantStatus PipelineStatus
		wantMsg    string
	}{
		{"running", RunningResponse(job), http.StatusOK, PipelineStatusRunning, "Pipeline job beans is running."},
		{"failed", FailedResponse(job), http.StatusBadRequest, PipelineStatusFailed, "Pipeline job beans failed."},
		{"timed out", TimedOutResponse(job, 2*time.Minute), http.StatusGatewayTimeout, PipelineStatusTimedOut,
			"Pipeline job beans did not reach a running or failed state within 2m0s."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.resp.StatusCode != tt.wantCode || tt.resp.PipelineStatus != tt.wantStatus {
				t.Errorf("response = %+v", tt.resp)
			}
			if tt.resp.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", tt.resp.Message, tt.wantMsg)
			}
			if tt.resp.JobName == nil || *tt.resp.JobName != job.Name {
				t.Errorf("jobName = %v, want %s", tt.resp.JobName, job.Name)
			}
		})
	}
}

func TestRejectedResponse_EncodesNullJobName(t *testing.T) {
	data, err := json.Marshal(RejectedResponse("Missing required parameter in config_values: location"))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	body := string(data)
	for _, want := range []string{`"statusCode":400`, `"pipelineStatus":"FAILED"`, `"jobName":null`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}
