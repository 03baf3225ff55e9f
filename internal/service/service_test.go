package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/internal/request"
	"github.com/lei/pipeline-trigger/internal/store"
	"github.com/lei/pipeline-trigger/pkg/logger"
)

const jobName = "projects/p/locations/us-central1/pipelineJobs/beans-run-1"

// fakeProvider reports states[i] on the (i+1)th poll, repeating the last state
type fakeProvider struct {
	mu        sync.Mutex
	submitErr error
	states    []models.PipelineState
	pollErrs  map[int]error
	polls     int
	submitted []provider.JobSpec
	cancelled []string
}

func (f *fakeProvider) Submit(ctx context.Context, spec provider.JobSpec) (*models.PipelineJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, spec)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.PipelineJob{Name: jobName, DisplayName: spec.DisplayName, State: models.StatePending}, nil
}

func (f *fakeProvider) GetJob(ctx context.Context, name string) (*models.PipelineJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if err := f.pollErrs[f.polls]; err != nil {
		return nil, err
	}
	state := models.StatePending
	if len(f.states) > 0 {
		idx := f.polls - 1
		if idx >= len(f.states) {
			idx = len(f.states) - 1
		}
		state = f.states[idx]
	}
	return &models.PipelineJob{Name: name, State: state}, nil
}

func (f *fakeProvider) Cancel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != jobName {
		return provider.ErrJobNotFound
	}
	f.cancelled = append(f.cancelled, name)
	return nil
}

func testRequest() *models.SubmissionRequest {
	return &models.SubmissionRequest{
		Config: models.SubmissionConfig{
			ProjectID:           "p",
			Location:            "us-central1",
			StagingBucket:       "gs://bucket",
			ServiceAccount:      "sa@p.iam.gserviceaccount.com",
			PipelineDisplayName: "beans-run",
			PipelineRepo:        "r",
			PipelineName:        "n",
			PipelineTag:         "v1",
		},
		Parameters: map[string]interface{}{"project_id": "caller", "bq_source": "bq://p.beans.beans1"},
	}
}

func newTestService(prov provider.Provider, st store.Store, pipelines ...*models.Pipeline) *Service {
	return NewService(Config{MaxAttempts: 6, PollInterval: 0}, pipelines, prov, st, logger.NewNop())
}

func TestSubmit_RunningOnThirdPoll(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StatePending, models.StateQueued, models.StateRunning}}
	svc := newTestService(prov, nil)

	sub := svc.Submit(context.Background(), testRequest())

	if prov.polls != 3 {
		t.Errorf("polls = %d, want 3", prov.polls)
	}
	resp := sub.Response
	if resp.StatusCode != http.StatusOK || resp.PipelineStatus != models.PipelineStatusRunning {
		t.Errorf("Submit() response = %+v", resp)
	}
	if resp.JobName == nil || *resp.JobName != jobName {
		t.Errorf("Submit() jobName = %v, want %s", resp.JobName, jobName)
	}
	if !strings.Contains(resp.Message, "beans-run") {
		t.Errorf("Submit() message = %q, want display name", resp.Message)
	}
}

func TestSubmit_Failed(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StateFailed}}
	svc := newTestService(prov, nil)

	resp := svc.Submit(context.Background(), testRequest()).Response

	if prov.polls != 1 {
		t.Errorf("polls = %d, want 1", prov.polls)
	}
	if resp.StatusCode != http.StatusBadRequest || resp.PipelineStatus != models.PipelineStatusFailed {
		t.Errorf("Submit() response = %+v", resp)
	}
	if resp.JobName == nil {
		t.Errorf("Submit() jobName = nil, want job name")
	}
}

func TestSubmit_TimesOutAfterMaxAttempts(t *testing.T) {
	// SUCCEEDED does not stop polling
	prov := &fakeProvider{states: []models.PipelineState{models.StatePending, models.StateSucceeded}}
	svc := NewService(Config{MaxAttempts: 4, PollInterval: time.Millisecond}, nil, prov, nil, logger.NewNop())

	resp := svc.Submit(context.Background(), testRequest()).Response

	if prov.polls != 4 {
		t.Errorf("polls = %d, want 4", prov.polls)
	}
	if resp.StatusCode != http.StatusGatewayTimeout || resp.PipelineStatus != models.PipelineStatusTimedOut {
		t.Errorf("Submit() response = %+v", resp)
	}
	if resp.JobName == nil || *resp.JobName != jobName {
		t.Errorf("Submit() jobName = %v", resp.JobName)
	}
}

func TestSubmit_PollErrorsConsumeAttempts(t *testing.T) {
	prov := &fakeProvider{
		states:   []models.PipelineState{models.StatePending, models.StatePending, models.StateRunning},
		pollErrs: map[int]error{1: provider.ErrProviderUnavailable, 2: errors.New("boom")},
	}
	svc := newTestService(prov, nil)

	resp := svc.Submit(context.Background(), testRequest()).Response

	if prov.polls != 3 {
		t.Errorf("polls = %d, want 3", prov.polls)
	}
	if resp.PipelineStatus != models.PipelineStatusRunning {
		t.Errorf("Submit() response = %+v", resp)
	}
}

func TestSubmit_TemplateNotFound(t *testing.T) {
	prov := &fakeProvider{submitErr: fmt.Errorf("create pipeline job: %w", provider.ErrTemplateNotFound)}
	svc := newTestService(prov, nil)

	resp := svc.Submit(context.Background(), testRequest()).Response

	if prov.polls != 0 {
		t.Errorf("polls = %d, want 0", prov.polls)
	}
	if resp.StatusCode != http.StatusBadRequest || resp.PipelineStatus != models.PipelineStatusFailed {
		t.Errorf("Submit() response = %+v", resp)
	}
	if !strings.Contains(resp.Message, "https://us-central1-kfp.pkg.dev/p/r/n/v1") {
		t.Errorf("Submit() message = %q, want template path", resp.Message)
	}
	if !strings.Contains(resp.Message, "not found") {
		t.Errorf("Submit() message = %q, want not found", resp.Message)
	}
	if resp.JobName != nil {
		t.Errorf("Submit() jobName = %v, want nil", *resp.JobName)
	}
}

func TestSubmit_GenericError(t *testing.T) {
	prov := &fakeProvider{submitErr: &provider.ProviderError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad"}}
	svc := newTestService(prov, nil)

	resp := svc.Submit(context.Background(), testRequest()).Response

	if prov.polls != 0 || len(prov.submitted) != 1 {
		t.Errorf("polls = %d submits = %d, want 0 and 1", prov.polls, len(prov.submitted))
	}
	if resp.PipelineStatus != models.PipelineStatusFailed || resp.JobName != nil {
		t.Errorf("Submit() response = %+v", resp)
	}
	if strings.Contains(resp.Message, "not found") {
		t.Errorf("generic error message should not claim not found: %q", resp.Message)
	}
}

func TestSubmit_SendsMergedSpec(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StateRunning}}
	svc := newTestService(prov, nil)

	svc.Submit(context.Background(), testRequest())

	spec := prov.submitted[0]
	if spec.TemplatePath != "https://us-central1-kfp.pkg.dev/p/r/n/v1" {
		t.Errorf("TemplatePath = %s", spec.TemplatePath)
	}
	if spec.Parameters["project_id"] != "p" || spec.Parameters["location"] != "us-central1" {
		t.Errorf("Parameters = %v, want config overrides", spec.Parameters)
	}
	if spec.Parameters["bq_source"] != "bq://p.beans.beans1" {
		t.Errorf("Parameters = %v, want caller values kept", spec.Parameters)
	}
	if spec.ServiceAccount != "sa@p.iam.gserviceaccount.com" || spec.StagingBucket != "gs://bucket" {
		t.Errorf("spec = %+v", spec)
	}
}

func TestSubmit_CancelledContextEndsPolling(t *testing.T) {
	prov := &fakeProvider{}
	svc := NewService(Config{MaxAttempts: 6, PollInterval: time.Hour}, nil, prov, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := svc.Submit(ctx, testRequest()).Response
	if resp.PipelineStatus != models.PipelineStatusTimedOut {
		t.Errorf("Submit() response = %+v", resp)
	}
	if prov.polls != 0 {
		t.Errorf("polls = %d, want 0", prov.polls)
	}
}

func TestSubmit_RecordsOutcome(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StateRunning}}
	st := store.NewMemory()
	svc := newTestService(prov, st)
	svc.newID = func() string { return "sub-1" }

	sub := svc.Submit(context.Background(), testRequest())
	if sub.ID != "sub-1" {
		t.Fatalf("Submit() id = %s", sub.ID)
	}

	record, err := svc.GetSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetSubmission() error: %v", err)
	}
	if record.JobName != jobName || record.Response.PipelineStatus != models.PipelineStatusRunning {
		t.Errorf("record = %+v", record)
	}

	if _, err := svc.GetSubmission(context.Background(), "missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Errorf("GetSubmission(missing) error = %v", err)
	}
}

func beansPipeline() *models.Pipeline {
	return &models.Pipeline{
		PipelineID: "beans",
		Config: map[string]interface{}{
			"pipeline_display_name": "beans",
			"pipeline_repo":         "ml-pipelines",
			"pipeline_name":         "beans",
			"pipeline_tag":          "latest",
		},
		Parameters: map[string]interface{}{
			"email_addresses": []interface{}{"ops@example.com"},
			"auc_threshold":   0.9,
		},
	}
}

func TestSubmitPipeline(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StateRunning}}
	svc := newTestService(prov, nil, beansPipeline())

	sub, err := svc.SubmitPipeline(context.Background(), "beans", map[string]interface{}{
		"project_id":      "p",
		"location":        "europe-west4",
		"staging_bucket":  "gs://bucket",
		"service_account": "sa@p.iam.gserviceaccount.com",
		"pipeline_tag":    "v2",
	}, map[string]interface{}{"auc_threshold": 0.95})
	if err != nil {
		t.Fatalf("SubmitPipeline() error: %v", err)
	}
	if sub.Response.PipelineStatus != models.PipelineStatusRunning {
		t.Errorf("SubmitPipeline() response = %+v", sub.Response)
	}

	spec := prov.submitted[0]
	if spec.TemplatePath != "https://europe-west4-kfp.pkg.dev/p/ml-pipelines/beans/v2" {
		t.Errorf("TemplatePath = %s", spec.TemplatePath)
	}
	if spec.Parameters["auc_threshold"] != 0.95 {
		t.Errorf("auc_threshold = %v, want caller value", spec.Parameters["auc_threshold"])
	}
	if _, ok := spec.Parameters["email_addresses"]; !ok {
		t.Errorf("Parameters = %v, want catalog default email_addresses", spec.Parameters)
	}
}

func TestSubmitPipeline_Errors(t *testing.T) {
	prov := &fakeProvider{}
	svc := newTestService(prov, nil, beansPipeline())

	if _, err := svc.SubmitPipeline(context.Background(), "houses", nil, nil); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("SubmitPipeline(unknown) error = %v, want ErrPipelineNotFound", err)
	}

	_, err := svc.SubmitPipeline(context.Background(), "beans", map[string]interface{}{"project_id": "p"}, nil)
	fields := request.MissingFields(err)
	if len(fields) != 3 {
		t.Errorf("MissingFields() = %v, want location, staging_bucket, service_account", fields)
	}
	if len(prov.submitted) != 0 {
		t.Errorf("provider called despite invalid config")
	}
}

func TestCancelAndGetJob(t *testing.T) {
	prov := &fakeProvider{states: []models.PipelineState{models.StateRunning}}
	svc := newTestService(prov, nil)

	if err := svc.CancelJob(context.Background(), jobName); err != nil {
		t.Errorf("CancelJob() error: %v", err)
	}
	if err := svc.CancelJob(context.Background(), "projects/p/locations/l/pipelineJobs/x"); !errors.Is(err, provider.ErrJobNotFound) {
		t.Errorf("CancelJob(unknown) error = %v", err)
	}

	job, err := svc.GetJob(context.Background(), jobName)
	if err != nil || job.State != models.StateRunning {
		t.Errorf("GetJob() = %+v, %v", job, err)
	}
}

func TestListPipelines_Sorted(t *testing.T) {
	svc := newTestService(&fakeProvider{}, nil,
		&models.Pipeline{PipelineID: "houses"},
		&models.Pipeline{PipelineID: "beans"},
	)

	got := svc.ListPipelines(context.Background())
	if len(got) != 2 || got[0].PipelineID != "beans" || got[1].PipelineID != "houses" {
		t.Errorf("ListPipelines() = %v", got)
	}
}

func TestPollBudget(t *testing.T) {
	svc := NewService(Config{MaxAttempts: 6, PollInterval: DefaultPollInterval}, nil, &fakeProvider{}, nil, logger.NewNop())
	if got := svc.PollBudget(); got != 2*time.Minute {
		t.Errorf("PollBudget() = %v, want 2m", got)
	}
}
