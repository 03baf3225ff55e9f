package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/params"
	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/internal/request"
	"github.com/lei/pipeline-trigger/internal/store"
	"github.com/lei/pipeline-trigger/internal/template"
	"github.com/lei/pipeline-trigger/pkg/logger"
)

const (
	// DefaultMaxAttempts bounds the number of status polls after a submission
	DefaultMaxAttempts = 6
	// DefaultPollInterval separates consecutive status polls
	DefaultPollInterval = 20 * time.Second
)

var (
	// ErrPipelineNotFound indicates the requested catalog pipeline doesn't exist
	ErrPipelineNotFound = errors.New("pipeline not found")
	// ErrSubmissionNotFound indicates no record exists for a submission id
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Config controls submission and polling behaviour
type Config struct {
	RegistryHost string
	MaxAttempts  int
	PollInterval time.Duration
}

// Service coordinates submission logic between the API and provider layers
type Service struct {
	config    Config
	pipelines map[string]*models.Pipeline
	provider  provider.Provider
	store     store.Store
	logger    *logger.Logger
	newID     func() string
}

// Submission is the outcome of one trigger call
type Submission struct {
	ID       string
	Response models.Response
}

// NewService creates a new service instance
func NewService(cfg Config, pipelines []*models.Pipeline, prov provider.Provider, st store.Store, log *logger.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if st == nil {
		st = store.NewMemory()
	}

	pipelineMap := make(map[string]*models.Pipeline, len(pipelines))
	for _, p := range pipelines {
		pipelineMap[p.PipelineID] = p
	}

	return &Service{
		config:    cfg,
		pipelines: pipelineMap,
		provider:  prov,
		store:     st,
		logger:    log,
		newID:     uuid.NewString,
	}
}

func (s *Service) getLogger(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, s.logger)
}

// PollBudget is the longest a submission waits for its job to start
func (s *Service) PollBudget() time.Duration {
	return time.Duration(s.config.MaxAttempts) * s.config.PollInterval
}

// Submit submits a validated request and waits for the job to reach RUNNING or FAILED
func (s *Service) Submit(ctx context.Context, req *models.SubmissionRequest) *Submission {
	return s.submit(ctx, "", req)
}

// SubmitPipeline submits a catalog pipeline. configValues overlay the catalog
// configuration and parameterValues overlay the catalog default parameters.
func (s *Service) SubmitPipeline(ctx context.Context, pipelineID string, configValues, parameterValues map[string]interface{}) (*Submission, error) {
	logger := s.getLogger(ctx)

	pipeline, ok := s.pipelines[pipelineID]
	if !ok {
		logger.Debug("service: pipeline not found", "pipeline_id", pipelineID)
		return nil, ErrPipelineNotFound
	}

	cfg, err := request.ValidateConfig(params.Merge(pipeline.Config, configValues))
	if err != nil {
		logger.Debug("service: catalog submission rejected",
			"pipeline_id", pipelineID,
			"error", err)
		return nil, err
	}

	req := &models.SubmissionRequest{
		Config:     *cfg,
		Parameters: params.WithDefaults(pipeline.Parameters, parameterValues),
	}
	return s.submit(ctx, pipelineID, req), nil
}

func (s *Service) submit(ctx context.Context, pipelineID string, req *models.SubmissionRequest) *Submission {
	logger := s.getLogger(ctx)

	templatePath := template.Resolve(s.config.RegistryHost, req.Config)
	record := &models.SubmissionRecord{
		ID:           s.newID(),
		PipelineID:   pipelineID,
		DisplayName:  req.Config.PipelineDisplayName,
		TemplatePath: templatePath,
		SubmittedAt:  time.Now().UTC(),
	}

	logger.Debug("service: submitting pipeline job",
		"submission_id", record.ID,
		"display_name", req.Config.PipelineDisplayName,
		"template_path", templatePath)

	job, err := s.provider.Submit(ctx, provider.JobSpec{
		ProjectID:      req.Config.ProjectID,
		Location:       req.Config.Location,
		JobID:          req.Config.JobID,
		DisplayName:    req.Config.PipelineDisplayName,
		TemplatePath:   templatePath,
		StagingBucket:  req.Config.StagingBucket,
		ServiceAccount: req.Config.ServiceAccount,
		Labels:         req.Config.Labels,
		Parameters:     params.ForSubmission(req),
	})
	switch {
	case errors.Is(err, provider.ErrTemplateNotFound):
		logger.Warn("service: pipeline template not found",
			"submission_id", record.ID,
			"template_path", templatePath,
			"error", err)
		record.Response = models.RejectedResponse(
			fmt.Sprintf("Pipeline template '%s' not found. Please double-check the path.", templatePath))
		return s.finish(ctx, record)
	case err != nil:
		logger.Error("service: pipeline job submission failed",
			"submission_id", record.ID,
			"template_path", templatePath,
			"error", err)
		record.Response = models.RejectedResponse(
			fmt.Sprintf("An error occurred while creating the pipeline job: %v", err))
		return s.finish(ctx, record)
	case job == nil || job.Name == "":
		logger.Error("service: provider returned a job without a name", "submission_id", record.ID)
		record.Response = models.RejectedResponse("An error occurred while creating the pipeline job: no job name returned")
		return s.finish(ctx, record)
	}

	if job.DisplayName == "" {
		job.DisplayName = req.Config.PipelineDisplayName
	}
	record.JobName = job.Name

	logger.Info("service: pipeline job submitted",
		"submission_id", record.ID,
		"job_name", job.Name,
		"state", job.State)

	record.Response = s.awaitState(ctx, job)
	return s.finish(ctx, record)
}

// awaitState polls the job until it is RUNNING or FAILED, or the attempt budget runs out
func (s *Service) awaitState(ctx context.Context, job *models.PipelineJob) models.Response {
	logger := s.getLogger(ctx)
	current := job

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if err := sleep(ctx, s.config.PollInterval); err != nil {
			logger.Warn("service: polling interrupted",
				"job_name", job.Name,
				"attempt", attempt,
				"error", err)
			break
		}

		observed, err := s.provider.GetJob(ctx, job.Name)
		if err != nil {
			logger.Warn("service: failed to poll pipeline job",
				"job_name", job.Name,
				"attempt", attempt,
				"error", err)
			continue
		}
		if observed.DisplayName == "" {
			observed.DisplayName = job.DisplayName
		}
		if observed.Name == "" {
			observed.Name = job.Name
		}
		current = observed

		logger.Debug("service: polled pipeline job",
			"job_name", job.Name,
			"attempt", attempt,
			"state", current.State)

		if !current.State.StopsPolling() {
			continue
		}
		if current.State == models.StateFailed {
			return models.FailedResponse(current)
		}
		return models.RunningResponse(current)
	}

	logger.Warn("service: pipeline job did not start in time",
		"job_name", job.Name,
		"state", current.State,
		"max_attempts", s.config.MaxAttempts)
	return models.TimedOutResponse(current, s.PollBudget())
}

// finish records the outcome; a store failure never changes the response
func (s *Service) finish(ctx context.Context, record *models.SubmissionRecord) *Submission {
	if err := s.store.Save(ctx, record); err != nil {
		s.getLogger(ctx).Error("service: failed to record submission",
			"submission_id", record.ID,
			"error", err)
	}
	return &Submission{ID: record.ID, Response: record.Response}
}

// GetJob retrieves the current state of a pipeline job
func (s *Service) GetJob(ctx context.Context, name string) (*models.PipelineJob, error) {
	logger := s.getLogger(ctx)

	logger.Debug("service: getting pipeline job", "job_name", name)

	job, err := s.provider.GetJob(ctx, name)
	if err != nil {
		logger.Error("service: provider get job failed", "job_name", name, "error", err)
		return nil, err
	}
	return job, nil
}

// CancelJob requests cancellation of a pipeline job
func (s *Service) CancelJob(ctx context.Context, name string) error {
	logger := s.getLogger(ctx)

	logger.Info("service: cancelling pipeline job", "job_name", name)

	if err := s.provider.Cancel(ctx, name); err != nil {
		logger.Error("service: cancel pipeline job failed", "job_name", name, "error", err)
		return err
	}

	logger.Info("service: pipeline job cancellation requested", "job_name", name)
	return nil
}

// GetSubmission returns the recorded outcome of a submission
func (s *Service) GetSubmission(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	record, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		s.getLogger(ctx).Error("service: failed to load submission", "submission_id", id, "error", err)
		return nil, err
	}
	return record, nil
}

// ListPipelines returns all catalog pipelines ordered by id
func (s *Service) ListPipelines(ctx context.Context) []*models.Pipeline {
	pipelines := make([]*models.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		pipelines = append(pipelines, p)
	}
	sort.Slice(pipelines, func(i, j int) bool {
		return pipelines[i].PipelineID < pipelines[j].PipelineID
	})
	return pipelines
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
