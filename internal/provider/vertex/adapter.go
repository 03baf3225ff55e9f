package vertex

import (
	"context"
	"fmt"
	"time"

	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/pkg/logger"
)

// Adapter implements the Provider interface for Vertex AI Pipelines
type Adapter struct {
	client *Client
	logger *logger.Logger
	now    func() time.Time
}

// Config contains Vertex AI connection settings
type Config struct {
	Endpoint           string // Optional: overrides https://{location}-aiplatform.googleapis.com
	CredentialsFile    string // Optional: service account key, otherwise application default credentials
	BearerToken        string // Optional: pre-issued access token
	TokenRefreshMargin time.Duration
	HTTPTimeout        time.Duration
	RequestsPerSecond  float64 // Zero disables client-side rate limiting
}

// NewAdapter creates a new Vertex AI adapter
func NewAdapter(ctx context.Context, cfg *Config, log *logger.Logger) (*Adapter, error) {
	tokenManager := NewTokenManager(nil, cfg.BearerToken, cfg.TokenRefreshMargin)
	if cfg.BearerToken == "" {
		source, err := NewTokenSource(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("initialize credentials: %w", err)
		}
		tokenManager = NewTokenManager(source, "", cfg.TokenRefreshMargin)
	}

	client := NewClient(cfg.Endpoint, tokenManager, cfg.HTTPTimeout, log)
	client.SetRateLimit(cfg.RequestsPerSecond)

	return &Adapter{
		client: client,
		logger: log,
		now:    time.Now,
	}, nil
}

// Submit implements Provider.Submit
func (a *Adapter) Submit(ctx context.Context, spec provider.JobSpec) (*models.PipelineJob, error) {
	log := logger.FromContext(ctx, a.logger)

	jobID := spec.JobID
	if jobID == "" {
		jobID = newJobID(spec.DisplayName, a.now())
	}

	log.Debug("provider: creating pipeline job",
		"project_id", spec.ProjectID,
		"location", spec.Location,
		"job_id", jobID,
		"template_path", spec.TemplatePath,
		"param_count", len(spec.Parameters))

	created, err := a.client.CreatePipelineJob(ctx, spec.ProjectID, spec.Location, jobID, &pipelineJob{
		DisplayName:    spec.DisplayName,
		TemplateURI:    spec.TemplatePath,
		ServiceAccount: spec.ServiceAccount,
		Labels:         spec.Labels,
		RuntimeConfig: &runtimeConfig{
			GcsOutputDirectory: spec.StagingBucket,
			ParameterValues:    spec.Parameters,
		},
	})
	if err != nil {
		log.Error("provider: failed to create pipeline job",
			"project_id", spec.ProjectID,
			"location", spec.Location,
			"template_path", spec.TemplatePath,
			"error", err)
		return nil, fmt.Errorf("create pipeline job: %w", err)
	}

	job := mapJob(created)
	log.Info("provider: pipeline job created",
		"job_name", job.Name,
		"display_name", job.DisplayName,
		"state", job.State)

	return job, nil
}

// GetJob implements Provider.GetJob
func (a *Adapter) GetJob(ctx context.Context, name string) (*models.PipelineJob, error) {
	log := logger.FromContext(ctx, a.logger)

	log.Debug("provider: getting pipeline job", "job_name", name)

	job, err := a.client.GetPipelineJob(ctx, name)
	if err != nil {
		log.Error("provider: failed to get pipeline job",
			"job_name", name,
			"error", err)
		return nil, err
	}

	mapped := mapJob(job)
	log.Debug("provider: pipeline job retrieved",
		"job_name", name,
		"state", mapped.State)

	return mapped, nil
}

// Cancel implements Provider.Cancel
func (a *Adapter) Cancel(ctx context.Context, name string) error {
	log := logger.FromContext(ctx, a.logger)

	log.Info("provider: cancelling pipeline job", "job_name", name)

	if err := a.client.CancelPipelineJob(ctx, name); err != nil {
		log.Error("provider: failed to cancel pipeline job",
			"job_name", name,
			"error", err)
		return err
	}

	log.Info("provider: pipeline job cancellation requested", "job_name", name)
	return nil
}
