package provider

import (
	"context"

	"github.com/lei/pipeline-trigger/internal/models"
)

// Provider abstracts the managed pipeline-execution service
type Provider interface {
	// Submit creates a pipeline job from a compiled template.
	// A template that cannot be found yields ErrTemplateNotFound.
	Submit(ctx context.Context, spec JobSpec) (*models.PipelineJob, error)

	// GetJob retrieves the current state of a job by its resource name
	GetJob(ctx context.Context, name string) (*models.PipelineJob, error)

	// Cancel requests cancellation of a job
	Cancel(ctx context.Context, name string) error
}

// JobSpec contains everything needed to create a pipeline job
type JobSpec struct {
	ProjectID      string
	Location       string
	JobID          string // Optional, generated by the provider when empty
	DisplayName    string
	TemplatePath   string
	StagingBucket  string
	ServiceAccount string
	Labels         map[string]string
	Parameters     map[string]interface{}
}
