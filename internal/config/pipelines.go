package config

import (
	"fmt"
	"os"

	"github.com/lei/pipeline-trigger/internal/models"
	"gopkg.in/yaml.v3"
)

// PipelinesConfig represents the pipeline catalog file structure
type PipelinesConfig struct {
	Pipelines []PipelineDefinition `yaml:"pipelines"`
}

// PipelineDefinition represents a pipeline entry in the catalog file
type PipelineDefinition struct {
	PipelineID  string                 `yaml:"pipeline_id"`
	Description string                 `yaml:"description"`
	Config      map[string]interface{} `yaml:"config"`
	Parameters  map[string]interface{} `yaml:"parameters"`
}

// LoadPipelines reads and parses the pipeline catalog file
func LoadPipelines(path string) ([]*models.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines file: %w", err)
	}

	// Expand environment variables so catalog entries can reference the deployment project
	return ParsePipelines([]byte(os.ExpandEnv(string(data))))
}

// ParsePipelines parses and validates catalog content
func ParsePipelines(data []byte) ([]*models.Pipeline, error) {
	var cfg PipelinesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pipelines config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Pipelines))
	pipelines := make([]*models.Pipeline, 0, len(cfg.Pipelines))
	for i, pd := range cfg.Pipelines {
		if pd.PipelineID == "" {
			return nil, fmt.Errorf("pipeline at index %d missing pipeline_id", i)
		}
		if seen[pd.PipelineID] {
			return nil, fmt.Errorf("duplicate pipeline_id %s", pd.PipelineID)
		}
		seen[pd.PipelineID] = true

		pipelines = append(pipelines, &models.Pipeline{
			PipelineID:  pd.PipelineID,
			Description: pd.Description,
			Config:      pd.Config,
			Parameters:  pd.Parameters,
		})
	}

	return pipelines, nil
}
