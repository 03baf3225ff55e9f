package params

import "github.com/lei/pipeline-trigger/internal/models"

// Merge returns a new map holding base with override written on top.
// On a key collision the override value wins. Neither input is modified.
func Merge(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// WithDefaults fills in defaults for keys the caller did not supply
func WithDefaults(defaults, values map[string]interface{}) map[string]interface{} {
	return Merge(defaults, values)
}

// ConfigOverrides returns the configuration subset that is always forwarded
// to the pipeline as parameters.
func ConfigOverrides(cfg models.SubmissionConfig) map[string]interface{} {
	return map[string]interface{}{
		"project_id": cfg.ProjectID,
		"location":   cfg.Location,
	}
}

// ForSubmission builds the parameter map sent to the execution service
func ForSubmission(req *models.SubmissionRequest) map[string]interface{} {
	return Merge(req.Parameters, ConfigOverrides(req.Config))
}
