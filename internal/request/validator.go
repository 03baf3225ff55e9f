package request

import (
	"fmt"
	"strings"

	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
)

const (
	KeyConfigValues    = "config_values"
	KeyParameterValues = "parameter_values"
)

// RequiredConfigFields lists the config_values keys every submission must carry,
// in the order they are reported.
var RequiredConfigFields = []string{
	"project_id",
	"location",
	"staging_bucket",
	"service_account",
	"pipeline_display_name",
	"pipeline_repo",
	"pipeline_name",
	"pipeline_tag",
}

// Parse validates a decoded request body and returns the submission it describes.
// Nothing is submitted when an error is returned.
func Parse(body map[string]interface{}) (*models.SubmissionRequest, error) {
	for _, key := range []string{KeyConfigValues, KeyParameterValues} {
		if _, ok := body[key]; !ok {
			return nil, &MissingParameterError{Name: key}
		}
	}

	configValues, ok := body[KeyConfigValues].(map[string]interface{})
	if !ok {
		return nil, &InvalidParameterError{Name: KeyConfigValues, Reason: "must be an object"}
	}
	parameterValues, ok := body[KeyParameterValues].(map[string]interface{})
	if !ok {
		return nil, &InvalidParameterError{Name: KeyParameterValues, Reason: "must be an object"}
	}

	cfg, err := ValidateConfig(configValues)
	if err != nil {
		return nil, err
	}

	return &models.SubmissionRequest{
		Config:     *cfg,
		Parameters: parameterValues,
	}, nil
}

// ValidateConfig checks the eight required configuration fields and decodes them.
// All missing fields are reported together.
func ValidateConfig(values map[string]interface{}) (*models.SubmissionConfig, error) {
	var errs error
	for _, field := range RequiredConfigFields {
		v, ok := values[field]
		if !ok || v == nil {
			errs = multierr.Append(errs, &MissingParameterError{Scope: KeyConfigValues, Name: field})
			continue
		}
		s, isString := v.(string)
		if !isString {
			errs = multierr.Append(errs, &InvalidParameterError{
				Scope:  KeyConfigValues,
				Name:   field,
				Reason: fmt.Sprintf("expected a string, got %T", v),
			})
			continue
		}
		if strings.TrimSpace(s) == "" {
			errs = multierr.Append(errs, &MissingParameterError{Scope: KeyConfigValues, Name: field})
		}
	}
	if errs != nil {
		return nil, errs
	}

	var cfg models.SubmissionConfig
	if err := mapstructure.Decode(values, &cfg); err != nil {
		return nil, &InvalidParameterError{Name: KeyConfigValues, Reason: err.Error()}
	}

	return &cfg, nil
}
