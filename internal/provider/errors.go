package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound indicates the template path does not resolve in the registry
	ErrTemplateNotFound = errors.New("pipeline template not found")

	// ErrJobNotFound indicates the pipeline job doesn't exist in the provider
	ErrJobNotFound = errors.New("pipeline job not found in provider")

	// ErrUnauthorized indicates provider authentication failed
	ErrUnauthorized = errors.New("provider authentication failed")

	// ErrProviderUnavailable indicates the provider is temporarily unavailable
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
)

// ProviderError represents a provider-specific error
type ProviderError struct {
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error %d %s: %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error %d %s: %s", e.Code, e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
