package request

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// MissingParameterError names a required field absent from the request.
// Scope is empty for top-level keys and "config_values" for configuration fields.
type MissingParameterError struct {
	Scope string
	Name  string
}

func (e *MissingParameterError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("Missing required parameter: %s", e.Name)
	}
	return fmt.Sprintf("Missing required parameter in %s: %s", e.Scope, e.Name)
}

// InvalidParameterError reports a field that is present but unusable
type InvalidParameterError struct {
	Scope  string
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("Invalid parameter %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("Invalid parameter in %s: %s: %s", e.Scope, e.Name, e.Reason)
}

// IsTopLevel reports whether err is a missing top-level key, which the trigger
// answers with a plain-text 400.
func IsTopLevel(err error) bool {
	var missing *MissingParameterError
	return errors.As(err, &missing) && missing.Scope == ""
}

// MissingFields returns the names of every missing field carried by err
func MissingFields(err error) []string {
	var names []string
	for _, e := range multierr.Errors(err) {
		var missing *MissingParameterError
		if errors.As(e, &missing) {
			names = append(names, missing.Name)
		}
	}
	return names
}

// Message renders a validation error for the response body
func Message(err error) string {
	errs := multierr.Errors(err)
	if len(errs) <= 1 {
		return err.Error()
	}

	var scope string
	var missing *MissingParameterError
	if errors.As(errs[0], &missing) {
		scope = missing.Scope
	}
	names := MissingFields(err)
	if len(names) == len(errs) && scope != "" {
		return fmt.Sprintf("Missing required parameters in %s: %s", scope, strings.Join(names, ", "))
	}

	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// IsValidation reports whether err rejects the request content itself
func IsValidation(err error) bool {
	var missing *MissingParameterError
	var invalid *InvalidParameterError
	return errors.As(err, &missing) || errors.As(err, &invalid)
}
