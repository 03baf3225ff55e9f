// Package template composes template registry locations for compiled pipelines.
package template

import (
	"fmt"
	"strings"

	"github.com/lei/pipeline-trigger/internal/models"
)

// DefaultRegistryHost is the Kubeflow pipelines registry domain suffix
const DefaultRegistryHost = "kfp.pkg.dev"

// Root returns the registry location of a template, without its tag
func Root(host, location, project, repo, name string) string {
	if host == "" {
		host = DefaultRegistryHost
	}
	return fmt.Sprintf("https://%s-%s/%s/%s/%s", location, host, project, repo, name)
}

// Path appends a version tag to a template root
func Path(root, tag string) string {
	return strings.TrimSuffix(root, "/") + "/" + tag
}

// Resolve returns the fully qualified, tagged template location for cfg
func Resolve(host string, cfg models.SubmissionConfig) string {
	root := Root(host, cfg.Location, cfg.ProjectID, cfg.PipelineRepo, cfg.PipelineName)
	return Path(root, cfg.PipelineTag)
}
