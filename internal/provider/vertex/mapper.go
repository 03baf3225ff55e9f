package vertex

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/provider"
)

// maxJobIDLength is the longest pipelineJobId the API accepts
const maxJobIDLength = 128

var invalidJobIDChars = regexp.MustCompile(`[^a-z0-9-]+`)

// mapJob converts a REST pipeline job to the generic model
func mapJob(job *pipelineJob) *models.PipelineJob {
	out := &models.PipelineJob{
		Name:        job.Name,
		DisplayName: job.DisplayName,
		State:       mapState(job.State),
		TemplateURI: job.TemplateURI,
		CreateTime:  parseTime(job.CreateTime),
		StartTime:   parseTime(job.StartTime),
		EndTime:     parseTime(job.EndTime),
	}
	if job.Error != nil {
		out.Error = job.Error.Message
	}
	return out
}

// mapState converts the API state string, treating unknown values as unspecified
func mapState(state string) models.PipelineState {
	switch s := models.PipelineState(state); s {
	case models.StateQueued, models.StatePending, models.StateRunning, models.StateSucceeded,
		models.StateFailed, models.StateCancelling, models.StateCancelled, models.StatePaused:
		return s
	default:
		return models.StateUnspecified
	}
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &t
}

// newJobID derives a unique pipelineJobId from a display name
func newJobID(displayName string, now time.Time) string {
	base := invalidJobIDChars.ReplaceAllString(strings.ToLower(displayName), "-")
	base = strings.Trim(base, "-")
	if base == "" || base[0] < 'a' || base[0] > 'z' {
		base = "job-" + base
	}

	suffix := fmt.Sprintf("-%s-%s", now.UTC().Format("20060102150405"), uuid.NewString()[:8])
	if len(base)+len(suffix) > maxJobIDLength {
		base = strings.TrimRight(base[:maxJobIDLength-len(suffix)], "-")
	}
	return base + suffix
}

// parseError converts HTTP error responses to provider errors.
// notFound is returned for 404 so callers can tell a missing template from a missing job.
func parseError(resp *http.Response, notFound error) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	decoded := json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != ""

	switch resp.StatusCode {
	case http.StatusNotFound:
		if decoded {
			return fmt.Errorf("%w: %s", notFound, envelope.Error.Message)
		}
		return notFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ErrUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return provider.ErrProviderUnavailable
	default:
		if decoded {
			return &provider.ProviderError{
				Code:    resp.StatusCode,
				Status:  envelope.Error.Status,
				Message: envelope.Error.Message,
			}
		}

		return &provider.ProviderError{
			Code:    resp.StatusCode,
			Message: string(body),
		}
	}
}
