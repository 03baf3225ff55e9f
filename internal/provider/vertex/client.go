package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/pkg/logger"
	"golang.org/x/time/rate"
)

// Client handles HTTP communication with the Vertex AI Pipelines REST API
type Client struct {
	endpoint     string // Optional: fixed endpoint instead of the regional one
	tokenManager *TokenManager
	httpClient   *http.Client
	limiter      *rate.Limiter // nil means unlimited
	logger       *logger.Logger
}

// pipelineJob is the REST representation of a Vertex AI PipelineJob
type pipelineJob struct {
	Name           string            `json:"name,omitempty"`
	DisplayName    string            `json:"displayName,omitempty"`
	TemplateURI    string            `json:"templateUri,omitempty"`
	ServiceAccount string            `json:"serviceAccount,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	RuntimeConfig  *runtimeConfig    `json:"runtimeConfig,omitempty"`
	State          string            `json:"state,omitempty"`
	CreateTime     string            `json:"createTime,omitempty"`
	StartTime      string            `json:"startTime,omitempty"`
	EndTime        string            `json:"endTime,omitempty"`
	Error          *jobError         `json:"error,omitempty"`
}

type runtimeConfig struct {
	GcsOutputDirectory string                 `json:"gcsOutputDirectory,omitempty"`
	ParameterValues    map[string]interface{} `json:"parameterValues,omitempty"`
}

type jobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a new Vertex AI API client
func NewClient(endpoint string, tokenManager *TokenManager, timeout time.Duration, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		tokenManager: tokenManager,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       log,
	}
}

// SetRateLimit caps outgoing requests at rps per second. Concurrent triggers
// share one client, so this bounds their combined polling load on the API quota.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// baseURL returns the API root serving a location
func (c *Client) baseURL(location string) string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", location)
}

// doRequest performs an authenticated HTTP request with automatic token refresh
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	log := logger.FromContext(ctx, c.logger)
	log.Debug("provider: http request",
		"method", method,
		"url", rawURL)

	send := func() (*http.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("wait for rate limit: %w", err)
			}
		}

		token, err := c.tokenManager.GetToken(ctx)
		if err != nil {
			log.Error("provider: failed to get token", "error", err)
			return nil, fmt.Errorf("get token: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		return c.httpClient.Do(req)
	}

	resp, err := send()
	if err != nil {
		log.Error("provider: http request failed",
			"method", method,
			"url", rawURL,
			"error", err)
		return nil, err
	}

	log.Debug("provider: http response",
		"method", method,
		"url", rawURL,
		"status", resp.StatusCode)

	// If 401, invalidate token and retry once
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		log.Info("provider: received 401, invalidating token and retrying",
			"method", method,
			"url", rawURL)
		c.tokenManager.InvalidateToken()

		resp, err = send()
		if err != nil {
			log.Error("provider: retry request failed",
				"method", method,
				"url", rawURL,
				"error", err)
			return nil, err
		}
		log.Info("provider: retry request completed",
			"method", method,
			"url", rawURL,
			"status", resp.StatusCode)
	}

	return resp, nil
}

// CreatePipelineJob creates and starts a pipeline job
func (c *Client) CreatePipelineJob(ctx context.Context, project, location, jobID string, job *pipelineJob) (*pipelineJob, error) {
	rawURL := fmt.Sprintf("%s/v1/projects/%s/locations/%s/pipelineJobs",
		c.baseURL(location), url.PathEscape(project), url.PathEscape(location))
	if jobID != "" {
		rawURL += "?pipelineJobId=" + url.QueryEscape(jobID)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline job: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp, provider.ErrTemplateNotFound)
	}

	var created pipelineJob
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode pipeline job response: %w", err)
	}

	return &created, nil
}

// GetPipelineJob retrieves a pipeline job by resource name
func (c *Client) GetPipelineJob(ctx context.Context, name string) (*pipelineJob, error) {
	location, err := locationFromName(name)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/v1/%s", c.baseURL(location), name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp, provider.ErrJobNotFound)
	}

	var job pipelineJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode pipeline job: %w", err)
	}

	return &job, nil
}

// CancelPipelineJob requests cancellation of a pipeline job
func (c *Client) CancelPipelineJob(ctx context.Context, name string) error {
	location, err := locationFromName(name)
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/v1/%s:cancel", c.baseURL(location), name), []byte("{}"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return parseError(resp, provider.ErrJobNotFound)
	}

	return nil
}

// locationFromName extracts the location from
// projects/{project}/locations/{location}/pipelineJobs/{id}
func locationFromName(name string) (string, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "pipelineJobs" {
		return "", fmt.Errorf("invalid pipeline job name %q: %w", name, provider.ErrJobNotFound)
	}
	return parts[3], nil
}
