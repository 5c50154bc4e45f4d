package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowpatch/flowpatch/pkg/models"
)

const (
	apiKeyHeader       = "X-API-KEY"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodySize   = 4 * 1024
)

// HTTPClient talks to the platform's REST API. Timeouts live on the
// embedded http.Client; there are no retries here by design.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a platform client for the given base URL.
func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.With("module", "platform"),
	}
}

func (c *HTTPClient) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := c.call(ctx, http.MethodGet, "/api/v1/workflows/"+id, nil, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (c *HTTPClient) UpdateWorkflow(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	updated := &models.Workflow{}

	err := c.call(ctx, http.MethodPut, "/api/v1/workflows/"+id, workflow, updated)
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (c *HTTPClient) ActivateWorkflow(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/workflows/"+id+"/activate", nil, nil)
}

func (c *HTTPClient) DeactivateWorkflow(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/workflows/"+id+"/deactivate", nil, nil)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to serialize request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: method + " " + path, Detail: err.Error()}
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrWorkflowNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		return &UpstreamError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to parse platform response: %w", err)
	}

	return nil
}
