// Package client provides HTTP client utilities for calling downstream
// services such as the audit-log service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/pkg/logger"
)

// maxErrorBodyBytes caps how much of an error response is read.
const maxErrorBodyBytes = 4 << 10

// BaseClient provides core HTTP client functionality for calling downstream services.
// It handles request/response marshaling, error parsing, and logging.
type BaseClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewBaseClient creates a new BaseClient for HTTP operations.
//
// Parameters:
//   - baseURL: Base URL for the service (e.g., "http://localhost:8000/api/v1/audit")
//   - timeout: HTTP request timeout duration
//   - logger: Structured logger for HTTP operations
func NewBaseClient(
	baseURL string,
	timeout time.Duration,
	logger *logrus.Logger,
) *BaseClient {
	return &BaseClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Do executes an HTTP request with JSON marshaling. The caller closes the
// response body.
func (c *BaseClient) Do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (*http.Response, error) {
	return c.do(ctx, c.httpClient, method, path, body)
}

func (c *BaseClient) do(
	ctx context.Context,
	httpClient *http.Client,
	method string,
	path string,
	body interface{},
) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	if id := logger.CorrelationID(ctx); id != "" {
		req.Header.Set(constants.HeaderXRequestID, id)
	}

	entry := logger.WithCorrelationID(ctx, c.logger).WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	})
	entry.Debug("Sending HTTP request")

	resp, err := httpClient.Do(req)
	if err != nil {
		entry.WithError(err).Warn("HTTP request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	entry.WithField("status", resp.StatusCode).Debug("Received HTTP response")
	return resp, nil
}

// BaseURL returns the configured base URL for this client.
func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *BaseClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ErrorResponse is the error body returned by downstream services.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ParseErrorResponse turns a non-success response into an error and closes
// its body.
func (c *BaseClient) ParseErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()

	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodyBytes)).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: failed to parse error response", resp.StatusCode)
	}

	errMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, errResp.Message)
	if errResp.Detail != "" {
		errMsg += fmt.Sprintf(" - %s", errResp.Detail)
	}
	return fmt.Errorf("%s", errMsg)
}
