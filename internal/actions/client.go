package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/blockrun/pkg/schema"
)

// HTTPConfig configures the API client shared by integration handlers.
type HTTPConfig struct {
	BaseURL         string
	MaxResponseBody int64
	Timeout         time.Duration
	Transport       http.RoundTripper // nil uses a clone of http.DefaultTransport
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPError is returned for responses outside the 2xx range.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// APIClient performs authenticated JSON calls against one upstream API.
// It is safe for concurrent use.
type APIClient struct {
	baseURL string
	maxBody int64
	client  *http.Client
}

// NewAPIClient creates a client rooted at cfg.BaseURL.
func NewAPIClient(cfg HTTPConfig) *APIClient {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxBody: cfg.MaxResponseBody,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
}

// BaseURL returns the root the client resolves paths against.
func (c *APIClient) BaseURL() string { return c.baseURL }

// Get issues a GET to path and returns the response body.
func (c *APIClient) Get(ctx context.Context, path, token string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, token, nil)
}

// Post issues a POST with body encoded as JSON and returns the response body.
func (c *APIClient) Post(ctx context.Context, path, token string, body any) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, token, body)
}

// Do sends one request. A nil body sends no payload. Non-2xx responses
// return *HTTPError; transport failures return an UPSTREAM_ERROR.
func (c *APIClient) Do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s %s: failed to marshal body", method, target).WithCause(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s %s: failed to create request", method, target).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s %s: request failed: %v", method, target, err).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "%s %s: failed to read response body", method, target).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       data,
		}
	}
	return data, nil
}
