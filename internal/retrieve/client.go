// Package retrieve provides the HTTP client for the external
// knowledge retrieval service that generates chat answers.
package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single retrieval round trip. Generation is
// slow; three minutes matches the upstream service's own cutoff.
const DefaultTimeout = 3 * time.Minute

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// Request is the payload sent to the retrieval service.
type Request struct {
	Query      string `json:"query"`
	ClientName string `json:"client_name"`
}

// Response is the retrieval service's answer.
type Response struct {
	GeneratedResponse string `json:"generated_response"`
	Error             string `json:"error,omitempty"`
}

// UpstreamError reports a non-2xx status or an error field from the
// retrieval service. The status code is passed through to the caller
// so the HTTP boundary can mirror it.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream retrieval failed (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the retrieval service. The zero value is not usable;
// use NewClient.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a retrieval client for the given endpoint URL.
// timeout <= 0 uses DefaultTimeout. logger nil uses slog.Default().
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}
}

// Retrieve sends one query to the retrieval service and returns the
// generated answer. There is a single attempt per call; retries are
// the caller's decision.
//
// Failures surface as:
//   - *UpstreamError for a non-2xx status or an upstream error field
//   - context.DeadlineExceeded (wrapped) when the timeout elapses
func (c *Client) Retrieve(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode retrieval request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build retrieval request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call retrieval service: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read retrieval response: %w", err)
	}

	c.logger.Debug("retrieval round trip",
		"status", httpResp.StatusCode,
		"duration", time.Since(start),
		"client_name", req.ClientName)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: httpResp.StatusCode,
			Message:    upstreamMessage(body),
		}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}
	if resp.Error != "" {
		return nil, &UpstreamError{
			StatusCode: http.StatusBadGateway,
			Message:    resp.Error,
		}
	}
	return &resp, nil
}

// IsTimeout reports whether err is a deadline expiry on the retrieval
// round trip.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// upstreamMessage extracts a human-readable message from an upstream
// error body, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error != "":
			return parsed.Error
		case parsed.Message != "":
			return parsed.Message
		case parsed.Detail != "":
			return parsed.Detail
		}
	}
	if len(body) == 0 {
		return "empty response body"
	}
	return string(body)
}
