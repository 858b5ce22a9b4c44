package api

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

	"github.com/google/uuid"
)

// Operation names carried by RequestError and used as metric labels.
const (
	OpGetPlans           = "get_plans"
	OpListSubscriptions  = "list_subscriptions"
	OpGetAnalytics       = "get_analytics"
	OpSaveSubscription   = "save_subscription"
	OpDeleteSubscription = "delete_subscription"
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard api error %d: %s", e.StatusCode, e.Message)
}

// RequestError is returned for any failed REST call: a non-2xx status
// (wrapping *APIError) or a network/decoding failure.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// doRequest performs an HTTP request and returns the response body.
// A non-nil body is sent as JSON.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" || len(msg) > 200 {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       respBody,
		}
	}

	return respBody, nil
}

// get performs a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, result any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}
