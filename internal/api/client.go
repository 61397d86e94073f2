// Package api provides the authenticated REST client for the MeliCheck
// backend. The agent mirrors the backend's wire format, it does not define
// one: every response body is the usual {"result": ...} envelope.
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

	apperrors "github.com/melicheck/fieldsync/internal/errors"
)

// TokenSource supplies the bearer token for outgoing requests. An empty
// string means no Authorization header is sent.
type TokenSource func() string

// Client is an HTTP client for the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewClient creates a Client against baseURL. The timeout bounds every
// request; the sync core itself never imposes deadlines.
func NewClient(baseURL string, timeout time.Duration, token TokenSource) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}
}

// StatusError is a non-2xx response from the backend, as opposed to a
// transport failure.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// IsNetworkError reports whether err is a transport-level failure (no
// response from the server at all).
func IsNetworkError(err error) bool {
	return apperrors.Is(err, apperrors.ErrNetwork)
}

// IsDuplicate reports whether the server rejected the write as a duplicate
// of one it already accepted (idempotency-key collision).
func IsDuplicate(err error) bool {
	if se, ok := asStatusError(err); ok {
		return se.StatusCode == http.StatusConflict
	}
	return false
}

// IsTerminal reports whether err is a permanent rejection that retrying
// cannot fix: a 4xx other than 408 (timeout), 409 (duplicate) and 429
// (throttling). Network failures and 5xx are transient.
func IsTerminal(err error) bool {
	se, ok := asStatusError(err)
	if !ok {
		return false
	}
	if se.StatusCode < 400 || se.StatusCode >= 500 {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return true
}

func asStatusError(err error) (*StatusError, bool) {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			return se, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// do performs a request and returns the raw result payload.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode request body", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("reading %s %s response failed", method, path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.Message != "" {
			se.Message = env.Message
		}
		return nil, se
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, fmt.Sprintf("decoding %s %s response failed", method, path), err)
	}
	return env.Result, nil
}

// Get performs a GET and returns the raw result payload. The response cache
// wraps this for read operations.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post performs a POST with a JSON body and returns the raw result payload.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}
