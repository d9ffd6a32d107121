// Package supabase implements the backend ports against a Supabase project:
// PostgREST tables, object storage, password auth, edge functions and the
// realtime change feed.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// DefaultTimeout bounds non-streaming requests.
const DefaultTimeout = 30 * time.Second

// Config holds the project endpoint and public key.
type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// Client handles HTTP communication with the backend.
type Client struct {
	httpClient *http.Client
	config     Config

	mu          sync.RWMutex
	accessToken string
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.config.Timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithAccessToken authenticates requests as a signed-in user.
func WithAccessToken(token string) ClientOption {
	return func(c *Client) {
		c.accessToken = token
	}
}

// NewClient creates a backend client with functional options.
func NewClient(config Config, opts ...ClientOption) *Client {
	config.URL = strings.TrimSuffix(config.URL, "/")
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetAccessToken replaces the user token sent with each request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken returns the current user token, if any.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// BaseURL returns the project URL.
func (c *Client) BaseURL() string { return c.config.URL }

// HTTPClient returns the underlying HTTP client, shared with sibling adapters.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// NewRequest builds a request for path with the project headers set.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, body)
	if err != nil {
		return nil, errors.NewError(errors.CodeService, "failed to create request", err)
	}

	bearer := c.AccessToken()
	if bearer == "" {
		bearer = c.config.AnonKey
	}
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// Do sends req and returns the response when the status is 2xx.
// Any other status is converted to a typed error and the body is closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewError(errors.CodeNetwork, "request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, HandleErrorResponse(resp)
	}
	return resp, nil
}

// doJSON sends body as JSON and decodes the response into dest when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, header http.Header, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewError(errors.CodeValidation, "failed to marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, path, reader, "application/json")
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.NewError(errors.CodeService, "failed to decode response", err)
	}
	return nil
}

// errorBody covers the error shapes returned by the REST, storage, auth and
// function endpoints.
type errorBody struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Code             any    `json:"code"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Message, b.ErrorDescription, b.Msg, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// HandleErrorResponse maps an HTTP error response to a typed error.
func HandleErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return errors.NewError(StatusCode(resp.StatusCode),
			fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode), err)
	}

	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.text() != "" {
		msg = eb.text()
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	e := errors.NewError(StatusCode(resp.StatusCode), fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg), nil)
	return errors.WithContext(e, "status", resp.StatusCode)
}

// StatusCode maps an HTTP status to an error code.
func StatusCode(status int) errors.ErrorCode {
	switch status {
	case http.StatusTooManyRequests:
		return errors.CodeRateLimited
	case http.StatusPaymentRequired:
		return errors.CodeQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CodeAuth
	case http.StatusNotFound:
		return errors.CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.CodeValidation
	default:
		return errors.CodeService
	}
}

// HealthCheck reports whether the backend answers at all. Any HTTP response,
// even an error status, counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.NewRequest(ctx, http.MethodGet, "/auth/v1/health", nil, "")
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.NewError(errors.CodeNetwork, "backend unreachable", err)
	}
	resp.Body.Close()
	return nil
}
