// Package functions calls the backend's serverless functions: crop inference,
// the streaming chat assistant, translation and weather.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jbctechsolutions/cropcare/internal/adapters/supabase"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// Config names the deployed functions and the client-side request rate.
type Config struct {
	Analyze   string
	Chat      string
	Translate string
	Weather   string

	RequestsPerSecond float64
	Burst             int
}

// Client invokes functions through the backend client.
type Client struct {
	base    *supabase.Client
	config  Config
	limiter *rate.Limiter
	logger  *logging.Logger
	now     func() time.Time
}

var (
	_ ports.InferencePort  = (*Client)(nil)
	_ ports.ChatStreamPort = (*Client)(nil)
	_ ports.TranslatorPort = (*Client)(nil)
	_ ports.WeatherPort    = (*Client)(nil)
)

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLimiter replaces the request limiter.
func WithLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// NewClient creates a functions client. A non-positive rate disables limiting.
func NewClient(base *supabase.Client, config Config, opts ...ClientOption) *Client {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		base:    base,
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// invoke posts body to the named function and returns the 2xx response.
func (c *Client) invoke(ctx context.Context, name string, body any, accept string) (*http.Response, error) {
	if name == "" {
		return nil, errors.NewError(errors.CodeConfiguration, "function name not configured", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewError(errors.CodeRateLimited, "client request rate exceeded", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "failed to marshal request", err)
	}
	req, err := c.base.NewRequest(ctx, http.MethodPost, "/functions/v1/"+name, bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.base.Do(req)
}

// functionError is the body a function returns when it fails with a 2xx status.
type functionError struct {
	Error string `json:"error"`
}

func (c *Client) invokeJSON(ctx context.Context, name string, body, dest any) error {
	resp, err := c.invoke(ctx, name, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewError(errors.CodeNetwork, "failed to read response", err)
	}
	var fe functionError
	if json.Unmarshal(raw, &fe) == nil && fe.Error != "" {
		return errors.NewError(errors.CodeService, fmt.Sprintf("%s: %s", name, fe.Error), nil)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.NewError(errors.CodeService, "failed to decode "+name+" response", err)
	}
	return nil
}

// Analyze runs disease detection for an uploaded image.
func (c *Client) Analyze(ctx context.Context, req ports.InferenceRequest) (*analysis.InferenceResponse, error) {
	var out analysis.InferenceResponse
	if err := c.invokeJSON(ctx, c.config.Analyze, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamChat streams the assistant reply, calling cb for each delta.
// A cb error stops the stream and is returned as is.
func (c *Client) StreamChat(ctx context.Context, req ports.ChatRequest, cb ports.StreamCallback) (string, error) {
	resp, err := c.invoke(ctx, c.config.Chat, req, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
		return c.singleReply(resp.Body, cb)
	}

	var (
		dec  sseDecoder
		full strings.Builder
		buf  = make([]byte, 4096)
	)
	emit := func(deltas []string) error {
		for _, d := range deltas {
			full.WriteString(d)
			if err := cb(d); err != nil {
				return err
			}
		}
		return nil
	}

	for !dec.Done() {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := emit(dec.Feed(buf[:n])); err != nil {
				return full.String(), err
			}
		}
		if readErr == io.EOF {
			if err := emit(dec.Flush()); err != nil {
				return full.String(), err
			}
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return full.String(), ctxErr
			}
			return full.String(), errors.NewError(errors.CodeNetwork, "chat stream interrupted", readErr)
		}
	}

	if dec.malformed > 0 {
		c.logger.Debug("skipped malformed stream chunks", "count", dec.malformed)
	}
	return full.String(), nil
}

// singleReply handles a function that answered without streaming.
func (c *Client) singleReply(body io.Reader, cb ports.StreamCallback) (string, error) {
	var out struct {
		Content  string `json:"content"`
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return "", errors.NewError(errors.CodeService, "failed to decode chat response", err)
	}
	if out.Error != "" {
		return "", errors.NewError(errors.CodeService, "chat: "+out.Error, nil)
	}
	text := out.Content
	if text == "" {
		text = out.Response
	}
	if text != "" {
		if err := cb(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// Translate returns the translation of req.Text.
func (c *Client) Translate(ctx context.Context, req ports.TranslateRequest) (string, error) {
	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := c.invokeJSON(ctx, c.config.Translate, req, &out); err != nil {
		return "", err
	}
	if out.TranslatedText == "" {
		return "", errors.NewError(errors.CodeService, "translation response was empty", nil)
	}
	return out.TranslatedText, nil
}

type weatherRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Forecast fetches current conditions and the daily outlook for a position.
func (c *Client) Forecast(ctx context.Context, lat, lng float64) (*ports.Forecast, error) {
	var out ports.Forecast
	if err := c.invokeJSON(ctx, c.config.Weather, weatherRequest{Lat: lat, Lng: lng}, &out); err != nil {
		return nil, err
	}
	if out.FetchedAt.IsZero() {
		out.FetchedAt = c.now()
	}
	return &out, nil
}
