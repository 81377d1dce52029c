// Package client sends streaming chat requests to a vendor endpoint and hands
// the response body to the normalization pipeline.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/credentials"
	"github.com/papercomputeco/deltas/pkg/llm"
	"github.com/papercomputeco/deltas/pkg/llm/provider"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/sse"
	"github.com/papercomputeco/deltas/pkg/stream"
)

// ErrMissingCredential is returned before any request when the provider needs
// an API key and none is configured.
var ErrMissingCredential = credentials.ErrMissingCredential

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	// Provider encodes requests and decodes the stream. Required.
	Provider provider.Provider

	// Endpoint overrides the provider's default endpoint.
	Endpoint string

	// APIKey authenticates requests.
	APIKey string

	// Headers are added to every request after the provider's auth headers.
	Headers http.Header

	// HTTPClient defaults to a client with a five minute timeout.
	HTTPClient *http.Client

	// Logger defaults to a nop logger.
	Logger *slog.Logger

	// IDs mints unit ids for every stream. Defaults to uuids.
	IDs chunk.IDSource

	// Record receives a verbatim copy of every response body read.
	Record io.Writer
}

// Client streams chat completions from one provider.
type Client struct {
	provider   provider.Provider
	endpoint   string
	apiKey     string
	headers    http.Header
	httpClient *http.Client
	logger     *slog.Logger
	ids        chunk.IDSource
	record     io.Writer
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: provider is required", llm.ErrInvalidRequest)
	}

	c := &Client{
		provider:   cfg.Provider,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		headers:    cfg.Headers,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		ids:        cfg.IDs,
		record:     cfg.Record,
	}
	if c.endpoint == "" {
		c.endpoint = cfg.Provider.DefaultEndpoint()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		}
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.logger = c.logger.With("provider", cfg.Provider.Name())

	return c, nil
}

// Provider returns the provider the client talks to.
func (c *Client) Provider() provider.Provider {
	return c.provider
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Stream sends req and returns the normalized stream of the response. A
// missing credential or an invalid request fails before anything is sent; a
// non-200 response is returned as a *StatusError. Nothing is retried.
//
// The caller owns the returned stream and must Close it.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest) (*stream.Stream, error) {
	if c.apiKey == "" && credentials.RequiresKey(c.provider.Name()) {
		return nil, fmt.Errorf("%w for %s", ErrMissingCredential, c.provider.Name())
	}

	effective := *req
	if effective.Model == "" {
		effective.Model = c.provider.DefaultModel()
	}
	if err := effective.Validate(); err != nil {
		return nil, err
	}

	body, err := c.provider.EncodeRequest(&effective)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", acceptFor(c.provider.Framing()))
	c.provider.Authorize(httpReq.Header, c.apiKey)
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	c.logger.Debug("sending streaming request",
		"endpoint", c.endpoint,
		"model", effective.Model,
		"messages", len(effective.Messages),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", c.endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := newStatusError(resp, respBody)
		c.logger.Error("upstream returned error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, statusErr
	}

	src := sse.NewFragmentReader(resp.Body, c.record)
	return stream.New(src, c.provider, stream.Options{
		IDs:    c.ids,
		Logger: c.logger,
	}), nil
}

func acceptFor(f sse.Framing) string {
	if f == sse.FramingNDJSON {
		return "application/x-ndjson"
	}
	return "text/event-stream"
}
