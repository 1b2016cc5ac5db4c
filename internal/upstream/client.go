// Package upstream forwards chat completion requests to OpenAI-compatible providers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"healthproxy/internal/core"
	"healthproxy/internal/httpclient"
	"healthproxy/internal/metrics"
)

const completionsEndpoint = "/chat/completions"

// maxErrorBody caps how much of a failed upstream answer is kept for logs.
const maxErrorBody = 64 << 10

// Config holds configuration for one upstream provider.
type Config struct {
	// ID is the short identifier used in metrics and usage records ("openai", "gateway").
	ID string

	// Name is the provider name used in client-facing messages ("OpenAI").
	Name string

	// BaseURL is the API base URL, without the /chat/completions suffix.
	BaseURL string

	// APIKeyEnv names the environment variable holding the bearer token.
	APIKeyEnv string

	// HTTP configures the underlying transport.
	HTTP httpclient.ClientConfig
}

// Client implements core.Provider against an OpenAI-compatible API.
// It performs exactly one attempt per call.
type Client struct {
	config       Config
	httpClient   *http.Client
	streamClient *http.Client
	getenv       func(string) string
}

var _ core.Provider = (*Client)(nil)

// New creates a client with separate transports for buffered and streamed calls.
func New(cfg Config) *Client {
	streaming := cfg.HTTP.ForStreaming()
	return &Client{
		config:       cfg,
		httpClient:   httpclient.NewHTTPClient(&cfg.HTTP),
		streamClient: httpclient.NewHTTPClient(&streaming),
		getenv:       os.Getenv,
	}
}

// NewWithHTTPClient creates a client that uses httpClient for every call.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:       cfg,
		httpClient:   httpClient,
		streamClient: httpClient,
		getenv:       os.Getenv,
	}
}

// Name returns the provider name used in error messages.
func (c *Client) Name() string {
	return c.config.Name
}

// ID returns the short provider identifier.
func (c *Client) ID() string {
	return c.config.ID
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Complete sends a non-streaming request and returns choices[0].message.content.
// Content that is absent or not a string is an error.
func (c *Client) Complete(ctx context.Context, req *core.ChatCompletionRequest) (string, error) {
	resp, err := c.send(ctx, c.httpClient, req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.config.Name, err)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if content.Type != gjson.String {
		return "", fmt.Errorf("%s response has no choices[0].message.content", c.config.Name)
	}
	return content.String(), nil
}

// StreamComplete sends a streaming request and returns the unread event stream.
// The caller must close it.
func (c *Client) StreamComplete(ctx context.Context, req *core.ChatCompletionRequest) (io.ReadCloser, error) {
	resp, err := c.send(ctx, c.streamClient, req.WithStreaming())
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// send performs the request and returns the response only for 2xx status codes.
func (c *Client) send(ctx context.Context, client *http.Client, req *core.ChatCompletionRequest) (*http.Response, error) {
	apiKey := strings.TrimSpace(c.getenv(c.config.APIKeyEnv))
	if apiKey == "" {
		return nil, core.NewMisconfiguredCredentialError(c.config.Name)
	}

	httpReq, err := c.buildRequest(ctx, apiKey, req)
	if err != nil {
		return nil, err
	}

	feature := core.GetFeature(ctx)
	start := time.Now()
	resp, err := client.Do(httpReq)
	metrics.ObserveUpstream(c.config.ID, feature, time.Since(start))
	if err != nil {
		metrics.ObserveUpstreamError(c.config.ID, 0)
		return nil, fmt.Errorf("send request to %s: %w", c.config.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		metrics.ObserveUpstreamError(c.config.ID, resp.StatusCode)
		slog.ErrorContext(ctx, "upstream returned error status",
			"provider", c.config.ID,
			"feature", feature,
			"status", resp.StatusCode,
			"body", string(body),
			"request_id", core.GetRequestID(ctx),
		)
		return nil, &core.UpstreamStatusError{
			Provider:   c.config.Name,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, apiKey string, req *core.ChatCompletionRequest) (*http.Request, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", c.config.Name, err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + completionsEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.config.Name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	// Providers reject non-ASCII or oversized client request IDs with a 400.
	if requestID := core.GetRequestID(ctx); requestID != "" && isValidClientRequestID(requestID) {
		httpReq.Header.Set("X-Client-Request-Id", requestID)
	}
	return httpReq, nil
}

// CredentialConfigured reports whether the environment variable apiKeyEnv
// currently holds a non-blank key. The value is re-read on every call.
func CredentialConfigured(apiKeyEnv string) bool {
	return strings.TrimSpace(os.Getenv(apiKeyEnv)) != ""
}

// isValidClientRequestID reports whether id is ASCII-only and at most 512 bytes.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}
