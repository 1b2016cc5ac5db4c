package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthproxy/internal/core"
	"healthproxy/internal/httpclient"
)

const testKeyEnv = "HEALTHPROXY_TEST_UPSTREAM_KEY"

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	t.Setenv(testKeyEnv, "sk-test")
	return New(Config{
		ID:        "openai",
		Name:      "OpenAI",
		BaseURL:   baseURL,
		APIKeyEnv: testKeyEnv,
		HTTP:      httpclient.DefaultConfig(),
	})
}

func sampleRequest() *core.ChatCompletionRequest {
	maxTokens := 1000
	return &core.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "system"},
			{Role: core.RoleUser, Content: []core.ContentPart{
				core.TextPart("look"),
				core.ImagePart("data:image/png;base64,AAAA", ""),
			}},
		},
		MaxTokens: &maxTokens,
	}
}

func TestComplete_Success(t *testing.T) {
	var received map[string]any
	var gotAuth, gotPath, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Healthy gums.\n"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	analysis, err := client.Complete(context.Background(), sampleRequest())

	require.NoError(t, err)
	assert.Equal(t, "  Healthy gums.\n", analysis, "content must be returned unmodified")
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "gpt-4o", received["model"])
	assert.EqualValues(t, 1000, received["max_tokens"])
	_, hasStream := received["stream"]
	assert.False(t, hasStream)
}

func TestComplete_TrailingSlashBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1/")
	analysis, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", analysis)
}

func TestComplete_MissingCredential(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	t.Setenv(testKeyEnv, "")

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), sampleRequest())
		var proxyErr *core.ProxyError
		require.ErrorAs(t, err, &proxyErr)
		assert.Equal(t, core.KindMisconfiguredCredential, proxyErr.Kind)
		assert.Equal(t, "OpenAI API key not configured", proxyErr.Message)
	}
	assert.Zero(t, atomic.LoadInt32(&calls), "no network I/O without a credential")
}

func TestComplete_CredentialReadPerCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	t.Setenv(testKeyEnv, "")
	_, err = client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, core.KindMisconfiguredCredential, core.AsProxyError(err).Kind)
}

func TestComplete_ErrorStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusPaymentRequired, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"secret upstream detail"}}`))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Complete(context.Background(), sampleRequest())

			var statusErr *core.UpstreamStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, status, statusErr.StatusCode)
			assert.Contains(t, string(statusErr.Body), "secret upstream detail")
			assert.NotContains(t, statusErr.Error(), "secret upstream detail")
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retries")
		})
	}
}

func TestComplete_MissingContent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no choices", body: `{"choices":[]}`},
		{name: "null content", body: `{"choices":[{"message":{"role":"assistant","content":null}}]}`},
		{name: "non-string content", body: `{"choices":[{"message":{"content":42}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Complete(context.Background(), sampleRequest())
			require.Error(t, err)

			var statusErr *core.UpstreamStatusError
			assert.False(t, errors.As(err, &statusErr))
			assert.Contains(t, err.Error(), "choices[0].message.content")
		})
	}
}

func TestComplete_EmptyStringContentIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer server.Close()

	content, err := newTestClient(t, server.URL).Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestComplete_ForwardsRequestID(t *testing.T) {
	tests := []struct {
		name      string
		requestID string
		want      string
	}{
		{name: "ascii", requestID: "req-123", want: "req-123"},
		{name: "non-ascii dropped", requestID: "req-ü", want: ""},
		{name: "too long dropped", requestID: strings.Repeat("a", 513), want: ""},
		{name: "exactly 512 kept", requestID: strings.Repeat("b", 512), want: strings.Repeat("b", 512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("X-Client-Request-Id")
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			ctx := core.WithRequestID(context.Background(), tt.requestID)
			_, err := client.Complete(ctx, sampleRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamComplete_ReturnsUnreadBody(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	req := sampleRequest()
	stream, err := client.StreamComplete(context.Background(), req)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n", string(data))
	assert.Equal(t, true, received["stream"])
	assert.False(t, req.Stream, "caller request must not be mutated")
}

func TestStreamComplete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	stream, err := client.StreamComplete(context.Background(), sampleRequest())

	assert.Nil(t, stream)
	var statusErr *core.UpstreamStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestStreamComplete_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.StreamComplete(ctx, sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewWithHTTPClient_NilUsesDefault(t *testing.T) {
	client := NewWithHTTPClient(Config{ID: "gateway", Name: "AI gateway"}, nil)
	assert.Same(t, http.DefaultClient, client.httpClient)
	assert.Equal(t, "AI gateway", client.Name())
	assert.Equal(t, "gateway", client.ID())
}

func TestIsValidClientRequestID(t *testing.T) {
	assert.True(t, isValidClientRequestID(""))
	assert.True(t, isValidClientRequestID("abc-123"))
	assert.False(t, isValidClientRequestID("日本"))
	assert.False(t, isValidClientRequestID(strings.Repeat("x", 513)))
}

func TestCredentialConfigured(t *testing.T) {
	t.Setenv(testKeyEnv, "  ")
	assert.False(t, CredentialConfigured(testKeyEnv))

	t.Setenv(testKeyEnv, "sk-live")
	assert.True(t, CredentialConfigured(testKeyEnv))
}
