package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthproxy/internal/core"
)

func newTestServer(cfg *Config) (*Server, *mockProvider, *mockProvider) {
	h, openai, gateway, _ := newTestHandler()
	return New(h, cfg), openai, gateway
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", h.Get("Access-Control-Allow-Headers"))
}

func TestRequestIDMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == "" {
			t.Fatal("expected X-Request-ID in response header, got empty")
		}
		// Validate UUID format (8-4-4-4-12 hex digits)
		if len(got) != 36 {
			t.Errorf("expected UUID (36 chars), got %q (%d chars)", got, len(got))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "my-custom-id" {
			t.Errorf("expected response header X-Request-ID to be %q, got %q", "my-custom-id", got)
		}
	})

	t.Run("request ID reaches usage entries", func(t *testing.T) {
		openai := &mockProvider{name: "OpenAI", id: "openai", content: "ok"}
		recorder := &recordingUsage{}
		srv := New(NewHandler(openai, &mockProvider{name: "AI gateway"}, recorder), nil)

		req := httptest.NewRequest(http.MethodPost, DentalPath, strings.NewReader(`{"image":"`+testImage+`"}`))
		req.Header.Set("X-Request-ID", "trace-42")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		entries := recorder.all()
		require.Len(t, entries, 1)
		assert.Equal(t, "trace-42", entries[0].RequestID)
	})
}

func TestCORSOnEveryResponse(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"options", http.MethodOptions, DentalPath, "", http.StatusOK},
		{"method not allowed", http.MethodGet, EyeTestPath, "", http.StatusMethodNotAllowed},
		{"bad request", http.MethodPost, PrescriptionPath, "", http.StatusBadRequest},
		{"success", http.MethodPost, DentalPath, `{"image":"` + testImage + `"}`, http.StatusOK},
		{"stream", http.MethodPost, HealthChatPath, `{"messages":[{"role":"user","content":"Hi"}]}`, http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(nil)
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assertCORS(t, rec.Header())
		})
	}
}

func TestRoutes_OptionsHasEmptyBody(t *testing.T) {
	for _, path := range []string{DentalPath, EyeTestPath, PrescriptionPath, HealthChatPath} {
		srv, _, _ := newTestServer(nil)
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Zero(t, rec.Body.Len(), path)
	}
}

func TestRoutes_MethodNotAllowedEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodPut, HealthChatPath, strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
}

func TestErrorHandler_NotFoundEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/functions/unknown", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	srv, openai, _ := newTestServer(&Config{BodySizeLimit: 1024})
	body := `{"image":"data:image/png;base64,` + strings.Repeat("A", 4096) + `"}`
	req := httptest.NewRequest(http.MethodPost, DentalPath, strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
	assertCORS(t, rec.Header())
	assert.Zero(t, openai.calls)
}

func TestEndToEnd_StreamHeaders(t *testing.T) {
	srv, _, gateway := newTestServer(nil)
	gateway.chunks = []string{"data: one\n\n", "data: [DONE]\n\n"}

	req := httptest.NewRequest(http.MethodPost, HealthChatPath, strings.NewReader(`{"messages":[{"role":"user","content":"Hi"}]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "data: one\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestEndToEnd_StreamHandshakeFailureIsJSON(t *testing.T) {
	srv, _, gateway := newTestServer(nil)
	gateway.err = &core.UpstreamStatusError{Provider: "AI gateway", StatusCode: http.StatusTooManyRequests}

	req := httptest.NewRequest(http.MethodPost, HealthChatPath, strings.NewReader(`{"messages":[{"role":"user","content":"Hi"}]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())
}

func TestRequestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(&Config{MetricsEnabled: true})

	req := httptest.NewRequest(http.MethodPost, PrescriptionPath, strings.NewReader(`{}`))
	srv.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `healthproxy_requests_total{feature="prescription",status="400"}`)
}

func TestAdminGroupRegistration(t *testing.T) {
	h, _, _, _ := newTestHandler()
	srv := New(h, &Config{RegisterAdmin: func(g *echo.Group) {
		g.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	}})

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/ping", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		requestPath    string
		expectedStatus int
		expectBody     string // substring to check in response body
	}{
		{
			name: "metrics enabled - default endpoint accessible",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines", // Standard Go runtime metric
		},
		{
			name: "metrics enabled - empty endpoint defaults to /metrics",
			config: &Config{
				MetricsEnabled: true,
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name: "metrics disabled - endpoint returns 404",
			config: &Config{
				MetricsEnabled:  false,
				MetricsEndpoint: "/metrics",
			},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "nil config - metrics disabled by default",
			config:         nil,
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "custom metrics endpoint path is cleaned",
			config: &Config{
				MetricsEnabled:  true,
				MetricsEndpoint: "/internal/../custom-metrics/",
			},
			requestPath:    "/custom-metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(tt.config)

			req := httptest.NewRequest(http.MethodGet, tt.requestPath, nil)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}

			if tt.expectBody != "" && !strings.Contains(rec.Body.String(), tt.expectBody) {
				t.Errorf("expected body to contain %q, got: %s", tt.expectBody, rec.Body.String())
			}
		})
	}
}
