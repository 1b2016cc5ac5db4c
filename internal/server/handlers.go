// Package server provides HTTP handlers and server setup for the health proxy.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/core"
	"healthproxy/internal/metrics"
	"healthproxy/internal/prompts"
	"healthproxy/internal/usage"
)

// Handler holds the HTTP handlers
type Handler struct {
	openai  core.Provider
	gateway core.Provider
	usage   usage.Recorder
}

// NewHandler creates a handler. openai serves the dental and eye-test
// endpoints, gateway serves prescription analysis and health chat.
// A nil recorder disables usage tracking.
func NewHandler(openai, gateway core.Provider, recorder usage.Recorder) *Handler {
	if recorder == nil {
		recorder = usage.NoopLogger{}
	}
	return &Handler{
		openai:  openai,
		gateway: gateway,
		usage:   recorder,
	}
}

// endpoint describes one proxied function.
type endpoint struct {
	feature  string
	model    string
	provider core.Provider
	policy   statusPolicy
	stream   bool
	// build decodes and validates the body and returns the upstream request.
	build func(body []byte) (*core.ChatCompletionRequest, error)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// AnalyzeDental handles /functions/analyze-dental
func (h *Handler) AnalyzeDental(c echo.Context) error {
	return h.serve(c, endpoint{
		feature:  usage.FeatureDental,
		model:    prompts.DentalModel,
		provider: h.openai,
		policy:   genericPolicy,
		build: func(body []byte) (*core.ChatCompletionRequest, error) {
			var req core.DentalRequest
			if err := decodeBody(body, &req); err != nil {
				return nil, err
			}
			if err := validateImage(req.Image, "Image is required"); err != nil {
				return nil, err
			}
			return prompts.BuildDental(req), nil
		},
	})
}

// AnalyzeEyeTest handles /functions/analyze-eye-test
func (h *Handler) AnalyzeEyeTest(c echo.Context) error {
	return h.serve(c, endpoint{
		feature:  usage.FeatureEyeTest,
		model:    prompts.EyeTestModel,
		provider: h.openai,
		policy:   genericPolicy,
		build: func(body []byte) (*core.ChatCompletionRequest, error) {
			var req core.EyeTestRequest
			if err := decodeBody(body, &req); err != nil {
				return nil, err
			}
			if err := validateImage(req.Image, "Image is required"); err != nil {
				return nil, err
			}
			return prompts.BuildEyeTest(req), nil
		},
	})
}

// AnalyzePrescription handles /functions/analyze-prescription
func (h *Handler) AnalyzePrescription(c echo.Context) error {
	return h.serve(c, endpoint{
		feature:  usage.FeaturePrescription,
		model:    prompts.PrescriptionModel,
		provider: h.gateway,
		policy:   prescriptionPolicy,
		build: func(body []byte) (*core.ChatCompletionRequest, error) {
			var req core.PrescriptionRequest
			if err := decodeBody(body, &req); err != nil {
				return nil, err
			}
			if err := validateImage(req.ImageURL, "Image URL is required"); err != nil {
				return nil, err
			}
			return prompts.BuildPrescription(req), nil
		},
	})
}

// HealthChat handles /functions/health-chat. The answer is the upstream
// event stream relayed as it arrives.
func (h *Handler) HealthChat(c echo.Context) error {
	return h.serve(c, endpoint{
		feature:  usage.FeatureChat,
		model:    prompts.ChatModel,
		provider: h.gateway,
		policy:   chatPolicy,
		stream:   true,
		build: func(body []byte) (*core.ChatCompletionRequest, error) {
			var req core.ChatRequest
			if err := decodeBody(body, &req); err != nil {
				return nil, err
			}
			if len(req.Messages) == 0 {
				return nil, core.NewBadRequestError("Messages are required", nil)
			}
			return prompts.BuildChat(req), nil
		},
	})
}

// serve runs the shared pipeline: method check, read, validate, forward, shape.
func (h *Handler) serve(c echo.Context, ep endpoint) error {
	req := c.Request()
	switch req.Method {
	case http.MethodOptions:
		return c.NoContent(http.StatusOK)
	case http.MethodPost:
	default:
		return writeError(c, ep.feature, core.NewMethodNotAllowedError())
	}

	ctx := core.WithFeature(req.Context(), ep.feature)
	c.SetRequest(req.WithContext(ctx))

	start := time.Now()
	err := h.forward(c, ep)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			// Body limit: rendered by the echo error handler.
			h.record(c, ep, httpErr.Code, time.Since(start))
			return err
		}
		err = writeError(c, ep.feature, err)
	}
	h.record(c, ep, c.Response().Status, time.Since(start))
	return err
}

func (h *Handler) forward(c echo.Context, ep endpoint) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	upstreamReq, err := ep.build(body)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if ep.stream {
		stream, err := ep.provider.StreamComplete(ctx, upstreamReq)
		if err != nil {
			return ep.policy.translate(err)
		}
		relayStream(c, ep.feature, stream)
		return nil
	}

	analysis, err := ep.provider.Complete(ctx, upstreamReq)
	if err != nil {
		return ep.policy.translate(err)
	}
	return c.JSON(http.StatusOK, core.AnalysisResponse{Analysis: analysis})
}

// writeError translates err into the JSON error envelope.
func writeError(c echo.Context, feature string, err error) error {
	proxyErr := core.AsProxyError(err)
	status := proxyErr.HTTPStatusCode()

	ctx := c.Request().Context()
	attrs := []any{
		"feature", feature,
		"kind", proxyErr.Kind,
		"status", status,
		"error", err,
		"request_id", core.GetRequestID(ctx),
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", attrs...)
	} else {
		slog.WarnContext(ctx, "request rejected", attrs...)
	}

	return c.JSON(status, proxyErr.ToJSON())
}

// record emits the request metric and usage entry for a POST.
func (h *Handler) record(c echo.Context, ep endpoint, status int, elapsed time.Duration) {
	metrics.ObserveRequest(ep.feature, status)

	entry := usage.NewEntry(
		core.GetRequestID(c.Request().Context()),
		ep.feature,
		providerID(ep.provider),
		ep.model,
		status,
		elapsed,
	)
	entry.Streamed = ep.stream && status == http.StatusOK
	h.usage.Write(entry)
}

// providerID returns the provider's short ID when it has one.
func providerID(p core.Provider) string {
	if p == nil {
		return ""
	}
	if identified, ok := p.(interface{ ID() string }); ok {
		return identified.ID()
	}
	return strings.ToLower(p.Name())
}
