package server

import (
	"errors"
	"fmt"
	"net/http"

	"healthproxy/internal/core"
)

const rateLimitMessage = "Rate limit exceeded. Please try again later."

// statusPolicy decides how a non-2xx upstream answer is shown to the caller.
type statusPolicy struct {
	// detailed maps 429 and 402 through; otherwise every status becomes 500.
	detailed       bool
	paymentMessage string
	failureMessage string
}

// genericPolicy reports every upstream failure as "<Provider> API error: <status>".
var genericPolicy = statusPolicy{}

var prescriptionPolicy = statusPolicy{
	detailed:       true,
	paymentMessage: "Service temporarily unavailable.",
	failureMessage: "Failed to analyze prescription",
}

var chatPolicy = statusPolicy{
	detailed:       true,
	paymentMessage: "Payment required. Please add credits.",
	failureMessage: "AI gateway error",
}

// translate converts an upstream status error into a ProxyError. Other
// errors are returned unchanged.
func (p statusPolicy) translate(err error) error {
	var statusErr *core.UpstreamStatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	if !p.detailed {
		return core.NewUpstreamFailureError(
			fmt.Sprintf("%s API error: %d", statusErr.Provider, statusErr.StatusCode), err)
	}

	switch statusErr.StatusCode {
	case http.StatusTooManyRequests:
		return core.NewRateLimitedError(rateLimitMessage, err)
	case http.StatusPaymentRequired:
		return core.NewPaymentRequiredError(p.paymentMessage, err)
	default:
		return core.NewUpstreamFailureError(p.failureMessage, err)
	}
}
