package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/core"
	"healthproxy/internal/metrics"
)

const relayBufferSize = 32 << 10

// relayStream copies the upstream event stream to the client one read at a
// time, flushing after each write so chunks reach the client as they arrive.
// Client writes block the next upstream read. Headers are committed here, so
// failures after this point are only logged.
func relayStream(c echo.Context, feature string, stream io.ReadCloser) {
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	buf := make([]byte, relayBufferSize)
	var total int64
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, err := res.Write(buf[:n]); err != nil {
				slog.WarnContext(ctx, "client write failed during stream",
					"feature", feature, "bytes", total, "error", err,
					"request_id", core.GetRequestID(ctx))
				return
			}
			res.Flush()
			total += int64(n)
			metrics.AddStreamedBytes(feature, n)
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				slog.WarnContext(ctx, "upstream stream ended with error",
					"feature", feature, "bytes", total, "error", readErr,
					"request_id", core.GetRequestID(ctx))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
