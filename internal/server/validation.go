package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/core"
)

const dataImagePrefix = "data:image/"

// readBody returns the raw request body. An empty body is a BadRequest; a
// body over the configured limit keeps echo's 413.
func readBody(c echo.Context) ([]byte, error) {
	body := c.Request().Body
	if body == nil {
		return nil, core.NewBadRequestError("Request body is required", nil)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		return nil, core.NewBadRequestError("Failed to read request body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.NewBadRequestError("Request body is required", nil)
	}
	return data, nil
}

// decodeBody unmarshals a JSON body into dst.
func decodeBody(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return core.NewBadRequestError("Invalid JSON body", err)
	}
	return nil
}

// validateImage accepts a base64 image data URL or an absolute http(s) URL.
// missing is the message used when value is empty.
func validateImage(value, missing string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return core.NewBadRequestError(missing, nil)
	}

	if len(value) >= len(dataImagePrefix) && strings.EqualFold(value[:len(dataImagePrefix)], dataImagePrefix) {
		meta, payload, ok := strings.Cut(value, ",")
		if ok && payload != "" && strings.HasSuffix(strings.ToLower(meta), ";base64") {
			return nil
		}
		return core.NewBadRequestError("Invalid image: data URL must be base64 encoded", nil)
	}

	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.NewBadRequestError("Invalid image: expected a data:image base64 URL or an http(s) URL", err)
	}
	return nil
}
