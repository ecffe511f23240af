package handler

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/catalyst-dev/liveops/internal/core"
)

// httpError maps a normalized failure onto an echo HTTP error.
func httpError(err error) error {
	se := core.Classify(err)
	return echo.NewHTTPError(int(se.Code), se.Message)
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(400, fmt.Sprintf("invalid %s: %s", name, raw))
	}
	return &n, nil
}

// queryBool parses an optional boolean query parameter, returning def
// when absent.
func queryBool(c echo.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// sseStart switches the response into server-sent-events mode.
func sseStart(c echo.Context) *echo.Response {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(200)
	resp.Flush()
	return resp
}

// sseEvent writes one event and flushes it to the client.
func sseEvent(resp *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
