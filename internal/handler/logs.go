package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/catalyst-dev/liveops/internal/core"
)

type logsPayload struct {
	Text      string    `json:"text"`
	Target    string    `json:"target"`
	Pods      []string  `json:"pods"`
	Timestamp time.Time `json:"timestamp"`
}

type logLinePayload struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

type logErrorPayload struct {
	Target  string `json:"target"`
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) logScope(c echo.Context) core.LogScope {
	return core.LogScope{
		Namespace: c.QueryParam("namespace"),
		Pod:       c.QueryParam("pod"),
		Selector:  c.QueryParam("selector"),
		Container: c.QueryParam("container"),
	}
}

func (h *Handler) logOptions(c echo.Context, defaultTail bool) (core.LogOptions, error) {
	opts := core.LogOptions{
		Timestamps: queryBool(c, "timestamps", false),
		Previous:   queryBool(c, "previous", false),
	}
	tail, err := queryInt64(c, "tailLines")
	if err != nil {
		return opts, err
	}
	if tail == nil && defaultTail {
		n := h.conf.LogsTailDefault()
		tail = &n
	}
	opts.TailLines = tail

	opts.SinceSeconds, err = queryInt64(c, "sinceSeconds")
	if err != nil {
		return opts, err
	}
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, echo.NewHTTPError(http.StatusBadRequest, "invalid since: "+raw)
		}
		opts.SinceTime = &t
	}
	return opts, nil
}

// GetLogs returns a one-shot log read. A pod parameter targets one
// pod; a selector parameter fans out over every matching pod and
// aggregates the outputs with per-pod prefixes.
func (h *Handler) GetLogs(c echo.Context) error {
	opts, err := h.logOptions(c, true)
	if err != nil {
		return err
	}
	bundle, err := h.logs.GetLogs(c.Request().Context(), h.logScope(c), opts)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, logsPayload{
		Text:      bundle.Text,
		Target:    bundle.Target,
		Pods:      bundle.Pods,
		Timestamp: bundle.Timestamp,
	})
}

// StreamLogs follows logs as server-sent events. The target set is
// snapshotted when the stream starts; with more than one target each
// line is prefixed with the pod it came from. A failing target emits
// an error event and its siblings keep streaming; the stream ends
// when every target has ended.
func (h *Handler) StreamLogs(c echo.Context) error {
	opts, err := h.logOptions(c, false)
	if err != nil {
		return err
	}
	stream, err := h.logs.StreamLogs(c.Request().Context(), h.logScope(c), opts)
	if err != nil {
		return httpError(err)
	}
	defer stream.Stop()

	prefixed := len(stream.Targets()) > 1
	resp := sseStart(c)
	if err := sseEvent(resp, "targets", stream.Targets()); err != nil {
		return nil
	}
	for msg := range stream.Messages() {
		if msg.Err != nil {
			err = sseEvent(resp, "error", logErrorPayload{
				Target:  msg.Target,
				Code:    msg.Err.Code,
				Message: msg.Err.Message,
			})
		} else {
			text := msg.Line
			if prefixed {
				text = "[" + msg.Target + "] " + text
			}
			err = sseEvent(resp, "line", logLinePayload{Target: msg.Target, Text: text})
		}
		if err != nil {
			return nil
		}
	}
	return sseEvent(resp, "end", map[string]bool{"done": true})
}
