package handler

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/catalyst-dev/liveops/internal/core"
)

type createSessionRequest struct {
	Namespace string   `json:"namespace"`
	Pod       string   `json:"pod"`
	Container string   `json:"container"`
	Command   []string `json:"command"`
	TTY       *bool    `json:"tty"`
	Width     uint16   `json:"width"`
	Height    uint16   `json:"height"`
}

type sessionPayload struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	Active    bool   `json:"active"`
}

type resizeRequest struct {
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
}

// CreateSession opens an interactive command in the target pod. The
// session is interacted with through the stream, input, resize, and
// delete endpoints.
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tty := true
	if req.TTY != nil {
		tty = *req.TTY
	}
	session, err := h.shell.CreateSession(c.Request().Context(), core.ShellParams{
		Namespace:     req.Namespace,
		Pod:           req.Pod,
		Container:     req.Container,
		Command:       req.Command,
		TTY:           tty,
		InitialWidth:  req.Width,
		InitialHeight: req.Height,
	})
	if err != nil {
		return httpError(err)
	}
	h.log.Info("shell session created", "session", session.ID, "pod", req.Pod, "namespace", req.Namespace)
	return c.JSON(http.StatusCreated, sessionPayload{
		ID:        session.ID,
		Namespace: session.Namespace,
		Pod:       session.Pod,
		Container: session.Container,
		Active:    session.Active(),
	})
}

// StreamSession relays remote output as server-sent events: data
// events carry base64-encoded output chunks, and a final close event
// carries the decoded exit code.
func (h *Handler) StreamSession(c echo.Context) error {
	session, err := h.shell.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	resp := sseStart(c)
	buf := make([]byte, 4096)
	for {
		n, readErr := session.Stdout.Read(buf)
		if n > 0 {
			payload := base64.StdEncoding.EncodeToString(buf[:n])
			if err := sseEvent(resp, "data", map[string]string{"data": payload}); err != nil {
				return nil
			}
		}
		if readErr != nil {
			break
		}
	}

	select {
	case <-session.Done():
		if execErr := session.Err(); execErr != nil && session.ExitCode() == 1 {
			se := core.Classify(execErr)
			_ = sseEvent(resp, "error", map[string]any{"code": se.Code, "message": se.Message})
		}
		_ = sseEvent(resp, "close", map[string]int{"exitCode": session.ExitCode()})
	case <-c.Request().Context().Done():
	}
	return nil
}

// SessionInput feeds one input frame to the session. A frame starting
// with the resize control byte updates the terminal geometry; any
// other frame is forwarded to the remote stdin verbatim. Input to a
// finished session is silently discarded.
func (h *Handler) SessionInput(c echo.Context) error {
	session, err := h.shell.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	frame, err := core.DecodeInputFrame(body)
	if err != nil {
		return httpError(err)
	}
	if frame.Resize != nil {
		session.Resize(frame.Resize.Width, frame.Resize.Height)
	} else if len(frame.Data) > 0 {
		session.Write(frame.Data)
	}
	return c.NoContent(http.StatusNoContent)
}

// ResizeSession updates the remote terminal geometry.
func (h *Handler) ResizeSession(c echo.Context) error {
	session, err := h.shell.Get(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	session.Resize(req.Width, req.Height)
	return c.NoContent(http.StatusNoContent)
}

// CloseSession tears the session down. Closing an unknown or already
// closed session succeeds, so clients can retry safely.
func (h *Handler) CloseSession(c echo.Context) error {
	h.shell.Close(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
