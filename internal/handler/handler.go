package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/catalyst-dev/liveops/internal/config"
	"github.com/catalyst-dev/liveops/internal/core"
	"github.com/catalyst-dev/liveops/internal/metrics"
)

// Handler exposes the live-operations API over HTTP: watch streams,
// log reads, and interactive shell sessions, plus the health and
// metrics endpoints.
type Handler struct {
	conf    *config.Config
	watch   *core.WatchUseCase
	logs    *core.LogUseCase
	shell   *core.ShellUseCase
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(
	conf *config.Config,
	watch *core.WatchUseCase,
	logs *core.LogUseCase,
	shell *core.ShellUseCase,
	metrics *metrics.Metrics,
) *Handler {
	return &Handler{
		conf:    conf,
		watch:   watch,
		logs:    logs,
		shell:   shell,
		metrics: metrics,
		log:     slog.Default().With("component", "handler"),
	}
}

// Mount registers every route on the echo instance.
func (h *Handler) Mount(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/watch", h.Watch)
	v1.GET("/logs", h.GetLogs)
	v1.GET("/logs/stream", h.StreamLogs)
	v1.POST("/sessions", h.CreateSession)
	v1.GET("/sessions/:id/stream", h.StreamSession)
	v1.POST("/sessions/:id/input", h.SessionInput)
	v1.POST("/sessions/:id/resize", h.ResizeSession)
	v1.DELETE("/sessions/:id", h.CloseSession)
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
