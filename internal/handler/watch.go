package handler

import (
	"github.com/labstack/echo/v4"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/catalyst-dev/liveops/internal/core"
)

type watchErrorPayload struct {
	Code    int32  `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type watchChangePayload struct {
	Type   string `json:"type"`
	Object any    `json:"object"`
}

// Watch streams resource changes as server-sent events. Without a
// namespace parameter the watch is cluster-wide. The stream reconnects
// transparently on transport failures; the client only sees an error
// event when the session gives up for good.
func (h *Handler) Watch(c echo.Context) error {
	gvr := schema.GroupVersionResource{
		Group:    c.QueryParam("group"),
		Version:  c.QueryParam("version"),
		Resource: c.QueryParam("resource"),
	}
	if gvr.Version == "" {
		gvr.Version = "v1"
	}

	opts := core.WatchOptions{
		Scope:            core.WatchScope{Resource: gvr},
		LabelSelector:    c.QueryParam("labelSelector"),
		FieldSelector:    c.QueryParam("fieldSelector"),
		ResourceVersion:  c.QueryParam("resourceVersion"),
		DisableReconnect: !queryBool(c, "reconnect", true),
		MaxReconnects:    h.conf.WatchMaxReconnects(),
		BackoffBase:      h.conf.WatchBackoffBase(),
		BackoffCap:       h.conf.WatchBackoffCap(),
	}

	ctx := c.Request().Context()
	var session *core.WatchSession
	var err error
	if ns := c.QueryParam("namespace"); ns != "" {
		session, err = h.watch.WatchNamespace(ctx, ns, opts)
	} else {
		session, err = h.watch.WatchCluster(ctx, opts)
	}
	if err != nil {
		return httpError(err)
	}
	defer session.Stop()

	resp := sseStart(c)
	for msg := range session.Messages() {
		switch msg.Kind {
		case core.WatchConnected:
			err = sseEvent(resp, "connected", map[string]string{
				"resourceVersion": session.ResourceVersion(),
			})
		case core.WatchChange:
			err = sseEvent(resp, "change", watchChangePayload{
				Type:   string(msg.Event.Type),
				Object: msg.Event.Object,
			})
		case core.WatchFailed:
			err = sseEvent(resp, "error", watchErrorPayload{
				Code:    msg.Err.Code,
				Reason:  msg.Err.Reason,
				Message: msg.Err.Message,
			})
		}
		if err != nil {
			// Client went away; the deferred stop tears the session
			// down.
			return nil
		}
	}
	return nil
}
