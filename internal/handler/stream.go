package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-record-engine/internal/notify"
)

// DefaultHeartbeat keeps idle SSE connections open through proxies.
const DefaultHeartbeat = 25 * time.Second

// StreamHandler pushes mutation events to Server-Sent Events clients.
type StreamHandler struct {
	hub       *notify.Hub
	heartbeat time.Duration
}

// NewStreamHandler panics on a nil hub.
func NewStreamHandler(hub *notify.Hub, heartbeat time.Duration) *StreamHandler {
	if hub == nil {
		panic("nil hub passed to NewStreamHandler")
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{hub: hub, heartbeat: heartbeat}
}

// Stream handles GET /v1/bookings/stream.  Each event is sent with the
// audit action as the SSE event name.  The connection ends when the
// client goes away or the hub drops the subscription.
func (h *StreamHandler) Stream(c echo.Context) error {
	events, cancel := h.hub.Subscribe()
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	fmt.Fprint(resp, ": connected\n\n")
	resp.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Action, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
