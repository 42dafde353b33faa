package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/notifier"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type observerMessage struct {
	Action string `json:"action"`
	TaskID string `json:"task_id"`
}

// handleObserve upgrades GET /ws/tasks and drives one observer's
// lifecycle (§6.1 "Observe"): connect, send_snapshot, then read inbound
// {action:"cancel", task_id} messages until the socket closes.
func (h *handlers) handleObserve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("httpapi: websocket upgrade failed: %v", err)
		return
	}

	h.deps.Notifier.Connect(conn)
	defer h.deps.Notifier.Disconnect(conn)

	ctx := c.Request.Context()
	tasks, err := h.deps.Manager.Snapshot(ctx)
	if err != nil {
		h.logger.Warn("httpapi: building initial snapshot failed: %v", err)
		return
	}
	if err := h.deps.Notifier.SendSnapshot(conn, tasks); err != nil {
		h.logger.Warn("httpapi: send_snapshot failed: %v", err)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !notifier.IsCloseError(err) {
				h.logger.Debug("httpapi: observer read loop ended: %v", err)
			}
			return
		}
		var msg observerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Action == "cancel" && msg.TaskID != "" {
			if err := h.deps.Manager.Cancel(ctx, msg.TaskID); err != nil {
				h.logger.Warn("httpapi: observer-requested cancel of %s failed: %v", msg.TaskID, err)
			}
		}
	}
}
