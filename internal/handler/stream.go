package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the console is served from a different origin than the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamMessage struct {
	Notifications []models.NotificationEvent `json:"notifications"`
	Unread        int                        `json:"unread"`
}

type clientAction struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

func newStreamMessage(snap []models.NotificationEvent) streamMessage {
	msg := streamMessage{Notifications: snap}
	for _, n := range snap {
		if !n.Read {
			msg.Unread++
		}
	}
	return msg
}

// NotificationStream serves one notification view per connection. The view
// and its feed subscription live exactly as long as the socket.
func (h *Handler) NotificationStream(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "stream notifications") {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade WebSocket connection", "error", err)
		return
	}
	defer conn.Close()

	view := h.viewer.Open(r.Context())
	defer view.Close()

	snapshots, stop := view.Watch()
	defer stop()

	slog.Info("notification stream opened", "remote", r.RemoteAddr)
	defer slog.Info("notification stream closed", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go readActions(conn, view, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeSnapshot(conn, view.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap []models.NotificationEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(newStreamMessage(snap)); err != nil {
		slog.Warn("failed to write notification snapshot", "error", err)
		return err
	}
	return nil
}

// readActions applies client read-state actions to the view until the
// socket closes.
func readActions(conn *websocket.Conn, view *notifications.View, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("unexpected WebSocket close error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var action clientAction
		if err := json.Unmarshal(data, &action); err != nil {
			slog.Warn("ignoring malformed stream action", "error", err)
			continue
		}
		switch action.Action {
		case "mark_read":
			if !view.MarkRead(action.ID) {
				slog.Debug("mark_read had no effect", "id", action.ID)
			}
		case "mark_all_read":
			view.MarkAllRead()
		default:
			slog.Warn("unknown stream action", "action", action.Action)
		}
	}
}
