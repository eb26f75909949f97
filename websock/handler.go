package websock

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"coffeefarm/appstate"
	"coffeefarm/models"
	"coffeefarm/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Event is the envelope of every message pushed to clients.
type Event struct {
	Type     string             `json:"type"`
	Kind     models.Kind        `json:"kind,omitempty"`
	Snapshot *appstate.Snapshot `json:"snapshot,omitempty"`
	Message  string             `json:"message,omitempty"`
}

const (
	EventSnapshot = "snapshot"
	EventStatus   = "status"
)

// StatusEvent encodes a status line for Broadcast.
func StatusEvent(message string) []byte {
	data, _ := json.Marshal(Event{Type: EventStatus, Message: message})
	return data
}

func snapshotEvent(s *appstate.State, kind models.Kind) ([]byte, error) {
	snap := s.Snapshot()
	return json.Marshal(Event{Type: EventSnapshot, Kind: kind, Snapshot: &snap})
}

// Acquirer hands out the live state of an owner.
type Acquirer interface {
	Acquire(ctx context.Context, owner string) (*appstate.State, func(), error)
}

// Handler upgrades an authenticated request and streams the owner's
// snapshot, once on connect and again after every change.
func Handler(hub *Hub, states Acquirer, origins []string, logger *zap.Logger) httprouter.Handle {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin(origins)}
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		owner := utils.GetUserIDFromRequest(r)
		if owner == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		state, release, err := states.Acquire(r.Context(), owner)
		if err != nil {
			logger.Error("acquire state", zap.String("owner", owner), zap.Error(err))
			http.Error(w, "State unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			release()
			logger.Warn("upgrade", zap.Error(err))
			return
		}
		client := &Client{Conn: conn, Send: make(chan []byte, 16), Room: owner}
		if !hub.Register(client) {
			release()
			_ = conn.Close()
			return
		}

		push := func(kind models.Kind) {
			data, err := snapshotEvent(state, kind)
			if err != nil {
				logger.Error("encode snapshot", zap.Error(err))
				return
			}
			hub.SendTo(client, data)
		}
		unsubscribe := state.OnChange(push)

		go writePump(client)
		go func() {
			readyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := state.Ready(readyCtx); err == nil {
				push("")
			}
		}()
		stopped := make(chan struct{})
		go func() {
			// a dropped state (logout) ends the connection; the client
			// reconnects with its current session
			select {
			case <-state.Done():
				logger.Debug("owner state closed, disconnecting", zap.String("owner", owner))
				hub.Unregister(client)
			case <-stopped:
			}
		}()
		go func() {
			readPump(client)
			close(stopped)
			unsubscribe()
			hub.Unregister(client)
			release()
		}()
	}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the connection alive; clients write through the REST
// API.
func readPump(c *Client) {
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
