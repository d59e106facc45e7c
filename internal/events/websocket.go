package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServeWS upgrades the request and streams hub messages to it. Clients may
// send {"type":"ping"} and get a pong back.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("WebSocket accept failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), clientBufferSize)
	h.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	defer func() {
		h.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("WebSocket read error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Invalid message format", zap.String("client_id", client.ID), zap.Error(err))
			continue
		}

		if msg.Type == "ping" {
			h.sendPong(ctx, conn)
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendPong writes directly to conn; Send may already be closed by the hub.
func (h *Hub) sendPong(ctx context.Context, conn *websocket.Conn) {
	data, err := json.Marshal(Message{Type: "pong"})
	if err != nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn.Write(writeCtx, websocket.MessageText, data)
}
