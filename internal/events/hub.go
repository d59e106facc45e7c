// Package events fans tile and map notifications out to WebSocket clients.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"osmview/internal/model"
	"osmview/internal/tile"
)

const clientBufferSize = 256

type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type TilePayload struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

type PosPayload struct {
	ID    int            `json:"id"`
	Point model.LocPoint `json:"point"`
}

// Hub implements osm_client.Listener. Notifications are encoded on the
// caller's goroutine and handed to Run without blocking.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Events client registered", zap.String("client_id", client.ID), zap.Int("total", total))

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.broadcast:
			h.fanout(data)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TileReady(t tile.Tile) {
	h.Publish("tile_ready", TilePayload{Zoom: t.Key.Zoom, X: t.Key.X, Y: t.Key.Y})
}

func (h *Hub) TileError(reason string) {
	h.Publish("tile_error", ErrorPayload{Reason: reason})
}

// Publish queues a message for every client. It drops the message if the
// hub is backed up.
func (h *Hub) Publish(msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("type", msgType))
	}
}

func (h *Hub) fanout(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("Client send buffer full", zap.String("client_id", client.ID))
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("Events client unregistered", zap.String("client_id", client.ID), zap.Int("total", len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
}
