// Package realtime pushes order snapshots to connected browsers over
// websockets. Each client email has its own room; the administrator shares
// a room that sees every order.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

// EventOrdersSnapshot carries the full order list visible to a room.
const EventOrdersSnapshot = "orders.snapshot"

// AdminRoom is the room every administrator connection joins.
const AdminRoom = "admin"

// Event is one websocket message.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotSource lists orders for a client, or all of them for "".
type SnapshotSource interface {
	Snapshot(clientEmail string) []workflow.Order
}

type roomEvent struct {
	room    string
	message []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	source SnapshotSource
	logger *slog.Logger

	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomEvent
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub(source SnapshotSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:     source,
		logger:     logger,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomEvent, 256),
		done:       make(chan struct{}),
	}
}

// RoomFor maps a principal to its room.
func RoomFor(p shared.Principal) string {
	if p.IsAdmin() {
		return AdminRoom
	}
	return "client:" + shared.NormalizeEmail(p.Email)
}

// Run is the hub's main loop. It returns when ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()
			if msg, err := h.snapshotMessage(client.room, client.email); err == nil {
				h.deliver(client.room, client, msg)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client.room, client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[event.room] {
				h.deliverLocked(event.room, client, event.message)
			}
			h.mu.Unlock()
		}
	}
}

// join registers client unless the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client unless the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// PublishSnapshots queues a fresh snapshot for every occupied room.
func (h *Hub) PublishSnapshots() {
	h.mu.RLock()
	targets := make(map[string]string, len(h.rooms))
	for room, clients := range h.rooms {
		for c := range clients {
			targets[room] = c.email
			break
		}
	}
	h.mu.RUnlock()

	for room, email := range targets {
		msg, err := h.snapshotMessage(room, email)
		if err != nil {
			h.logger.Warn("encode snapshot", slog.String("room", room), slog.Any("error", err))
			continue
		}
		select {
		case h.broadcast <- roomEvent{room: room, message: msg}:
		default:
			h.logger.Warn("realtime broadcast queue full", slog.String("room", room))
		}
	}
}

// RoomCount reports how many rooms have listeners.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) snapshotMessage(room, email string) ([]byte, error) {
	filter := email
	if room == AdminRoom {
		filter = ""
	}
	payload, err := json.Marshal(orders.NewOrderViews(h.source.Snapshot(filter)))
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: EventOrdersSnapshot, Payload: payload})
}

func (h *Hub) deliver(room string, client *Client, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room][client] {
		h.deliverLocked(room, client, message)
	}
}

// deliverLocked drops clients whose send buffer is full.
func (h *Hub) deliverLocked(room string, client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.drop(room, client)
	}
}

func (h *Hub) drop(room string, client *Client) {
	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
		delete(h.rooms, room)
	}
}
