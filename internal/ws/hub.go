package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/fleamarket-app/backend/internal/service"
)

// Hub fans published messages out to the clients subscribed to each room
// topic. All subscription state is owned by the Run loop; there is no lock
// shared with connection goroutines.
type Hub struct {
	rooms map[uint64]map[*Client]struct{}

	subscribe   chan subscription
	unsubscribe chan subscription
	detach      chan *Client
	messages    chan envelope
}

type subscription struct {
	client *Client
	roomID uint64
}

type envelope struct {
	roomID  uint64
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[uint64]map[*Client]struct{}),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		detach:      make(chan *Client),
		messages:    make(chan envelope, 64),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.subscribe:
			clients := h.rooms[sub.roomID]
			if clients == nil {
				clients = make(map[*Client]struct{})
				h.rooms[sub.roomID] = clients
			}
			clients[sub.client] = struct{}{}
		case sub := <-h.unsubscribe:
			h.drop(sub.roomID, sub.client)
		case c := <-h.detach:
			for roomID := range h.rooms {
				h.drop(roomID, c)
			}
		case env := <-h.messages:
			for c := range h.rooms[env.roomID] {
				select {
				case c.send <- env.payload:
				default:
					// slow consumer: evict it from every topic rather than
					// stall; only the client's own teardown closes its send
					// channel. It catches up over listMessages afterId on
					// reconnect.
					for roomID := range h.rooms {
						h.drop(roomID, c)
					}
					c.evict()
				}
			}
		}
	}
}

func (h *Hub) drop(roomID uint64, c *Client) {
	clients := h.rooms[roomID]
	if clients == nil {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) Subscribe(c *Client, roomID uint64) {
	h.subscribe <- subscription{client: c, roomID: roomID}
}

func (h *Hub) Unsubscribe(c *Client, roomID uint64) {
	h.unsubscribe <- subscription{client: c, roomID: roomID}
}

// Detach removes the client from every room, on disconnect.
func (h *Hub) Detach(c *Client) {
	h.detach <- c
}

// Publish implements service.Broadcaster. Delivery is at-least-once to live
// subscribers only; there is no backlog or replay.
func (h *Hub) Publish(roomID uint64, msg service.MessageView) {
	payload, err := json.Marshal(ServerFrame{Type: frameMessage, RoomID: roomID, Data: msg})
	if err != nil {
		log.Printf("ws: marshal broadcast for room %d: %v", roomID, err)
		return
	}
	h.messages <- envelope{roomID: roomID, payload: payload}
}
