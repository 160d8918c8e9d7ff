package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fleamarket-app/backend/internal/authctx"
	"github.com/fleamarket-app/backend/internal/service"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	opTimeout  = 10 * time.Second

	maxFrameSize = 1 << 20
)

// TokenVerifier checks a bearer credential and yields the member uid.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Client is one websocket connection. uid starts as the provisional
// handshake identity (may be empty); the first verified auth frame fixes it
// and it never changes afterwards.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	svc      service.ChatService
	verifier TokenVerifier

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	evictOnce sync.Once

	uid   string
	fixed bool
}

func newClient(hub *Hub, conn *websocket.Conn, svc service.ChatService, verifier TokenVerifier, uid string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		svc:      svc,
		verifier: verifier,
		send:     make(chan []byte, 32),
		done:     make(chan struct{}),
		uid:      uid,
	}
}

// closeSend is called only from readPump's teardown, after Detach has
// removed the client from the hub; nothing else may close the channel.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// evict tells the pumps to shut the connection down. The hub uses it for
// slow consumers instead of touching the send channel.
func (c *Client) evict() {
	c.evictOnce.Do(func() { close(c.done) })
}

// readPump closes only the send channel on exit; writePump drains whatever
// is queued (error frames included) and then closes the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c)
		c.closeSend()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(0, "bad_request", "invalid frame")
			continue
		}
		if !c.handle(frame) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one inbound frame. Returning false closes the
// connection; per-message validation failures only report back to the
// sender.
func (c *Client) handle(frame Frame) bool {
	switch frame.Type {
	case frameAuth:
		return c.handleAuth(frame)
	case frameSubscribe:
		if !c.requireIdentity() {
			return false
		}
		ctx, cancel := c.opContext()
		defer cancel()
		ok, err := c.svc.IsParticipant(ctx, frame.RoomID, c.uid)
		if err != nil {
			c.sendError(frame.RoomID, "internal_error", "subscribe failed")
			return true
		}
		if !ok {
			c.sendError(frame.RoomID, "forbidden", "not a participant")
			return true
		}
		c.hub.Subscribe(c, frame.RoomID)
		c.reply(ServerFrame{Type: frameSubscribed, RoomID: frame.RoomID})
		return true
	case frameUnsubscribe:
		c.hub.Unsubscribe(c, frame.RoomID)
		return true
	case frameSend:
		if !c.requireIdentity() {
			return false
		}
		ctx, cancel := c.opContext()
		defer cancel()
		if _, err := c.svc.SendMessage(ctx, frame.RoomID, c.uid, frame.Content); err != nil {
			c.sendError(frame.RoomID, errCode(err), err.Error())
		}
		return true
	case frameRead:
		if !c.requireIdentity() {
			return false
		}
		ctx, cancel := c.opContext()
		defer cancel()
		if err := c.svc.MarkRead(ctx, frame.RoomID, c.uid, frame.LastMessageID); err != nil {
			c.sendError(frame.RoomID, errCode(err), err.Error())
			return true
		}
		c.reply(ServerFrame{Type: frameRead, RoomID: frame.RoomID})
		return true
	default:
		c.sendError(0, "bad_request", "unknown frame type")
		return true
	}
}

// handleAuth verifies the frame credential. The first verified auth frame
// takes precedence over the provisional handshake identity and fixes the
// connection's uid; after that a credential for a different member is a
// protocol violation.
func (c *Client) handleAuth(frame Frame) bool {
	ctx, cancel := c.opContext()
	defer cancel()
	uid, err := c.verifier.Verify(ctx, frame.Token)
	if err != nil {
		c.sendError(0, "unauthorized", "invalid credential")
		return false
	}
	if !c.fixed {
		c.uid = uid
		c.fixed = true
	} else if c.uid != uid {
		c.sendError(0, "unauthorized", "identity already bound")
		return false
	}
	c.reply(ServerFrame{Type: frameAuth, Message: "ok"})
	return true
}

func (c *Client) requireIdentity() bool {
	if c.uid != "" {
		return true
	}
	c.sendError(0, "unauthorized", "authentication required")
	return false
}

func (c *Client) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(authctx.WithUID(context.Background(), c.uid), opTimeout)
}

func (c *Client) reply(frame ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) sendError(roomID uint64, code, message string) {
	c.reply(ServerFrame{Type: frameError, RoomID: roomID, Code: code, Message: message})
}

func errCode(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrEmptyContent):
		return "bad_request"
	default:
		return "internal_error"
	}
}
