package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tasklink/realtime/internal/broker"
	"github.com/tasklink/realtime/internal/domain"
	"github.com/tasklink/realtime/internal/port"
	"github.com/tasklink/realtime/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default silence budget before a half-open connection is reclaimed.
	defaultPongWait = 60 * time.Second

	// Default bound on a single message-store call.
	defaultPersistTimeout = 5 * time.Second

	// Maximum inbound frame size.
	maxMessageSize = 4096

	// Outbound buffer per connection; a peer that falls this far behind is
	// evicted by the registry.
	sendBuffer = 256
)

// Connection is the per-connection state machine. It owns the read and write
// pumps and dispatches inbound frames into broker calls. Its identity is
// fixed at construction; it never consults ambient state.
type Connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	user domain.User
	room string

	broker         *broker.Broker
	store          port.MessageStore
	presence       port.Presence
	pongWait       time.Duration
	persistTimeout time.Duration
	logg           logger.Logger

	teardownOnce sync.Once
}

func newConnection(conn *websocket.Conn, user domain.User, room string, cfg WSConfig, logg logger.Logger) *Connection {
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}

	return &Connection{
		ws:             conn,
		send:           make(chan []byte, sendBuffer),
		done:           make(chan struct{}),
		user:           user,
		room:           room,
		broker:         cfg.Broker,
		store:          cfg.Store,
		presence:       cfg.Presence,
		pongWait:       pongWait,
		persistTimeout: persistTimeout,
		logg:           logg,
	}
}

// UserID implements registry.Session.
func (c *Connection) UserID() string {
	return c.user.ID
}

// Enqueue implements registry.Session. It never blocks and never panics on a
// torn-down connection; a full buffer reports failure and leaves eviction to
// the caller.
func (c *Connection) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Evict implements registry.Session: a server-initiated disconnect that runs
// the same teardown as a client disconnect. Asynchronous so a broadcast sweep
// never waits on it.
func (c *Connection) Evict() {
	go c.teardown()
}

// teardown leaves the room, marks the user offline, and closes the socket.
// It runs exactly once no matter how the connection dies.
func (c *Connection) teardown() {
	c.teardownOnce.Do(func() {
		c.broker.Leave(c.user, c.room, c)

		if c.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
			defer cancel()
			if err := c.presence.SetOffline(ctx, c.user); err != nil {
				c.logg.Errorf("failed to mark user %s offline: %v", c.user.ID, err)
			}
		}

		close(c.done)
		c.ws.Close()
	})
}

// readPump processes inbound frames strictly in arrival order until the
// transport reports a disconnect.
func (c *Connection) readPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logg.Warnf("read error for user %s in project %s: %v", c.user.ID, c.room, err)
			}
			return
		}

		in, err := domain.DecodeInbound(data)
		if err != nil {
			// A single bad frame never closes the connection.
			c.logg.Debugf("dropping malformed frame from user %s", c.user.ID)
			continue
		}

		switch in.Type {
		case domain.InboundMessage:
			c.handleMessage(in.Content)
		case domain.InboundTyping:
			// The sender never receives its own typing echo.
			c.broker.Publish(c.room, domain.TypingEvent{User: c.user, IsTyping: in.IsTyping}, c)
		default:
			// Unknown frame types are a no-op.
		}
	}
}

// handleMessage persists the message and only then broadcasts it, sender
// included, so every peer renders the same canonical id and timestamp.
func (c *Connection) handleMessage(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()

	msg, err := c.store.Append(ctx, c.room, c.user, content)
	if err != nil {
		c.logg.Errorf("failed to persist message from user %s in project %s: %v", c.user.ID, c.room, err)
		c.Enqueue(domain.EncodeError("message could not be saved"))
		return
	}

	c.broker.Publish(c.room, domain.MessageEvent{Message: msg}, nil)
}

// replayHistory queues the most recent messages to this connection only,
// right after its join, so a fresh client renders history without a REST
// round-trip.
func (c *Connection) replayHistory(limit int) {
	if limit <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()

	messages, err := c.store.Recent(ctx, c.room, limit)
	if err != nil {
		c.logg.Errorf("failed to load history for project %s: %v", c.room, err)
		return
	}
	for _, msg := range messages {
		payload, err := domain.Encode(domain.MessageEvent{Message: msg})
		if err != nil {
			continue
		}
		if !c.Enqueue(payload) {
			return
		}
	}
}

// writePump drains the send buffer to the wire and keeps the connection
// alive with pings. Separated from readPump so a slow reader never blocks
// inbound processing.
func (c *Connection) writePump() {
	pingPeriod := (c.pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
