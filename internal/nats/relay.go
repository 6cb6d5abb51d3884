package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tasklink/realtime/pkg/logger"
)

// Relay mirrors room traffic between broker instances over NATS. Each
// instance tags its publications with a random origin id and drops its own
// envelopes on the way back in, so a frame is delivered locally exactly once.
type Relay struct {
	conn   *nats.Conn
	origin string
	logg   logger.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func NewRelay(ctx context.Context, url string) (*Relay, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Relay{
		conn:   nc,
		origin: uuid.NewString(),
		logg:   logger.FromContext(ctx).WithModule("relay"),
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func subject(room string) string {
	return "chat.project." + room
}

// Publish mirrors an already-encoded wire frame to peer instances.
func (r *Relay) Publish(room string, payload []byte) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return r.conn.Publish(subject(room), data)
}

// Subscribe starts relaying the room's subject into deliver. Subscribing to
// an already-subscribed room is a no-op, so the broker can call it on every
// join.
func (r *Relay) Subscribe(room string, deliver func(payload []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[room]; exists {
		return nil
	}

	sub, err := r.conn.Subscribe(subject(room), func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.logg.Warnf("dropping malformed envelope on %s: %v", msg.Subject, err)
			return
		}
		if env.Origin == r.origin {
			return
		}
		deliver(env.Payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to room %s: %w", room, err)
	}

	r.subs[room] = sub
	return nil
}

// Unsubscribe stops relaying a room once the local registry no longer holds
// sessions for it.
func (r *Relay) Unsubscribe(room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[room]
	if !exists {
		return nil
	}
	delete(r.subs, room)
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from room %s: %w", room, err)
	}
	return nil
}

// Close drops all subscriptions and the NATS connection.
func (r *Relay) Close() {
	r.mu.Lock()
	for room, sub := range r.subs {
		_ = sub.Unsubscribe()
		delete(r.subs, room)
	}
	r.mu.Unlock()

	r.conn.Close()
}
