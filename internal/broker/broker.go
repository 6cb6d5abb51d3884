package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tasklink/realtime/internal/domain"
	"github.com/tasklink/realtime/internal/port"
	"github.com/tasklink/realtime/internal/registry"
	"github.com/tasklink/realtime/pkg/logger"
)

var (
	// ErrUnauthorized means the access gate denied the user for the room.
	ErrUnauthorized = errors.New("not a member of this project")

	// ErrGateUnavailable means the membership check itself failed.
	ErrGateUnavailable = errors.New("membership check unavailable")
)

// Broker mediates join/leave/publish against the registry and the access
// policy. One instance per process; all connection handlers share it.
type Broker struct {
	registry *registry.Registry
	gate     port.AccessGate
	relay    port.Relay // nil when running single-process
	logg     logger.Logger
}

func New(reg *registry.Registry, gate port.AccessGate, relay port.Relay, logg logger.Logger) *Broker {
	return &Broker{
		registry: reg,
		gate:     gate,
		relay:    relay,
		logg:     logg,
	}
}

// Join admits a session into a room. The gate is consulted on every attempt;
// a rejected session is never registered. On success the room observes a
// PresenceChange(online) that includes the joining session, confirming its
// delivery path works.
func (b *Broker) Join(ctx context.Context, user domain.User, room string, s registry.Session) error {
	ok, err := b.gate.CanJoin(ctx, user.ID, room)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateUnavailable, err)
	}
	if !ok {
		return ErrUnauthorized
	}

	b.registry.Register(room, s)

	if b.relay != nil {
		if err := b.relay.Subscribe(room, func(payload []byte) {
			b.registry.Broadcast(room, payload, nil)
		}); err != nil {
			b.logg.Errorf("relay subscribe failed for room %s: %v", room, err)
		}
	}

	b.Publish(room, domain.PresenceEvent{User: user, Online: true}, nil)
	return nil
}

// Leave removes a session and announces the user offline. Calling it for a
// session that was never registered (or a second time) is a no-op, so a
// double-leave cannot produce a duplicate offline event.
func (b *Broker) Leave(user domain.User, room string, s registry.Session) {
	if !b.registry.Unregister(room, s) {
		return
	}

	if b.relay != nil && b.registry.Count(room) == 0 {
		if err := b.relay.Unsubscribe(room); err != nil {
			b.logg.Errorf("relay unsubscribe failed for room %s: %v", room, err)
		}
	}

	b.Publish(room, domain.PresenceEvent{User: user, Online: false}, nil)
}

// Publish fans event out to the room's current sessions, minus exclude, and
// mirrors it to peer instances through the relay.
func (b *Broker) Publish(room string, event domain.Event, exclude registry.Session) {
	payload, err := domain.Encode(event)
	if err != nil {
		b.logg.Errorf("cannot encode event for room %s: %v", room, err)
		return
	}

	b.registry.Broadcast(room, payload, exclude)

	if b.relay != nil {
		if err := b.relay.Publish(room, payload); err != nil {
			b.logg.Errorf("relay publish failed for room %s: %v", room, err)
		}
	}
}
