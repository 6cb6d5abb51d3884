package port

import (
	"context"

	"github.com/tasklink/realtime/internal/domain"
)

// AccessGate answers whether a user may join a project room. It is backed by
// the workspace-membership data the rest of the application owns. The broker
// consults it once per join attempt and never caches the answer.
type AccessGate interface {
	CanJoin(ctx context.Context, userID, projectID string) (bool, error)
}

// MessageStore persists chat messages and assigns their canonical id and
// timestamp. Append must complete before the message is broadcast.
type MessageStore interface {
	Append(ctx context.Context, projectID string, sender domain.User, content string) (domain.Message, error)
	Recent(ctx context.Context, projectID string, limit int) ([]domain.Message, error)
}

// Presence records which users currently hold a live connection.
type Presence interface {
	SetOnline(ctx context.Context, user domain.User) error
	SetOffline(ctx context.Context, user domain.User) error
}

// Relay mirrors room traffic between broker instances. Payloads are opaque,
// already-encoded wire frames; the relay must not deliver an instance's own
// publications back to it.
type Relay interface {
	Publish(room string, payload []byte) error
	Subscribe(room string, deliver func(payload []byte)) error
	Unsubscribe(room string) error
}
