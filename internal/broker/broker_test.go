package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklink/realtime/internal/domain"
	"github.com/tasklink/realtime/internal/registry"
	"github.com/tasklink/realtime/pkg/logger"
)

type fakeGate struct {
	allowed map[string]bool
	err     error
}

func (g *fakeGate) CanJoin(ctx context.Context, userID, projectID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.allowed[userID+":"+projectID], nil
}

type fakeRelay struct {
	mu        sync.Mutex
	published map[string][][]byte
	deliver   map[string]func([]byte)
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		published: make(map[string][][]byte),
		deliver:   make(map[string]func([]byte)),
	}
}

func (r *fakeRelay) Publish(room string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[room] = append(r.published[room], payload)
	return nil
}

func (r *fakeRelay) Subscribe(room string, deliver func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliver[room] = deliver
	return nil
}

func (r *fakeRelay) Unsubscribe(room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deliver, room)
	return nil
}

func (r *fakeRelay) subscribed(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deliver[room]
	return ok
}

type fakeSession struct {
	id  string
	buf chan []byte
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, buf: make(chan []byte, 64)}
}

func (s *fakeSession) UserID() string { return s.id }

func (s *fakeSession) Enqueue(payload []byte) bool {
	select {
	case s.buf <- payload:
		return true
	default:
		return false
	}
}

func (s *fakeSession) Evict() {}

func (s *fakeSession) frames(t *testing.T) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for {
		select {
		case payload := <-s.buf:
			var frame map[string]interface{}
			require.NoError(t, json.Unmarshal(payload, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func alice() domain.User { return domain.User{ID: "u-alice", Username: "alice"} }
func bob() domain.User   { return domain.User{ID: "u-bob", Username: "bob"} }

func setupBroker(gate *fakeGate, relay *fakeRelay) (*Broker, *registry.Registry) {
	logg := logger.NewLogger("error")
	reg := registry.New(logg)
	if relay == nil {
		return New(reg, gate, nil, logg), reg
	}
	return New(reg, gate, relay, logg), reg
}

func TestJoinDeniedLeavesRegistryUntouched(t *testing.T) {
	b, reg := setupBroker(&fakeGate{allowed: map[string]bool{}}, nil)
	s := newFakeSession("u-alice")

	err := b.Join(context.Background(), alice(), "p1", s)

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, reg.Count("p1"))
	assert.Empty(t, s.frames(t))
}

func TestJoinGateFailure(t *testing.T) {
	b, reg := setupBroker(&fakeGate{err: errors.New("redis down")}, nil)
	s := newFakeSession("u-alice")

	err := b.Join(context.Background(), alice(), "p1", s)

	assert.ErrorIs(t, err, ErrGateUnavailable)
	assert.Equal(t, 0, reg.Count("p1"))
}

func TestJoinBroadcastsOnlineIncludingJoiner(t *testing.T) {
	gate := &fakeGate{allowed: map[string]bool{"u-alice:p1": true}}
	b, reg := setupBroker(gate, nil)
	s := newFakeSession("u-alice")

	require.NoError(t, b.Join(context.Background(), alice(), "p1", s))

	assert.Equal(t, 1, reg.Count("p1"))
	frames := s.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.FrameUserStatus, frames[0]["type"])
	assert.Equal(t, "u-alice", frames[0]["user_id"])
	assert.Equal(t, domain.StatusOnline, frames[0]["status"])
}

func TestLeaveBroadcastsOfflineExactlyOnce(t *testing.T) {
	gate := &fakeGate{allowed: map[string]bool{"u-alice:p1": true, "u-bob:p1": true}}
	b, reg := setupBroker(gate, nil)
	a := newFakeSession("u-alice")
	peer := newFakeSession("u-bob")

	require.NoError(t, b.Join(context.Background(), alice(), "p1", a))
	require.NoError(t, b.Join(context.Background(), bob(), "p1", peer))
	peer.frames(t) // drain join traffic

	b.Leave(alice(), "p1", a)
	b.Leave(alice(), "p1", a) // double leave must not produce a second event

	assert.Equal(t, 1, reg.Count("p1"))
	frames := peer.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.FrameUserStatus, frames[0]["type"])
	assert.Equal(t, "u-alice", frames[0]["user_id"])
	assert.Equal(t, domain.StatusOffline, frames[0]["status"])
}

func TestPublishExcludesSession(t *testing.T) {
	gate := &fakeGate{allowed: map[string]bool{"u-alice:p1": true, "u-bob:p1": true}}
	b, _ := setupBroker(gate, nil)
	a := newFakeSession("u-alice")
	peer := newFakeSession("u-bob")

	require.NoError(t, b.Join(context.Background(), alice(), "p1", a))
	require.NoError(t, b.Join(context.Background(), bob(), "p1", peer))
	a.frames(t)
	peer.frames(t)

	b.Publish("p1", domain.TypingEvent{User: alice(), IsTyping: true}, a)

	assert.Empty(t, a.frames(t))
	frames := peer.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.FrameTyping, frames[0]["type"])
	assert.Equal(t, true, frames[0]["is_typing"])
}

func TestRelayLifecycle(t *testing.T) {
	gate := &fakeGate{allowed: map[string]bool{"u-alice:p1": true, "u-bob:p1": true}}
	relay := newFakeRelay()
	b, _ := setupBroker(gate, relay)
	a := newFakeSession("u-alice")
	peer := newFakeSession("u-bob")

	require.NoError(t, b.Join(context.Background(), alice(), "p1", a))
	require.NoError(t, b.Join(context.Background(), bob(), "p1", peer))
	assert.True(t, relay.subscribed("p1"))

	// Local publications are mirrored to peer instances.
	b.Publish("p1", domain.TypingEvent{User: alice(), IsTyping: true}, a)
	relay.mu.Lock()
	mirrored := len(relay.published["p1"])
	relay.mu.Unlock()
	assert.Equal(t, 3, mirrored) // two presence events plus the typing event

	// Payloads delivered by the relay reach local sessions verbatim.
	a.frames(t)
	peer.frames(t)
	relay.mu.Lock()
	deliver := relay.deliver["p1"]
	relay.mu.Unlock()
	deliver([]byte(`{"type":"typing","user_id":"u-remote","is_typing":true}`))
	require.Len(t, a.frames(t), 1)
	require.Len(t, peer.frames(t), 1)

	// The subscription is dropped once the last local session leaves.
	b.Leave(alice(), "p1", a)
	assert.True(t, relay.subscribed("p1"))
	b.Leave(bob(), "p1", peer)
	assert.False(t, relay.subscribed("p1"))
}
