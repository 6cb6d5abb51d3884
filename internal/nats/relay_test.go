package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Relay tests need a NATS server; they skip when none is reachable.
func setupRelay(t *testing.T) *Relay {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	relay, err := NewRelay(context.Background(), url)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(relay.Close)
	return relay
}

func TestRelayDeliversToPeersNotItself(t *testing.T) {
	a := setupRelay(t)
	b := setupRelay(t)

	room := "relay-test-" + a.origin

	selfDelivery := make(chan []byte, 1)
	require.NoError(t, a.Subscribe(room, func(payload []byte) {
		selfDelivery <- payload
	}))

	peerDelivery := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(room, func(payload []byte) {
		peerDelivery <- payload
	}))
	time.Sleep(100 * time.Millisecond) // let subscriptions settle

	require.NoError(t, a.Publish(room, []byte(`{"type":"typing"}`)))

	select {
	case payload := <-peerDelivery:
		assert.JSONEq(t, `{"type":"typing"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive relayed payload")
	}

	select {
	case <-selfDelivery:
		t.Fatal("relay delivered an instance's own publication back to it")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelaySubscribeIsIdempotent(t *testing.T) {
	a := setupRelay(t)
	b := setupRelay(t)

	room := "relay-idem-" + a.origin

	received := make(chan []byte, 4)
	require.NoError(t, b.Subscribe(room, func(payload []byte) {
		received <- payload
	}))
	require.NoError(t, b.Subscribe(room, func(payload []byte) {
		received <- payload
	}))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.Publish(room, []byte(`{"n":1}`)))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	select {
	case <-received:
		t.Fatal("duplicate subscription delivered twice")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelayUnsubscribeStopsDelivery(t *testing.T) {
	a := setupRelay(t)
	b := setupRelay(t)

	room := "relay-unsub-" + a.origin

	received := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(room, func(payload []byte) {
		received <- payload
	}))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Unsubscribe(room))
	require.NoError(t, b.Unsubscribe(room)) // second call is a no-op

	require.NoError(t, a.Publish(room, []byte(`{"n":1}`)))

	select {
	case <-received:
		t.Fatal("received after unsubscribe")
	case <-time.After(300 * time.Millisecond):
	}
}
