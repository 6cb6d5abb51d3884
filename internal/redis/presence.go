package redis

import (
	"context"

	"github.com/tasklink/realtime/internal/domain"
)

// Presence implements port.Presence on the online users set.
type Presence struct {
	client *RedisClient
}

func NewPresence(client *RedisClient) *Presence {
	return &Presence{client: client}
}

func (p *Presence) SetOnline(ctx context.Context, user domain.User) error {
	return p.client.SetUserOnline(ctx, user.ID)
}

func (p *Presence) SetOffline(ctx context.Context, user domain.User) error {
	return p.client.SetUserOffline(ctx, user.ID)
}
