package redis

import (
	"context"
	"fmt"
)

// Gate implements port.AccessGate on top of the project membership sets.
type Gate struct {
	client *RedisClient
}

func NewGate(client *RedisClient) *Gate {
	return &Gate{client: client}
}

func (g *Gate) CanJoin(ctx context.Context, userID, projectID string) (bool, error) {
	ok, err := g.client.IsProjectMember(ctx, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("membership lookup for project %s: %w", projectID, err)
	}
	return ok, nil
}
