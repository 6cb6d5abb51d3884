package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

func membersKey(projectID string) string {
	return "project:" + projectID + ":members"
}

func messagesKey(projectID string) string {
	return "chat:project:" + projectID + ":messages"
}

// IsProjectMember reports whether userID is in the project's membership set.
// The set is maintained by the application's workspace service; this side
// only reads it.
func (r *RedisClient) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	return r.client.SIsMember(ctx, membersKey(projectID), userID).Result()
}

// AddProjectMember adds a user to a project's membership set.
func (r *RedisClient) AddProjectMember(ctx context.Context, projectID, userID string) error {
	return r.client.SAdd(ctx, membersKey(projectID), userID).Err()
}

// RemoveProjectMember removes a user from a project's membership set.
func (r *RedisClient) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	return r.client.SRem(ctx, membersKey(projectID), userID).Err()
}

// SetUserOnline adds a user to the online users set.
func (r *RedisClient) SetUserOnline(ctx context.Context, userID string) error {
	return r.client.SAdd(ctx, "online_users", userID).Err()
}

// SetUserOffline removes a user from the online users set.
func (r *RedisClient) SetUserOffline(ctx context.Context, userID string) error {
	return r.client.SRem(ctx, "online_users", userID).Err()
}

// OnlineUsers retrieves all users currently marked online.
func (r *RedisClient) OnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, "online_users").Result()
}

// AppendMessage pushes a serialized message onto the project's message list.
func (r *RedisClient) AppendMessage(ctx context.Context, projectID string, data []byte) error {
	return r.client.RPush(ctx, messagesKey(projectID), data).Err()
}

// RecentMessages returns up to limit of the newest serialized messages for a
// project, oldest first.
func (r *RedisClient) RecentMessages(ctx context.Context, projectID string, limit int) ([]string, error) {
	return r.client.LRange(ctx, messagesKey(projectID), int64(-limit), -1).Result()
}

// FlushAll clears the entire database. Test helper only.
func (r *RedisClient) FlushAll(ctx context.Context) error {
	return r.client.FlushAll(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
