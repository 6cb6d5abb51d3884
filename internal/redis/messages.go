package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tasklink/realtime/internal/domain"
)

// MessageStore implements port.MessageStore on a per-project message list.
// It assigns the canonical message id and timestamp; the broker never does.
type MessageStore struct {
	client *RedisClient
}

func NewMessageStore(client *RedisClient) *MessageStore {
	return &MessageStore{client: client}
}

func (s *MessageStore) Append(ctx context.Context, projectID string, sender domain.User, content string) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to serialize message: %w", err)
	}
	if err := s.client.AppendMessage(ctx, projectID, data); err != nil {
		return domain.Message{}, fmt.Errorf("failed to persist message for project %s: %w", projectID, err)
	}
	return msg, nil
}

func (s *MessageStore) Recent(ctx context.Context, projectID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := s.client.RecentMessages(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for project %s: %w", projectID, err)
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, entry := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue // skip corrupt entries
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
