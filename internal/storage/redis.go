package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending notifications in one list per user and audit
// events in a capped stream.
type RedisStore struct {
	client        redis.UniversalClient
	prefix        string
	historyMaxLen int64
	owned         bool
}

func NewRedisStore(client redis.UniversalClient, prefix string, historyMaxLen int64) *RedisStore {
	if prefix == "" {
		prefix = "notification"
	}
	return &RedisStore{client: client, prefix: prefix, historyMaxLen: historyMaxLen}
}

func (s *RedisStore) pendingKey(userID string) string {
	return fmt.Sprintf("%s:pending:%s", s.prefix, userID)
}

func (s *RedisStore) eventsKey() string {
	return s.prefix + ":events"
}

func (s *RedisStore) InsertPending(ctx context.Context, userID, eventType string, payload json.RawMessage) error {
	data, err := json.Marshal(PendingItem{
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.pendingKey(userID), data).Err()
}

// GetAndClearPending reads and deletes the user's list inside MULTI/EXEC.
func (s *RedisStore) GetAndClearPending(ctx context.Context, userID string) ([]PendingItem, error) {
	key := s.pendingKey(userID)
	var lrange *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := lrange.Val()
	items := make([]PendingItem, 0, len(raw))
	for _, r := range raw {
		var item PendingItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisStore) InsertNotificationEvent(ctx context.Context, sessionID, userID *string, eventType string, payload json.RawMessage) error {
	args := &redis.XAddArgs{
		Stream: s.eventsKey(),
		Values: map[string]any{
			"session_id": deref(sessionID),
			"user_id":    deref(userID),
			"event_type": eventType,
			"payload":    string(payload),
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if s.historyMaxLen > 0 {
		args.MaxLen = s.historyMaxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
