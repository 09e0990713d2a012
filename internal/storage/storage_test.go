package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
)

func newSQLiteStore(t *testing.T) *DBStore {
	t.Helper()
	s, err := NewDBStore(&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test", 100), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(0),
		"sqlite": newSQLiteStore(t),
		"redis":  rs,
	}
}

func TestPendingRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.InsertPending(ctx, "u2", "first", json.RawMessage(`{"n":1}`)))
			require.NoError(t, s.InsertPending(ctx, "u2", "second", json.RawMessage(`"two"`)))
			require.NoError(t, s.InsertPending(ctx, "other", "x", json.RawMessage(`{}`)))

			items, err := s.GetAndClearPending(ctx, "u2")
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "first", items[0].EventType)
			assert.JSONEq(t, `{"n":1}`, string(items[0].Payload))
			assert.Equal(t, "second", items[1].EventType)
			assert.JSONEq(t, `"two"`, string(items[1].Payload))

			items, err = s.GetAndClearPending(ctx, "u2")
			require.NoError(t, err)
			assert.Empty(t, items)

			items, err = s.GetAndClearPending(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}
}

func TestPendingPreservesOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				require.NoError(t, s.InsertPending(ctx, "u", fmt.Sprintf("e%02d", i), json.RawMessage(`null`)))
			}
			items, err := s.GetAndClearPending(ctx, "u")
			require.NoError(t, err)
			require.Len(t, items, 20)
			for i, it := range items {
				assert.Equal(t, fmt.Sprintf("e%02d", i), it.EventType)
			}
		})
	}
}

func TestSQLiteAudit(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	session := "s1"

	require.NoError(t, s.InsertNotificationEvent(ctx, &session, nil, "ping", json.RawMessage(`{"x":1}`)))
	require.NoError(t, s.InsertNotificationEvent(ctx, nil, nil, "orphan", json.RawMessage(`"p"`)))

	var rows []NotificationEvent
	require.NoError(t, s.db.Order("id asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].SessionID)
	assert.Equal(t, "s1", *rows[0].SessionID)
	assert.Nil(t, rows[0].UserID)
	assert.Equal(t, `{"x":1}`, rows[0].Payload)
	assert.Nil(t, rows[1].SessionID)
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestRedisAudit(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	user := "u1"

	require.NoError(t, s.InsertNotificationEvent(ctx, nil, &user, "ping", json.RawMessage(`{"x":1}`)))

	entries, err := s.client.XRange(ctx, "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].Values["user_id"])
	assert.Equal(t, "", entries[0].Values["session_id"])
	assert.Equal(t, "ping", entries[0].Values["event_type"])
	assert.Equal(t, `{"x":1}`, entries[0].Values["payload"])
	assert.True(t, mr.Exists("test:events"))
}

func TestRedisPendingKeyRemovedOnPull(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertPending(ctx, "u1", "e", json.RawMessage(`1`)))
	assert.True(t, mr.Exists("test:pending:u1"))

	_, err := s.GetAndClearPending(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:pending:u1"))
}

func TestMemoryHistoryIsBounded(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertNotificationEvent(context.Background(), nil, nil, fmt.Sprintf("e%d", i), json.RawMessage(`1`)))
	}
	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "e2", events[0].EventType)
	assert.Equal(t, "e4", events[2].EventType)
}

func TestNewFactory(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, zap.NewNop(), &config.StorageConfig{Type: cnst.StorageTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, zap.NewNop(), &config.StorageConfig{
		Type:     cnst.StorageTypeDB,
		Database: config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"},
	})
	require.NoError(t, err)
	assert.IsType(t, &DBStore{}, s)
	require.NoError(t, s.Close())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	s, err = New(ctx, zap.NewNop(), &config.StorageConfig{
		Type:  cnst.StorageTypeRedis,
		Redis: config.StorageRedisConfig{Addr: mr.Addr(), Prefix: "p"},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, zap.NewNop(), &config.StorageConfig{Type: "disk"})
	assert.True(t, errors.Is(err, cnst.ErrUnsupportedStorage))

	_, err = NewDBStore(&config.DatabaseConfig{Type: "oracle"})
	assert.True(t, errors.Is(err, cnst.ErrUnsupportedDatabase))
}
