// Package storage persists undelivered notifications per user and keeps an
// audit log of delivered notification events.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/common/redisclient"
)

// PendingItem is one undelivered notification returned by a pull.
type PendingItem struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// OfflineStore is the durable per-user queue of undelivered notifications.
type OfflineStore interface {
	InsertPending(ctx context.Context, userID, eventType string, payload json.RawMessage) error
	// GetAndClearPending returns the user's items in creation order and
	// removes them in the same atomic step.
	GetAndClearPending(ctx context.Context, userID string) ([]PendingItem, error)
}

// AuditStore records notification events. Either id may be nil.
type AuditStore interface {
	InsertNotificationEvent(ctx context.Context, sessionID, userID *string, eventType string, payload json.RawMessage) error
}

type Store interface {
	OfflineStore
	AuditStore
	Close() error
}

// New creates the store selected by cfg.Type
func New(ctx context.Context, logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger = logger.Named("storage")
	switch cfg.Type {
	case cnst.StorageTypeMemory, "":
		logger.Info("using in-memory notification store")
		return NewMemoryStore(0), nil
	case cnst.StorageTypeDB:
		logger.Info("using database notification store", zap.String("database", cfg.Database.Type))
		return NewDBStore(&cfg.Database)
	case cnst.StorageTypeRedis:
		client, err := redisclient.New(ctx, redisclient.Options{
			ClusterType: cfg.Redis.ClusterType,
			Addr:        cfg.Redis.Addr,
			MasterName:  cfg.Redis.MasterName,
			Username:    cfg.Redis.Username,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("using redis notification store", zap.String("prefix", cfg.Redis.Prefix))
		s := NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.HistoryMaxLen)
		s.owned = true
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStorage, cfg.Type)
	}
}
