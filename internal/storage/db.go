package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
)

// DBStore keeps pending notifications and audit events in a SQL database via gorm
type DBStore struct {
	db      *gorm.DB
	dialect string
}

// NewDBStore opens the configured database and migrates the schema
func NewDBStore(cfg *config.DatabaseConfig) (*DBStore, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	case "mysql":
		dialector = mysql.Open(cfg.GetDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedDatabase, cfg.Type)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Type == "sqlite" {
		// a single connection serializes writers and keeps :memory: databases shared
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := gormDB.AutoMigrate(&PendingNotification{}, &NotificationEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DBStore{db: gormDB, dialect: cfg.Type}, nil
}

func (s *DBStore) InsertPending(ctx context.Context, userID, eventType string, payload json.RawMessage) error {
	row := &PendingNotification{
		UserID:    userID,
		EventType: eventType,
		Payload:   string(payload),
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *DBStore) GetAndClearPending(ctx context.Context, userID string) ([]PendingItem, error) {
	var rows []PendingNotification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("user_id = ?", userID).Order("id asc")
		if s.dialect != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uint, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		return tx.Where("id IN ?", ids).Delete(&PendingNotification{}).Error
	})
	if err != nil {
		return nil, err
	}

	items := make([]PendingItem, len(rows))
	for i, r := range rows {
		items[i] = PendingItem{
			EventType: r.EventType,
			Payload:   json.RawMessage(r.Payload),
			CreatedAt: r.CreatedAt,
		}
	}
	return items, nil
}

func (s *DBStore) InsertNotificationEvent(ctx context.Context, sessionID, userID *string, eventType string, payload json.RawMessage) error {
	row := &NotificationEvent{
		SessionID: sessionID,
		UserID:    userID,
		EventType: eventType,
		Payload:   string(payload),
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// Close closes the database connection
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
