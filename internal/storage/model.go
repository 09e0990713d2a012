package storage

import "time"

// PendingNotification is a notification waiting for its user to pull it
type PendingNotification struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"type:varchar(64);index;not null"`
	EventType string    `gorm:"type:varchar(64);not null"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (PendingNotification) TableName() string { return "pending_notifications" }

// NotificationEvent is the immutable audit record of a local delivery
type NotificationEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID *string   `gorm:"type:varchar(64);index"`
	UserID    *string   `gorm:"type:varchar(64);index"`
	EventType string    `gorm:"type:varchar(64);not null"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (NotificationEvent) TableName() string { return "notification_events" }
