package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultMemoryHistory = 10000

// MemoryStore is a process-local store for single-instance and test setups.
// Only the most recent audit events are retained.
type MemoryStore struct {
	mu         sync.Mutex
	pending    map[string][]PendingItem
	events     []NotificationEvent
	maxHistory int
}

func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = defaultMemoryHistory
	}
	return &MemoryStore{
		pending:    make(map[string][]PendingItem),
		maxHistory: maxHistory,
	}
}

func (s *MemoryStore) InsertPending(_ context.Context, userID, eventType string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = append(s.pending[userID], PendingItem{
		EventType: eventType,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStore) GetAndClearPending(_ context.Context, userID string) ([]PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.pending[userID]
	delete(s.pending, userID)
	if items == nil {
		items = []PendingItem{}
	}
	return items, nil
}

func (s *MemoryStore) InsertNotificationEvent(_ context.Context, sessionID, userID *string, eventType string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, NotificationEvent{
		SessionID: sessionID,
		UserID:    userID,
		EventType: eventType,
		Payload:   string(payload),
		CreatedAt: time.Now(),
	})
	if over := len(s.events) - s.maxHistory; over > 0 {
		s.events = append([]NotificationEvent(nil), s.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained audit events, oldest first.
func (s *MemoryStore) Events() []NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationEvent(nil), s.events...)
}

func (s *MemoryStore) Close() error { return nil }
