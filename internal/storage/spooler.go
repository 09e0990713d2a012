package storage

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/pkg/metrics"
	"github.com/amoylab/notification-service/pkg/utils"
)

type spoolItem struct {
	userID    string
	eventType string
	payload   json.RawMessage
}

// Spooler writes offline payloads to an OfflineStore on background workers.
// A user's payloads always land on the same worker so they are stored in the
// order they were handed over. When a worker's buffer is full the payload is
// dropped.
type Spooler struct {
	logger  *zap.Logger
	store   OfflineStore
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queues []chan spoolItem
	wg     sync.WaitGroup
}

func NewSpooler(logger *zap.Logger, store OfflineStore, cfg config.SpoolerConfig, writeTimeout time.Duration, m *metrics.Metrics) *Spooler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	per := buffer / workers
	if per < 1 {
		per = 1
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	s := &Spooler{
		logger:  logger.Named("storage.spooler"),
		store:   store,
		timeout: writeTimeout,
		metrics: m,
		queues:  make([]chan spoolItem, workers),
	}
	for i := range s.queues {
		s.queues[i] = make(chan spoolItem, per)
		s.wg.Add(1)
		go s.work(s.queues[i])
	}
	return s
}

// DeliverOffline splits payload into an event type and stored payload and
// queues the write. It never blocks.
func (s *Spooler) DeliverOffline(userID string, payload []byte) {
	eventType, stored := SplitOfflinePayload(payload)
	item := spoolItem{userID: userID, eventType: eventType, payload: stored}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.metrics.Offline("dropped")
		return
	}
	select {
	case s.queues[s.shard(userID)] <- item:
	default:
		s.metrics.Offline("dropped")
		s.logger.Warn("offline spool full, dropping notification",
			zap.String("user_id", userID),
			zap.String("event_type", eventType))
	}
}

func (s *Spooler) shard(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(s.queues)))
}

func (s *Spooler) work(ch <-chan spoolItem) {
	defer s.wg.Done()
	for item := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.store.InsertPending(ctx, item.userID, item.eventType, item.payload)
		cancel()
		if err != nil {
			s.metrics.Offline("failed")
			s.logger.Error("failed to store pending notification",
				zap.String("user_id", item.userID),
				zap.Error(err))
			continue
		}
		s.metrics.Offline("stored")
	}
}

// Close stops accepting payloads and waits until queued ones are written.
func (s *Spooler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.queues {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SplitOfflinePayload reads a client payload of the form {"event":..,"payload":..}.
// The event string becomes the event type (default "notification") and the
// inner payload, or the whole document when there is none, is stored. Text
// that is not JSON is stored as a JSON string.
func SplitOfflinePayload(payload []byte) (string, json.RawMessage) {
	eventType := cnst.DefaultEventType
	if !gjson.ValidBytes(payload) {
		b, _ := json.Marshal(string(payload))
		return eventType, b
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return eventType, append(json.RawMessage(nil), payload...)
	}
	if ev := doc.Get("event"); ev.Type == gjson.String {
		eventType = utils.Truncate(utils.FirstNonEmpty(ev.String(), cnst.DefaultEventType), cnst.MaxEventTypeLength)
	}
	if inner := doc.Get("payload"); inner.Exists() {
		return eventType, json.RawMessage(inner.Raw)
	}
	return eventType, append(json.RawMessage(nil), payload...)
}
