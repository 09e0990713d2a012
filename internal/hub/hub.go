// Package hub is the connection registry: it maps users to their single live
// connection and sessions to their subscribed users, and routes payloads to
// connection queues or to the offline path.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
)

type Options struct {
	// QueueSize is the per-connection queue depth. Zero selects the default.
	QueueSize int
	// Offline receives payloads for users without a live connection.
	Offline OfflineDeliverer
	// OnDrop is called with the user id when a payload is shed by a full queue.
	OnDrop func(userID string)
}

type Hub struct {
	logger    *zap.Logger
	queueSize int
	offline   OfflineDeliverer
	onDrop    func(string)

	mu          sync.RWMutex
	users       map[string]*Conn
	sessions    map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
}

func New(logger *zap.Logger, opts Options) *Hub {
	size := opts.QueueSize
	if size <= 0 {
		size = cnst.DefaultSendQueueSize
	}
	return &Hub{
		logger:      logger.Named("hub"),
		queueSize:   size,
		offline:     opts.Offline,
		onDrop:      opts.OnDrop,
		users:       make(map[string]*Conn),
		sessions:    make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Register binds adapter to userID. An existing connection for the user is
// evicted and force-closed; its session memberships carry over to the new one.
// The adapter's close notification unregisters the returned connection.
func (h *Hub) Register(userID string, adapter Adapter) *Conn {
	c := newConn(userID, adapter, h.queueSize)
	adapter.SetOnClose(func() { h.release(c) })
	if c.flow != nil {
		c.flow.SetOnWritable(c.Flush)
	}

	h.mu.Lock()
	prev := h.users[userID]
	h.users[userID] = c
	h.mu.Unlock()

	if prev != nil {
		h.logger.Debug("evicting previous connection", zap.String("user_id", userID))
		prev.Close()
	}
	if !adapter.IsOpen() {
		h.release(c)
	}
	return c
}

// Unregister closes and removes the user's connection and purges every
// session membership of the user. It is a no-op for unknown users.
func (h *Hub) Unregister(userID string) {
	h.mu.Lock()
	c := h.users[userID]
	delete(h.users, userID)
	h.purgeLocked(userID)
	h.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

// release unregisters c only if it is still the registered connection for
// its user, so a stale handle cannot remove its successor.
func (h *Hub) release(c *Conn) {
	h.mu.Lock()
	if h.users[c.userID] == c {
		delete(h.users, c.userID)
		h.purgeLocked(c.userID)
	}
	h.mu.Unlock()

	c.Close()
}

func (h *Hub) purgeLocked(userID string) {
	for sessionID := range h.memberships[userID] {
		if subs, ok := h.sessions[sessionID]; ok {
			delete(subs, userID)
			if len(subs) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}
	delete(h.memberships, userID)
}

func (h *Hub) SubscribeSession(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[string]struct{})
		h.sessions[sessionID] = subs
	}
	subs[userID] = struct{}{}

	ms, ok := h.memberships[userID]
	if !ok {
		ms = make(map[string]struct{})
		h.memberships[userID] = ms
	}
	ms[sessionID] = struct{}{}
}

func (h *Hub) UnsubscribeSession(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, userID)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	if ms, ok := h.memberships[userID]; ok {
		delete(ms, sessionID)
		if len(ms) == 0 {
			delete(h.memberships, userID)
		}
	}
}

// SendToUser enqueues payload on the user's connection, or hands it to the
// offline path when the user has no live connection.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.mu.RLock()
	c := h.users[userID]
	h.mu.RUnlock()

	h.deliver(userID, c, payload)
}

// BroadcastToSession applies SendToUser semantics to every subscriber of the
// session. Subscribers are served independently.
func (h *Hub) BroadcastToSession(sessionID string, payload []byte) {
	type target struct {
		userID string
		conn   *Conn
	}

	h.mu.RLock()
	subs := h.sessions[sessionID]
	targets := make([]target, 0, len(subs))
	for userID := range subs {
		targets = append(targets, target{userID: userID, conn: h.users[userID]})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.deliver(t.userID, t.conn, payload)
	}
}

func (h *Hub) deliver(userID string, c *Conn, payload []byte) {
	if c == nil {
		h.deliverOffline(userID, payload)
		return
	}
	switch c.Enqueue(payload) {
	case Dropped:
		h.logger.Warn("send queue full, dropping message",
			zap.String("user_id", userID),
			zap.Int("queue_size", h.queueSize))
		if h.onDrop != nil {
			h.onDrop(userID)
		}
	case Closed:
		h.deliverOffline(userID, payload)
	}
}

func (h *Hub) deliverOffline(userID string, payload []byte) {
	if h.offline == nil {
		return
	}
	h.offline.DeliverOffline(userID, payload)
}

// GetSessionListeners returns the session's subscribers in no particular order.
func (h *Hub) GetSessionListeners(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.sessions[sessionID]
	out := make([]string, 0, len(subs))
	for userID := range subs {
		out = append(out, userID)
	}
	return out
}

func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	c := h.users[userID]
	h.mu.RUnlock()
	return c != nil && c.IsOpen()
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users))
	for _, c := range h.users {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
