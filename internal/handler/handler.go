// Package handler exposes the notification hub over HTTP: the client
// WebSocket endpoint, the collaborator notify API, introspection and health.
package handler

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/hub"
	"github.com/amoylab/notification-service/internal/limiter"
	"github.com/amoylab/notification-service/internal/notify"
	"github.com/amoylab/notification-service/internal/storage"
	"github.com/amoylab/notification-service/internal/wsconn"
	"github.com/amoylab/notification-service/pkg/metrics"
	"github.com/amoylab/notification-service/pkg/version"
)

// Deliverer routes a notification; *notify.Router satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, msg *notify.Message)
}

// PendingStore drains a user's undelivered notifications.
type PendingStore interface {
	GetAndClearPending(ctx context.Context, userID string) ([]storage.PendingItem, error)
}

type Options struct {
	WebSocket config.WebSocketConfig
	Pending   PendingStore
	// StoreTimeout bounds a pending pull.
	StoreTimeout time.Duration
	Metrics      *metrics.Metrics
}

type Handler struct {
	logger   *zap.Logger
	hub      *hub.Hub
	limiter  *limiter.Limiter
	router   Deliverer
	pending  PendingStore
	upgrader websocket.Upgrader
	wsOpts   wsconn.Options
	timeout  time.Duration
	metrics  *metrics.Metrics
	ready    atomic.Bool
}

func New(logger *zap.Logger, h *hub.Hub, lim *limiter.Limiter, router Deliverer, opts Options) *Handler {
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ws := opts.WebSocket
	hd := &Handler{
		logger:  logger.Named("handler"),
		hub:     h,
		limiter: lim,
		router:  router,
		pending: opts.Pending,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   ws.ReadBufferSize,
			WriteBufferSize:  ws.WriteBufferSize,
			HandshakeTimeout: ws.HandshakeTimeout,
			// clients authenticate out of band; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsOpts: wsconn.Options{
			WriteWait:      ws.WriteWait,
			PongWait:       ws.PongWait,
			MaxMessageSize: ws.MaxMessageSize,
			OutboundBuffer: ws.OutboundBuffer,
		},
		timeout: timeout,
		metrics: opts.Metrics,
	}
	hd.ready.Store(true)
	return hd
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HandleHealth)
	r.GET("/ready", h.HandleReady)

	r.GET("/ws/notify/:user_id", h.HandleWebSocket)

	r.POST("/notify/session/:id", h.HandleNotifySession)
	r.POST("/notify/user/:id", h.HandleNotifyUser)
	r.GET("/notify/session/:id/listeners", h.HandleSessionListeners)
	r.GET("/notify/pending/:user_id", h.HandlePending)
}

// SetReady toggles the readiness probe; it is cleared on shutdown.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": cnst.AppName,
		"version": version.Get(),
		"time":    time.Now().Unix(),
	})
}

func (h *Handler) HandleReady(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
