package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/wsconn"
	"github.com/amoylab/notification-service/pkg/utils"
)

// HandleWebSocket admits, upgrades and registers a client connection, then
// serves its control messages until it closes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.Param("user_id")
	if !utils.IsUUID(userID) {
		errorJSON(c, http.StatusBadRequest, cnst.ErrInvalidUserID)
		return
	}

	clientIP := ClientIP(c.Request)
	if !h.limiter.TryAcquire(clientIP) {
		h.metrics.Admission(false)
		h.logger.Warn("connection refused by limiter",
			zap.String("client_ip", clientIP),
			zap.Int("total", h.limiter.Total()))
		errorJSON(c, http.StatusServiceUnavailable, cnst.ErrConnectionLimit)
		return
	}
	defer h.limiter.Release(clientIP)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.metrics.Admission(true)

	conn := wsconn.New(ws, h.logger, h.wsOpts)
	h.hub.Register(userID, conn)
	h.logger.Debug("client connected", zap.String("user_id", userID), zap.String("client_ip", clientIP))

	conn.ReadLoop(func(msg []byte) {
		h.handleControl(userID, msg)
	})
	h.logger.Debug("client disconnected", zap.String("user_id", userID))
}

// handleControl applies {"subscribe_session": id} and
// {"unsubscribe_session": id}. Anything else is ignored.
func (h *Handler) handleControl(userID string, msg []byte) {
	if !gjson.ValidBytes(msg) {
		return
	}
	doc := gjson.ParseBytes(msg)
	if !doc.IsObject() {
		return
	}
	if id := doc.Get("subscribe_session"); id.Type == gjson.String && utils.IsUUID(id.Str) {
		h.hub.SubscribeSession(id.Str, userID)
	}
	if id := doc.Get("unsubscribe_session"); id.Type == gjson.String && utils.IsUUID(id.Str) {
		h.hub.UnsubscribeSession(id.Str, userID)
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// peer host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
