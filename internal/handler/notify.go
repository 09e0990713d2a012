package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/notify"
	"github.com/amoylab/notification-service/internal/storage"
	"github.com/amoylab/notification-service/pkg/utils"
)

var errInvalidBody = errors.New("invalid body")

// HandleNotifySession delivers {"event","payload"} to every listener of a session.
func (h *Handler) HandleNotifySession(c *gin.Context) {
	h.handleNotify(c, notify.NewSessionNotification)
}

// HandleNotifyUser delivers {"event","payload"} to one user.
func (h *Handler) HandleNotifyUser(c *gin.Context) {
	h.handleNotify(c, notify.NewUserNotification)
}

type notificationBuilder func(id, event string, payload json.RawMessage) (*notify.Message, error)

func (h *Handler) handleNotify(c *gin.Context, build notificationBuilder) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, errInvalidBody)
		return
	}

	var event string
	var payload json.RawMessage
	if len(body) > 0 {
		if !gjson.ValidBytes(body) {
			errorJSON(c, http.StatusBadRequest, errInvalidBody)
			return
		}
		doc := gjson.ParseBytes(body)
		if ev := doc.Get("event"); ev.Type == gjson.String {
			event = ev.Str
		}
		if p := doc.Get("payload"); p.Exists() {
			payload = json.RawMessage(p.Raw)
		}
	}

	msg, err := build(c.Param("id"), event, payload)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	h.router.Deliver(c.Request.Context(), msg)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleSessionListeners lists the users subscribed to a session on this instance.
func (h *Handler) HandleSessionListeners(c *gin.Context) {
	sessionID := c.Param("id")
	if !utils.IsUUID(sessionID) {
		errorJSON(c, http.StatusBadRequest, cnst.ErrInvalidSessionID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"listeners":  h.hub.GetSessionListeners(sessionID),
	})
}

// HandlePending drains the user's undelivered notifications.
func (h *Handler) HandlePending(c *gin.Context) {
	userID := c.Param("user_id")
	if !utils.IsUUID(userID) {
		errorJSON(c, http.StatusBadRequest, cnst.ErrInvalidUserID)
		return
	}
	if h.pending == nil {
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "items": []storage.PendingItem{}})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	items, err := h.pending.GetAndClearPending(ctx, userID)
	if err != nil {
		h.logger.Error("failed to read pending notifications", zap.String("user_id", userID), zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to read pending notifications"))
		return
	}
	if items == nil {
		items = []storage.PendingItem{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "items": items})
}
