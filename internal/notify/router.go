package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/pkg/metrics"
	"github.com/amoylab/notification-service/pkg/trace"
	"github.com/amoylab/notification-service/pkg/utils"
)

// Registry is the local fan-out the router drives.
type Registry interface {
	SendToUser(userID string, payload []byte)
	BroadcastToSession(sessionID string, payload []byte)
}

// Auditor persists one immutable record per local delivery.
type Auditor interface {
	InsertNotificationEvent(ctx context.Context, sessionID, userID *string, eventType string, payload json.RawMessage) error
}

// Publisher fans a message out to every instance, this one included.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

type RouterOptions struct {
	Audit Auditor
	// Bus enables multi-instance mode when set.
	Bus          Publisher
	WriteTimeout time.Duration
	Metrics      *metrics.Metrics
}

// Router is the single entry point for delivering notifications.
type Router struct {
	logger       *zap.Logger
	registry     Registry
	audit        Auditor
	bus          Publisher
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	tracer       *trace.Builder
}

func NewRouter(logger *zap.Logger, registry Registry, opts RouterOptions) *Router {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Router{
		logger:       logger.Named("router"),
		registry:     registry,
		audit:        opts.Audit,
		bus:          opts.Bus,
		writeTimeout: timeout,
		metrics:      opts.Metrics,
		tracer:       trace.Tracer(cnst.TraceRouter),
	}
}

// Deliver publishes msg on the bus when one is configured and otherwise
// delivers it locally. A failed publish falls back to local delivery so
// recipients connected to this instance are still served.
func (r *Router) Deliver(ctx context.Context, msg *Message) {
	scope := r.tracer.Start(ctx, cnst.SpanDeliver).WithAttrs(
		attribute.String("event_type", msg.EventType),
		attribute.Bool("bus", r.bus != nil),
	)
	defer scope.End()

	if r.bus != nil {
		err := r.bus.Publish(scope.Ctx, msg)
		r.metrics.BusPublish(err)
		if err == nil {
			return
		}
		scope.RecordError(err)
		r.logger.Error("bus publish failed, delivering locally",
			zap.String("event_type", msg.EventType),
			zap.Error(err))
	}
	r.DeliverLocal(scope.Ctx, msg)
}

// DeliverLocal pushes msg to this instance's registry and records an audit
// event whether or not any recipient was connected. It is also the bus
// subscription handler.
func (r *Router) DeliverLocal(ctx context.Context, msg *Message) {
	scope := r.tracer.Start(ctx, cnst.SpanDeliverLocal)
	defer scope.End()

	start := time.Now()
	payload := []byte(msg.Payload)
	if msg.SessionID != "" {
		r.registry.BroadcastToSession(msg.SessionID, payload)
		r.metrics.LocalDelivery("session", start)
	}
	if msg.UserID != "" {
		r.registry.SendToUser(msg.UserID, payload)
		r.metrics.LocalDelivery("user", start)
	}
	if !msg.HasTarget() {
		r.logger.Debug("notification has no delivery target", zap.String("event_type", msg.EventType))
	}

	if r.audit == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(scope.Ctx), r.writeTimeout)
	defer cancel()
	err := r.audit.InsertNotificationEvent(wctx, optional(msg.SessionID), optional(msg.UserID),
		utils.Truncate(msg.EventType, cnst.MaxEventTypeLength), msg.AuditPayload())
	if err != nil {
		scope.RecordError(err)
		r.logger.Warn("failed to record notification event",
			zap.String("event_type", msg.EventType),
			zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
