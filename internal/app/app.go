// Package app wires the notification service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/bus"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/decoder"
	"github.com/amoylab/notification-service/internal/handler"
	"github.com/amoylab/notification-service/internal/hub"
	"github.com/amoylab/notification-service/internal/ingest"
	"github.com/amoylab/notification-service/internal/limiter"
	"github.com/amoylab/notification-service/internal/notify"
	"github.com/amoylab/notification-service/internal/storage"
	"github.com/amoylab/notification-service/pkg/metrics"
	"github.com/amoylab/notification-service/pkg/trace"
	"github.com/amoylab/notification-service/pkg/version"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg        *config.NotificationServiceConfig
	logger     *zap.Logger
	instanceID string

	metrics  *metrics.Metrics
	store    storage.Store
	spooler  *storage.Spooler
	hub      *hub.Hub
	router   *notify.Router
	bus      *bus.RedisBus
	consumer *ingest.Consumer
	handler  *handler.Handler
	engine   *gin.Engine

	traceShutdown func(context.Context) error

	mu         sync.Mutex
	server     *http.Server
	ingestDone chan struct{}
	stopIngest context.CancelFunc
	closeOnce  sync.Once
}

// New builds every component from cfg. External collaborators (store, bus)
// are connected here so startup failures surface before serving.
func New(ctx context.Context, cfg *config.NotificationServiceConfig, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:        cfg,
		instanceID: uuid.NewString(),
	}
	a.logger = logger.With(zap.String("instance_id", a.instanceID))

	shutdown, err := trace.InitTracing(ctx, &cfg.Trace, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.traceShutdown = shutdown

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics)
	}

	store, err := storage.New(ctx, a.logger, &cfg.Storage)
	if err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.store = store
	a.spooler = storage.NewSpooler(a.logger, store, cfg.Storage.Spooler, cfg.Storage.WriteTimeout, a.metrics)

	a.hub = hub.New(a.logger, hub.Options{
		QueueSize: cfg.Hub.SendQueueSize,
		Offline:   a.spooler,
		OnDrop: func(userID string) {
			a.metrics.QueueDrop()
			a.logger.Warn("dropped message, connection queue full", zap.String("user_id", userID))
		},
	})
	a.metrics.RegisterConnectionGauge(a.hub.ConnectionCount)

	opts := notify.RouterOptions{
		Audit:        store,
		WriteTimeout: cfg.Storage.WriteTimeout,
		Metrics:      a.metrics,
	}
	if cfg.Bus.Enabled() {
		b, err := bus.NewRedisBus(ctx, a.logger, cfg.Bus)
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init bus: %w", err)
		}
		a.bus = b
		opts.Bus = b
	}
	a.router = notify.NewRouter(a.logger, a.hub, opts)

	if cfg.Kafka.Enabled() {
		dec := decoder.New(a.logger, cfg.Decoder)
		a.consumer = ingest.NewConsumer(a.logger, ingest.NewReader(&cfg.Kafka), dec, a.router, ingest.Options{
			RetryBackoff: cfg.Kafka.RetryBackoff,
			Metrics:      a.metrics,
		})
	}

	a.handler = handler.New(a.logger, a.hub, limiter.New(cfg.Limits.MaxPerIP, cfg.Limits.MaxTotal), a.router, handler.Options{
		WebSocket:    cfg.WebSocket,
		Pending:      store,
		StoreTimeout: cfg.Storage.WriteTimeout,
		Metrics:      a.metrics,
	})
	a.engine = a.newEngine()
	return a, nil
}

func (a *App) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if a.cfg.Trace.Enabled {
		engine.Use(otelgin.Middleware(a.cfg.Trace.ServiceName))
	}
	if a.metrics != nil {
		engine.Use(a.metrics.Middleware())
		engine.GET(a.cfg.Metrics.Path, gin.WrapH(a.metrics.Handler()))
	}
	a.handler.RegisterRoutes(engine)
	return engine
}

// Handler returns the HTTP handler serving every endpoint.
func (a *App) Handler() http.Handler { return a.engine }

// Start subscribes to the bus, starts the ingest loop and begins serving on ln.
func (a *App) Start(ctx context.Context, ln net.Listener) error {
	if a.bus != nil {
		if err := a.bus.Subscribe(ctx, a.router.DeliverLocal); err != nil {
			return fmt.Errorf("subscribe bus: %w", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consumer != nil {
		ictx, cancel := context.WithCancel(ctx)
		a.stopIngest = cancel
		a.ingestDone = make(chan struct{})
		go func() {
			defer close(a.ingestDone)
			if err := a.consumer.Run(ictx); err != nil {
				a.logger.Error("ingest loop failed", zap.Error(err))
			}
		}()
	}

	a.server = &http.Server{
		Handler:           a.engine,
		ReadHeaderTimeout: a.cfg.WebSocket.HandshakeTimeout,
	}
	srv := a.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("notification service started",
		zap.String("version", version.Get()),
		zap.String("addr", ln.Addr().String()),
		zap.Bool("bus", a.bus != nil),
		zap.Bool("ingest", a.consumer != nil))
	return nil
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.cleanup(ctx)
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := a.Start(ctx, ln); err != nil {
		_ = ln.Close()
		a.cleanup(ctx)
		return err
	}

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(sctx)
}

// Shutdown stops accepting work, lets the in-flight ingest record finish,
// closes client connections and flushes the offline spool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down notification service")
	a.handler.SetReady(false)

	a.mu.Lock()
	srv, stop, done := a.server, a.stopIngest, a.ingestDone
	a.server, a.stopIngest = nil, nil
	a.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if stop != nil {
		stop()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("ingest loop: %w", ctx.Err()))
		}
	}
	a.hub.CloseAll()
	a.cleanup(ctx)
	return errors.Join(errs...)
}

// cleanup releases collaborators in dependency order. It is safe to call more
// than once.
func (a *App) cleanup(ctx context.Context) {
	a.closeOnce.Do(func() {
		if a.bus != nil {
			if err := a.bus.Close(); err != nil {
				a.logger.Warn("failed to close bus", zap.Error(err))
			}
		}
		if a.spooler != nil {
			a.spooler.Close()
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Warn("failed to close store", zap.Error(err))
			}
		}
		if a.traceShutdown != nil {
			if err := a.traceShutdown(ctx); err != nil {
				a.logger.Warn("failed to shutdown tracer provider", zap.Error(err))
			}
		}
		_ = a.logger.Sync()
	})
}
