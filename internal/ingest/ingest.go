// Package ingest consumes lifecycle events from Kafka and hands them to the
// notification router.
package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/decoder"
	"github.com/amoylab/notification-service/internal/notify"
	"github.com/amoylab/notification-service/pkg/metrics"
	"github.com/amoylab/notification-service/pkg/trace"
)

// Reader is the subset of *kafka.Reader the loop depends on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deliverer receives every decoded notification.
type Deliverer interface {
	Deliver(ctx context.Context, msg *notify.Message)
}

// NewReader builds a consumer group reader over the configured topics.
func NewReader(cfg *config.KafkaConfig) *kafka.Reader {
	start := kafka.FirstOffset
	if cfg.StartLatest {
		start = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.BrokerList(),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.TopicList(),
		Dialer: &kafka.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
		},
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: start,
	})
}

type Consumer struct {
	logger  *zap.Logger
	reader  Reader
	decoder *decoder.Decoder
	router  Deliverer
	backoff time.Duration
	metrics *metrics.Metrics
	tracer  *trace.Builder
}

type Options struct {
	// RetryBackoff is the pause after a failed fetch or commit.
	RetryBackoff time.Duration
	Metrics      *metrics.Metrics
}

func NewConsumer(logger *zap.Logger, reader Reader, dec *decoder.Decoder, router Deliverer, opts Options) *Consumer {
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		logger:  logger.Named("ingest.kafka"),
		reader:  reader,
		decoder: dec,
		router:  router,
		backoff: backoff,
		metrics: opts.Metrics,
		tracer:  trace.Tracer(cnst.TraceIngest),
	}
}

// Run fetches and processes records until ctx is done. A record that was
// fetched is always processed and committed, even when ctx is cancelled
// meanwhile. The reader is closed before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("failed to close kafka reader", zap.Error(err))
		}
		c.logger.Info("ingest loop stopped")
	}()
	c.logger.Info("ingest loop started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch kafka message", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		pctx := context.WithoutCancel(ctx)
		c.Process(pctx, msg)
		if err := c.reader.CommitMessages(pctx, msg); err != nil {
			c.logger.Error("failed to commit kafka message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
		}
	}
}

// Process decodes one record and delivers it. Undecodable records are skipped.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) {
	scope := c.tracer.Start(ctx, cnst.SpanIngestRecord).WithAttrs(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	defer scope.End()

	res := c.decoder.Decode(msg.Value)
	if !res.OK() {
		c.metrics.IngestRecord(msg.Topic, "skipped")
		c.logger.Debug("skipping undecodable record",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset))
		return
	}

	n, err := notify.FromEvent(res.Event, msg.Topic)
	if err != nil {
		scope.RecordError(err)
		c.metrics.IngestRecord(msg.Topic, "skipped")
		c.logger.Warn("failed to build notification", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	scope.WithAttrs(
		attribute.String("format", res.Format.String()),
		attribute.String("event_type", n.EventType),
	)
	c.router.Deliver(scope.Ctx, n)
	c.metrics.IngestRecord(msg.Topic, res.Format.String())
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
