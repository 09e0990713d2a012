// Package bus carries notifications between service instances over Redis pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/common/redisclient"
	"github.com/amoylab/notification-service/internal/notify"
)

// Handler runs local delivery for a message received from the bus.
type Handler func(ctx context.Context, msg *notify.Message)

// RedisBus publishes every message on one channel that all instances,
// including the publisher, subscribe to.
type RedisBus struct {
	logger  *zap.Logger
	client  redis.UniversalClient
	channel string
	owned   bool

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// NewRedisBus connects to the configured Redis deployment.
func NewRedisBus(ctx context.Context, logger *zap.Logger, cfg config.BusConfig) (*RedisBus, error) {
	client, err := redisclient.New(ctx, redisclient.Options{
		ClusterType: cfg.ClusterType,
		Addr:        cfg.Addr,
		MasterName:  cfg.MasterName,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	if err != nil {
		return nil, err
	}
	b := NewRedisBusWithClient(logger, client, cfg.Channel)
	b.owned = true
	return b, nil
}

// NewRedisBusWithClient uses an existing client, which Close leaves open.
func NewRedisBusWithClient(logger *zap.Logger, client redis.UniversalClient, channel string) *RedisBus {
	if channel == "" {
		channel = cnst.BusChannel
	}
	return &RedisBus{
		logger:  logger.Named("bus.redis"),
		client:  client,
		channel: channel,
	}
}

func (b *RedisBus) Channel() string { return b.channel }

// Publish serializes msg onto the shared channel.
func (b *RedisBus) Publish(ctx context.Context, msg *notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed and then dispatches
// messages to handle in arrival order until ctx ends or the bus is closed.
func (b *RedisBus) Subscribe(ctx context.Context, handle Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return cnst.ErrBusClosed
	}
	if b.pubsub != nil {
		b.mu.Unlock()
		return fmt.Errorf("bus already subscribed")
	}
	ps := b.client.Subscribe(ctx, b.channel)
	b.pubsub = ps
	b.mu.Unlock()

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		b.mu.Lock()
		b.pubsub = nil
		b.mu.Unlock()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to notification bus", zap.String("channel", b.channel))

	ch := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg notify.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Warn("discarding malformed bus message", zap.Error(err))
					continue
				}
				handle(ctx, &msg)
			}
		}
	}()
	return nil
}

// Close ends the subscription and waits for the dispatch loop to exit.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ps := b.pubsub
	b.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
	}
	b.wg.Wait()
	if b.owned {
		if cerr := b.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
