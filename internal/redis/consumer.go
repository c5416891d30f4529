package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/koios/snapshot-processor/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readCount     = 50
	readBlock     = 5 * time.Second
	retryDelay    = time.Second
	maxRetryDelay = 30 * time.Second
)

// StateWriter receives entity state changes
type StateWriter interface {
	Set(ctx context.Context, entityID, state string) error
	Delete(ctx context.Context, entityID string) error
}

// Consumer applies entries of the state change stream to a StateWriter
type Consumer struct {
	client *Client
	states StateWriter
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a new Redis consumer
func NewConsumer(client *Client, states StateWriter, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		client: client,
		states: states,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start consumes state changes until Stop is called, reconnecting with
// exponential backoff
func (c *Consumer) Start() error {
	c.logger.Info("Starting Redis consumer for entity state changes")

	delay := retryDelay
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Redis consumer stopped")
			return nil
		default:
		}

		err := c.consumeMessages()
		if err == nil {
			continue
		}

		c.logger.Error("Error consuming messages, will retry",
			zap.Error(err),
			zap.Duration("retry_delay", delay))

		select {
		case <-c.ctx.Done():
			c.logger.Info("Redis consumer stopped")
			return nil
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping Redis consumer")
	c.cancel()
}

// consumeMessages reads the stream until the context ends or Redis fails
func (c *Consumer) consumeMessages() error {
	if err := c.client.EnsureStateStream(c.ctx); err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.logger.Info("Started consuming Redis stream messages")

	for {
		if c.ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.ReadStateStream(c.ctx, readCount, readBlock)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			if !c.client.IsHealthy(c.ctx) {
				return fmt.Errorf("Redis connection unhealthy, will reconnect: %w", err)
			}
			c.logger.Error("Error reading from stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.handleStreamMessage(message)
			}
		}
	}
}

// handleStreamMessage applies a single stream entry. Undecodable entries are
// acknowledged so they are not delivered again.
func (c *Consumer) handleStreamMessage(msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		c.logger.Error("Failed to extract payload from stream message",
			zap.String("message_id", msg.ID))
		c.acknowledge(msg.ID)
		return
	}

	event, err := models.ParseStateEvent([]byte(payload))
	if err != nil {
		c.logger.Error("Failed to decode state event",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("payload", payload))
		c.acknowledge(msg.ID)
		return
	}

	switch event.Type {
	case models.EventEntityRemoved:
		err = c.states.Delete(c.ctx, event.EntityID)
	default:
		err = c.states.Set(c.ctx, event.EntityID, event.State)
	}
	if err != nil {
		// left pending for inspection with XPENDING
		c.logger.Error("Failed to apply state event",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("entity", event.EntityID))
		return
	}

	c.acknowledge(msg.ID)

	c.logger.Debug("Applied state event",
		zap.String("message_id", msg.ID),
		zap.String("type", event.Type),
		zap.String("entity", event.EntityID),
		zap.String("state", event.State))
}

func (c *Consumer) acknowledge(messageID string) {
	if err := c.client.AcknowledgeMessage(c.ctx, messageID); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.Error(err),
			zap.String("message_id", messageID))
	}
}
