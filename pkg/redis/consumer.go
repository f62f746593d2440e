package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream name to consume from (required).
	Stream string

	// Group is the consumer group name (required).
	Group string

	// Consumer is the consumer name within the group (required).
	Consumer string

	// StartID is where a newly created group starts: "0" for the whole
	// stream, "$" for new entries only. Default: "0".
	StartID string

	// Count is the max number of entries to read per batch. Default: 100.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// RetryInterval is how long to wait before retrying after an error
	// or a partially acknowledged batch. Default: 1 second.
	RetryInterval time.Duration

	// MaxRetryInterval is the maximum retry interval (with exponential backoff).
	// Default: 30 seconds.
	MaxRetryInterval time.Duration

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// BatchHandler processes one batch of stream entries in stream order and
// returns the ids that may be acknowledged. Entries left out stay pending
// and are delivered again, in order, on the next pass.
type BatchHandler func(ctx context.Context, msgs []Message) (ack []string)

// Message represents a single stream entry with parsed fields.
type Message struct {
	// ID is the Redis stream entry ID (e.g., "1234567890123-0").
	ID string

	// Stream is the stream name this message came from.
	Stream string

	// Values contains the entry fields as key-value pairs.
	Values map[string]interface{}
}

// StreamConsumer consumes a Redis stream through a consumer group with
// automatic reconnection. Unacknowledged entries are re-read before new ones.
type StreamConsumer struct {
	client *Client
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(client *Client, config StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.Group == "" || config.Consumer == "" {
		return nil, errors.New("consumer group and consumer name are required")
	}

	// Apply defaults
	if config.StartID == "" {
		config.StartID = "0"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 1 * time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// RunBatch consumes until ctx is cancelled, handing each XREADGROUP batch to
// handler and acknowledging the ids it returns.
//
// On start, and after any batch that was not fully acknowledged, the
// consumer first drains its own pending entries (id "0") so a failed entry
// is retried before anything newer is delivered.
func (sc *StreamConsumer) RunBatch(ctx context.Context, handler BatchHandler) error {
	if err := sc.client.XGroupCreateMkStream(ctx, sc.config.Stream, sc.config.Group, sc.config.StartID); err != nil {
		return fmt.Errorf("create consumer group %s on %s: %w", sc.config.Group, sc.config.Stream, err)
	}
	sc.logger.Info("Consumer group ready",
		zap.String("stream", sc.config.Stream),
		zap.String("group", sc.config.Group),
		zap.String("consumer", sc.config.Consumer))

	pending := true
	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down",
				zap.String("stream", sc.config.Stream),
				zap.String("group", sc.config.Group))
			return ctx.Err()
		default:
		}

		lastID := ">"
		if pending {
			lastID = "0"
		}

		messages, err := sc.readMessages(ctx, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				// Block timed out with nothing new
				continue
			}

			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))

			if !sc.sleep(ctx, retryInterval) {
				return ctx.Err()
			}
			retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			continue
		}

		if len(messages) == 0 {
			pending = false
			continue
		}

		ack := handler(ctx, messages)
		if len(ack) > 0 {
			// Acks must land even when shutdown started mid-batch.
			if _, ackErr := sc.client.XAck(context.WithoutCancel(ctx), sc.config.Stream, sc.config.Group, ack...); ackErr != nil {
				sc.logger.Warn("Failed to acknowledge messages",
					zap.String("stream", sc.config.Stream),
					zap.Int("count", len(ack)),
					zap.Error(ackErr))
			}
		}

		if len(ack) < len(messages) {
			pending = true
			sc.logger.Warn("Batch partially processed, retrying pending entries",
				zap.String("stream", sc.config.Stream),
				zap.Int("batch", len(messages)),
				zap.Int("acked", len(ack)),
				zap.Duration("retryIn", retryInterval))
			if !sc.sleep(ctx, retryInterval) {
				return ctx.Err()
			}
			retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			continue
		}

		retryInterval = sc.config.RetryInterval
	}
}

func (sc *StreamConsumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// readMessages reads a batch of messages from the stream.
func (sc *StreamConsumer) readMessages(ctx context.Context, lastID string) ([]Message, error) {
	streams, err := sc.client.XReadGroup(ctx,
		sc.config.Group,
		sc.config.Consumer,
		[]string{sc.config.Stream},
		[]string{lastID},
		sc.config.Count,
		sc.config.Block,
	)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
		}
	}
	return messages, nil
}

// GetData is a helper to extract the "data" field from a message.
// Returns nil if not found.
func (m *Message) GetData() []byte {
	if data, ok := m.Values["data"].(string); ok {
		return []byte(data)
	}
	if data, ok := m.Values["data"].([]byte); ok {
		return data
	}
	return nil
}

// GetString returns a field as a string. Redis returns every field as a
// string; other types only appear in hand-built messages.
func (m *Message) GetString(key string) (string, bool) {
	switch v := m.Values[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// GetHeight is a helper to extract the "height" field from a message.
// Returns 0 if not found or not parseable.
func (m *Message) GetHeight() uint64 {
	s, ok := m.GetString("height")
	if !ok {
		return 0
	}
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return h
}
