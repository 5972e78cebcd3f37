package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// StartOffset is earliest or latest for groups without committed offsets
	StartOffset      string
	SessionTimeoutMS int64
	// MaxAttempts bounds how often a failing record is handled before it is dead-lettered
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number
	RetryBackoff time.Duration
	// DeadLetterTopic receives records that failed permanently; empty drops them
	DeadLetterTopic string
	// Permanent reports errors that no retry can fix; nil treats every error as transient
	Permanent func(error) bool
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:          []string{"localhost:9092"},
		GroupID:          "event-ingestor",
		StartOffset:      "earliest",
		SessionTimeoutMS: 30000,
		MaxAttempts:      5,
		RetryBackoff:     200 * time.Millisecond,
		DeadLetterTopic:  TopicDeadLetter,
	}
}

// MessageHandler is called once per attempt at a record.
type MessageHandler func(ctx context.Context, msg *Message) error

type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Publisher writes dead letters. *Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Consumer handles records of a consumer group one at a time and commits each offset after
// its record was handled or dead-lettered.
type Consumer struct {
	client     *kgo.Client
	config     ConsumerConfig
	handler    MessageHandler
	deadLetter Publisher
	logger     *zap.Logger
	tracer     trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	handled      atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, deadLetter Publisher, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Warn("commit on revoke failed", zap.Error(err))
			}
		}),
	}
	if cfg.SessionTimeoutMS > 0 {
		opts = append(opts, kgo.SessionTimeout(time.Duration(cfg.SessionTimeoutMS)*time.Millisecond))
	}
	if cfg.StartOffset == "latest" {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:     client,
		config:     cfg,
		handler:    handler,
		deadLetter: deadLetter,
		logger:     logger,
		tracer:     otel.Tracer("redpanda-consumer"),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
	c.logger.Info("consumer started",
		zap.String("group", c.config.GroupID),
		zap.Strings("topics", c.config.Topics))
}

func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn("commit on stop failed", zap.Error(err))
	}
	c.client.Close()
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()
	for {
		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() || c.ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			if c.ctx.Err() != nil {
				return
			}
			if c.process(record) {
				c.client.MarkCommitRecords(record)
			}
		})
		if err := c.client.CommitMarkedOffsets(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Error("commit failed", zap.Error(err))
		}
	}
}

// process reports whether the record is done with, either handled or dead-lettered. It
// returns false only when the consumer is stopping.
func (c *Consumer) process(record *kgo.Record) bool {
	ctx := extractTraceContext(c.ctx, record)
	ctx, span := c.tracer.Start(ctx, "consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.source", record.Topic),
			attribute.Int64("messaging.kafka.partition", int64(record.Partition)),
			attribute.Int64("messaging.kafka.offset", record.Offset),
		))
	defer span.End()

	msg := &Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	var err error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err = c.handler(ctx, msg); err == nil {
			c.handled.Add(1)
			return true
		}
		c.failed.Add(1)
		span.RecordError(err)
		c.logger.Warn("message handler failed",
			zap.String("topic", record.Topic),
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if c.config.Permanent != nil && c.config.Permanent(err) {
			break
		}
		if attempt < c.config.MaxAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.config.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	c.sendToDeadLetter(ctx, msg, err)
	return true
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg *Message, cause error) {
	if c.deadLetter == nil || c.config.DeadLetterTopic == "" {
		c.logger.Error("dropping message", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(cause))
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"original_topic": msg.Topic,
		"partition":      msg.Partition,
		"offset":         msg.Offset,
		"payload":        json.RawMessage(validJSON(msg.Value)),
		"error":          cause.Error(),
		"failed_at":      time.Now().UTC(),
	})
	if err := c.deadLetter.Publish(ctx, c.config.DeadLetterTopic, string(msg.Key), payload); err != nil {
		c.logger.Error("dead-letter publish failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	c.deadLettered.Add(1)
}

// validJSON quotes payloads that are not JSON so the dead letter stays decodable.
func validJSON(b []byte) []byte {
	if json.Valid(b) {
		return b
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

type ConsumerStats struct {
	Handled      int64 `json:"handled"`
	Failed       int64 `json:"failed"`
	DeadLettered int64 `json:"dead_lettered"`
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:      c.handled.Load(),
		Failed:       c.failed.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}
