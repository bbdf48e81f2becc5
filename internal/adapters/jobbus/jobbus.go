// Package jobbus implements JobBus (spec.md §4.6) over Kafka. Grounded on
// internal/orchestrator/kafka.go's worker-pool consumer loop (bounded
// jobs channel, per-message retry with exponential backoff, commit after
// handling) and handler.go's publish-on-failure DLQ idiom, generalized
// from the teacher's single CommandEnvelope topic to the two durable
// ingest/query topics spec.md §6 names.
package jobbus

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Config names the topics and consumer-group wiring for one Bus.
type Config struct {
	Brokers     []string
	GroupID     string
	IngestTopic string
	QueryTopic  string
	DLQTopic    string
	WorkerCount int
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.DLQTopic == "" {
		c.DLQTopic = "docengine.dlq"
	}
	return c
}

// Bus is a Kafka-backed capabilities.JobBus.
type Bus struct {
	cfg Config
	dlq *kafka.Writer
}

// New constructs a Bus; readers are created lazily per Subscribe call so
// each topic gets its own consumer group offset tracking.
func New(cfg Config) *Bus {
	cfg = cfg.withDefaults()
	return &Bus{
		cfg: cfg,
		dlq: &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.LeastBytes{}},
	}
}

func (b *Bus) SubscribeIngest(ctx context.Context, handle func(ctx context.Context, payload []byte) error) error {
	return b.consume(ctx, b.cfg.IngestTopic, handle)
}

func (b *Bus) SubscribeQuery(ctx context.Context, handle func(ctx context.Context, payload []byte) error) error {
	return b.consume(ctx, b.cfg.QueryTopic, handle)
}

// consume runs a bounded worker pool over one topic's reader, calling a
// handler up to maxAttempts (3) times with a kafka.go-style
// 200ms*2^(attempt-1) backoff between attempts before publishing to the DLQ, then commits regardless of outcome so a
// poison message can never wedge the partition (spec.md §7).
func (b *Bus) consume(ctx context.Context, topic string, handle func(ctx context.Context, payload []byte) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		GroupID:  b.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	jobs := make(chan kafka.Message, b.cfg.WorkerCount*4)
	done := make(chan struct{})
	for i := 0; i < b.cfg.WorkerCount; i++ {
		go func() {
			for msg := range jobs {
				b.handleWithRetry(ctx, topic, msg, handle)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Str("topic", topic).Msg("jobbus_commit_failed")
				}
			}
		}()
	}
	go func() { <-ctx.Done(); close(done) }()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- msg:
		case <-done:
			close(jobs)
			return nil
		}
	}
}

const maxAttempts = 3

func (b *Bus) handleWithRetry(ctx context.Context, topic string, msg kafka.Message, handle func(ctx context.Context, payload []byte) error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = handle(ctx, msg.Value)
		if lastErr == nil {
			return
		}
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
		if ctx.Err() != nil {
			break
		}
	}
	log.Error().Err(lastErr).Str("topic", topic).Msg("jobbus_handler_exhausted_publishing_dlq")
	if err := b.PublishDLQ(ctx, topic, msg.Value); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("jobbus_dlq_publish_failed")
	}
}

func (b *Bus) PublishDLQ(ctx context.Context, topic string, payload []byte) error {
	return b.dlq.WriteMessages(ctx, kafka.Message{Key: []byte(topic), Value: payload})
}
