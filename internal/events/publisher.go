// Package events publishes agent turn events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-agent-service/internal/models"
	"voice-agent-service/internal/observability/metrics"
)

// Publisher publishes turn events to separate Kafka topics for finalized
// transcripts and agent responses. With Kafka disabled it only logs.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerResponse   *kafka.Writer
	principal        string
	topicTranscript  string
	topicResponse    string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicResponse   string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicTranscript: cfg.TopicTranscript,
			topicResponse:   cfg.TopicResponse,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	transport := &kafka.Transport{
		Dial: (&kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		}).DialFunc,
	}

	p := &Publisher{
		principal:       cfg.Principal,
		topicTranscript: cfg.TopicTranscript,
		topicResponse:   cfg.TopicResponse,
		enabled:         true,
		metrics:         m,
	}
	p.writerTranscript = newWriter(cfg.Brokers, cfg.TopicTranscript, transport, p.completion(cfg.TopicTranscript))
	p.writerResponse = newWriter(cfg.Brokers, cfg.TopicResponse, transport, p.completion(cfg.TopicResponse))

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicResponse", cfg.TopicResponse).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// newWriter returns an async writer: WriteMessages only enqueues, and the
// outcome of every batch is reported to completion.
func newWriter(brokers []string, topic string, transport *kafka.Transport, completion func([]kafka.Message, error)) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   completion,
		Transport:    transport,
	}
}

// completion records the result of an async batch written to topic.
func (p *Publisher) completion(topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		for _, msg := range msgs {
			eventType := headerValue(msg.Headers, "eventType")
			if err != nil {
				log.Error().
					Err(err).
					Str("topic", topic).
					Str("key", string(msg.Key)).
					Msg("Failed to write to Kafka")
			}
			p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(msg.Time).Seconds())
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// PublishTranscript publishes a finalized transcript event.
func (p *Publisher) PublishTranscript(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, models.EventTranscriptFinal, key, event)
}

// PublishResponse publishes an agent response event.
func (p *Publisher) PublishResponse(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerResponse, p.topicResponse, models.EventResponse, key, event)
}

// UtteranceFinalized publishes ev keyed by session so one session's events
// stay ordered within a partition. Failures are logged, never returned.
func (p *Publisher) UtteranceFinalized(ctx context.Context, ev models.TranscriptFinal) {
	_ = p.PublishTranscript(ctx, ev.SessionID, ev)
}

// ResponseFinished publishes ev keyed by session.
func (p *Publisher) ResponseFinished(ctx context.Context, ev models.AgentResponse) {
	_ = p.PublishResponse(ctx, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  start,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	// Delivery is reported through the writer's completion callback.
	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to enqueue Kafka message")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}
	return nil
}

// Close flushes and closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	if p.writerResponse != nil {
		if e := p.writerResponse.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing response writer")
			err = e
		}
	}
	return err
}
