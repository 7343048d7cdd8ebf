// Package worker receives room jobs and runs one agent session per job.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"voice-agent-service/internal/models"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
)

// Delivery is a received job. Ack marks it handled at the source.
type Delivery struct {
	Job models.Job
	Ack func(ctx context.Context) error
}

// JobSource yields jobs until it is exhausted (io.EOF) or ctx is done.
type JobSource interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

func noAck(context.Context) error { return nil }

// StaticJobs serves a fixed list of jobs, then io.EOF.
type StaticJobs struct {
	mu   sync.Mutex
	jobs []models.Job
}

// NewStaticJobs returns a source over jobs. Jobs without an ID get one.
func NewStaticJobs(jobs ...models.Job) *StaticJobs {
	out := make([]models.Job, len(jobs))
	for i, j := range jobs {
		if j.JobID == "" {
			j.JobID = uuid.NewString()
		}
		out[i] = j
	}
	return &StaticJobs{jobs: out}
}

func (s *StaticJobs) Fetch(ctx context.Context) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return Delivery{}, io.EOF
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	metrics.DefaultMetrics.RecordJobReceived("static")
	return Delivery{Job: job, Ack: noAck}, nil
}

func (s *StaticJobs) Close() error { return nil }

// KafkaConfig configures the Kafka job consumer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaJobs consumes JSON jobs from a topic as part of a consumer group.
// Malformed messages are committed and skipped.
type KafkaJobs struct {
	reader messageReader
	logger zerolog.Logger
}

// NewKafkaJobs creates a consumer group reader for cfg.
func NewKafkaJobs(cfg KafkaConfig) (*KafkaJobs, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka jobs topic and group id are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // synchronous commits
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})

	logger := logging.WithComponent("jobs")
	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("groupId", cfg.GroupID).
		Msg("Kafka job consumer initialized")

	return &KafkaJobs{reader: reader, logger: logger}, nil
}

func (k *KafkaJobs) Fetch(ctx context.Context) (Delivery, error) {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			return Delivery{}, err
		}

		job, err := decodeJob(msg.Value)
		if err != nil {
			k.logger.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Skipping malformed job")
			if err := k.reader.CommitMessages(ctx, msg); err != nil {
				return Delivery{}, fmt.Errorf("commit skipped job: %w", err)
			}
			continue
		}

		metrics.DefaultMetrics.RecordJobReceived("kafka")
		return Delivery{
			Job: job,
			Ack: func(ctx context.Context) error {
				return k.reader.CommitMessages(ctx, msg)
			},
		}, nil
	}
}

func (k *KafkaJobs) Close() error {
	return k.reader.Close()
}

func decodeJob(payload []byte) (models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return models.Job{}, fmt.Errorf("decode job: %w", err)
	}
	job.RoomName = strings.TrimSpace(job.RoomName)
	if job.RoomName == "" {
		return models.Job{}, errors.New("job has no room_name")
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return job, nil
}
