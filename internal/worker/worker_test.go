package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/livekit/auth"
	"voice-agent-service/internal/models"
	"voice-agent-service/internal/room"
	lkroom "voice-agent-service/internal/room/livekit"
)

func testConfig(maxSessions int) config.Configuration {
	return config.Configuration{
		LiveKit: config.LiveKitConfig{APIKey: "devkey", APISecret: "secret", TokenTTL: time.Hour},
		Agent:   config.AgentConfig{Identity: "voice-agent", MaxSessions: maxSessions},
	}
}

func TestWorker_RunsEveryJobWithinLimit(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	var rooms []string

	runner := func(ctx context.Context, job models.Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)

		mu.Lock()
		rooms = append(rooms, job.RoomName)
		mu.Unlock()
		return nil
	}

	src := NewStaticJobs(
		models.Job{RoomName: "a"}, models.Job{RoomName: "b"},
		models.Job{RoomName: "c"}, models.Job{RoomName: "d"},
	)
	w := New(testConfig(2), src, WithRunner(runner))

	require.NoError(t, w.Run(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, rooms)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Zero(t, w.Active())
}

func TestWorker_SessionFailureDoesNotStopWorker(t *testing.T) {
	var calls atomic.Int32
	runner := func(ctx context.Context, job models.Job) error {
		calls.Add(1)
		if job.RoomName == "bad" {
			return errors.New("room gone")
		}
		return nil
	}

	src := NewStaticJobs(models.Job{RoomName: "bad"}, models.Job{RoomName: "good"})
	w := New(testConfig(1), src, WithRunner(runner))

	require.NoError(t, w.Run(context.Background()))
	assert.EqualValues(t, 2, calls.Load())
}

func TestWorker_CancellationIsClean(t *testing.T) {
	started := make(chan struct{})
	runner := func(ctx context.Context, job models.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	src := &blockingSource{jobs: []models.Job{{JobID: "j1", RoomName: "r"}}}
	w := New(testConfig(4), src, WithRunner(runner))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.EqualValues(t, 1, src.acked.Load())
}

func TestWorker_FetchErrorIsReported(t *testing.T) {
	src := &blockingSource{err: errors.New("broker down")}
	w := New(testConfig(1), src, WithRunner(func(context.Context, models.Job) error { return nil }))

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Agent))
}

func TestAgentToken(t *testing.T) {
	cfg := testConfig(1)

	tok, err := AgentToken(cfg, "sala-1")
	require.NoError(t, err)

	claims, err := auth.Verify(tok, "devkey", "secret")
	require.NoError(t, err)
	assert.Equal(t, "voice-agent", claims.Subject)
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.Agent)
	assert.Equal(t, "sala-1", claims.Video.Room)
	require.NotNil(t, claims.Video.CanPublish)
	assert.True(t, *claims.Video.CanPublish)
}

func TestNewRoom_Transport(t *testing.T) {
	job := models.Job{JobID: "j1", RoomName: "sala", ParticipantIdentity: "ana"}

	cfg := testConfig(1)
	cfg.LiveKit.Transport = TransportLiveKit
	r, err := newRoom(cfg, job, "tok")
	require.NoError(t, err)
	assert.IsType(t, &lkroom.Room{}, r)
	assert.Equal(t, "sala", r.Name())

	cfg.LiveKit.Transport = TransportBridge
	r, err = newRoom(cfg, job, "tok")
	require.NoError(t, err)
	assert.IsType(t, &room.WSRoom{}, r)

	cfg.LiveKit.Transport = "carrier-pigeon"
	_, err = newRoom(cfg, job, "tok")
	assert.True(t, apperr.Is(err, apperr.Agent))
}

func TestAgentToken_MissingKeys(t *testing.T) {
	cfg := testConfig(1)
	cfg.LiveKit.APISecret = ""

	_, err := AgentToken(cfg, "sala-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Agent))
	assert.ErrorIs(t, err, auth.ErrKeysMissing)
}

func TestStaticJobs(t *testing.T) {
	src := NewStaticJobs(models.Job{RoomName: "r1"}, models.Job{JobID: "fixed", RoomName: "r2"})

	d1, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", d1.Job.RoomName)
	assert.NotEmpty(t, d1.Job.JobID)
	require.NoError(t, d1.Ack(context.Background()))

	d2, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", d2.Job.JobID)

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeJob(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		room    string
		wantErr bool
	}{
		{"full", `{"job_id":"j1","room_name":"sala","participant_identity":"ana"}`, "sala", false},
		{"trimmed room", `{"room_name":"  sala "}`, "sala", false},
		{"missing room", `{"job_id":"j1"}`, "", true},
		{"not json", `room=sala`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := decodeJob([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.room, job.RoomName)
			assert.NotEmpty(t, job.JobID)
		})
	}
}

func TestKafkaJobs_SkipsMalformedAndCommitsOnAck(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`garbage`)},
		{Offset: 2, Value: []byte(`{"job_id":"j2","room_name":"sala"}`)},
	}}
	k := &KafkaJobs{reader: reader, logger: zerolog.Nop()}

	d, err := k.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "j2", d.Job.JobID)
	assert.Equal(t, []int64{1}, reader.committed, "malformed message committed while skipping")

	require.NoError(t, d.Ack(context.Background()))
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestNewKafkaJobs_Validation(t *testing.T) {
	_, err := NewKafkaJobs(KafkaConfig{Topic: "t", GroupID: "g"})
	assert.Error(t, err)
	_, err = NewKafkaJobs(KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	assert.Error(t, err)
}

// blockingSource hands out jobs, then fails with err or blocks until ctx ends.
type blockingSource struct {
	jobs  []models.Job
	err   error
	acked atomic.Int32
}

func (b *blockingSource) Fetch(ctx context.Context) (Delivery, error) {
	if len(b.jobs) > 0 {
		job := b.jobs[0]
		b.jobs = b.jobs[1:]
		return Delivery{Job: job, Ack: func(context.Context) error {
			b.acked.Add(1)
			return nil
		}}, nil
	}
	if b.err != nil {
		return Delivery{}, b.err
	}
	<-ctx.Done()
	return Delivery{}, ctx.Err()
}

func (b *blockingSource) Close() error { return nil }

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }
