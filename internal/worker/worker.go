package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/livekit/auth"
	"voice-agent-service/internal/models"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/room"
	lkroom "voice-agent-service/internal/room/livekit"
	"voice-agent-service/internal/service/agent"
)

// Runner runs one session for job and returns when it ends.
type Runner func(ctx context.Context, job models.Job) error

// Option customizes a Worker.
type Option func(*Worker)

// WithRunner replaces the session runner.
func WithRunner(r Runner) Option {
	return func(w *Worker) { w.run = r }
}

// WithObserver reports every session's turns to o.
func WithObserver(o agent.TurnObserver) Option {
	return func(w *Worker) { w.observer = o }
}

// Worker pulls jobs from a source and runs up to MaxSessions sessions at once.
type Worker struct {
	cfg      config.Configuration
	source   JobSource
	run      Runner
	observer agent.TurnObserver
	logger   zerolog.Logger
	active   atomic.Int64
}

func New(cfg config.Configuration, source JobSource, opts ...Option) *Worker {
	w := &Worker{
		cfg:    cfg,
		source: source,
		logger: logging.WithComponent("worker"),
	}
	w.run = w.runSession
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Active returns the number of sessions currently running.
func (w *Worker) Active() int64 {
	return w.active.Load()
}

// Run dispatches jobs until the source is exhausted or ctx is cancelled, then
// waits for running sessions. Session failures are logged and do not stop the
// worker. Cancellation returns nil.
func (w *Worker) Run(ctx context.Context) error {
	limit := w.cfg.Agent.MaxSessions
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	w.logger.Info().Int("maxSessions", limit).Msg("Worker started")

	var fetchErr error
	for {
		d, err := w.source.Fetch(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				fetchErr = err
			}
			break
		}

		// Jobs are acknowledged on dispatch; a room is never replayed after a
		// restart.
		if err := d.Ack(ctx); err != nil {
			w.logger.Warn().Err(err).Str("jobId", d.Job.JobID).Msg("Failed to acknowledge job")
		}

		job := d.Job
		g.Go(func() error {
			w.handle(ctx, job)
			return nil
		})
	}

	_ = g.Wait()
	w.logger.Info().Msg("Worker stopped")
	if fetchErr != nil {
		return apperr.AgentError(fetchErr, "fetch job")
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, job models.Job) {
	logger := logging.WithJob(job.JobID, job.RoomName)
	w.active.Add(1)
	defer w.active.Add(-1)

	logger.Info().Str("participant", job.ParticipantIdentity).Msg("Job started")
	if err := w.run(ctx, job); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Job failed")
		return
	}
	logger.Info().Msg("Job finished")
}

// runSession joins the job's room as the agent and runs the turn loop.
func (w *Worker) runSession(ctx context.Context, job models.Job) error {
	token, err := AgentToken(w.cfg, job.RoomName)
	if err != nil {
		return err
	}

	adapters, err := agent.NewAdapters(ctx, w.cfg)
	if err != nil {
		return err
	}

	r, err := newRoom(w.cfg, job, token)
	if err != nil {
		return err
	}

	opts := []agent.Option{agent.WithSessionID(job.JobID)}
	if w.observer != nil {
		opts = append(opts, agent.WithObserver(w.observer))
	}
	s, err := agent.StartSession(ctx, r, adapters, opts...)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// Room transports.
const (
	TransportLiveKit = "livekit"
	TransportBridge  = "bridge"
)

// newRoom returns an unconnected room for job on the configured transport.
func newRoom(cfg config.Configuration, job models.Job, token string) (room.Room, error) {
	switch cfg.LiveKit.Transport {
	case TransportLiveKit, "":
		return lkroom.New(lkroom.Options{
			URL:         cfg.LiveKit.URL,
			Room:        job.RoomName,
			Token:       token,
			Participant: job.ParticipantIdentity,
			SampleRate:  cfg.STT.SampleRateHz,
		}), nil
	case TransportBridge:
		return room.NewWebsocket(room.Options{
			URL:         cfg.LiveKit.URL,
			Room:        job.RoomName,
			Token:       token,
			Participant: job.ParticipantIdentity,
		}), nil
	default:
		return nil, apperr.AgentError(nil, "unknown room transport %q", cfg.LiveKit.Transport)
	}
}

// AgentToken signs the token the agent uses to join roomName.
func AgentToken(cfg config.Configuration, roomName string) (string, error) {
	token, err := auth.Sign(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, auth.Participant{
		Identity: cfg.Agent.Identity,
		Name:     cfg.Agent.Identity,
		ValidFor: cfg.LiveKit.TokenTTL,
	}, auth.AgentGrant(roomName))
	if err != nil {
		return "", apperr.AgentError(err, "sign agent token for room %s", roomName)
	}
	return token, nil
}
