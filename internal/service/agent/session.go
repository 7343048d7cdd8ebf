package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/models"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
	"voice-agent-service/internal/room"
	"voice-agent-service/internal/service/llm"
	"voice-agent-service/internal/service/stt"
	"voice-agent-service/internal/service/tts"
	"voice-agent-service/internal/service/turn"
)

// Adapters is the provider set bound to one session.
type Adapters struct {
	STT         stt.Adapter
	STTProvider string
	LLM         llm.Model
	TTS         tts.Synthesizer
	TTSProvider string
	// EventBuffer sizes the transcription queue. Zero selects the default.
	EventBuffer int
}

// TurnObserver is told about every turn. Events of one session arrive in
// order on a goroutine separate from the turn loop; if the observer falls too
// far behind, events are dropped.
type TurnObserver interface {
	UtteranceFinalized(ctx context.Context, ev models.TranscriptFinal)
	ResponseFinished(ctx context.Context, ev models.AgentResponse)
}

type nopObserver struct{}

func (nopObserver) UtteranceFinalized(context.Context, models.TranscriptFinal) {}
func (nopObserver) ResponseFinished(context.Context, models.AgentResponse)     {}

// Option customizes a session.
type Option func(*Session)

// WithObserver reports turns to o.
func WithObserver(o TurnObserver) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.ID = id
		}
	}
}

// Session is one agent in one room: a transcript stream fed by the room's
// inbound audio, a model and a speaker publishing into the room.
// Exactly one turn loop runs per session.
type Session struct {
	ID string

	room        room.Room
	stream      *stt.Stream
	transcripts TranscriptSource
	model       llm.Model
	speaker     tts.Speaker
	observer    TurnObserver
	notify      *notifier
	turns       *turn.Generator

	logger  zerolog.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// StartSession binds adapters to r, opens the transcription stream on the
// room's audio and joins the room. Missing adapters or a failed join are
// reported as apperr.Agent errors and leave nothing running.
func StartSession(ctx context.Context, r room.Room, adapters Adapters, opts ...Option) (*Session, error) {
	if err := adapters.validate(); err != nil {
		return nil, apperr.AgentError(err, "invalid adapters for room %s", r.Name())
	}

	s := newSession(r, adapters.LLM, opts...)
	s.stream = stt.NewStream(adapters.STT, adapters.STTProvider, adapters.EventBuffer)
	s.transcripts = s.stream
	s.speaker = tts.NewRoomSpeaker(adapters.TTS, r, adapters.TTSProvider)

	if err := s.stream.Start(ctx, r.Audio()); err != nil {
		_ = s.Close()
		return nil, apperr.AgentError(err, "start transcription for room %s", r.Name())
	}
	if err := r.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, apperr.AgentError(err, "connect to room %s", r.Name())
	}

	s.logger.Info().
		Str("stt", adapters.STTProvider).
		Str("tts", adapters.TTSProvider).
		Msg("Session started")
	return s, nil
}

func newSession(r room.Room, model llm.Model, opts ...Option) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		room:     r,
		model:    model,
		observer: nopObserver{},
		turns:    turn.NewGenerator(),
		metrics:  metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithSession(r.Name(), s.ID)
	s.notify = newNotifier(s.logger, s.metrics)
	return s
}

func (a Adapters) validate() error {
	switch {
	case a.STT == nil:
		return errors.New("stt adapter is required")
	case a.LLM == nil:
		return errors.New("llm is required")
	case a.TTS == nil:
		return errors.New("tts synthesizer is required")
	}
	return nil
}

// Run drives the turn loop until the participant's audio ends, an adapter
// fails or ctx is cancelled. Cancellation is a clean shutdown and returns nil.
// The session is closed on every path.
func (s *Session) Run(ctx context.Context) (err error) {
	start := time.Now()
	s.metrics.RecordSessionStart()
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			s.logger.Warn().Err(cerr).Msg("Session cleanup failed")
		}
		s.metrics.RecordSessionEnd(err == nil, time.Since(start).Seconds())
	}()

	err = RunTurnLoop(ctx, s)
	switch {
	case err == nil:
		s.logger.Info().Dur("duration", time.Since(start)).Msg("Session ended")
		return nil
	case ctx.Err() != nil, errors.Is(err, stt.ErrStreamClosed):
		s.logger.Info().Dur("duration", time.Since(start)).Msg("Session cancelled")
		return nil
	default:
		s.logger.Error().Err(err).Msg("Session failed")
		return apperr.AgentError(err, "session %s in room %s failed", s.ID, s.room.Name())
	}
}

// Close stops transcription, leaves the room and delivers pending turn
// events. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.room.Close(); err != nil {
			errs = append(errs, err)
		}
		s.notify.close()
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
