// Package agent runs the voice agent: finalized speech goes to the language
// model and every response chunk is spoken back into the room, one turn at a
// time.
package agent

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-agent-service/internal/models"
	"voice-agent-service/internal/service/stt"
	"voice-agent-service/internal/service/turn"
)

// TranscriptSource delivers recognition results in order. io.EOF ends it.
type TranscriptSource interface {
	Recv(ctx context.Context) (stt.TranscriptionEvent, error)
}

// FinalizeTranscript yields the text of every final result from source and
// drops interim ones. Results are pulled only when the consumer asks for the
// next utterance. A source error is yielded once and ends the sequence.
func FinalizeTranscript(ctx context.Context, source TranscriptSource) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			ev, err := source.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !ev.IsFinal {
				continue
			}
			if !yield(ev.Text, nil) {
				return
			}
		}
	}
}

// GenerateResponse asks the session's model about utterance, once, and yields
// the non-empty chunks in the order the model produced them.
func GenerateResponse(ctx context.Context, s *Session, utterance string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for chunk, err := range s.model.Stream(ctx, utterance) {
			if err != nil {
				yield("", err)
				return
			}
			if chunk.Text == "" {
				continue
			}
			if !yield(chunk.Text, nil) {
				return
			}
		}
	}
}

// Synthesize speaks every chunk in order. Each Say returns before the next
// chunk is pulled.
func Synthesize(ctx context.Context, s *Session, chunks iter.Seq2[string, error]) error {
	for text, err := range chunks {
		if err != nil {
			return err
		}
		if err := s.speaker.Say(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

// RunTurnLoop answers utterances until the transcript ends. The next
// utterance is not pulled until the current response has been spoken. The
// first adapter error ends the loop.
func RunTurnLoop(ctx context.Context, s *Session) error {
	for utterance, err := range FinalizeTranscript(ctx, s.transcripts) {
		if err != nil {
			return err
		}
		if err := s.runTurn(ctx, utterance); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) runTurn(ctx context.Context, utterance string) error {
	t := turn.NewLifecycle(s.turns.Next(s.ID), utterance)
	logger := s.logger.With().Str("turnId", t.TurnID()).Logger()

	s.metrics.RecordUtterance()
	logger.Info().Str("text", utterance).Msg("Utterance finalized")
	transcript := models.TranscriptFinal{
		EventType: models.EventTranscriptFinal,
		Room:      s.room.Name(),
		SessionID: s.ID,
		TurnID:    t.TurnID(),
		Timestamp: time.Now().UnixMilli(),
		Text:      utterance,
	}
	// Events outlive the session context so the last turn is still reported.
	eventCtx := context.WithoutCancel(ctx)
	s.notify.send(models.EventTranscriptFinal, func() {
		s.observer.UtteranceFinalized(eventCtx, transcript)
	})

	var response strings.Builder
	err := Synthesize(ctx, s, spoken(t, &response, logger, GenerateResponse(ctx, s, utterance)))

	status := models.ResponseCompleted
	if err != nil {
		t.Fail()
		status = models.ResponseFailed
		if ctx.Err() == nil {
			logger.Error().Err(err).Int("chunks", t.Chunks()).Msg("Turn failed")
		}
	} else if cerr := t.Complete(); cerr != nil {
		logger.Warn().Err(cerr).Str("state", t.State().String()).Msg("Turn completed twice")
	} else {
		s.metrics.RecordTurnCompleted(t.Chunks(), t.Elapsed().Seconds())
		logger.Info().
			Int("chunks", t.Chunks()).
			Dur("duration", t.Elapsed()).
			Msg("Turn completed")
	}

	result := models.AgentResponse{
		EventType:  models.EventResponse,
		Room:       s.room.Name(),
		SessionID:  s.ID,
		TurnID:     t.TurnID(),
		Timestamp:  time.Now().UnixMilli(),
		Text:       response.String(),
		Chunks:     t.Chunks(),
		DurationMs: t.Elapsed().Milliseconds(),
		Status:     status,
	}
	s.notify.send(models.EventResponse, func() {
		s.observer.ResponseFinished(eventCtx, result)
	})
	return err
}

// spoken passes chunks through and records each one on t after the consumer
// has finished with it.
func spoken(t *turn.Lifecycle, response *strings.Builder, logger zerolog.Logger, chunks iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for text, err := range chunks {
			if !yield(text, err) {
				return
			}
			if err != nil {
				continue
			}
			if serr := t.Spoke(); serr != nil {
				logger.Warn().Err(serr).Str("state", t.State().String()).Msg("Chunk spoken after turn ended")
				continue
			}
			response.WriteString(text)
		}
	}
}
