// Package tts turns response text into audio played into a room.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"voice-agent-service/internal/observability/metrics"
)

// DefaultFrameBytes is 20ms of 16 kHz mono PCM16.
const DefaultFrameBytes = 640

// Synthesizer converts text to a raw PCM16 audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// AudioSink receives outbound audio frames.
type AudioSink interface {
	Publish(ctx context.Context, pcm []byte) error
}

// Speaker synthesizes and plays one piece of text. Say returns once the audio
// has been handed to the room.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// RoomSpeaker is a Speaker that streams synthesized audio into a sink frame
// by frame.
type RoomSpeaker struct {
	synth      Synthesizer
	sink       AudioSink
	provider   string
	frameBytes int
	metrics    *metrics.Metrics
}

// NewRoomSpeaker binds synth to sink.
func NewRoomSpeaker(synth Synthesizer, sink AudioSink, provider string) *RoomSpeaker {
	return &RoomSpeaker{
		synth:      synth,
		sink:       sink,
		provider:   provider,
		frameBytes: DefaultFrameBytes,
		metrics:    metrics.DefaultMetrics,
	}
}

// Say synthesizes text and publishes the audio. Whitespace-only text produces
// no audio.
func (s *RoomSpeaker) Say(ctx context.Context, text string) (err error) {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordTTSCall(s.provider, err, time.Since(start).Seconds())
	}()

	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer audio.Close()

	frame := make([]byte, s.frameBytes)
	for {
		n, readErr := io.ReadFull(audio, frame)
		if n > 0 {
			if err := s.sink.Publish(ctx, append([]byte(nil), frame[:n]...)); err != nil {
				return fmt.Errorf("publish audio: %w", err)
			}
			s.metrics.RecordAudioPublished(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read synthesized audio: %w", readErr)
		}
	}
}
