package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
)

// ErrStreamClosed is returned by Recv after Close.
var ErrStreamClosed = errors.New("stt stream closed")

const defaultEventBuffer = 64

// Stream feeds room audio to an Adapter and queues its results for Recv.
//
// Interim results are dropped when the queue is full; final results wait for
// space. The stream ends with io.EOF once the adapter reports OnEnd.
type Stream struct {
	adapter  Adapter
	provider string
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	events chan TranscriptionEvent
	done   chan struct{}

	mu      sync.Mutex
	err     error
	started bool

	cancel context.CancelFunc
	pump   sync.WaitGroup
}

// NewStream wraps adapter. bufferSize <= 0 selects the default.
func NewStream(adapter Adapter, provider string, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}
	return &Stream{
		adapter:  adapter,
		provider: provider,
		logger:   logging.WithComponent("stt").With().Str("sttProvider", provider).Logger(),
		metrics:  metrics.DefaultMetrics,
		events:   make(chan TranscriptionEvent, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start opens the provider session and begins forwarding audio frames.
// When audio is closed the adapter is closed, which eventually ends the stream.
func (s *Stream) Start(ctx context.Context, audio <-chan []byte) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("stt stream already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.adapter.Start(ctx, s); err != nil {
		s.metrics.RecordSTTError(s.provider, "start")
		return fmt.Errorf("start %s stt: %w", s.provider, err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pump.Add(1)
	go s.forward(pumpCtx, audio)
	return nil
}

func (s *Stream) forward(ctx context.Context, audio <-chan []byte) {
	defer s.pump.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame, ok := <-audio:
			if !ok {
				s.logger.Debug().Msg("Audio source closed, closing stt input")
				if err := s.adapter.Close(); err != nil {
					s.OnError(fmt.Errorf("close %s stt: %w", s.provider, err))
				}
				return
			}
			if err := s.adapter.SendAudio(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.metrics.RecordSTTError(s.provider, "send")
				s.OnError(fmt.Errorf("send audio to %s stt: %w", s.provider, err))
				return
			}
		}
	}
}

// Recv blocks until the next event, the end of the stream or ctx is done.
func (s *Stream) Recv(ctx context.Context) (TranscriptionEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return TranscriptionEvent{}, ctx.Err()
	case <-s.done:
		// Results queued before the end are still delivered.
		select {
		case ev := <-s.events:
			return ev, nil
		default:
			return TranscriptionEvent{}, s.terminalErr()
		}
	}
}

// Close stops audio forwarding and ends the stream. Safe to call repeatedly.
func (s *Stream) Close() error {
	s.finish(ErrStreamClosed)
	if s.cancel != nil {
		s.cancel()
	}
	err := s.adapter.Close()
	s.pump.Wait()
	return err
}

func (s *Stream) OnPartial(text string) {
	ev := TranscriptionEvent{Text: text}
	select {
	case <-s.done:
	case s.events <- ev:
	default:
		s.metrics.RecordDroppedPartial()
	}
}

func (s *Stream) OnFinal(text string, confidence float64) {
	ev := TranscriptionEvent{Text: text, IsFinal: true, Confidence: confidence}
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

func (s *Stream) OnError(err error) {
	s.logger.Error().Err(err).Msg("STT stream failed")
	s.finish(err)
}

func (s *Stream) OnEnd() {
	s.finish(io.EOF)
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.done)
}

func (s *Stream) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
