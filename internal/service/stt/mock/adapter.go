// Package mock provides a mock STT adapter for running the agent without
// cloud credentials. It emits progressive partial transcripts, exactly one
// final transcript per utterance and cycles through a fixed set of utterances.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-agent-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Hola", "Hola..."},
		Final:      "Hola mundo",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"Qué", "Qué tiempo", "Qué tiempo hace"},
		Final:      "¿Qué tiempo hace hoy?",
		Confidence: 0.92,
	},
	{
		Partials:   []string{"Puedes", "Puedes ayudarme"},
		Final:      "¿Puedes ayudarme con mi reserva?",
		Confidence: 0.9,
	},
	{
		Partials:   []string{"Gracias"},
		Final:      "Gracias, eso es todo",
		Confidence: 0.97,
	},
}

// Config tunes the simulation.
type Config struct {
	Utterances []SimulatedUtterance
	// FrameDelay is slept before each callback to mimic provider latency.
	FrameDelay time.Duration
}

// Adapter implements stt.Adapter with mock responses.
// Each audio frame advances the current utterance by one partial; the frame
// after the last partial emits the final and moves on to the next utterance.
type Adapter struct {
	cfg          Config
	cb           stt.Callback
	mu           sync.Mutex
	frames       int // Count of audio frames received
	index        int // Current utterance
	partialIndex int // Next partial to send
	pending      bool
	closed       bool
}

// utteranceCounter spreads new adapters across the utterance set.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a mock adapter using DefaultUtterances.
func New() *Adapter {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a mock adapter. Empty Utterances selects the defaults.
func NewWithConfig(cfg Config) *Adapter {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}

	counterMu.Lock()
	idx := utteranceCounter % len(cfg.Utterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{cfg: cfg, index: idx}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio advances the simulation by one step.
func (a *Adapter) SendAudio(ctx context.Context, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}
	a.frames++

	if err := a.wait(ctx); err != nil {
		return err
	}

	utt := a.cfg.Utterances[a.index]
	if a.partialIndex < len(utt.Partials) {
		a.cb.OnPartial(utt.Partials[a.partialIndex])
		a.partialIndex++
		a.pending = true
		return nil
	}

	// All partials sent, the speaker paused.
	a.cb.OnFinal(utt.Final, utt.Confidence)
	a.pending = false
	a.partialIndex = 0
	a.index = (a.index + 1) % len(a.cfg.Utterances)
	return nil
}

// Close ends the mock session. An utterance in progress is finalized first.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.cb == nil {
		return nil
	}

	if a.pending {
		utt := a.cfg.Utterances[a.index]
		a.cb.OnFinal(utt.Final, utt.Confidence)
		a.pending = false
	}
	a.cb.OnEnd()
	return nil
}

// FramesReceived returns the number of audio frames seen so far.
func (a *Adapter) FramesReceived() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.cfg.FrameDelay <= 0 {
		return nil
	}
	t := time.NewTimer(a.cfg.FrameDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
