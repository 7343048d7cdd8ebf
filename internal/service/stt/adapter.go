// Package stt defines the interface for Speech-to-Text adapters and the
// pull-based transcription stream consumed by the agent pipeline.
package stt

import "context"

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnPartial is called when an interim transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnError is called when transcription fails. No further callbacks follow.
	OnError(err error)

	// OnEnd is called once the provider has flushed all results after the
	// audio input was closed.
	OnEnd()
}

// Adapter defines the interface for STT providers.
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close signals end of audio. Adapters must tolerate repeated calls.
	Close() error
}

// TranscriptionEvent is one recognition result.
type TranscriptionEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
}
