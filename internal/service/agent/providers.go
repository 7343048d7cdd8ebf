package agent

import (
	"context"
	"fmt"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/service/llm/azureopenai"
	"voice-agent-service/internal/service/stt"
	"voice-agent-service/internal/service/stt/google"
	"voice-agent-service/internal/service/stt/mock"
	"voice-agent-service/internal/service/tts/elevenlabs"
)

// STT providers.
const (
	STTGoogle = "google"
	STTMock   = "mock"
)

// NewAdapters builds a fresh provider set for one session from cfg. Each
// session needs its own set; the model keeps per-session history.
func NewAdapters(ctx context.Context, cfg config.Configuration) (Adapters, error) {
	sttAdapter, err := newSTT(ctx, cfg.STT)
	if err != nil {
		return Adapters{}, apperr.AgentError(err, "build %s stt adapter", cfg.STT.Provider)
	}

	model, err := azureopenai.New(azureopenai.Config{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		Endpoint:     cfg.LLM.Endpoint,
		Deployment:   cfg.LLM.Deployment,
		APIVersion:   cfg.LLM.APIVersion,
		Instructions: cfg.Agent.Instructions,
		Temperature:  cfg.LLM.Temperature,
		MaxHistory:   cfg.LLM.MaxHistory,
	})
	if err != nil {
		_ = sttAdapter.Close()
		return Adapters{}, apperr.AgentError(err, "build %s llm", cfg.LLM.Provider)
	}

	synth, err := elevenlabs.New(elevenlabs.Config{
		APIKey:       cfg.TTS.APIKey,
		VoiceID:      cfg.TTS.VoiceID,
		ModelID:      cfg.TTS.ModelID,
		OutputFormat: cfg.TTS.OutputFormat,
		BaseURL:      cfg.TTS.BaseURL,
		Timeout:      cfg.TTS.Timeout,
	})
	if err != nil {
		_ = sttAdapter.Close()
		return Adapters{}, apperr.AgentError(err, "build elevenlabs tts")
	}

	return Adapters{
		STT:         sttAdapter,
		STTProvider: cfg.STT.Provider,
		LLM:         model,
		TTS:         synth,
		TTSProvider: synth.Name(),
		EventBuffer: cfg.STT.EventBuffer,
	}, nil
}

func newSTT(ctx context.Context, cfg config.STTConfig) (stt.Adapter, error) {
	switch cfg.Provider {
	case STTGoogle:
		return google.New(ctx, google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		})
	case STTMock, "":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}
