// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the recognition settings used for room audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "es-ES",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// recognizeStream is the subset of the gRPC stream the adapter uses.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg    Config
	client *speech.Client
	logger zerolog.Logger

	mu        sync.Mutex
	stream    recognizeStream
	closeOnce sync.Once
	closeErr  error
}

// New creates a new Google STT adapter.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{
		cfg:    cfg,
		client: c,
		logger: logging.WithComponent("stt").With().Str("sttProvider", "google").Logger(),
	}, nil
}

// Start opens a streaming recognition session, sends the config and starts
// delivering results to cb.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("open streaming recognize: %w", err)
	}
	return a.start(stream, cb)
}

func (a *Adapter) start(stream recognizeStream, cb stt.Callback) error {
	if err := stream.Send(streamingConfig(a.cfg)); err != nil {
		return fmt.Errorf("send streaming config: %w", err)
	}

	a.mu.Lock()
	a.stream = stream
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("google stt not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream. Remaining results are still delivered and
// the listener reports OnEnd once Google has flushed them.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		stream := a.stream
		a.mu.Unlock()
		switch {
		case stream != nil:
			a.closeErr = stream.CloseSend()
		case a.client != nil:
			// Never started, so no listener will release the client.
			a.closeErr = a.client.Close()
		}
	})
	return a.closeErr
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen(stream recognizeStream, cb stt.Callback) {
	defer func() {
		if a.client != nil {
			if err := a.client.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to close speech client")
			}
		}
	}()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			cb.OnEnd()
			return
		}
		if err != nil {
			cb.OnError(fmt.Errorf("google stt: %w", err))
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			cb.OnError(fmt.Errorf("google stt: code %d: %s", st.GetCode(), st.GetMessage()))
			return
		}

		for _, r := range resp.GetResults() {
			if len(r.GetAlternatives()) == 0 {
				continue
			}
			alt := r.GetAlternatives()[0]
			if r.GetIsFinal() {
				cb.OnFinal(alt.GetTranscript(), float64(alt.GetConfidence()))
			} else {
				cb.OnPartial(alt.GetTranscript())
			}
		}
	}
}

func streamingConfig(cfg Config) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
					SampleRateHertz:            int32(cfg.SampleRateHz),
					LanguageCode:               cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: cfg.InterimResults,
			},
		},
	}
}

// parseAudioEncoding maps an encoding name to the proto enum, falling back
// to LINEAR16. Names are case sensitive.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if name == "ENCODING_UNSPECIFIED" {
		return speechpb.RecognitionConfig_LINEAR16
	}
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[name]; ok {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
