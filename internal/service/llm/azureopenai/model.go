// Package azureopenai streams chat completions from Azure OpenAI or any
// OpenAI compatible endpoint.
package azureopenai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
	"voice-agent-service/internal/service/llm"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

var ErrMissingCredentials = errors.New("llm api key is required")

// Config configures one model instance.
type Config struct {
	Provider     string
	APIKey       string
	Endpoint     string // Azure resource endpoint or OpenAI compatible base URL
	Deployment   string // Azure deployment name, or model name for OpenAI
	APIVersion   string
	Instructions string
	Temperature  float64
	// MaxHistory bounds the number of remembered messages. Zero disables history.
	MaxHistory int
}

// Model implements llm.Model. A Model keeps the conversation history of a
// single session and must not be shared between sessions.
type Model struct {
	client  openai.Client
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

var _ llm.Model = (*Model)(nil)

// New builds a model client for cfg.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Deployment == "" {
		return nil, errors.New("llm deployment is required")
	}

	var opts []option.RequestOption
	switch cfg.Provider {
	case ProviderAzure, "":
		if cfg.Endpoint == "" {
			return nil, errors.New("azure openai endpoint is required")
		}
		cfg.Provider = ProviderAzure
		opts = append(opts,
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	case ProviderOpenAI:
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.Endpoint))
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return &Model{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		logger:  logging.WithComponent("llm").With().Str("llmProvider", cfg.Provider).Logger(),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Stream sends text as the next user message and yields the streamed reply.
func (m *Model) Stream(ctx context.Context, text string) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:    m.cfg.Deployment,
			Messages: m.messages(text),
		}
		if m.cfg.Temperature > 0 {
			params.Temperature = openai.Float(m.cfg.Temperature)
		}

		start := time.Now()
		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var reply strings.Builder
		first := true
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if first {
				first = false
				m.metrics.RecordLLMFirstChunk(m.cfg.Provider, time.Since(start).Seconds())
			}
			delta := chunk.Choices[0].Delta.Content
			reply.WriteString(delta)
			if !yield(llm.Chunk{Text: delta}, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			m.metrics.RecordLLMError(m.cfg.Provider)
			yield(llm.Chunk{}, fmt.Errorf("%s chat stream: %w", m.cfg.Provider, err))
			return
		}

		m.remember(text, reply.String())
		m.logger.Debug().
			Int("replyLen", reply.Len()).
			Dur("elapsed", time.Since(start)).
			Msg("Response streamed")
	}
}

func (m *Model) messages(text string) []openai.ChatCompletionMessageParamUnion {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(m.history)+2)
	if m.cfg.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(m.cfg.Instructions))
	}
	msgs = append(msgs, m.history...)
	return append(msgs, openai.UserMessage(text))
}

func (m *Model) remember(user, assistant string) {
	if m.cfg.MaxHistory <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, openai.UserMessage(user), openai.AssistantMessage(assistant))
	if over := len(m.history) - m.cfg.MaxHistory; over > 0 {
		// Drop whole user/assistant pairs.
		over += over % 2
		m.history = append([]openai.ChatCompletionMessageParamUnion(nil), m.history[over:]...)
	}
}

// HistoryLen reports the number of remembered messages.
func (m *Model) HistoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
