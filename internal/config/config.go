// Package config loads the service configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultInstructions is the system prompt given to the language model when
// AGENT_INSTRUCTIONS is not set.
const DefaultInstructions = "Eres un asistente de voz útil. Responde a las preguntas de los usuarios de forma concisa y clara."

// Configuration is the immutable, fully resolved service configuration.
type Configuration struct {
	Service       ServiceConfig
	App           AppConfig
	LiveKit       LiveKitConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	Agent         AgentConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process level settings.
type ServiceConfig struct {
	Principal   string
	Env         string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// AppConfig holds the static application metadata exposed by the HTTP API.
type AppConfig struct {
	Name        string
	Description string
	Version     string
	ContactName string
	ContactURL  string
	DocsURL     string
	RedocURL    string
}

// APIPrefix is the path prefix for every API route, e.g. /api/v1.
func (a AppConfig) APIPrefix() string {
	return "/api/v" + a.Version
}

// APIVersion is the semantic version reported in the OpenAPI document.
func (a AppConfig) APIVersion() string {
	return a.Version + ".0.0"
}

// LiveKitConfig holds room service credentials.
type LiveKitConfig struct {
	APIKey    string
	APISecret string
	URL       string
	TokenTTL  time.Duration
	// Transport is how the agent joins rooms: livekit, or bridge for the
	// local websocket media bridge.
	Transport string
}

// STTConfig configures the speech-to-text adapter.
type STTConfig struct {
	Provider       string // google, mock
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	EventBuffer    int
}

// LLMConfig configures the language model adapter.
type LLMConfig struct {
	Provider    string // azure, openai
	APIKey      string
	Endpoint    string
	Deployment  string
	APIVersion  string
	Temperature float64
	MaxHistory  int
}

// TTSConfig configures the ElevenLabs text-to-speech adapter.
type TTSConfig struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	BaseURL      string
	Timeout      time.Duration
}

// AgentConfig configures the voice agent worker.
type AgentConfig struct {
	Instructions string
	Identity     string
	MaxSessions  int
}

// KafkaConfig configures job consumption and turn event publishing.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	JobsTopic       string
	GroupID         string
	TopicTranscript string
	TopicResponse   string
	Principal       string
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// envFiles are loaded, in order, before reading the environment. Variables
// already present in the environment are never overwritten.
var envFiles = []string{
	".env",
	filepath.Join("env", ".livekit.env"),
	filepath.Join("env", ".azure.env"),
	filepath.Join("env", ".elevenlabs.env"),
	filepath.Join("env", ".google.env"),
}

// Load reads .env files (if any) and the environment into a Configuration.
func Load() *Configuration {
	loadEnvFiles()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-agent")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			Env:         envOrDefault("ENV", "prod"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		App: AppConfig{
			Name:        envOrDefault("APP_NAME", "LiveKit Agent Voice con Azure y ElevenLabs"),
			Description: envOrDefault("APP_DESCRIPTION", "Un agente de voz de LiveKit que utiliza Google para STT, ElevenLabs para TTS y Azure OpenAI para LLM."),
			Version:     envOrDefault("APP_VERSION", "1"),
			ContactName: envOrDefault("APP_CONTACT_NAME", "Voice Agent Team"),
			ContactURL:  envOrDefault("APP_CONTACT_URL", ""),
			DocsURL:     envOrDefault("APP_DOCS_URL", "/"),
			RedocURL:    envOrDefault("APP_REDOC_URL", "/redoc"),
		},
		LiveKit: LiveKitConfig{
			APIKey:    os.Getenv("LIVEKIT_API_KEY"),
			APISecret: os.Getenv("LIVEKIT_API_SECRET"),
			URL:       os.Getenv("LIVEKIT_URL"),
			TokenTTL:  envOrDefaultDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),
			Transport: envOrDefault("LIVEKIT_TRANSPORT", "livekit"),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "es-ES"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			EventBuffer:    envOrDefaultInt("STT_EVENT_BUFFER", 64),
		},
		LLM: LLMConfig{
			Provider:    envOrDefault("LLM_PROVIDER", "azure"),
			APIKey:      firstNonEmpty(os.Getenv("AZURE_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY")),
			Endpoint:    os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment:  envOrDefault("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o-mini"),
			APIVersion:  envOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21"),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0.7),
			MaxHistory:  envOrDefaultInt("LLM_MAX_HISTORY", 20),
		},
		TTS: TTSConfig{
			APIKey:       os.Getenv("ELEVENLABS_API_KEY"),
			VoiceID:      os.Getenv("VOICE_ID"),
			ModelID:      envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			OutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000"),
			BaseURL:      envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
			Timeout:      envOrDefaultDuration("ELEVENLABS_TIMEOUT", 60*time.Second),
		},
		Agent: AgentConfig{
			Instructions: envOrDefault("AGENT_INSTRUCTIONS", DefaultInstructions),
			Identity:     envOrDefault("AGENT_IDENTITY", "voice-agent"),
			MaxSessions:  envOrDefaultInt("AGENT_MAX_SESSIONS", 8),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			JobsTopic:       envOrDefault("KAFKA_TOPIC_JOBS", "agent.jobs"),
			GroupID:         envOrDefault("KAFKA_GROUP_ID", "voice-agent-workers"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "agent.transcript.final"),
			TopicResponse:   envOrDefault("KAFKA_TOPIC_RESPONSE", "agent.response"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func loadEnvFiles() {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
