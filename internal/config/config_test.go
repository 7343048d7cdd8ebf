package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL",
		"APP_VERSION", "AGENT_INSTRUCTIONS", "AGENT_MAX_SESSIONS",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
		"STT_INTERIM_RESULTS", "STT_AUDIO_ENCODING",
		"LLM_PROVIDER", "LIVEKIT_TOKEN_TTL", "LIVEKIT_TRANSPORT", "KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-voice-agent" {
		t.Errorf("expected default principal 'svc-voice-agent', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8000" {
		t.Errorf("expected default http port '8000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}

	// App defaults
	if cfg.App.APIPrefix() != "/api/v1" {
		t.Errorf("expected default api prefix '/api/v1', got %s", cfg.App.APIPrefix())
	}

	// STT defaults
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("expected default language 'es-ES', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.STT.InterimResults)
	}
	if cfg.STT.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.STT.AudioEncoding)
	}

	// Agent defaults
	if cfg.Agent.Instructions != DefaultInstructions {
		t.Errorf("expected default instructions, got %s", cfg.Agent.Instructions)
	}
	if cfg.Agent.MaxSessions != 8 {
		t.Errorf("expected default max sessions 8, got %d", cfg.Agent.MaxSessions)
	}
	if cfg.LLM.Provider != "azure" {
		t.Errorf("expected default LLM provider 'azure', got %s", cfg.LLM.Provider)
	}
	if cfg.LiveKit.TokenTTL != 6*time.Hour {
		t.Errorf("expected default token ttl 6h, got %v", cfg.LiveKit.TokenTTL)
	}
	if cfg.LiveKit.Transport != "livekit" {
		t.Errorf("expected default transport 'livekit', got %s", cfg.LiveKit.Transport)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected kafka disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no brokers by default, got %v", cfg.Kafka.Brokers)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("APP_VERSION", "2")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_LANGUAGE_CODE", "en-US")
	t.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	t.Setenv("STT_INTERIM_RESULTS", "false")
	t.Setenv("STT_AUDIO_ENCODING", "MULAW")
	t.Setenv("AGENT_INSTRUCTIONS", "Be brief.")
	t.Setenv("AGENT_MAX_SESSIONS", "2")
	t.Setenv("LIVEKIT_TOKEN_TTL", "30m")
	t.Setenv("LIVEKIT_TRANSPORT", "bridge")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.App.APIPrefix() != "/api/v2" {
		t.Errorf("expected api prefix '/api/v2', got %s", cfg.App.APIPrefix())
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != false {
		t.Errorf("expected interim results false, got %v", cfg.STT.InterimResults)
	}
	if cfg.STT.AudioEncoding != "MULAW" {
		t.Errorf("expected encoding 'MULAW', got %s", cfg.STT.AudioEncoding)
	}
	if cfg.Agent.Instructions != "Be brief." {
		t.Errorf("expected custom instructions, got %s", cfg.Agent.Instructions)
	}
	if cfg.Agent.MaxSessions != 2 {
		t.Errorf("expected max sessions 2, got %d", cfg.Agent.MaxSessions)
	}
	if cfg.LiveKit.TokenTTL != 30*time.Minute {
		t.Errorf("expected token ttl 30m, got %v", cfg.LiveKit.TokenTTL)
	}
	if cfg.LiveKit.Transport != "bridge" {
		t.Errorf("expected transport 'bridge', got %s", cfg.LiveKit.Transport)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_KafkaPrincipalFallback(t *testing.T) {
	os.Unsetenv("KAFKA_PRINCIPAL")
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoad_LLMKeyFallback(t *testing.T) {
	os.Unsetenv("AZURE_OPENAI_API_KEY")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := Load()

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected OPENAI_API_KEY fallback, got %q", cfg.LLM.APIKey)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"empty uses default true", "", true, true},
		{"empty uses default false", "", false, false},
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1 is true", "1", false, true},
		{"0 is false", "0", true, false},
		{"invalid uses default", "invalid", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			result := envOrDefaultBool(key, tt.def)
			if result != tt.expected {
				t.Errorf("envOrDefaultBool(%q, %v) = %v, expected %v", tt.value, tt.def, result, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_DURATION_VAR", "soon")

	if got := envOrDefaultDuration("TEST_DURATION_VAR", time.Second); got != time.Second {
		t.Errorf("expected fallback 1s, got %v", got)
	}
}

func TestLoadEnvFiles_ExistingEnvWins(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := os.WriteFile(".env", []byte("VOICE_ID=from-file\nELEVENLABS_MODEL_ID=file-model\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOICE_ID", "from-env")
	t.Setenv("ELEVENLABS_MODEL_ID", "")
	os.Unsetenv("ELEVENLABS_MODEL_ID")

	cfg := Load()

	if cfg.TTS.VoiceID != "from-env" {
		t.Errorf("expected environment to win over .env, got %s", cfg.TTS.VoiceID)
	}
	if cfg.TTS.ModelID != "file-model" {
		t.Errorf("expected model id from .env, got %s", cfg.TTS.ModelID)
	}
	os.Unsetenv("ELEVENLABS_MODEL_ID")
}
