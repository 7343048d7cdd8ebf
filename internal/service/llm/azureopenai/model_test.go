package azureopenai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path string
	body map[string]any
}

// sseServer streams the given deltas as chat completion chunks.
func sseServer(t *testing.T, deltas []string, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		*captured = append(*captured, capturedRequest{path: r.URL.Path, body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for i, d := range deltas {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1700000000 + i,
				"model":   "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"delta":         map[string]any{"content": d},
					"finish_reason": nil,
				}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, m *Model, text string) []string {
	t.Helper()
	var out []string
	for chunk, err := range m.Stream(context.Background(), text) {
		require.NoError(t, err)
		out = append(out, chunk.Text)
	}
	return out
}

func TestModel_StreamsChunksInOrder(t *testing.T) {
	var reqs []capturedRequest
	srv := sseServer(t, []string{"Hace sol", "", " y calor."}, &reqs)

	m, err := New(Config{
		Provider:     ProviderOpenAI,
		APIKey:       "sk-test",
		Endpoint:     srv.URL,
		Deployment:   "gpt-4o-mini",
		Instructions: "Sé breve.",
	})
	require.NoError(t, err)

	got := collect(t, m, "¿Qué tiempo hace?")
	assert.Equal(t, []string{"Hace sol", "", " y calor."}, got)

	require.Len(t, reqs, 1)
	assert.Equal(t, "/chat/completions", reqs[0].path)
	assert.Equal(t, true, reqs[0].body["stream"])
	msgs := reqs[0].body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "¿Qué tiempo hace?", msgs[1].(map[string]any)["content"])
}

func TestModel_AzureRouting(t *testing.T) {
	var reqs []capturedRequest
	srv := sseServer(t, []string{"ok"}, &reqs)

	m, err := New(Config{
		Provider:   ProviderAzure,
		APIKey:     "azure-key",
		Endpoint:   srv.URL,
		Deployment: "my-deployment",
		APIVersion: "2024-10-21",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, collect(t, m, "hola"))
	require.Len(t, reqs, 1)
	assert.True(t, strings.Contains(reqs[0].path, "/openai/deployments/my-deployment/chat/completions"), reqs[0].path)
}

func TestModel_KeepsBoundedHistory(t *testing.T) {
	var reqs []capturedRequest
	srv := sseServer(t, []string{"respuesta"}, &reqs)

	m, err := New(Config{Provider: ProviderOpenAI, APIKey: "k", Endpoint: srv.URL, Deployment: "m", MaxHistory: 2})
	require.NoError(t, err)

	collect(t, m, "uno")
	collect(t, m, "dos")
	collect(t, m, "tres")

	assert.Equal(t, 2, m.HistoryLen())
	require.Len(t, reqs, 3)
	// Third request: previous pair plus the new user message.
	assert.Len(t, reqs[2].body["messages"].([]any), 3)
}

func TestModel_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	m, err := New(Config{Provider: ProviderOpenAI, APIKey: "k", Endpoint: srv.URL, Deployment: "m", MaxHistory: 4})
	require.NoError(t, err)

	var gotErr error
	for _, err := range m.Stream(context.Background(), "hola") {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.Equal(t, 0, m.HistoryLen())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing key", Config{Provider: ProviderAzure, Endpoint: "https://x", Deployment: "d"}},
		{"missing deployment", Config{Provider: ProviderAzure, APIKey: "k", Endpoint: "https://x"}},
		{"missing azure endpoint", Config{Provider: ProviderAzure, APIKey: "k", Deployment: "d"}},
		{"unknown provider", Config{Provider: "bard", APIKey: "k", Deployment: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}
