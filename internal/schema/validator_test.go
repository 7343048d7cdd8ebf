package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
)

type tokenBody struct {
	RoomName string  `json:"room_name"`
	Identity string  `json:"identity"`
	Name     *string `json:"name,omitempty"`
}

func TestValidator_Decode(t *testing.T) {
	v := MustValidator[tokenBody]()

	got, err := v.Decode(strings.NewReader(`{"room_name":"test-room","identity":"test-user","name":"Test User","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, "test-room", got.RoomName)
	assert.Equal(t, "test-user", got.Identity)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Test User", *got.Name)
}

func TestValidator_DecodeErrors(t *testing.T) {
	v := MustValidator[tokenBody]()

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", `{"room_name":`},
		{"missing identity", `{"room_name":"r"}`},
		{"wrong type", `{"room_name":"r","identity":42}`},
		{"not an object", `["r"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decode(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
		})
	}
}

func TestValidator_TooLarge(t *testing.T) {
	v := MustValidator[tokenBody]()

	body := `{"room_name":"` + strings.Repeat("a", MaxBodyBytes) + `","identity":"u"}`
	_, err := v.Decode(strings.NewReader(body))
	require.ErrorIs(t, err, ErrBodyTooLarge)
	assert.False(t, apperr.Is(err, apperr.Validation))
}

func TestOpenAPI(t *testing.T) {
	v := MustValidator[tokenBody]()
	app := config.AppConfig{Name: "Voice", Description: "d", Version: "1", ContactName: "team"}

	doc := OpenAPI(app, []Operation{
		{Method: "POST", Path: "/api/v1/livekit/token", Summary: "Issue token", Tag: "LiveKit", Request: v.Schema(), ErrorStatus: []string{"422", "500"}},
		{Method: "GET", Path: "/api/v1/healthcheck", Summary: "Health", Tag: "Health"},
	})

	assert.Equal(t, "3.1.0", doc["openapi"])
	info := doc["info"].(map[string]any)
	assert.Equal(t, "Voice", info["title"])
	assert.Equal(t, "1.0.0", info["version"])

	paths := doc["paths"].(map[string]any)
	token := paths["/api/v1/livekit/token"].(map[string]any)
	post := token["post"].(map[string]any)
	assert.Contains(t, post, "requestBody")
	assert.Contains(t, post["responses"].(map[string]any), "422")

	health := paths["/api/v1/healthcheck"].(map[string]any)
	assert.NotContains(t, health["get"].(map[string]any), "requestBody")
}
