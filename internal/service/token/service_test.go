package token

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/livekit/auth"
)

func strPtr(s string) *string { return &s }

func TestIssue_WellFormedRequest(t *testing.T) {
	svc := New(config.LiveKitConfig{APIKey: "devkey", APISecret: "secret"})

	signed, err := svc.Issue(context.Background(), Request{
		RoomName: "test-room",
		Identity: "test-user",
		Name:     strPtr("Test User"),
		Metadata: strPtr(`{"role": "tester"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := auth.Verify(signed, "devkey", "secret")
	require.NoError(t, err)
	assert.Equal(t, "test-user", claims.Subject)
	assert.Equal(t, "Test User", claims.Name)
	assert.Equal(t, `{"role": "tester"}`, claims.Metadata)
	assert.Equal(t, "test-room", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
}

func TestIssue_OptionalFieldsOmitted(t *testing.T) {
	svc := New(config.LiveKitConfig{APIKey: "devkey", APISecret: "secret"})

	signed, err := svc.Issue(context.Background(), Request{RoomName: "r", Identity: "u"})
	require.NoError(t, err)

	claims, err := auth.Verify(signed, "devkey", "secret")
	require.NoError(t, err)
	assert.Empty(t, claims.Name)
	assert.Empty(t, claims.Metadata)
}

func TestIssue_MissingCredentials(t *testing.T) {
	svc := New(config.LiveKitConfig{})

	_, err := svc.Issue(context.Background(), Request{RoomName: "test-room", Identity: "test-user"})
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.TokenGeneration, appErr.Kind)
	assert.Contains(t, err.Error(), "Could not generate LiveKit token")
	assert.Contains(t, err.Error(), auth.ErrKeysMissing.Error())
	assert.ErrorIs(t, err, auth.ErrKeysMissing)
}

func TestIssue_EmptyFieldsFailSigning(t *testing.T) {
	svc := New(config.LiveKitConfig{APIKey: "devkey", APISecret: "secret"})

	tests := []struct {
		name string
		req  Request
	}{
		{"empty room", Request{RoomName: "", Identity: "u"}},
		{"empty identity", Request{RoomName: "r", Identity: ""}},
		{"both empty", Request{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, apperr.TokenGeneration, apperr.KindOf(err))
			assert.ErrorIs(t, err, auth.ErrJoinTargetMissing)
			assert.Contains(t, err.Error(), "Could not generate LiveKit token")
		})
	}
}

func TestIssue_BlankFieldsAreSigned(t *testing.T) {
	svc := New(config.LiveKitConfig{APIKey: "devkey", APISecret: "secret"})

	signed, err := svc.Issue(context.Background(), Request{RoomName: "r", Identity: "  "})
	require.NoError(t, err)

	claims, err := auth.Verify(signed, "devkey", "secret")
	require.NoError(t, err)
	assert.Equal(t, "  ", claims.Subject)
}
