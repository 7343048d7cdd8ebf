// Package token issues room access tokens for human participants.
package token

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voice-agent-service/internal/apperr"
	"voice-agent-service/internal/config"
	"voice-agent-service/internal/livekit/auth"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/observability/metrics"
)

// Request asks for a token that lets identity join room RoomName.
type Request struct {
	RoomName string  `json:"room_name"`
	Identity string  `json:"identity"`
	Name     *string `json:"name,omitempty"`
	Metadata *string `json:"metadata,omitempty"`
}

// Result is returned to the caller on success.
type Result struct {
	AccessToken string `json:"access_token"`
}

// Service signs participant tokens with the configured LiveKit credentials.
type Service struct {
	cfg     config.LiveKitConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a token service.
func New(cfg config.LiveKitConfig) *Service {
	return &Service{
		cfg:     cfg,
		logger:  logging.WithComponent("token"),
		metrics: metrics.DefaultMetrics,
	}
}

// Issue returns a signed token granting req.Identity entry to req.RoomName.
// Empty identities or rooms fail signing. Signing failures are returned as
// apperr.TokenGeneration errors.
func (s *Service) Issue(ctx context.Context, req Request) (string, error) {
	p := auth.Participant{
		Identity: req.Identity,
		ValidFor: s.cfg.TokenTTL,
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Metadata != nil {
		p.Metadata = *req.Metadata
	}

	signed, err := auth.Sign(s.cfg.APIKey, s.cfg.APISecret, p, auth.JoinGrant(req.RoomName))
	if err != nil {
		s.metrics.RecordTokenFailed("signing")
		s.logger.Error().
			Err(err).
			Str("room", req.RoomName).
			Str("identity", req.Identity).
			Msg("Could not generate token")
		return "", apperr.TokenError(err)
	}

	s.metrics.RecordTokenIssued()
	s.logger.Info().
		Str("room", req.RoomName).
		Str("identity", req.Identity).
		Dur("validFor", s.validFor()).
		Msg("Token issued")
	return signed, nil
}

func (s *Service) validFor() time.Duration {
	if s.cfg.TokenTTL > 0 {
		return s.cfg.TokenTTL
	}
	return auth.DefaultValidFor
}
