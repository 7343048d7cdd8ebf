// Package auth signs and verifies LiveKit access tokens.
//
// Signing is delegated to the LiveKit protocol library. Tokens are HS256 JWTs:
// the issuer is the API key, the subject is the participant identity and the
// "video" claim carries the room grants.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lkauth "github.com/livekit/protocol/auth"
)

// DefaultValidFor is used when no explicit validity is set.
const DefaultValidFor = 6 * time.Hour

var (
	ErrKeysMissing       = errors.New("api_key and api_secret must be set")
	ErrJoinTargetMissing = errors.New("identity and room must be set when joining a room")
	ErrInvalidToken      = errors.New("invalid access token")
)

// Participant is the bearer of a token.
type Participant struct {
	Identity string
	Name     string
	Metadata string
	// ValidFor is the token lifetime. Zero selects DefaultValidFor.
	ValidFor time.Duration
}

// Claims is the decoded payload of a token.
type Claims struct {
	jwt.RegisteredClaims
	Name     string             `json:"name,omitempty"`
	Metadata string             `json:"metadata,omitempty"`
	Video    *lkauth.VideoGrant `json:"video,omitempty"`
}

// JoinGrant lets the bearer join room.
func JoinGrant(room string) *lkauth.VideoGrant {
	return &lkauth.VideoGrant{RoomJoin: true, Room: room}
}

// AgentGrant lets an agent join room, listen to participants and speak.
func AgentGrant(room string) *lkauth.VideoGrant {
	grant := &lkauth.VideoGrant{RoomJoin: true, Room: room, Agent: true}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	return grant
}

// Sign returns a token for p carrying grant, signed with the key pair.
// A join grant needs both an identity and a room.
func Sign(key, secret string, p Participant, grant *lkauth.VideoGrant) (string, error) {
	if key == "" || secret == "" {
		return "", ErrKeysMissing
	}
	if grant != nil && grant.RoomJoin && (p.Identity == "" || grant.Room == "") {
		return "", ErrJoinTargetMissing
	}

	validFor := p.ValidFor
	if validFor <= 0 {
		validFor = DefaultValidFor
	}

	at := lkauth.NewAccessToken(key, secret).
		SetIdentity(p.Identity).
		SetName(p.Name).
		SetMetadata(p.Metadata).
		SetValidFor(validFor)
	if grant != nil {
		at.SetVideoGrant(grant)
	}

	signed, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token signed with secret and checks that it was issued by key.
func Verify(token, key, secret string) (*Claims, error) {
	if key == "" || secret == "" {
		return nil, ErrKeysMissing
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
