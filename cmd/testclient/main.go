// Command testclient smoke-tests a running API: health check, then a token
// request whose result is verified against the LiveKit key pair when given.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"voice-agent-service/internal/livekit/auth"
	"voice-agent-service/internal/observability/logging"
	"voice-agent-service/internal/service/token"
)

func main() {
	baseURL := flag.String("server", "http://localhost:8000/api/v1", "API base URL including prefix")
	roomName := flag.String("room", "test-room", "room to request a token for")
	identity := flag.String("identity", "test-user", "participant identity")
	apiKey := flag.String("key", "", "LiveKit API key, to verify the token")
	apiSecret := flag.String("secret", "", "LiveKit API secret, to verify the token")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := &http.Client{}

	var health map[string]string
	if err := call(ctx, client, http.MethodGet, *baseURL+"/healthcheck", nil, &health); err != nil {
		log.Fatal().Err(err).Msg("Health check failed")
	}
	log.Info().Str("status", health["status"]).Msg("Health check")

	var result token.Result
	req := token.Request{RoomName: *roomName, Identity: *identity}
	if err := call(ctx, client, http.MethodPost, *baseURL+"/livekit/token", req, &result); err != nil {
		log.Fatal().Err(err).Msg("Token request failed")
	}
	log.Info().Int("length", len(result.AccessToken)).Msg("Received access token")

	if *apiKey == "" || *apiSecret == "" {
		return
	}
	claims, err := auth.Verify(result.AccessToken, *apiKey, *apiSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Token does not verify")
	}
	if claims.Video == nil || !claims.Video.RoomJoin {
		log.Fatal().Msg("Token carries no room join grant")
	}
	log.Info().
		Str("identity", claims.Subject).
		Str("room", claims.Video.Room).
		Time("expires", claims.ExpiresAt.Time).
		Msg("Token verified")
}

func call(ctx context.Context, client *http.Client, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, url, resp.StatusCode, e.Detail)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
