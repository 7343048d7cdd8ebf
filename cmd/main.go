package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-agent-service/internal/app"
	"voice-agent-service/internal/config"
	httpapi "voice-agent-service/internal/http"
	"voice-agent-service/internal/service/token"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	logger := application.Logger

	tokens := token.New(cfg.LiveKit)
	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Service.HTTPPort),
		Handler:           httpapi.NewRouter(application, tokens),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Startup failed")
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("apiPrefix", cfg.App.APIPrefix()).
			Msg("Voice agent API started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
