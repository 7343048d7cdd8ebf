package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-agent-service/internal/app"
	"voice-agent-service/internal/schema"
	"voice-agent-service/internal/service/token"
)

// TokenIssuer signs room access tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, req token.Request) (string, error)
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, tokens TokenIssuer) http.Handler {
	h := &handlers{
		app:       application,
		tokens:    tokens,
		validator: schema.MustValidator[token.Request](),
	}
	prefix := application.Cfg.App.APIPrefix()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Probes
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			writeDetail(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(prefix, func(r chi.Router) {
		r.Get("/healthcheck", h.healthcheck)
		r.Post("/livekit/token", h.issueToken)
		r.Get("/openapi.json", h.openAPI(prefix))
	})

	return r
}
