package http

import (
	"net/http"
	"sync"

	"voice-agent-service/internal/app"
	"voice-agent-service/internal/schema"
	"voice-agent-service/internal/service/token"
)

type handlers struct {
	app       *app.Application
	tokens    TokenIssuer
	validator *schema.Validator[token.Request]

	docOnce sync.Once
	doc     map[string]any
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handlers) healthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handlers) issueToken(w http.ResponseWriter, r *http.Request) {
	req, err := h.validator.Decode(http.MaxBytesReader(w, r.Body, schema.MaxBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}

	signed, err := h.tokens.Issue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token.Result{AccessToken: signed})
}

func (h *handlers) openAPI(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h.docOnce.Do(func() {
			h.doc = schema.OpenAPI(h.app.Cfg.App, []schema.Operation{
				{
					Method:      http.MethodPost,
					Path:        prefix + "/livekit/token",
					Summary:     "Issue a room access token",
					Tag:         "LiveKit",
					Request:     h.validator.Schema(),
					ErrorStatus: []string{"413", "422", "500"},
				},
				{
					Method:  http.MethodGet,
					Path:    prefix + "/healthcheck",
					Summary: "Health check",
					Tag:     "Health",
				},
			})
		})
		writeJSON(w, http.StatusOK, h.doc)
	}
}
