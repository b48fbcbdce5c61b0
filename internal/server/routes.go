package server

import (
	"net/http"

	"github.com/dgellow/release-watch/internal/metrics"
	"github.com/dgellow/release-watch/internal/session"
	"github.com/dgellow/release-watch/internal/storage"
)

// NewRouter wires every endpoint of the service. A nil health handler
// reports ok without probing anything.
func NewRouter(oauth *OAuthHandlers, verifier session.Verifier, store storage.AccountStore, m *metrics.Metrics, health *HealthHandler) http.Handler {
	if health == nil {
		health = NewHealthHandler(nil)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /oauth/start", oauth.StartHandler)
	mux.HandleFunc("GET /oauth/callback", oauth.CallbackHandler)
	mux.Handle("GET /session", ChainMiddleware(NewSessionHandler(store), NewSessionMiddleware(verifier)))

	return ChainMiddleware(mux,
		NewSecurityHeadersMiddleware(),
		NewLoggerMiddleware("http"),
		NewRequestIDMiddleware(),
		NewRecoverMiddleware("release-watch"),
	)
}
