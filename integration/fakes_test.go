package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Identity served by the fake GitHub
const (
	fakeGitHubCode   = "github-test-code"
	fakeGitHubToken  = "github-test-token"
	fakeGitHubUserID = 12345
	fakeGitHubEmail  = "Test@Test.com"
)

const tagsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Tags from hello</title>
  <entry><title>v1.1.0</title></entry>
  <entry><title>v1.0.0</title></entry>
</feed>`

// FakeGitHubServer simulates the GitHub OAuth endpoints, the REST API and
// the tags Atom feed. GitHub redirects to the callback registered on the
// OAuth app, so callbackURL stands in for it.
type FakeGitHubServer struct {
	server *http.Server
	port   string
}

// NewFakeGitHubServer creates a new fake GitHub server
func NewFakeGitHubServer(port, callbackURL string) *FakeGitHubServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		query := url.Values{}
		query.Set("code", fakeGitHubCode)
		query.Set("state", r.URL.Query().Get("state"))
		http.Redirect(w, r, callbackURL+"?"+query.Encode(), http.StatusFound)
	})

	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != fakeGitHubCode || r.FormValue("client_secret") != testClientSecret {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "bad_verification_code",
				"error_description": "Invalid authorization code",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fakeGitHubToken,
			"token_type":   "bearer",
			"scope":        "user:email",
		})
	})

	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+fakeGitHubToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			next(w, r)
		}
	}

	mux.HandleFunc("GET /user", authorized(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    fakeGitHubUserID,
			"login": "testuser",
		})
	}))

	mux.HandleFunc("GET /user/emails", authorized(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@test.com", "primary": false, "verified": true},
			{"email": fakeGitHubEmail, "primary": true, "verified": true},
		})
	}))

	mux.HandleFunc("GET /{owner}/{name}/tags.atom", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "hello" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(tagsFeed))
	})

	return &FakeGitHubServer{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port: port,
	}
}

// Start listens before returning so callers can connect right away
func (s *FakeGitHubServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()
	return nil
}

// Stop stops the fake GitHub server
func (s *FakeGitHubServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
