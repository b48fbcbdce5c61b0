package server

import (
	"errors"
	"net/http"

	jsonwriter "github.com/dgellow/release-watch/internal/json"
	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/session"
	"github.com/dgellow/release-watch/internal/storage"
)

// sessionResponse is the body of GET /session
type sessionResponse struct {
	UserID   string         `json:"userId"`
	Email    string         `json:"email"`
	GitHubID int64          `json:"githubId"`
	Repos    []storage.Repo `json:"repos"`
}

// SessionHandler reports the logged-in account. It expects to run behind
// NewSessionMiddleware.
type SessionHandler struct {
	store storage.AccountStore
}

// NewSessionHandler creates a session handler
func NewSessionHandler(store storage.AccountStore) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.UserID(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Not logged in")
		return
	}

	user, err := h.store.Load(r.Context(), userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		jsonwriter.WriteUnauthorized(w, "Not logged in")
		return
	}
	if err != nil {
		log.LogError("Failed to load session user %s: %v", userID, err)
		jsonwriter.WriteInternalServerError(w, "Failed to load account")
		return
	}

	repos := user.Repos
	if repos == nil {
		repos = []storage.Repo{}
	}
	_ = jsonwriter.Write(w, sessionResponse{
		UserID:   user.ID,
		Email:    user.Email,
		GitHubID: user.GitHubID,
		Repos:    repos,
	})
}
