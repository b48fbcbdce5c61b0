package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgellow/release-watch/internal/codec"
	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// reconcileAction is what a callback does to the account store
type reconcileAction int

const (
	// actionLinkByID refreshes the token of the user already linked to the GitHub id
	actionLinkByID reconcileAction = iota
	// actionLinkByEmail links the GitHub id to the user owning the email
	actionLinkByEmail
	// actionCreate creates a new user
	actionCreate
)

func (a reconcileAction) String() string {
	switch a {
	case actionLinkByID:
		return "link_by_id"
	case actionLinkByEmail:
		return "link_by_email"
	case actionCreate:
		return "create"
	default:
		return fmt.Sprintf("reconcileAction(%d)", int(a))
	}
}

// decideReconciliation picks the action from the two lookups. A user found
// by GitHub id wins over one found by email.
func decideReconciliation(byID, byEmail *storage.User) (reconcileAction, *storage.User) {
	switch {
	case byID != nil:
		return actionLinkByID, byID
	case byEmail != nil:
		return actionLinkByEmail, byEmail
	default:
		return actionCreate, nil
	}
}

// RepoEnricher turns watched repository names into repos with known tags
type RepoEnricher interface {
	Enrich(ctx context.Context, names []string) []storage.Repo
}

// githubIdentity is what the provider told us about the user
type githubIdentity struct {
	githubID int64
	email    string
}

// reconcile finds or creates the account for identity. When a concurrent
// login creates the same account first, the lookups run once more.
func (h *OAuthHandlers) reconcile(ctx context.Context, identity githubIdentity, accessToken, reposToken string) (*storage.User, reconcileAction, error) {
	ctx, span := h.tracer.Start(ctx, "oauth.reconcile")
	defer span.End()

	var repos []storage.Repo
	pendingRepos := func() []storage.Repo {
		if repos == nil {
			repos = h.pendingRepos(ctx, reposToken)
		}
		return repos
	}

	for attempt := 1; ; attempt++ {
		action, target, err := h.lookup(ctx, identity)
		if err != nil {
			return nil, action, err
		}
		span.SetAttributes(attribute.String("oauth.action", action.String()))

		if action == actionCreate {
			user, err := h.store.Create(ctx, storage.NewUser{
				Email:       identity.email,
				AccessToken: accessToken,
				GitHubID:    identity.githubID,
				Repos:       pendingRepos(),
			})
			if errors.Is(err, storage.ErrDuplicateAccount) && attempt == 1 {
				log.LogDebugWithFields("oauth", "Account created concurrently, retrying lookup", map[string]any{
					"githubId": identity.githubID,
				})
				continue
			}
			if err != nil {
				return nil, action, fmt.Errorf("creating user: %w", err)
			}
			h.metrics.IncrementCreated()
			return user, action, nil
		}

		user, err := h.store.Update(ctx, target, storage.ProviderLink{
			GitHubID:    identity.githubID,
			AccessToken: accessToken,
		})
		if err != nil {
			return nil, action, fmt.Errorf("updating user %s: %w", target.ID, err)
		}
		h.metrics.IncrementLinked()
		return user, action, nil
	}
}

func (h *OAuthHandlers) lookup(ctx context.Context, identity githubIdentity) (reconcileAction, *storage.User, error) {
	byID, err := h.store.LoadByProviderID(ctx, identity.githubID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		return actionCreate, nil, fmt.Errorf("loading user by github id: %w", err)
	}

	var byEmail *storage.User
	if byID == nil {
		byEmail, err = h.store.LoadByEmail(ctx, identity.email)
		if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
			return actionCreate, nil, fmt.Errorf("loading user by email: %w", err)
		}
	}

	action, target := decideReconciliation(byID, byEmail)
	return action, target, nil
}

// pendingRepos decodes the repos cookie. Anything undecodable is an empty list.
func (h *OAuthHandlers) pendingRepos(ctx context.Context, token string) []storage.Repo {
	names := []string{}
	if token != "" {
		decoded, err := codec.DecodeRepoList(token)
		if err != nil {
			log.LogDebugWithFields("oauth", "Ignoring pending repos", map[string]any{
				"error": err.Error(),
			})
		} else {
			names = decoded
		}
	}

	if h.enricher == nil {
		repos := make([]storage.Repo, len(names))
		for i, name := range names {
			repos[i] = storage.Repo{Name: name, Tags: []string{}}
		}
		return repos
	}
	return h.enricher.Enrich(ctx, names)
}
