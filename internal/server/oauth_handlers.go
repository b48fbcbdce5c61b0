package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/release-watch/internal/codec"
	"github.com/dgellow/release-watch/internal/cookie"
	"github.com/dgellow/release-watch/internal/crypto"
	"github.com/dgellow/release-watch/internal/idp"
	jsonwriter "github.com/dgellow/release-watch/internal/json"
	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/metrics"
	"github.com/dgellow/release-watch/internal/session"
	"github.com/dgellow/release-watch/internal/storage"
	"github.com/dgellow/release-watch/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultOAuthTimeout bounds the provider calls of one callback
const DefaultOAuthTimeout = 30 * time.Second

// Callback outcomes, used as log fields and metric labels
const (
	outcomeCompleted            = "completed"
	outcomeStateMismatch        = "state_mismatch"
	outcomeMissingCode          = "missing_code"
	outcomeStateInvalid         = "state_invalid"
	outcomeTokenExchangeFailed  = "token_exchange_failed"
	outcomeIdentityLookupFailed = "identity_lookup_failed"
	outcomeNoPrimaryEmail       = "no_primary_email"
	outcomeAccountStoreFailed   = "account_store_failed"
	outcomeSessionSignFailed    = "session_sign_failed"
)

var (
	errStateMismatch = errors.New("state does not match cookie")
	errMissingCode   = errors.New("authorization code missing")
	errStateInvalid  = errors.New("state signature invalid or expired")
)

// callbackResult is the outcome of one callback. Only a completed result
// carries a credential.
type callbackResult struct {
	outcome    string
	err        error
	userID     string
	action     reconcileAction
	credential string
	returnPath string
	// githubEmail is set when the provider email differs from the stored one
	githubEmail string
}

func aborted(outcome string, err error) callbackResult {
	return callbackResult{outcome: outcome, err: err}
}

// OAuthSettings holds the non-collaborator parameters of OAuthHandlers
type OAuthSettings struct {
	// ClientHost is the web client base URL every callback redirects to
	ClientHost string
	// Timeout bounds the provider calls and store writes of one callback
	Timeout time.Duration
}

// OAuthHandlers implements the GitHub login start and callback endpoints
type OAuthHandlers struct {
	provider   idp.Provider
	store      storage.AccountStore
	sessions   session.Signer
	state      *crypto.StateSigner
	enricher   RepoEnricher
	metrics    *metrics.Metrics
	clientHost string
	timeout    time.Duration
	tracer     trace.Tracer
	now        func() time.Time
}

// NewOAuthHandlers creates the login handlers. A nil enricher stores
// pending repos without tags.
func NewOAuthHandlers(
	provider idp.Provider,
	store storage.AccountStore,
	sessions session.Signer,
	state *crypto.StateSigner,
	enricher RepoEnricher,
	m *metrics.Metrics,
	settings OAuthSettings,
) *OAuthHandlers {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultOAuthTimeout
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &OAuthHandlers{
		provider:   provider,
		store:      store,
		sessions:   sessions,
		state:      state,
		enricher:   enricher,
		metrics:    m,
		clientHost: strings.TrimRight(settings.ClientHost, "/"),
		timeout:    settings.Timeout,
		tracer:     tracing.Tracer(),
		now:        time.Now,
	}
}

// StartHandler sets the state cookie, stores the pending repos and return
// path client-side, and redirects to GitHub.
func (h *OAuthHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.Generate()
	if err != nil {
		log.LogError("Failed to generate OAuth state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	query := r.URL.Query()
	cookie.Set(w, cookie.Transient(cookie.StateCookie, state))
	if repos := query.Get("repos"); repos != "" {
		cookie.Set(w, cookie.Transient(cookie.ReposCookie, codec.Encode(repos)))
	}
	if returnTo := query.Get("returnTo"); returnTo != "" {
		cookie.Set(w, cookie.Transient(cookie.ReturnToCookie, codec.Encode(returnTo)))
	}

	h.metrics.IncrementStart()
	log.LogDebugWithFields("oauth", "Login started", map[string]any{
		"hasRepos":    query.Has("repos"),
		"hasReturnTo": query.Has("returnTo"),
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// CallbackHandler completes the login. It always clears the pre-login
// cookies and redirects to the client host; a session cookie is set only
// when every step succeeded.
func (h *OAuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "oauth.callback")
	defer span.End()

	result := h.complete(ctx, r)
	span.SetAttributes(attribute.String("oauth.outcome", result.outcome))

	cookie.ClearTransient(w)
	location := h.clientHost

	if result.outcome == outcomeCompleted {
		cookie.Set(w, h.sessions.Cookie(result.credential))
		if result.githubEmail != "" {
			cookie.Set(w, cookie.EmailMismatch(result.githubEmail, h.now()))
		}
		location += result.returnPath

		log.LogInfoWithFields("oauth", "Login completed", map[string]any{
			"requestId":     RequestID(r.Context()),
			"userId":        result.userID,
			"action":        result.action.String(),
			"emailMismatch": result.githubEmail != "",
		})
	} else {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.outcome)
		fields := map[string]any{
			"requestId": RequestID(r.Context()),
			"outcome":   result.outcome,
		}
		if result.err != nil {
			fields["error"] = result.err.Error()
		}
		log.LogWarnWithFields("oauth", "Login aborted", fields)
	}

	h.metrics.IncrementCallback(result.outcome)
	http.Redirect(w, r, location, http.StatusFound)
}

// complete runs the callback steps in order and stops at the first failure
func (h *OAuthHandlers) complete(ctx context.Context, r *http.Request) callbackResult {
	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	expected := cookie.Get(r, cookie.StateCookie)
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		return aborted(outcomeStateMismatch, errStateMismatch)
	}
	if code == "" {
		if providerErr := query.Get("error"); providerErr != "" {
			return aborted(outcomeMissingCode, errors.Join(errMissingCode, errors.New("provider error: "+providerErr)))
		}
		return aborted(outcomeMissingCode, errMissingCode)
	}
	if !h.state.Validate(state) {
		return aborted(outcomeStateInvalid, errStateInvalid)
	}

	// A started callback runs to completion even if the browser goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	accessToken, err := h.exchange(ctx, code, state)
	if err != nil {
		return aborted(outcomeTokenExchangeFailed, err)
	}

	identity, err := h.lookupIdentity(ctx, accessToken)
	if err != nil {
		if errors.Is(err, idp.ErrNoPrimaryContact) {
			return aborted(outcomeNoPrimaryEmail, err)
		}
		return aborted(outcomeIdentityLookupFailed, err)
	}

	user, action, err := h.reconcile(ctx, identity, accessToken, cookie.Get(r, cookie.ReposCookie))
	if err != nil {
		return aborted(outcomeAccountStoreFailed, err)
	}

	credential, err := h.sessions.Sign(user.ID)
	if err != nil {
		return aborted(outcomeSessionSignFailed, err)
	}

	result := callbackResult{
		outcome:    outcomeCompleted,
		userID:     user.ID,
		action:     action,
		credential: credential,
		returnPath: codec.DecodeReturnPath(cookie.Get(r, cookie.ReturnToCookie)),
	}
	if identity.email != user.Email {
		result.githubEmail = identity.email
	}
	return result
}

func (h *OAuthHandlers) exchange(ctx context.Context, code, state string) (string, error) {
	ctx, span := h.tracer.Start(ctx, "oauth.exchange_code")
	defer span.End()

	token, err := h.provider.ExchangeCode(ctx, code, state)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return token, nil
}

// lookupIdentity fetches the GitHub id and primary email concurrently.
// Both must succeed.
func (h *OAuthHandlers) lookupIdentity(ctx context.Context, accessToken string) (githubIdentity, error) {
	ctx, span := h.tracer.Start(ctx, "oauth.identity_lookup")
	defer span.End()
	defer h.metrics.ObserveIdentityLookup(time.Now())

	var identity githubIdentity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := h.provider.FetchIdentity(gctx, accessToken)
		identity.githubID = id
		return err
	})
	g.Go(func() error {
		email, err := h.provider.FetchPrimaryContact(gctx, accessToken)
		identity.email = email
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return githubIdentity{}, err
	}

	span.SetAttributes(attribute.Int64("github.id", identity.githubID))
	return identity, nil
}
