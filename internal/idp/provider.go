package idp

import (
	"context"
	"errors"
)

// Failures of the outbound provider calls. Returned errors wrap one of
// these together with the underlying cause.
var (
	ErrTokenExchange    = errors.New("token exchange failed")
	ErrIdentityLookup   = errors.New("identity lookup failed")
	ErrNoPrimaryContact = errors.New("no primary email")
)

// Provider abstracts the identity provider calls made during login.
type Provider interface {
	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode trades an authorization code for an access token.
	ExchangeCode(ctx context.Context, code, state string) (string, error)

	// FetchIdentity returns the provider's stable numeric user id.
	FetchIdentity(ctx context.Context, accessToken string) (int64, error)

	// FetchPrimaryContact returns the address flagged primary by the provider.
	FetchPrimaryContact(ctx context.Context, accessToken string) (string, error)
}
