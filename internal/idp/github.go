package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgellow/release-watch/internal/ioutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	errorBodyLimit    = 512
)

// GitHubProvider implements Provider for GitHub OAuth apps.
// GitHub uses OAuth 2.0 (not OIDC), so identity comes from its REST API.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string       // defaults to https://api.github.com, can be overridden for testing
	httpClient *http.Client // nil means http.DefaultClient
}

// GitHubOption customizes a GitHubProvider.
type GitHubOption func(*GitHubProvider)

// WithEndpoint overrides the authorize and token URLs.
func WithEndpoint(authURL, tokenURL string) GitHubOption {
	return func(p *GitHubProvider) {
		if authURL != "" {
			p.config.Endpoint.AuthURL = authURL
		}
		if tokenURL != "" {
			p.config.Endpoint.TokenURL = tokenURL
		}
	}
}

// WithAPIBaseURL overrides the REST API base URL.
func WithAPIBaseURL(baseURL string) GitHubOption {
	return func(p *GitHubProvider) {
		if baseURL != "" {
			p.apiBaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the client used for every outbound call.
func WithHTTPClient(client *http.Client) GitHubOption {
	return func(p *GitHubProvider) {
		p.httpClient = client
	}
}

// githubUserResponse represents GitHub's user API response.
type githubUserResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// githubEmailResponse represents an email from GitHub's emails API.
type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret string, opts ...GitHubOption) *GitHubProvider {
	endpoint := github.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	p := &GitHubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"user:email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL generates the authorization URL.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) withClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// ExchangeCode exchanges an authorization code for an access token.
// A successful response without a token is a failure, not an empty credential.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code, state string) (string, error) {
	token, err := p.config.Exchange(p.withClient(ctx), code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrTokenExchange)
	}
	return token.AccessToken, nil
}

// FetchIdentity returns the GitHub user id behind accessToken.
func (p *GitHubProvider) FetchIdentity(ctx context.Context, accessToken string) (int64, error) {
	var user githubUserResponse
	if err := p.getJSON(ctx, accessToken, "/user", &user); err != nil {
		return 0, fmt.Errorf("%w: user: %w", ErrIdentityLookup, err)
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("%w: user: response has no id", ErrIdentityLookup)
	}
	return user.ID, nil
}

// FetchPrimaryContact returns the email GitHub flags as primary.
// Verification is not required: the account's own primary address is
// what the app mails release notices to.
func (p *GitHubProvider) FetchPrimaryContact(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmailResponse
	if err := p.getJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
		return "", fmt.Errorf("%w: emails: %w", ErrIdentityLookup, err)
	}

	for _, email := range emails {
		if email.Primary && email.Email != "" {
			return email.Email, nil
		}
	}
	return "", fmt.Errorf("%w: %d addresses returned", ErrNoPrimaryContact, len(emails))
}

func (p *GitHubProvider) getJSON(ctx context.Context, accessToken, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := p.config.Client(p.withClient(ctx), &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, errorBodyLimit))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
