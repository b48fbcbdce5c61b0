package storage

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrUserNotFound is returned when no user matches a lookup
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateAccount is returned when a write would give a second user
// the same email or GitHub id
var ErrDuplicateAccount = errors.New("account already exists")

// Repo is a watched repository and the tags already seen for it
type Repo struct {
	Name string   `json:"repo" firestore:"repo"`
	Tags []string `json:"tags" firestore:"tags"`
}

// User is an account of the release notification app
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	GitHubID    int64     `json:"githubId,omitempty"`
	AccessToken string    `json:"-"`
	Repos       []Repo    `json:"repos"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices with a store
func (u *User) Clone() *User {
	c := *u
	c.Repos = make([]Repo, len(u.Repos))
	for i, r := range u.Repos {
		c.Repos[i] = Repo{Name: r.Name, Tags: slices.Clone(r.Tags)}
	}
	return &c
}

// NewUser holds the fields of an account being created
type NewUser struct {
	Email       string
	AccessToken string
	GitHubID    int64
	Repos       []Repo
}

// ProviderLink is the provider identity written onto an existing account
type ProviderLink struct {
	GitHubID    int64
	AccessToken string
}

// AccountStore persists users. Implementations enforce that email
// (case-insensitively) and non-zero GitHub ids are unique.
type AccountStore interface {
	// Load returns the user with the given id
	Load(ctx context.Context, id string) (*User, error)

	// LoadByProviderID returns the user linked to a GitHub id
	LoadByProviderID(ctx context.Context, githubID int64) (*User, error)

	// LoadByEmail returns the user owning an email address
	LoadByEmail(ctx context.Context, email string) (*User, error)

	// Create stores a new user and returns it with its id set
	Create(ctx context.Context, user NewUser) (*User, error)

	// Update sets the provider identity and access token of an existing user
	Update(ctx context.Context, user *User, link ProviderLink) (*User, error)
}
