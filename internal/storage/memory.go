package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/release-watch/internal/emailutil"
	"github.com/google/uuid"
)

// Ensure MemoryStorage implements AccountStore
var _ AccountStore = (*MemoryStorage)(nil)

// MemoryStorage keeps accounts in process memory. Suitable for development
// and tests; everything is lost on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]*User // map[id] = User
	byEmail  map[string]string
	byGitHub map[int64]string
	now      func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*User),
		byEmail:  make(map[string]string),
		byGitHub: make(map[int64]string),
		now:      time.Now,
	}
}

// Load returns the user with the given id
func (s *MemoryStorage) Load(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

// LoadByProviderID returns the user linked to a GitHub id
func (s *MemoryStorage) LoadByProviderID(_ context.Context, githubID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byGitHub[githubID]
	if !ok || githubID == 0 {
		return nil, ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

// LoadByEmail returns the user owning an email address
func (s *MemoryStorage) LoadByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailutil.Normalize(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

// Create stores a new user, rejecting a taken email or GitHub id
func (s *MemoryStorage) Create(_ context.Context, nu NewUser) (*User, error) {
	email := emailutil.Normalize(nu.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return nil, fmt.Errorf("email %s: %w", email, ErrDuplicateAccount)
	}
	if _, taken := s.byGitHub[nu.GitHubID]; taken && nu.GitHubID != 0 {
		return nil, fmt.Errorf("github id %d: %w", nu.GitHubID, ErrDuplicateAccount)
	}

	now := s.now()
	user := &User{
		ID:          uuid.NewString(),
		Email:       nu.Email,
		GitHubID:    nu.GitHubID,
		AccessToken: nu.AccessToken,
		Repos:       nu.Repos,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	user = user.Clone()

	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	if user.GitHubID != 0 {
		s.byGitHub[user.GitHubID] = user.ID
	}
	return user.Clone(), nil
}

// Update links a GitHub identity to an existing user
func (s *MemoryStorage) Update(_ context.Context, user *User, link ProviderLink) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[user.ID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if owner, taken := s.byGitHub[link.GitHubID]; taken && owner != stored.ID {
		return nil, fmt.Errorf("github id %d: %w", link.GitHubID, ErrDuplicateAccount)
	}

	if stored.GitHubID != 0 && stored.GitHubID != link.GitHubID {
		delete(s.byGitHub, stored.GitHubID)
	}
	stored.GitHubID = link.GitHubID
	stored.AccessToken = link.AccessToken
	stored.UpdatedAt = s.now()
	if link.GitHubID != 0 {
		s.byGitHub[link.GitHubID] = stored.ID
	}
	return stored.Clone(), nil
}
