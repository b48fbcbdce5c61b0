package testutil

import (
	"context"

	"github.com/dgellow/release-watch/internal/idp"
	"github.com/dgellow/release-watch/internal/storage"
	"github.com/stretchr/testify/mock"
)

// Ensure the mocks implement their interfaces
var _ idp.Provider = (*MockProvider)(nil)
var _ storage.AccountStore = (*MockAccountStore)(nil)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) AuthURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, state string) (string, error) {
	args := m.Called(ctx, code, state)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) FetchIdentity(ctx context.Context, accessToken string) (int64, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProvider) FetchPrimaryContact(ctx context.Context, accessToken string) (string, error) {
	args := m.Called(ctx, accessToken)
	return args.String(0), args.Error(1)
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) Load(ctx context.Context, id string) (*storage.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockAccountStore) LoadByProviderID(ctx context.Context, githubID int64) (*storage.User, error) {
	args := m.Called(ctx, githubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockAccountStore) LoadByEmail(ctx context.Context, email string) (*storage.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockAccountStore) Create(ctx context.Context, user storage.NewUser) (*storage.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}

func (m *MockAccountStore) Update(ctx context.Context, user *storage.User, link storage.ProviderLink) (*storage.User, error) {
	args := m.Called(ctx, user, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.User), args.Error(1)
}
