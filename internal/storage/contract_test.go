package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAccountStore runs the behavior every AccountStore backend must share.
// newStore must return an empty store. The concurrent signup race only runs
// when raceCreates is set.
func testAccountStore(t *testing.T, newStore func(t *testing.T) AccountStore, raceCreates bool) {
	ctx := context.Background()

	t.Run("create_and_load", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, NewUser{
			Email:       "Dev@Example.com",
			AccessToken: "gho_one",
			GitHubID:    101,
			Repos:       []Repo{{Name: "a/b", Tags: []string{"v1.0.0"}}},
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, "Dev@Example.com", created.Email)
		assert.Equal(t, int64(101), created.GitHubID)
		assert.Equal(t, "gho_one", created.AccessToken)
		assert.Equal(t, []Repo{{Name: "a/b", Tags: []string{"v1.0.0"}}}, created.Repos)
		assert.False(t, created.CreatedAt.IsZero())

		byID, err := store.Load(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byID.ID)
		assert.Equal(t, "gho_one", byID.AccessToken)
		assert.Equal(t, created.Repos, byID.Repos)

		byGitHub, err := store.LoadByProviderID(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byGitHub.ID)

		byEmail, err := store.LoadByEmail(ctx, "dev@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
	})

	t.Run("not_found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Load(ctx, "00000000-0000-0000-0000-000000000000")
		assert.True(t, errors.Is(err, ErrUserNotFound))
		_, err = store.LoadByProviderID(ctx, 999)
		assert.True(t, errors.Is(err, ErrUserNotFound))
		_, err = store.LoadByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, ErrUserNotFound))
	})

	t.Run("create_without_repos", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, NewUser{Email: "empty@example.com", GitHubID: 7, AccessToken: "t"})
		require.NoError(t, err)

		loaded, err := store.Load(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, loaded.Repos)
	})

	t.Run("duplicate_email_rejected", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, NewUser{Email: "dup@example.com", GitHubID: 1, AccessToken: "t"})
		require.NoError(t, err)
		_, err = store.Create(ctx, NewUser{Email: "DUP@example.com", GitHubID: 2, AccessToken: "t"})
		assert.True(t, errors.Is(err, ErrDuplicateAccount))
	})

	t.Run("duplicate_github_id_rejected", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, NewUser{Email: "one@example.com", GitHubID: 5, AccessToken: "t"})
		require.NoError(t, err)
		_, err = store.Create(ctx, NewUser{Email: "two@example.com", GitHubID: 5, AccessToken: "t"})
		assert.True(t, errors.Is(err, ErrDuplicateAccount))
	})

	t.Run("update_links_provider", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, NewUser{Email: "link@example.com", GitHubID: 10, AccessToken: "old"})
		require.NoError(t, err)

		updated, err := store.Update(ctx, created, ProviderLink{GitHubID: 11, AccessToken: "new"})
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, int64(11), updated.GitHubID)
		assert.Equal(t, "new", updated.AccessToken)

		byNew, err := store.LoadByProviderID(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byNew.ID)
		assert.Equal(t, "new", byNew.AccessToken)

		_, err = store.LoadByProviderID(ctx, 10)
		assert.True(t, errors.Is(err, ErrUserNotFound), "old github id must be released")
	})

	t.Run("update_rejects_taken_github_id", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, NewUser{Email: "a@example.com", GitHubID: 20, AccessToken: "t"})
		require.NoError(t, err)
		b, err := store.Create(ctx, NewUser{Email: "b@example.com", GitHubID: 21, AccessToken: "t"})
		require.NoError(t, err)

		_, err = store.Update(ctx, b, ProviderLink{GitHubID: 20, AccessToken: "t2"})
		assert.True(t, errors.Is(err, ErrDuplicateAccount))
	})

	t.Run("update_missing_user", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Update(ctx, &User{ID: "00000000-0000-0000-0000-000000000001"}, ProviderLink{GitHubID: 30, AccessToken: "t"})
		assert.True(t, errors.Is(err, ErrUserNotFound))
	})

	t.Run("concurrent_create_single_winner", func(t *testing.T) {
		if !raceCreates {
			t.Skip("backend retries contended transactions; race not deterministic")
		}
		store := newStore(t)
		const goroutines = 20

		var wg sync.WaitGroup
		var wins, conflicts atomic.Int32
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Create(ctx, NewUser{
					Email:       "race@example.com",
					GitHubID:    int64(1000 + i),
					AccessToken: fmt.Sprintf("t%d", i),
				})
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrDuplicateAccount):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(goroutines-1), conflicts.Load())
	})
}
