package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/release-watch/internal/crypto"
	"github.com/dgellow/release-watch/internal/emailutil"
	"github.com/dgellow/release-watch/internal/log"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStorage implements AccountStore
var _ AccountStore = (*FirestoreStorage)(nil)

// FirestoreStorage implements AccountStore on Google Cloud Firestore.
//
// Users live in one collection keyed by id. Two companion collections hold
// one document per normalized email and per GitHub id; they are written in
// the same transaction as the user, so a second claim on either key fails.
// Access tokens are encrypted before they are stored.
type FirestoreStorage struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// userDoc represents a user document in Firestore
type userDoc struct {
	ID              string    `firestore:"id"`
	Email           string    `firestore:"email"`
	EmailNormalized string    `firestore:"email_normalized"`
	GitHubID        int64     `firestore:"github_id"`
	AccessToken     string    `firestore:"access_token"` // encrypted
	Repos           []Repo    `firestore:"repos"`
	CreatedAt       time.Time `firestore:"created_at"`
	UpdatedAt       time.Time `firestore:"updated_at"`
}

// claimDoc reserves a unique key for a user
type claimDoc struct {
	UserID string `firestore:"user_id"`
}

// FirestoreOptions configures NewFirestoreStorage
type FirestoreOptions struct {
	ProjectID       string
	Database        string
	Collection      string
	CredentialsFile string
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, opts FirestoreOptions, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	var client *firestore.Client
	var err error
	if opts.Database != "" && opts.Database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, opts.ProjectID, opts.Database, clientOpts...)
	} else {
		client, err = firestore.NewClient(ctx, opts.ProjectID, clientOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Account storage ready", map[string]any{
		"project":    opts.ProjectID,
		"database":   opts.Database,
		"collection": opts.Collection,
	})

	return &FirestoreStorage{
		client:     client,
		collection: opts.Collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}

func (s *FirestoreStorage) users() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStorage) emailClaim(email string) *firestore.DocumentRef {
	return s.client.Collection(s.collection + "_emails").Doc(url.PathEscape(emailutil.Normalize(email)))
}

func (s *FirestoreStorage) githubClaim(githubID int64) *firestore.DocumentRef {
	return s.client.Collection(s.collection + "_github_ids").Doc(strconv.FormatInt(githubID, 10))
}

// Load returns the user with the given id
func (s *FirestoreStorage) Load(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	doc, err := s.users().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user from Firestore: %w", err)
	}
	return s.decode(doc)
}

// LoadByProviderID returns the user linked to a GitHub id
func (s *FirestoreStorage) LoadByProviderID(ctx context.Context, githubID int64) (*User, error) {
	if githubID == 0 {
		return nil, ErrUserNotFound
	}
	return s.findOne(ctx, s.users().Where("github_id", "==", githubID))
}

// LoadByEmail returns the user owning an email address
func (s *FirestoreStorage) LoadByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, s.users().Where("email_normalized", "==", emailutil.Normalize(email)))
}

func (s *FirestoreStorage) findOne(ctx context.Context, q firestore.Query) (*User, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return s.decode(doc)
}

// Create stores a new user together with its email and GitHub id claims
func (s *FirestoreStorage) Create(ctx context.Context, nu NewUser) (*User, error) {
	normalized := emailutil.Normalize(nu.Email)
	if normalized == "" {
		return nil, fmt.Errorf("email is required")
	}

	sealed, err := s.encryptor.Encrypt(nu.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}

	repos := nu.Repos
	if repos == nil {
		repos = []Repo{}
	}
	now := s.now().UTC()
	doc := userDoc{
		ID:              uuid.NewString(),
		Email:           nu.Email,
		EmailNormalized: normalized,
		GitHubID:        nu.GitHubID,
		AccessToken:     sealed,
		Repos:           repos,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		emailRef := s.emailClaim(normalized)
		if err := checkUnclaimed(tx, emailRef, ""); err != nil {
			return fmt.Errorf("email %s: %w", normalized, err)
		}
		var githubRef *firestore.DocumentRef
		if nu.GitHubID != 0 {
			githubRef = s.githubClaim(nu.GitHubID)
			if err := checkUnclaimed(tx, githubRef, ""); err != nil {
				return fmt.Errorf("github id %d: %w", nu.GitHubID, err)
			}
		}

		if err := tx.Create(s.users().Doc(doc.ID), doc); err != nil {
			return err
		}
		if err := tx.Create(emailRef, claimDoc{UserID: doc.ID}); err != nil {
			return err
		}
		if githubRef != nil {
			return tx.Create(githubRef, claimDoc{UserID: doc.ID})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user in Firestore: %w", err)
	}

	return &User{
		ID:          doc.ID,
		Email:       doc.Email,
		GitHubID:    doc.GitHubID,
		AccessToken: nu.AccessToken,
		Repos:       doc.Repos,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

// Update links a GitHub identity to an existing user, moving its github id claim
func (s *FirestoreStorage) Update(ctx context.Context, user *User, link ProviderLink) (*User, error) {
	if user.ID == "" {
		return nil, ErrUserNotFound
	}
	sealed, err := s.encryptor.Encrypt(link.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}

	userRef := s.users().Doc(user.ID)
	now := s.now().UTC()
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(userRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrUserNotFound
			}
			return err
		}
		var current userDoc
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}

		var newClaim *firestore.DocumentRef
		if link.GitHubID != 0 && link.GitHubID != current.GitHubID {
			newClaim = s.githubClaim(link.GitHubID)
			if err := checkUnclaimed(tx, newClaim, user.ID); err != nil {
				return fmt.Errorf("github id %d: %w", link.GitHubID, err)
			}
		}

		if current.GitHubID != 0 && current.GitHubID != link.GitHubID {
			if err := tx.Delete(s.githubClaim(current.GitHubID)); err != nil {
				return err
			}
		}
		if newClaim != nil {
			if err := tx.Set(newClaim, claimDoc{UserID: user.ID}); err != nil {
				return err
			}
		}
		return tx.Update(userRef, []firestore.Update{
			{Path: "github_id", Value: link.GitHubID},
			{Path: "access_token", Value: sealed},
			{Path: "updated_at", Value: now},
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrDuplicateAccount) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user in Firestore: %w", err)
	}

	updated := user.Clone()
	updated.GitHubID = link.GitHubID
	updated.AccessToken = link.AccessToken
	updated.UpdatedAt = now
	return updated, nil
}

// checkUnclaimed fails with ErrDuplicateAccount when ref is held by a user other than owner
func checkUnclaimed(tx *firestore.Transaction, ref *firestore.DocumentRef, owner string) error {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	var claim claimDoc
	if err := snap.DataTo(&claim); err != nil {
		return fmt.Errorf("failed to unmarshal claim: %w", err)
	}
	if owner != "" && claim.UserID == owner {
		return nil
	}
	return ErrDuplicateAccount
}

func (s *FirestoreStorage) decode(snap *firestore.DocumentSnapshot) (*User, error) {
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	token := ""
	if doc.AccessToken != "" {
		var err error
		token, err = s.encryptor.Decrypt(doc.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
	}

	repos := doc.Repos
	if repos == nil {
		repos = []Repo{}
	}
	return &User{
		ID:          doc.ID,
		Email:       doc.Email,
		GitHubID:    doc.GitHubID,
		AccessToken: token,
		Repos:       repos,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
