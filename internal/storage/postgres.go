package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/release-watch/internal/crypto"
	"github.com/dgellow/release-watch/internal/emailutil"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Ensure PostgresStorage implements AccountStore
var _ AccountStore = (*PostgresStorage)(nil)

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               UUID PRIMARY KEY,
	email            TEXT NOT NULL,
	email_normalized TEXT NOT NULL UNIQUE,
	github_id        BIGINT UNIQUE,
	access_token     TEXT NOT NULL DEFAULT '',
	repos            JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`

const userColumns = `id, email, github_id, access_token, repos, created_at, updated_at`

// PostgresStorage persists accounts in PostgreSQL. Uniqueness of email and
// GitHub id is enforced by table constraints. Access tokens are encrypted
// before they are stored.
type PostgresStorage struct {
	db        *sql.DB
	encryptor crypto.Encryptor
	now       func() time.Time
}

// NewPostgresStorage opens a connection pool, checks it and applies the schema
func NewPostgresStorage(ctx context.Context, dsn string, encryptor crypto.Encryptor) (*PostgresStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := NewPostgres(db, encryptor)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool
func NewPostgres(db *sql.DB, encryptor crypto.Encryptor) *PostgresStorage {
	return &PostgresStorage{db: db, encryptor: encryptor, now: time.Now}
}

// Migrate creates the users table if it does not exist
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Load returns the user with the given id
func (s *PostgresStorage) Load(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return s.scanUser(row, "load user")
}

// LoadByProviderID returns the user linked to a GitHub id
func (s *PostgresStorage) LoadByProviderID(ctx context.Context, githubID int64) (*User, error) {
	if githubID == 0 {
		return nil, ErrUserNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = $1`, githubID)
	return s.scanUser(row, "load user by github id")
}

// LoadByEmail returns the user owning an email address
func (s *PostgresStorage) LoadByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email_normalized = $1`, emailutil.Normalize(email))
	return s.scanUser(row, "load user by email")
}

// Create inserts a new user
func (s *PostgresStorage) Create(ctx context.Context, nu NewUser) (*User, error) {
	normalized := emailutil.Normalize(nu.Email)
	if normalized == "" {
		return nil, fmt.Errorf("email is required")
	}
	repos := nu.Repos
	if repos == nil {
		repos = []Repo{}
	}
	reposJSON, err := json.Marshal(repos)
	if err != nil {
		return nil, fmt.Errorf("encoding repos: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(nu.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}

	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, email_normalized, github_id, access_token, repos, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+userColumns,
		uuid.NewString(), nu.Email, normalized, nullGitHubID(nu.GitHubID), sealed, reposJSON, now,
	)
	return s.scanUser(row, "create user")
}

// Update links a GitHub identity to an existing user
func (s *PostgresStorage) Update(ctx context.Context, user *User, link ProviderLink) (*User, error) {
	if _, err := uuid.Parse(user.ID); err != nil {
		return nil, ErrUserNotFound
	}
	sealed, err := s.encryptor.Encrypt(link.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET github_id = $2, access_token = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, nullGitHubID(link.GitHubID), sealed, s.now().UTC(),
	)
	return s.scanUser(row, "update user")
}

func nullGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *PostgresStorage) scanUser(row *sql.Row, op string) (*User, error) {
	var (
		user      User
		githubID  sql.NullInt64
		sealed    string
		reposJSON []byte
	)
	err := row.Scan(&user.ID, &user.Email, &githubID, &sealed, &reposJSON, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, ErrDuplicateAccount)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.GitHubID = githubID.Int64
	if sealed != "" {
		user.AccessToken, err = s.encryptor.Decrypt(sealed)
		if err != nil {
			return nil, fmt.Errorf("%s: decrypting access token: %w", op, err)
		}
	}
	if err := json.Unmarshal(reposJSON, &user.Repos); err != nil {
		return nil, fmt.Errorf("%s: decoding repos: %w", op, err)
	}
	if user.Repos == nil {
		user.Repos = []Repo{}
	}
	return &user, nil
}
