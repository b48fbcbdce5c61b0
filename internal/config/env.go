package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config with one WAB_* variable per field
type envConfig struct {
	Addr string `env:"WAB_ADDR" envDefault:":8080"`

	ClientID     string        `env:"WAB_OAUTH_CLIENT_ID"`
	ClientSecret string        `env:"WAB_OAUTH_CLIENT_SECRET"`
	ClientHost   string        `env:"WAB_CLIENT_HOST"`
	OAuthTimeout time.Duration `env:"WAB_OAUTH_TIMEOUT" envDefault:"30s"`
	GitHubURL    string        `env:"WAB_GITHUB_URL" envDefault:"https://github.com"`
	GitHubAPIURL string        `env:"WAB_GITHUB_API_URL" envDefault:"https://api.github.com"`

	SessionSecret string        `env:"WAB_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"WAB_SESSION_TTL" envDefault:"720h"`

	Storage                  string `env:"WAB_STORAGE" envDefault:"memory"`
	FirestoreProject         string `env:"WAB_FIRESTORE_PROJECT"`
	FirestoreDatabase        string `env:"WAB_FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestoreCollection      string `env:"WAB_FIRESTORE_COLLECTION" envDefault:"release_watch_users"`
	FirestoreCredentialsFile string `env:"WAB_FIRESTORE_CREDENTIALS_FILE"`
	EncryptionKey            string `env:"WAB_ENCRYPTION_KEY"`
	PostgresDSN              string `env:"WAB_POSTGRES_DSN"`

	TagsEnabled  bool          `env:"WAB_TAGS_ENABLED" envDefault:"true"`
	TagsFeedURL  string        `env:"WAB_TAGS_FEED_URL" envDefault:"https://github.com"`
	RedisURL     string        `env:"WAB_REDIS_URL"`
	TagsCacheTTL time.Duration `env:"WAB_TAGS_CACHE_TTL" envDefault:"10m"`

	OTelEndpoint string `env:"WAB_OTEL_ENDPOINT"`
}

// FromEnv builds and validates a Config from WAB_* environment variables
func FromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg := Config{
		Addr: raw.Addr,
		OAuth: OAuthConfig{
			ClientID:     raw.ClientID,
			ClientSecret: Secret(raw.ClientSecret),
			ClientHost:   raw.ClientHost,
			Timeout:      raw.OAuthTimeout,
			GitHubURL:    raw.GitHubURL,
			GitHubAPIURL: raw.GitHubAPIURL,
		},
		Session: SessionConfig{
			Secret: Secret(raw.SessionSecret),
			TTL:    raw.SessionTTL,
		},
		Storage: StorageConfig{
			Kind:                     StorageKind(raw.Storage),
			FirestoreProject:         raw.FirestoreProject,
			FirestoreDatabase:        raw.FirestoreDatabase,
			FirestoreCollection:      raw.FirestoreCollection,
			FirestoreCredentialsFile: raw.FirestoreCredentialsFile,
			EncryptionKey:            Secret(raw.EncryptionKey),
			PostgresDSN:              Secret(raw.PostgresDSN),
		},
		Tags: TagsConfig{
			Enabled:  raw.TagsEnabled,
			FeedURL:  raw.TagsFeedURL,
			RedisURL: Secret(raw.RedisURL),
			CacheTTL: raw.TagsCacheTTL,
		},
		Tracing: TracingConfig{
			Endpoint: raw.OTelEndpoint,
		},
	}
	cfg.ApplyDefaults()

	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
