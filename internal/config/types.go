package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the account store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
	StoragePostgres  StorageKind = "postgres"
)

// Defaults applied when a field is left empty
const (
	DefaultAddr                = ":8080"
	DefaultOAuthTimeout        = 30 * time.Second
	DefaultSessionTTL          = 720 * time.Hour
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "release_watch_users"
	DefaultGitHubURL           = "https://github.com"
	DefaultGitHubAPIURL        = "https://api.github.com"
	DefaultTagsFeedURL         = "https://github.com"
	DefaultTagsCacheTTL        = 10 * time.Minute
)

// SupportedVersionPrefix is required at the start of a config file's version
const SupportedVersionPrefix = "v0.0.1"

// OAuthConfig configures the GitHub OAuth app
type OAuthConfig struct {
	ClientID     string        `json:"clientId"`
	ClientSecret Secret        `json:"clientSecret"`
	ClientHost   string        `json:"clientHost"` // web client base URL, every callback redirects here
	Timeout      time.Duration `json:"timeout"`
	GitHubURL    string        `json:"githubUrl"`    // authorize and token endpoints live here
	GitHubAPIURL string        `json:"githubApiUrl"` // REST API base
}

// SessionConfig configures the session credential
type SessionConfig struct {
	Secret Secret        `json:"secret"` // master key, subkeys are derived per purpose
	TTL    time.Duration `json:"ttl"`
}

// StorageConfig configures the account store
type StorageConfig struct {
	Kind                     StorageKind `json:"kind"`
	FirestoreProject         string      `json:"firestoreProject,omitempty"`
	FirestoreDatabase        string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection      string      `json:"firestoreCollection,omitempty"`
	FirestoreCredentialsFile string      `json:"firestoreCredentialsFile,omitempty"`
	EncryptionKey            Secret      `json:"encryptionKey,omitempty"`
	PostgresDSN              Secret      `json:"postgresDsn,omitempty"`
}

// TagsConfig configures tag enrichment of newly watched repositories
type TagsConfig struct {
	Enabled  bool          `json:"enabled"`
	FeedURL  string        `json:"feedUrl"`
	RedisURL Secret        `json:"redisUrl,omitempty"` // empty disables the cache
	CacheTTL time.Duration `json:"cacheTtl"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Endpoint string `json:"endpoint,omitempty"` // empty disables tracing
}

// Config represents the config structure with resolved values
type Config struct {
	Addr    string        `json:"addr"`
	OAuth   OAuthConfig   `json:"oauth"`
	Session SessionConfig `json:"session"`
	Storage StorageConfig `json:"storage"`
	Tags    TagsConfig    `json:"tags"`
	Tracing TracingConfig `json:"tracing"`
}

// ApplyDefaults fills every empty field that has a default
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	c.OAuth.ClientHost = strings.TrimRight(c.OAuth.ClientHost, "/")
	if c.OAuth.Timeout == 0 {
		c.OAuth.Timeout = DefaultOAuthTimeout
	}
	if c.OAuth.GitHubURL == "" {
		c.OAuth.GitHubURL = DefaultGitHubURL
	}
	if c.OAuth.GitHubAPIURL == "" {
		c.OAuth.GitHubAPIURL = DefaultGitHubAPIURL
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Storage.FirestoreDatabase == "" {
		c.Storage.FirestoreDatabase = DefaultFirestoreDatabase
	}
	if c.Storage.FirestoreCollection == "" {
		c.Storage.FirestoreCollection = DefaultFirestoreCollection
	}
	if c.Tags.FeedURL == "" {
		c.Tags.FeedURL = DefaultTagsFeedURL
	}
	if c.Tags.CacheTTL == 0 {
		c.Tags.CacheTTL = DefaultTagsCacheTTL
	}
}

// ParseConfigValue resolves a JSON value that is either a plain string or
// an {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseDuration parses an optional duration string
func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}
