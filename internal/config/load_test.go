package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionSecret = "test-session-secret-must-be-32-bytes"

func validConfig() *Config {
	cfg := &Config{
		OAuth: OAuthConfig{
			ClientID:     "gh-client",
			ClientSecret: "gh-secret",
			ClientHost:   "https://app.example.com",
		},
		Session: SessionConfig{Secret: testSessionSecret},
		Tags:    TagsConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "gh-secret")
	t.Setenv("TEST_SESSION_SECRET", testSessionSecret)

	path := writeConfig(t, `{
		"version": "v0.0.1",
		"oauth": {
			"clientId": "gh-client",
			"clientSecret": {"$env": "TEST_CLIENT_SECRET"},
			"clientHost": "https://app.example.com"
		},
		"session": {"secret": {"$env": "TEST_SESSION_SECRET"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, "gh-client", cfg.OAuth.ClientID)
	assert.Equal(t, Secret("gh-secret"), cfg.OAuth.ClientSecret)
	assert.Equal(t, DefaultOAuthTimeout, cfg.OAuth.Timeout)
	assert.Equal(t, DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, StorageMemory, cfg.Storage.Kind)
	assert.True(t, cfg.Tags.Enabled)
	assert.Equal(t, DefaultTagsFeedURL, cfg.Tags.FeedURL)
	assert.Equal(t, DefaultTagsCacheTTL, cfg.Tags.CacheTTL)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoad_TrimsClientHostSlash(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "gh-secret")
	t.Setenv("TEST_SESSION_SECRET", testSessionSecret)

	path := writeConfig(t, `{
		"version": "v0.0.1",
		"oauth": {
			"clientId": "gh-client",
			"clientSecret": {"$env": "TEST_CLIENT_SECRET"},
			"clientHost": "https://app.example.com/"
		},
		"session": {"secret": {"$env": "TEST_SESSION_SECRET"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.OAuth.ClientHost)
}

func TestLoad_Postgres(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "gh-secret")
	t.Setenv("TEST_SESSION_SECRET", testSessionSecret)
	t.Setenv("TEST_DSN", "postgres://localhost/release_watch?sslmode=disable")
	t.Setenv("TEST_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")

	path := writeConfig(t, `{
		"version": "v0.0.1-beta",
		"addr": ":9090",
		"oauth": {
			"clientId": "gh-client",
			"clientSecret": {"$env": "TEST_CLIENT_SECRET"},
			"clientHost": "https://app.example.com",
			"timeout": "10s"
		},
		"session": {"secret": {"$env": "TEST_SESSION_SECRET"}, "ttl": "48h"},
		"storage": {"kind": "postgres", "postgresDsn": {"$env": "TEST_DSN"}, "encryptionKey": {"$env": "TEST_ENCRYPTION_KEY"}},
		"tags": {"enabled": false},
		"tracing": {"endpoint": "http://localhost:4318"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.OAuth.Timeout)
	assert.Equal(t, 48*time.Hour, cfg.Session.TTL)
	assert.Equal(t, StoragePostgres, cfg.Storage.Kind)
	assert.Equal(t, Secret("postgres://localhost/release_watch?sslmode=disable"), cfg.Storage.PostgresDSN)
	assert.Equal(t, Secret("0123456789abcdef0123456789abcdef"), cfg.Storage.EncryptionKey)
	assert.False(t, cfg.Tags.Enabled)
	assert.Equal(t, "http://localhost:4318", cfg.Tracing.Endpoint)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "gh-secret")
	t.Setenv("TEST_SESSION_SECRET", testSessionSecret)
	t.Setenv("TEST_SHORT_SECRET", "short")

	tests := []struct {
		name        string
		content     string
		expectError string
	}{
		{
			name:        "invalid_json",
			content:     `{`,
			expectError: "parsing config JSON",
		},
		{
			name:        "missing_version",
			content:     `{"oauth": {}}`,
			expectError: "config version is required",
		},
		{
			name:        "unsupported_version",
			content:     `{"version": "v2"}`,
			expectError: "unsupported config version: v2",
		},
		{
			name: "literal_client_secret",
			content: `{
				"version": "v0.0.1",
				"oauth": {"clientId": "x", "clientSecret": "literal", "clientHost": "https://app.example.com"},
				"session": {"secret": {"$env": "TEST_SESSION_SECRET"}}
			}`,
			expectError: "oauth.clientSecret must use environment variable reference",
		},
		{
			name: "literal_session_secret",
			content: `{
				"version": "v0.0.1",
				"oauth": {"clientId": "x", "clientSecret": {"$env": "TEST_CLIENT_SECRET"}, "clientHost": "https://app.example.com"},
				"session": {"secret": "literal"}
			}`,
			expectError: "session.secret must use environment variable reference",
		},
		{
			name: "short_session_secret",
			content: `{
				"version": "v0.0.1",
				"oauth": {"clientId": "x", "clientSecret": {"$env": "TEST_CLIENT_SECRET"}, "clientHost": "https://app.example.com"},
				"session": {"secret": {"$env": "TEST_SHORT_SECRET"}}
			}`,
			expectError: "session.secret must be at least 32 characters",
		},
		{
			name: "unset_env_var",
			content: `{
				"version": "v0.0.1",
				"oauth": {"clientId": "x", "clientSecret": {"$env": "TEST_UNSET_SECRET"}, "clientHost": "https://app.example.com"},
				"session": {"secret": {"$env": "TEST_SESSION_SECRET"}}
			}`,
			expectError: "environment variable TEST_UNSET_SECRET not set",
		},
		{
			name: "relative_client_host",
			content: `{
				"version": "v0.0.1",
				"oauth": {"clientId": "x", "clientSecret": {"$env": "TEST_CLIENT_SECRET"}, "clientHost": "/app"},
				"session": {"secret": {"$env": "TEST_SESSION_SECRET"}}
			}`,
			expectError: "clientHost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
