package config

import (
	"encoding/json"
	"fmt"
)

// resolveValues resolves each raw value into its target. Absent values
// leave the target untouched.
func resolveValues(fields map[string]json.RawMessage, targets map[string]*string) error {
	for name, raw := range fields {
		if raw == nil {
			continue
		}
		value, err := ParseConfigValue(raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*targets[name] = value
	}
	return nil
}

// UnmarshalJSON resolves env references and the timeout duration
func (o *OAuthConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		ClientHost   json.RawMessage `json:"clientHost"`
		Timeout      string          `json:"timeout"`
		GitHubURL    string          `json:"githubUrl"`
		GitHubAPIURL string          `json:"githubApiUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var secret string
	err := resolveValues(
		map[string]json.RawMessage{
			"clientId":     raw.ClientID,
			"clientSecret": raw.ClientSecret,
			"clientHost":   raw.ClientHost,
		},
		map[string]*string{
			"clientId":     &o.ClientID,
			"clientSecret": &secret,
			"clientHost":   &o.ClientHost,
		},
	)
	if err != nil {
		return err
	}
	o.ClientSecret = Secret(secret)
	o.GitHubURL = raw.GitHubURL
	o.GitHubAPIURL = raw.GitHubAPIURL

	o.Timeout, err = parseDuration("timeout", raw.Timeout)
	return err
}

// UnmarshalJSON resolves the secret reference and ttl duration
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Secret json.RawMessage `json:"secret"`
		TTL    string          `json:"ttl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var secret string
	if err := resolveValues(
		map[string]json.RawMessage{"secret": raw.Secret},
		map[string]*string{"secret": &secret},
	); err != nil {
		return err
	}
	s.Secret = Secret(secret)

	var err error
	s.TTL, err = parseDuration("ttl", raw.TTL)
	return err
}

// UnmarshalJSON resolves env references of the storage settings
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                     StorageKind     `json:"kind"`
		FirestoreProject         json.RawMessage `json:"firestoreProject"`
		FirestoreDatabase        string          `json:"firestoreDatabase"`
		FirestoreCollection      string          `json:"firestoreCollection"`
		FirestoreCredentialsFile json.RawMessage `json:"firestoreCredentialsFile"`
		EncryptionKey            json.RawMessage `json:"encryptionKey"`
		PostgresDSN              json.RawMessage `json:"postgresDsn"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	var encryptionKey, dsn string
	if err := resolveValues(
		map[string]json.RawMessage{
			"firestoreProject":         raw.FirestoreProject,
			"firestoreCredentialsFile": raw.FirestoreCredentialsFile,
			"encryptionKey":            raw.EncryptionKey,
			"postgresDsn":              raw.PostgresDSN,
		},
		map[string]*string{
			"firestoreProject":         &s.FirestoreProject,
			"firestoreCredentialsFile": &s.FirestoreCredentialsFile,
			"encryptionKey":            &encryptionKey,
			"postgresDsn":              &dsn,
		},
	); err != nil {
		return err
	}
	s.EncryptionKey = Secret(encryptionKey)
	s.PostgresDSN = Secret(dsn)
	return nil
}

// UnmarshalJSON resolves the redis reference and durations. Enrichment
// is on unless "enabled" is explicitly false.
func (t *TagsConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enabled  *bool           `json:"enabled"`
		FeedURL  string          `json:"feedUrl"`
		RedisURL json.RawMessage `json:"redisUrl"`
		CacheTTL string          `json:"cacheTtl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Enabled = raw.Enabled == nil || *raw.Enabled
	t.FeedURL = raw.FeedURL

	var redisURL string
	if err := resolveValues(
		map[string]json.RawMessage{"redisUrl": raw.RedisURL},
		map[string]*string{"redisUrl": &redisURL},
	); err != nil {
		return err
	}
	t.RedisURL = Secret(redisURL)

	var err error
	t.CacheTTL, err = parseDuration("cacheTtl", raw.CacheTTL)
	return err
}
