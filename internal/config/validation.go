package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dgellow/release-watch/internal/log"
	"github.com/dgellow/release-watch/internal/urlutil"
)

const (
	minSessionSecretLength = 32
	encryptionKeyLength    = 32
)

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if err := validateOAuth(&config.OAuth); err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}
	if len(config.Session.Secret) < minSessionSecretLength {
		return fmt.Errorf("session.secret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", minSessionSecretLength, len(config.Session.Secret))
	}
	if config.Session.TTL < 0 {
		return fmt.Errorf("session.ttl cannot be negative")
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if config.Tags.Enabled {
		if err := urlutil.ValidateAbsolute(config.Tags.FeedURL); err != nil {
			return fmt.Errorf("tags.feedUrl: %w", err)
		}
		if config.Tags.CacheTTL < 0 {
			return fmt.Errorf("tags.cacheTtl cannot be negative")
		}
	} else if config.Tags.RedisURL != "" {
		log.LogWarn("tags.redisUrl is set but tag enrichment is disabled")
	}
	return nil
}

func validateOAuth(oauth *OAuthConfig) error {
	if oauth.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if oauth.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if oauth.ClientHost == "" {
		return fmt.Errorf("clientHost is required")
	}
	if err := urlutil.ValidateAbsolute(oauth.ClientHost); err != nil {
		return fmt.Errorf("clientHost: %w", err)
	}
	if oauth.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if err := urlutil.ValidateAbsolute(oauth.GitHubURL); err != nil {
		return fmt.Errorf("githubUrl: %w", err)
	}
	if err := urlutil.ValidateAbsolute(oauth.GitHubAPIURL); err != nil {
		return fmt.Errorf("githubApiUrl: %w", err)
	}
	return nil
}

func validateStorage(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageMemory:
		return nil
	case StorageFirestore:
		if storage.FirestoreProject == "" {
			return fmt.Errorf("firestoreProject is required when using firestore storage")
		}
		return validateEncryptionKey(storage.EncryptionKey)
	case StoragePostgres:
		if storage.PostgresDSN == "" {
			return fmt.Errorf("postgresDsn is required when using postgres storage")
		}
		return validateEncryptionKey(storage.EncryptionKey)
	default:
		return fmt.Errorf("unknown storage kind %q (memory, firestore or postgres)", storage.Kind)
	}
}

// validateEncryptionKey checks the key that seals access tokens at rest
func validateEncryptionKey(key Secret) error {
	if len(key) != encryptionKeyLength {
		return fmt.Errorf("encryptionKey must be exactly %d characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", encryptionKeyLength, len(key))
	}
	return nil
}

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersionPrefix)
	} else if !strings.HasPrefix(version, SupportedVersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, SupportedVersionPrefix, SupportedVersionPrefix)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		result.addError("", "%v", err)
	}

	validateOAuthStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateDurations(rawConfig, result)

	return result, nil
}

func section(rawConfig map[string]any, name string, result *ValidationResult) (map[string]any, bool) {
	value, exists := rawConfig[name]
	if !exists {
		return nil, false
	}
	fields, ok := value.(map[string]any)
	if !ok {
		result.addError(name, "%s must be an object", name)
		return nil, false
	}
	return fields, true
}

func validateOAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	if _, exists := rawConfig["oauth"]; !exists {
		result.addError("oauth", "oauth field is required and must be an object")
		return
	}
	oauth, ok := section(rawConfig, "oauth", result)
	if !ok {
		return
	}
	for _, name := range []string{"clientId", "clientSecret", "clientHost"} {
		if _, ok := oauth[name]; !ok {
			result.addError("oauth."+name, "%s is required", name)
		}
	}
	if host, ok := oauth["clientHost"].(string); ok {
		if err := urlutil.ValidateAbsolute(host); err != nil {
			result.addError("oauth.clientHost", "%v. Example: \"https://app.example.com\"", err)
		} else if strings.HasSuffix(host, "/") {
			result.addWarning("oauth.clientHost", "trailing slash is dropped; return paths already start with /")
		}
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	if _, exists := rawConfig["session"]; !exists {
		result.addError("session", "session field is required and must be an object")
		return
	}
	session, ok := section(rawConfig, "session", result)
	if !ok {
		return
	}
	if _, ok := session["secret"]; !ok {
		result.addError("session.secret", "secret is required. Hint: {\"$env\": \"WAB_SESSION_SECRET\"}")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := section(rawConfig, "storage", result)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageMemory:
		result.addWarning("storage.kind", "memory storage loses every account on restart")
	case StorageFirestore:
		if _, ok := storage["firestoreProject"]; !ok {
			result.addError("storage.firestoreProject", "firestoreProject is required when using firestore storage")
		}
		if _, ok := storage["encryptionKey"]; !ok {
			result.addError("storage.encryptionKey", "encryptionKey is required when using firestore storage")
		}
	case StoragePostgres:
		if _, ok := storage["postgresDsn"]; !ok {
			result.addError("storage.postgresDsn", "postgresDsn is required when using postgres storage")
		}
		if _, ok := storage["encryptionKey"]; !ok {
			result.addError("storage.encryptionKey", "encryptionKey is required when using postgres storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - use memory, firestore or postgres", kind)
	}
}

func validateDurations(rawConfig map[string]any, result *ValidationResult) {
	durations := []struct {
		section string
		key     string
	}{
		{"oauth", "timeout"},
		{"session", "ttl"},
		{"tags", "cacheTtl"},
	}
	for _, d := range durations {
		fields, ok := rawConfig[d.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := fields[d.key]
		if !exists {
			continue
		}
		path := d.section + "." + d.key
		s, ok := value.(string)
		if !ok {
			result.addError(path, "%s must be a duration string such as \"30s\"", d.key)
			continue
		}
		if _, err := parseDuration(d.key, s); err != nil {
			result.addError(path, "%v", err)
		}
	}
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// checkBashStyleSyntax warns about ${VAR} strings that will not be expanded
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, val := range v {
			checkBashStyleSyntax(val, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
