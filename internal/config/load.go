package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// secretFields lists, per section, the keys that must be env references in a file
var secretFields = map[string][]string{
	"oauth":   {"clientSecret"},
	"session": {"secret"},
	"storage": {"encryptionKey", "postgresDsn"},
	"tags":    {"redisUrl"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if _, ok := rawConfig["tags"]; !ok {
		config.Tags.Enabled = true
	}
	config.ApplyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects literal secrets before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for section, names := range secretFields {
		fields, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range names {
			value, exists := fields[name]
			if !exists {
				continue
			}
			if _, isString := value.(string); isString {
				return fmt.Errorf("%s.%s must use environment variable reference for security", section, name)
			}
			refMap, isMap := value.(map[string]any)
			if !isMap {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", section, name)
			}
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", section, name)
			}
		}
	}
	return nil
}
