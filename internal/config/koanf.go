// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/assetsync/config.yaml",
	"/etc/assetsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all sensible default values. These are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Jamf: JamfConfig{
			Enabled: false,
		},
		Kandji: KandjiConfig{
			Enabled: false,
		},
		Intune: IntuneConfig{
			Enabled: false,
		},
		SnipeIT: SnipeITConfig{
			ManufacturerID: 1, // Apple in a stock install
			StatusID:       2, // Ready to Deploy
		},
		Sync: SyncConfig{
			RateLimitDelay: 1500 * time.Millisecond,
			RetryDelay:     5 * time.Second,
			RetryMaxDelay:  2 * time.Minute,
			MaxRetries:     5,
			PageSize:       200,
			Workers:        2,
			HTTPTimeout:    30 * time.Second,
		},
		Categories: CategoriesConfig{
			Student:       12,
			Staff:         16,
			SSC:           13,
			CheckinIPad:   20,
			DonationsIPad: 19,
			MonerisIPad:   21,
			TeacherIPad:   15,
			AppleTV:       11,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// The returned config has passed Validate(); a validation error here is
// fatal and aborts the run before any device processing begins.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns the
// path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - JAMF_URL -> jamf.url
//   - JAMF_CLIENT_SECRET -> jamf.client_secret
//   - SNIPE_IT_API_TOKEN -> snipeit.api_token
//   - SYNC_RATE_LIMIT_DELAY -> sync.rate_limit_delay
//   - CATEGORY_TEACHER_IPAD -> categories.teacher_ipad
//
// Variables outside the recognized prefixes are dropped so unrelated
// environment noise never lands in the config tree.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	switch {
	case strings.HasPrefix(key, "jamf_"):
		return "jamf." + strings.TrimPrefix(key, "jamf_")
	case strings.HasPrefix(key, "kandji_"):
		return "kandji." + strings.TrimPrefix(key, "kandji_")
	case strings.HasPrefix(key, "intune_"):
		return "intune." + strings.TrimPrefix(key, "intune_")
	case strings.HasPrefix(key, "snipe_it_"):
		return "snipeit." + strings.TrimPrefix(key, "snipe_it_")
	case strings.HasPrefix(key, "sync_"):
		return "sync." + strings.TrimPrefix(key, "sync_")
	case strings.HasPrefix(key, "category_"):
		return "categories." + strings.TrimPrefix(key, "category_")
	case key == "log_level":
		return "logging.level"
	case key == "log_format":
		return "logging.format"
	default:
		return "" // dropped
	}
}
