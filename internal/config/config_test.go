// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package config

import (
	"strings"
	"testing"
	"time"
)

// validTestConfig returns the defaults with the required destination and one
// enabled source filled in.
func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.SnipeIT.URL = "https://assets.example.com"
	cfg.SnipeIT.APIToken = "token"
	cfg.Kandji.Enabled = true
	cfg.Kandji.URL = "https://org.api.kandji.io"
	cfg.Kandji.APIToken = "token"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()

	if cfg.Jamf.Enabled || cfg.Kandji.Enabled || cfg.Intune.Enabled {
		t.Error("no source should be enabled by default")
	}
	if cfg.Sync.RateLimitDelay != 1500*time.Millisecond {
		t.Errorf("rate_limit_delay = %v, want 1.5s", cfg.Sync.RateLimitDelay)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Sync.Workers)
	}
	if cfg.SnipeIT.StatusID != 2 {
		t.Errorf("status_id = %d, want 2", cfg.SnipeIT.StatusID)
	}
	if cfg.Categories.Staff != 16 || cfg.Categories.Student != 12 {
		t.Errorf("category defaults wrong: staff=%d student=%d", cfg.Categories.Staff, cfg.Categories.Student)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults wrong: %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()

	if err := validTestConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPart string
	}{
		{
			name:     "missing destination url",
			mutate:   func(c *Config) { c.SnipeIT.URL = "" },
			wantPart: "snipeit.url is required",
		},
		{
			name:     "missing destination token",
			mutate:   func(c *Config) { c.SnipeIT.APIToken = "" },
			wantPart: "snipeit.api_token is required",
		},
		{
			name: "no source enabled",
			mutate: func(c *Config) {
				c.Kandji.Enabled = false
			},
			wantPart: "at least one source",
		},
		{
			name: "jamf enabled without credentials",
			mutate: func(c *Config) {
				c.Jamf.Enabled = true
				c.Jamf.URL = "https://org.jamfcloud.com"
			},
			wantPart: "jamf.client_id",
		},
		{
			name: "intune enabled without tenant",
			mutate: func(c *Config) {
				c.Intune.Enabled = true
				c.Intune.ClientID = "id"
				c.Intune.ClientSecret = "secret"
			},
			wantPart: "intune.tenant_id",
		},
		{
			name: "retry delay exceeds cap",
			mutate: func(c *Config) {
				c.Sync.RetryDelay = 5 * time.Minute
				c.Sync.RetryMaxDelay = time.Minute
			},
			wantPart: "retry_delay must not exceed",
		},
		{
			name:     "malformed url",
			mutate:   func(c *Config) { c.SnipeIT.URL = "not a url" },
			wantPart: "invalid configuration",
		},
		{
			name:     "workers out of range",
			mutate:   func(c *Config) { c.Sync.Workers = 64 },
			wantPart: "invalid configuration",
		},
		{
			name:     "unknown log level",
			mutate:   func(c *Config) { c.Logging.Level = "loud" },
			wantPart: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantPart) {
				t.Errorf("error %q does not mention %q", err, tt.wantPart)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"JAMF_URL", "jamf.url"},
		{"JAMF_CLIENT_SECRET", "jamf.client_secret"},
		{"KANDJI_BLUEPRINT_ID", "kandji.blueprint_id"},
		{"INTUNE_TENANT_ID", "intune.tenant_id"},
		{"SNIPE_IT_API_TOKEN", "snipeit.api_token"},
		{"SYNC_RATE_LIMIT_DELAY", "sync.rate_limit_delay"},
		{"CATEGORY_TEACHER_IPAD", "categories.teacher_ipad"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			got := envTransformFunc(tt.env)
			if got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestEnabledSources(t *testing.T) {
	t.Parallel()

	cfg := validTestConfig()
	cfg.Jamf.Enabled = true

	got := cfg.EnabledSources()
	want := []string{"jamf", "kandji"}
	if len(got) != len(want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sources = %v, want %v", got, want)
		}
	}
}
