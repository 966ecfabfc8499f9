// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

// Package config loads and validates application configuration from layered
// sources (built-in defaults, optional YAML file, environment variables).
package config

import "time"

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Sources (Jamf, Kandji, Intune) are individually optional, but at least one
// must be enabled for a sync run. The Snipe-IT destination is always required.
//
// Thread Safety: Config is immutable after Load() and safe for concurrent
// read access from multiple goroutines.
type Config struct {
	Jamf       JamfConfig       `koanf:"jamf"`
	Kandji     KandjiConfig     `koanf:"kandji"`
	Intune     IntuneConfig     `koanf:"intune"`
	SnipeIT    SnipeITConfig    `koanf:"snipeit"`
	Sync       SyncConfig       `koanf:"sync"`
	Categories CategoriesConfig `koanf:"categories"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// JamfConfig holds Jamf Pro connection settings. Jamf authenticates with
// OAuth client credentials against /api/oauth/token; the engine refreshes the
// access token before it expires.
//
// Environment Variables:
//   - JAMF_ENABLED: Enable the Jamf source (default: false)
//   - JAMF_URL: Jamf Pro base URL (e.g. https://org.jamfcloud.com)
//   - JAMF_CLIENT_ID / JAMF_CLIENT_SECRET: API client credentials
type JamfConfig struct {
	Enabled      bool   `koanf:"enabled"`
	URL          string `koanf:"url" validate:"omitempty,url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// KandjiConfig holds Kandji connection settings. Kandji uses a static bearer
// token. BlueprintID optionally restricts the fetch to one blueprint.
//
// Environment Variables:
//   - KANDJI_ENABLED, KANDJI_URL, KANDJI_API_TOKEN, KANDJI_BLUEPRINT_ID
type KandjiConfig struct {
	Enabled     bool   `koanf:"enabled"`
	URL         string `koanf:"url" validate:"omitempty,url"`
	APIToken    string `koanf:"api_token"`
	BlueprintID string `koanf:"blueprint_id"`
}

// IntuneConfig holds Microsoft Intune connection settings. Intune
// authenticates with Azure AD client credentials and reads managed devices
// through the Microsoft Graph API.
//
// Environment Variables:
//   - INTUNE_ENABLED, INTUNE_TENANT_ID, INTUNE_CLIENT_ID, INTUNE_CLIENT_SECRET
type IntuneConfig struct {
	Enabled      bool   `koanf:"enabled"`
	TenantID     string `koanf:"tenant_id"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// SnipeITConfig holds the destination asset-management system settings.
//
// Environment Variables:
//   - SNIPE_IT_URL: Snipe-IT base URL
//   - SNIPE_IT_API_TOKEN: Bearer token with asset/model/user permissions
type SnipeITConfig struct {
	URL      string `koanf:"url" validate:"omitempty,url"`
	APIToken string `koanf:"api_token"`

	// ManufacturerID is the Snipe-IT manufacturer assigned to created models.
	ManufacturerID int `koanf:"manufacturer_id" validate:"gt=0"`

	// StatusID is the status label assigned to created assets
	// (2 = Ready to Deploy in a stock install).
	StatusID int `koanf:"status_id" validate:"gt=0"`
}

// SyncConfig holds pacing, retry, and concurrency settings shared by every
// run. The rate-limit delay is enforced per destination host by a shared
// limiter, so raising Workers overlaps latency without raising request rate.
type SyncConfig struct {
	// RateLimitDelay is the minimum spacing between outbound calls to the
	// same host.
	RateLimitDelay time.Duration `koanf:"rate_limit_delay"`

	// RetryDelay is the base delay for exponential backoff on transient
	// failures; attempt n waits RetryDelay * 2^n, capped at RetryMaxDelay.
	RetryDelay    time.Duration `koanf:"retry_delay"`
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`

	// MaxRetries bounds retry attempts per request.
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// PageSize is the page size for source and destination list endpoints.
	PageSize int `koanf:"page_size" validate:"gt=0,lte=500"`

	// Workers is the orchestrator's worker pool size. Kept small: workers
	// share one rate limiter, so this only overlaps network latency.
	Workers int `koanf:"workers" validate:"gt=0,lte=8"`

	// HTTPTimeout is the per-request timeout for all API clients.
	HTTPTimeout time.Duration `koanf:"http_timeout"`
}

// CategoriesConfig maps categorization outcomes to Snipe-IT category IDs.
// The IDs are installation-specific; defaults match the original deployment.
type CategoriesConfig struct {
	Student       int `koanf:"student" validate:"gt=0"`
	Staff         int `koanf:"staff" validate:"gt=0"`
	SSC           int `koanf:"ssc" validate:"gt=0"`
	CheckinIPad   int `koanf:"checkin_ipad" validate:"gt=0"`
	DonationsIPad int `koanf:"donations_ipad" validate:"gt=0"`
	MonerisIPad   int `koanf:"moneris_ipad" validate:"gt=0"`
	TeacherIPad   int `koanf:"teacher_ipad" validate:"gt=0"`
	AppleTV       int `koanf:"appletv" validate:"gt=0"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}
