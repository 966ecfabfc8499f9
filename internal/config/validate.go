// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tag validation is
// stateless, so one instance serves all Validate() calls.
var validate = validator.New()

// Validate checks the configuration for completeness and consistency.
// Tag-level constraints run first, then cross-field rules that tags cannot
// express (credentials required only when a source is enabled). A failure
// here is the FatalConfigError class: the run must not start.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid configuration struct: %w", err)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error

	if c.SnipeIT.URL == "" {
		errs = append(errs, errors.New("snipeit.url is required"))
	}
	if c.SnipeIT.APIToken == "" {
		errs = append(errs, errors.New("snipeit.api_token is required"))
	}

	if c.Jamf.Enabled {
		if c.Jamf.URL == "" {
			errs = append(errs, errors.New("jamf.url is required when jamf is enabled"))
		}
		if c.Jamf.ClientID == "" || c.Jamf.ClientSecret == "" {
			errs = append(errs, errors.New("jamf.client_id and jamf.client_secret are required when jamf is enabled"))
		}
	}

	if c.Kandji.Enabled {
		if c.Kandji.URL == "" {
			errs = append(errs, errors.New("kandji.url is required when kandji is enabled"))
		}
		if c.Kandji.APIToken == "" {
			errs = append(errs, errors.New("kandji.api_token is required when kandji is enabled"))
		}
	}

	if c.Intune.Enabled {
		if c.Intune.TenantID == "" {
			errs = append(errs, errors.New("intune.tenant_id is required when intune is enabled"))
		}
		if c.Intune.ClientID == "" || c.Intune.ClientSecret == "" {
			errs = append(errs, errors.New("intune.client_id and intune.client_secret are required when intune is enabled"))
		}
	}

	if !c.Jamf.Enabled && !c.Kandji.Enabled && !c.Intune.Enabled {
		errs = append(errs, errors.New("at least one source (jamf, kandji, intune) must be enabled"))
	}

	if c.Sync.RetryDelay > c.Sync.RetryMaxDelay {
		errs = append(errs, errors.New("sync.retry_delay must not exceed sync.retry_max_delay"))
	}

	return errors.Join(errs...)
}

// EnabledSources returns the names of all enabled source adapters.
func (c *Config) EnabledSources() []string {
	var names []string
	if c.Jamf.Enabled {
		names = append(names, "jamf")
	}
	if c.Kandji.Enabled {
		names = append(names, "kandji")
	}
	if c.Intune.Enabled {
		names = append(names, "intune")
	}
	return names
}
