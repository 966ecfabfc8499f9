// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
kandji_client.go - Kandji Source Adapter

Fetches devices from Kandji's /api/v1/devices endpoint with limit/offset
pagination, optionally filtered to a single blueprint. Unlike Jamf, Kandji's
list response already carries blueprint and user fields, so no per-device
detail call is needed; the blueprint name stands in for the enrollment
prestage in categorization.

Authentication is a static bearer token.
*/
package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/models"
)

// KandjiClient implements SourceAdapter for Kandji.
//
// Thread Safety: safe for concurrent use.
type KandjiClient struct {
	baseURL     string
	apiToken    string
	blueprintID string
	exec        *Executor
	pageSize    int
}

// kandjiDevice is one element of the /api/v1/devices list response.
type kandjiDevice struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	SerialNumber  string `json:"serial_number"`
	Model         string `json:"model"`
	Platform      string `json:"platform"`
	BlueprintName string `json:"blueprint_name"`
	AssetTag      string `json:"asset_tag"`
	User          *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

// NewKandjiClient creates a Kandji adapter using the shared executor.
func NewKandjiClient(cfg *config.KandjiConfig, syncCfg *config.SyncConfig, exec *Executor) *KandjiClient {
	return &KandjiClient{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		apiToken:    cfg.APIToken,
		blueprintID: cfg.BlueprintID,
		exec:        exec,
		pageSize:    syncCfg.PageSize,
	}
}

// Name identifies this adapter in logs and summaries.
func (c *KandjiClient) Name() string { return "kandji" }

// listPage fetches one page of devices.
func (c *KandjiClient) listPage(ctx context.Context, offset int) ([]kandjiDevice, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.pageSize))
	query.Set("offset", fmt.Sprintf("%d", offset))
	if c.blueprintID != "" {
		query.Set("blueprint_id", c.blueprintID)
	}

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/api/v1/devices?"+query.Encode(), http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Kandji returns an HTML login page instead of a 401 when the token is
	// not valid for the API; catch that before handing bytes to the decoder.
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("kandji returned HTML instead of JSON; check API token and plan permissions")
	}

	var page []kandjiDevice
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode kandji devices response: %w", err)
	}
	return page, nil
}

// Ping verifies connectivity and credentials with a one-record page.
func (c *KandjiClient) Ping(ctx context.Context) error {
	saved := c.pageSize
	c.pageSize = 1
	_, err := c.listPage(ctx, 0)
	c.pageSize = saved
	if err != nil {
		return fmt.Errorf("kandji ping failed: %w", err)
	}
	return nil
}

// FetchAllDevices pages through the device list until a short page signals
// the end of the inventory.
func (c *KandjiClient) FetchAllDevices(ctx context.Context) ([]models.SourceDevice, []models.DeviceFailure, error) {
	var devices []models.SourceDevice
	var failures []models.DeviceFailure

	for offset := 0; ; offset += c.pageSize {
		page, err := c.listPage(ctx, offset)
		if err != nil {
			if offset == 0 {
				return nil, nil, fmt.Errorf("fetch kandji devices: %w", err)
			}
			return nil, nil, fmt.Errorf("fetch kandji devices at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, kd := range page {
			if kd.SerialNumber == "" {
				failures = append(failures, models.DeviceFailure{
					Source: "kandji", Stage: "fetch",
					Reason: fmt.Sprintf("device %q (id %s) has no serial number", kd.DeviceName, kd.DeviceID),
				})
				continue
			}
			devices = append(devices, kandjiToSource(kd))
		}

		logging.Debug().Int("offset", offset).Int("total", len(devices)).Msg("fetched kandji devices page")
		if len(page) < c.pageSize {
			break
		}
	}

	logging.Info().Int("count", len(devices)).Msg("retrieved kandji devices")
	return devices, failures, nil
}

// kandjiToSource converts one Kandji record into the normalized source form.
// The blueprint name feeds the prestage categorization rule.
func kandjiToSource(kd kandjiDevice) models.SourceDevice {
	dev := models.SourceDevice{
		SerialNumber: kd.SerialNumber,
		DeviceName:   kd.DeviceName,
		Model:        kd.Model,
		Class:        kandjiClass(kd.Platform, kd.Model),
		PrestageName: kd.BlueprintName,
		Source:       "kandji",
	}
	if dev.Model == "" {
		dev.Model = "Unknown"
	}
	if kd.User != nil {
		dev.Email = kd.User.Email
		dev.RealName = kd.User.Name
	}
	return dev
}

// kandjiClass maps Kandji's platform string to a device class, falling back
// to the model string when the platform is absent.
func kandjiClass(platform, model string) models.DeviceClass {
	switch strings.ToLower(platform) {
	case "mac", "macos":
		return models.ClassComputer
	case "ipad", "ipados", "iphone", "ios":
		return models.ClassTablet
	case "appletv", "tvos":
		return models.ClassSetTopBox
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "apple tv"):
		return models.ClassSetTopBox
	case strings.Contains(lower, "ipad"):
		return models.ClassTablet
	case strings.Contains(lower, "mac"):
		return models.ClassComputer
	}
	return models.ClassUnknown
}
