// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
jamf_client.go - Jamf Pro Source Adapter

Fetches the full device inventory from Jamf Pro: computers via
/api/v1/computers-inventory and mobile devices (iPads, Apple TVs) via
/api/v2/mobile-devices, both paginated. The list endpoints omit enrollment
and user metadata, so every device gets a second per-device detail call;
those detail calls dominate run time and are the reason all traffic is paced
through the shared Executor.

Authentication is OAuth client credentials against /api/oauth/token. The
access token is cached and refreshed shortly before expiry.

A device whose detail call fails after retries is NOT dropped: it is emitted
with list-level fields only and marked Degraded, so the sync still covers it
and the summary reports the gap.
*/
package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/models"
)

// tokenRefreshMargin is how long before expiry a cached Jamf token is
// considered stale.
const tokenRefreshMargin = 30 * time.Second

// JamfClient implements SourceAdapter for Jamf Pro.
//
// Thread Safety: safe for concurrent use; token refresh is serialized.
type JamfClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	exec         *Executor
	pageSize     int

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Jamf API response structures.

type jamfTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type jamfComputersPage struct {
	TotalCount int                `json:"totalCount"`
	Results    []jamfComputerItem `json:"results"`
}

type jamfComputerItem struct {
	ID      string `json:"id"`
	General struct {
		Name string `json:"name"`
	} `json:"general"`
	Hardware struct {
		Model        string `json:"model"`
		SerialNumber string `json:"serialNumber"`
	} `json:"hardware"`
}

type jamfComputerDetail struct {
	General struct {
		Name             string `json:"name"`
		EnrollmentMethod struct {
			ObjectName string `json:"objectName"`
		} `json:"enrollmentMethod"`
		EnrolledViaAutomatedDeviceEnrollment bool `json:"enrolledViaAutomatedDeviceEnrollment"`
	} `json:"general"`
	UserAndLocation struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Realname string `json:"realname"`
	} `json:"userAndLocation"`
	Hardware struct {
		Model        string `json:"model"`
		SerialNumber string `json:"serialNumber"`
	} `json:"hardware"`
}

type jamfMobilePage struct {
	TotalCount int              `json:"totalCount"`
	Results    []jamfMobileItem `json:"results"`
}

type jamfMobileItem struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serialNumber"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Username     string `json:"username"`
}

type jamfMobileDetail struct {
	SerialNumber     string `json:"serialNumber"`
	Name             string `json:"name"`
	Model            string `json:"model"`
	EnrollmentMethod string `json:"enrollmentMethod"`
	Location         *struct {
		EmailAddress string `json:"emailAddress"`
		Username     string `json:"username"`
		RealName     string `json:"realName"`
	} `json:"location"`
	Username string `json:"username"`
}

// NewJamfClient creates a Jamf Pro adapter. All outbound calls are paced and
// retried through the provided executor.
func NewJamfClient(cfg *config.JamfConfig, syncCfg *config.SyncConfig, exec *Executor) *JamfClient {
	return &JamfClient{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		exec:         exec,
		pageSize:     syncCfg.PageSize,
	}
}

// Name identifies this adapter in logs and summaries.
func (c *JamfClient) Name() string { return "jamf" }

// accessToken returns a valid bearer token, requesting a new one from
// /api/oauth/token when the cached token is missing or near expiry.
func (c *JamfClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/oauth/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("jamf token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tok jamfTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode jamf token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("jamf token response contained no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	logging.Debug().Time("expires", c.tokenExpiry).Msg("obtained jamf access token")
	return c.token, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *JamfClient) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if len(query) > 0 {
			req.URL.RawQuery = query.Encode()
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Ping verifies connectivity and credentials with a one-record inventory page.
func (c *JamfClient) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("page", "0")
	query.Set("page-size", "1")
	var page jamfComputersPage
	if err := c.getJSON(ctx, "/api/v1/computers-inventory", query, &page); err != nil {
		return fmt.Errorf("jamf ping failed: %w", err)
	}
	return nil
}

// FetchAllDevices returns the complete Jamf inventory: computers and mobile
// devices, each enriched with prestage and user detail.
func (c *JamfClient) FetchAllDevices(ctx context.Context) ([]models.SourceDevice, []models.DeviceFailure, error) {
	var devices []models.SourceDevice
	var failures []models.DeviceFailure

	computers, err := c.fetchComputers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch jamf computers: %w", err)
	}
	logging.Info().Int("count", len(computers)).Msg("retrieved jamf computers")

	for _, comp := range computers {
		serial := comp.Hardware.SerialNumber
		if serial == "" {
			serial = comp.General.Name
		}
		if serial == "" {
			failures = append(failures, models.DeviceFailure{
				Source: "jamf", Stage: "fetch",
				Reason: fmt.Sprintf("computer id %s has no serial number", comp.ID),
			})
			continue
		}
		devices = append(devices, c.computerDevice(ctx, comp, serial))
	}

	mobiles, err := c.fetchMobileDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch jamf mobile devices: %w", err)
	}
	logging.Info().Int("count", len(mobiles)).Msg("retrieved jamf mobile devices")

	for _, mob := range mobiles {
		if mob.SerialNumber == "" {
			failures = append(failures, models.DeviceFailure{
				Source: "jamf", Stage: "fetch",
				Reason: fmt.Sprintf("mobile device id %s has no serial number", mob.ID),
			})
			continue
		}
		devices = append(devices, c.mobileDevice(ctx, mob))
	}

	return devices, failures, nil
}

// fetchComputers paginates /api/v1/computers-inventory until totalCount is
// reached or a page comes back empty.
func (c *JamfClient) fetchComputers(ctx context.Context) ([]jamfComputerItem, error) {
	var all []jamfComputerItem
	for page := 0; ; page++ {
		query := url.Values{}
		query.Set("page", fmt.Sprintf("%d", page))
		query.Set("page-size", fmt.Sprintf("%d", c.pageSize))

		var resp jamfComputersPage
		if err := c.getJSON(ctx, "/api/v1/computers-inventory", query, &resp); err != nil {
			return nil, fmt.Errorf("computers page %d: %w", page, err)
		}
		if len(resp.Results) == 0 {
			break
		}
		all = append(all, resp.Results...)
		logging.Debug().Int("page", page).Int("total", len(all)).Msg("fetched jamf computers page")
		if len(all) >= resp.TotalCount {
			break
		}
	}
	return all, nil
}

// fetchMobileDevices paginates /api/v2/mobile-devices.
func (c *JamfClient) fetchMobileDevices(ctx context.Context) ([]jamfMobileItem, error) {
	var all []jamfMobileItem
	for page := 0; ; page++ {
		query := url.Values{}
		query.Set("page", fmt.Sprintf("%d", page))
		query.Set("page-size", fmt.Sprintf("%d", c.pageSize))

		var resp jamfMobilePage
		if err := c.getJSON(ctx, "/api/v2/mobile-devices", query, &resp); err != nil {
			return nil, fmt.Errorf("mobile devices page %d: %w", page, err)
		}
		if len(resp.Results) == 0 {
			break
		}
		all = append(all, resp.Results...)
		logging.Debug().Int("page", page).Int("total", len(all)).Msg("fetched jamf mobile devices page")
		if len(all) >= resp.TotalCount {
			break
		}
	}
	return all, nil
}

// computerDevice enriches one computer with detail data, degrading to
// list-level fields when the detail call fails.
func (c *JamfClient) computerDevice(ctx context.Context, comp jamfComputerItem, serial string) models.SourceDevice {
	dev := models.SourceDevice{
		SerialNumber: serial,
		DeviceName:   comp.General.Name,
		Model:        comp.Hardware.Model,
		Class:        models.ClassComputer,
		Source:       "jamf",
	}
	if dev.Model == "" {
		dev.Model = "Unknown Mac"
	}

	var detail jamfComputerDetail
	if err := c.getJSON(ctx, "/api/v1/computers-inventory-detail/"+comp.ID, nil, &detail); err != nil {
		logging.Warn().Err(err).Str("serial", serial).Msg("computer detail fetch failed, using list data")
		dev.Degraded = true
		return dev
	}

	dev.PrestageName = detail.General.EnrollmentMethod.ObjectName
	dev.EnrolledViaAutomated = detail.General.EnrolledViaAutomatedDeviceEnrollment
	dev.Email = detail.UserAndLocation.Email
	dev.Username = detail.UserAndLocation.Username
	dev.RealName = detail.UserAndLocation.Realname
	if detail.Hardware.Model != "" {
		dev.Model = detail.Hardware.Model
	}
	return dev
}

// mobileDevice enriches one mobile device with detail data, degrading to
// list-level fields when the detail call fails.
func (c *JamfClient) mobileDevice(ctx context.Context, mob jamfMobileItem) models.SourceDevice {
	dev := models.SourceDevice{
		SerialNumber: mob.SerialNumber,
		DeviceName:   mob.Name,
		Model:        mob.Model,
		Class:        mobileClass(mob.Model),
		Source:       "jamf",
	}
	if dev.Model == "" {
		dev.Model = "Unknown Mobile Device"
	}

	var detail jamfMobileDetail
	if err := c.getJSON(ctx, "/api/v2/mobile-devices/"+mob.ID+"/detail", nil, &detail); err != nil {
		logging.Warn().Err(err).Str("serial", mob.SerialNumber).Msg("mobile detail fetch failed, using list data")
		dev.Degraded = true
		return dev
	}

	dev.PrestageName = detail.EnrollmentMethod
	dev.EnrolledViaAutomated = detail.EnrollmentMethod != ""
	if detail.Name != "" {
		dev.DeviceName = detail.Name
	}
	if detail.Model != "" {
		dev.Model = detail.Model
		dev.Class = mobileClass(detail.Model)
	}
	if detail.Location != nil {
		dev.Email = detail.Location.EmailAddress
		dev.Username = detail.Location.Username
		dev.RealName = detail.Location.RealName
		if dev.Email == "" && strings.Contains(dev.Username, "@") {
			dev.Email = dev.Username
		}
	} else if strings.Contains(detail.Username, "@") {
		dev.Email = detail.Username
		dev.Username = detail.Username
	}
	return dev
}

// mobileClass distinguishes set-top boxes from tablets by model string.
func mobileClass(model string) models.DeviceClass {
	if strings.Contains(strings.ToLower(model), "apple tv") {
		return models.ClassSetTopBox
	}
	return models.ClassTablet
}
