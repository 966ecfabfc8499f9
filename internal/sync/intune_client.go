// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
intune_client.go - Microsoft Intune Source Adapter

Fetches managed devices from the Microsoft Graph API using the OAuth 2.0
client-credentials flow. Pagination follows @odata.nextLink cursors rather
than page numbers; each link is an absolute URL signed by Graph, so the
adapter requests it verbatim.

The Graph managedDevices list already includes the enrolled user and the
enrollment profile, so no per-device detail call is needed.
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

const (
	graphBaseURL   = "https://graph.microsoft.com/v1.0"
	graphTokenURL  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope     = "https://graph.microsoft.com/.default"
	managedDevices = "/deviceManagement/managedDevices"
)

// IntuneClient implements SourceAdapter for Microsoft Intune via Graph.
//
// Thread Safety: safe for concurrent use; the token cache is mutex-guarded.
type IntuneClient struct {
	tenantID     string
	clientID     string
	clientSecret string
	exec         *Executor
	pageSize     int

	// graphURL and tokenURL default to the public Graph endpoints; sovereign
	// clouds (and tests) point them elsewhere.
	graphURL string
	tokenURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type intuneTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type intuneDevicePage struct {
	NextLink string         `json:"@odata.nextLink"`
	Value    []intuneDevice `json:"value"`
}

type intuneDevice struct {
	ID                    string `json:"id"`
	DeviceName            string `json:"deviceName"`
	SerialNumber          string `json:"serialNumber"`
	Model                 string `json:"model"`
	OperatingSystem       string `json:"operatingSystem"`
	UserPrincipalName     string `json:"userPrincipalName"`
	UserDisplayName       string `json:"userDisplayName"`
	EnrollmentProfileName string `json:"enrollmentProfileName"`
	DeviceEnrollmentType  string `json:"deviceEnrollmentType"`
}

// NewIntuneClient creates an Intune adapter using the shared executor.
func NewIntuneClient(cfg *config.IntuneConfig, syncCfg *config.SyncConfig, exec *Executor) *IntuneClient {
	return &IntuneClient{
		tenantID:     cfg.TenantID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		exec:         exec,
		pageSize:     syncCfg.PageSize,
		graphURL:     graphBaseURL,
		tokenURL:     fmt.Sprintf(graphTokenURL, cfg.TenantID),
	}
}

// Name identifies this adapter in logs and summaries.
func (c *IntuneClient) Name() string { return "intune" }

// accessToken returns a cached Graph token, refreshing through the
// client-credentials grant when it is within the refresh margin of expiry.
func (c *IntuneClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", graphScope)
	body := form.Encode()

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.tokenURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("request graph token: %w", err)
	}
	defer resp.Body.Close()

	var tok intuneTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode graph token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("graph token response contained no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// getPage fetches one managedDevices page from an absolute URL.
func (c *IntuneClient) getPage(ctx context.Context, pageURL string) (*intuneDevicePage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page intuneDevicePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode managed devices response: %w", err)
	}
	return &page, nil
}

// Ping verifies connectivity and credentials with a one-record page.
func (c *IntuneClient) Ping(ctx context.Context) error {
	if _, err := c.getPage(ctx, c.graphURL+managedDevices+"?$top=1"); err != nil {
		return fmt.Errorf("intune ping failed: %w", err)
	}
	return nil
}

// FetchAllDevices walks the @odata.nextLink chain until Graph stops
// returning one.
func (c *IntuneClient) FetchAllDevices(ctx context.Context) ([]models.SourceDevice, []models.DeviceFailure, error) {
	var devices []models.SourceDevice
	var failures []models.DeviceFailure

	next := fmt.Sprintf("%s%s?$top=%d", c.graphURL, managedDevices, c.pageSize)
	for next != "" {
		page, err := c.getPage(ctx, next)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch intune devices: %w", err)
		}

		for _, id := range page.Value {
			if id.SerialNumber == "" {
				failures = append(failures, models.DeviceFailure{
					Source: "intune", Stage: "fetch",
					Reason: fmt.Sprintf("device %q (id %s) has no serial number", id.DeviceName, id.ID),
				})
				continue
			}
			devices = append(devices, intuneToSource(id))
		}

		logging.Debug().Int("total", len(devices)).Msg("fetched intune devices page")
		next = page.NextLink
	}

	logging.Info().Int("count", len(devices)).Msg("retrieved intune devices")
	return devices, failures, nil
}

// intuneToSource converts one Graph record into the normalized source form.
func intuneToSource(id intuneDevice) models.SourceDevice {
	dev := models.SourceDevice{
		SerialNumber: id.SerialNumber,
		DeviceName:   id.DeviceName,
		Model:        id.Model,
		Class:        intuneClass(id.OperatingSystem, id.Model),
		PrestageName: id.EnrollmentProfileName,
		Email:        strings.ToLower(strings.TrimSpace(id.UserPrincipalName)),
		RealName:     id.UserDisplayName,
		EnrolledViaAutomated: strings.EqualFold(id.DeviceEnrollmentType, "appleAutomatedDeviceEnrollment") ||
			strings.Contains(strings.ToLower(id.DeviceEnrollmentType), "automated"),
		Source: "intune",
	}
	if dev.Model == "" {
		dev.Model = "Unknown"
	}
	return dev
}

// intuneClass maps the Graph operatingSystem field to a device class.
func intuneClass(operatingSystem, model string) models.DeviceClass {
	switch strings.ToLower(operatingSystem) {
	case "macos", "windows":
		return models.ClassComputer
	case "ipados", "ios":
		return models.ClassTablet
	case "tvos":
		return models.ClassSetTopBox
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "apple tv"):
		return models.ClassSetTopBox
	case strings.Contains(lower, "ipad"):
		return models.ClassTablet
	case strings.Contains(lower, "mac"), strings.Contains(lower, "book"):
		return models.ClassComputer
	}
	return models.ClassUnknown
}
