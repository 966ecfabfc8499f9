// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
snipeit_client.go - Snipe-IT Destination Client

Implements the asset-management side of the sync: serial lookups, asset
create/update, user checkout and checkin, model search and creation, and the
bulk listings the verifier and wipe paths need.

Snipe-IT quirk: the API returns HTTP 200 for most validation failures and
signals the error through a {"status": "error"} body, so every mutating call
decodes the envelope and checks the status field. HTTP-level errors (429, 5xx,
auth) are still handled by the executor.
*/
package sync

import (
	"bytes"
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

// SnipeITClient talks to a Snipe-IT instance's v1 REST API.
//
// Thread Safety: safe for concurrent use. All requests flow through the
// shared executor, which serializes them behind the per-host rate limiter.
type SnipeITClient struct {
	baseURL        string
	apiToken       string
	exec           *Executor
	statusID       int
	manufacturerID int
	pageSize       int
}

// snipeEnvelope is the response body of mutating calls.
type snipeEnvelope struct {
	Status   string          `json:"status"`
	Messages json.RawMessage `json:"messages"`
	Payload  json.RawMessage `json:"payload"`
}

// snipeAssetRow is one hardware row as the API returns it.
type snipeAssetRow struct {
	ID       int    `json:"id"`
	AssetTag string `json:"asset_tag"`
	Serial   string `json:"serial"`
	Name     string `json:"name"`
	Model    *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"model"`
	Category *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"category"`
	StatusLabel *struct {
		ID int `json:"id"`
	} `json:"status_label"`
	AssignedTo *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"assigned_to"`
}

type snipeAssetList struct {
	Total int             `json:"total"`
	Rows  []snipeAssetRow `json:"rows"`
}

type snipeModelRow struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category *struct {
		ID int `json:"id"`
	} `json:"category"`
}

type snipeModelList struct {
	Total int             `json:"total"`
	Rows  []snipeModelRow `json:"rows"`
}

type snipeUserRow struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type snipeUserList struct {
	Total int            `json:"total"`
	Rows  []snipeUserRow `json:"rows"`
}

// NewSnipeITClient creates a destination client using the shared executor.
func NewSnipeITClient(cfg *config.SnipeITConfig, syncCfg *config.SyncConfig, exec *Executor) *SnipeITClient {
	return &SnipeITClient{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		apiToken:       cfg.APIToken,
		exec:           exec,
		statusID:       cfg.StatusID,
		manufacturerID: cfg.ManufacturerID,
		pageSize:       syncCfg.PageSize,
	}
}

// do issues one API call and decodes the JSON body into out (when non-nil).
func (c *SnipeITClient) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
	}

	resp, err := c.exec.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var reader *bytes.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// mutate issues a write call, decodes the status envelope, and turns an
// application-level error into a Go error.
func (c *SnipeITClient) mutate(ctx context.Context, method, path string, body any) (*snipeEnvelope, error) {
	var env snipeEnvelope
	if err := c.do(ctx, method, path, body, &env); err != nil {
		return nil, err
	}
	if env.Status == "error" {
		return nil, fmt.Errorf("%s %s rejected: %s", method, path, envelopeMessages(&env))
	}
	return &env, nil
}

// envelopeMessages flattens the messages field, which Snipe-IT may return as
// a string or as a field-to-errors map.
func envelopeMessages(env *snipeEnvelope) string {
	if len(env.Messages) == 0 {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(env.Messages, &s); err == nil {
		return s
	}
	var m map[string][]string
	if err := json.Unmarshal(env.Messages, &m); err == nil {
		var parts []string
		for field, errs := range m {
			parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(errs, "; ")))
		}
		return strings.Join(parts, "; ")
	}
	return string(env.Messages)
}

// Ping verifies connectivity and credentials with a one-record page.
func (c *SnipeITClient) Ping(ctx context.Context) error {
	var list snipeAssetList
	if err := c.do(ctx, http.MethodGet, "/hardware?limit=1", nil, &list); err != nil {
		return fmt.Errorf("snipe-it ping failed: %w", err)
	}
	return nil
}

// GetAssetBySerial looks up one asset by serial number. Returns (nil, nil)
// when no asset matches.
func (c *SnipeITClient) GetAssetBySerial(ctx context.Context, serial string) (*models.DestinationAsset, error) {
	path := "/hardware/byserial/" + url.PathEscape(serial)
	var list snipeAssetList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup asset by serial %s: %w", serial, err)
	}
	if list.Total == 0 || len(list.Rows) == 0 {
		return nil, nil
	}
	if list.Total > 1 {
		logging.Warn().Str("serial", serial).Int("matches", list.Total).Msg("serial matches multiple assets, using first")
	}
	asset := assetFromRow(list.Rows[0])
	return &asset, nil
}

// assetFromRow converts an API row into the internal destination record.
func assetFromRow(row snipeAssetRow) models.DestinationAsset {
	asset := models.DestinationAsset{
		ID:           row.ID,
		AssetTag:     row.AssetTag,
		SerialNumber: row.Serial,
		Name:         row.Name,
	}
	if row.Model != nil {
		asset.ModelID = row.Model.ID
	}
	if row.Category != nil {
		asset.CategoryID = row.Category.ID
		asset.CategoryName = row.Category.Name
	}
	if row.StatusLabel != nil {
		asset.StatusID = row.StatusLabel.ID
	}
	if row.AssignedTo != nil {
		asset.AssignedTo = row.AssignedTo.Name
	}
	return asset
}

// assetPayload is the write shape for hardware create and update calls.
type assetPayload struct {
	AssetTag string `json:"asset_tag,omitempty"`
	Serial   string `json:"serial,omitempty"`
	Name     string `json:"name,omitempty"`
	ModelID  int    `json:"model_id,omitempty"`
	StatusID int    `json:"status_id,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// CreateAsset creates a new hardware record. The serial doubles as the asset
// tag so tags stay unique without a separate sequence.
func (c *SnipeITClient) CreateAsset(ctx context.Context, desc *models.AssetDescriptor, modelID int) (int, error) {
	env, err := c.mutate(ctx, http.MethodPost, "/hardware", assetPayload{
		AssetTag: desc.SerialNumber,
		Serial:   desc.SerialNumber,
		Name:     desc.Name,
		ModelID:  modelID,
		StatusID: c.statusID,
		Notes:    desc.Notes,
	})
	if err != nil {
		return 0, fmt.Errorf("create asset %s: %w", desc.SerialNumber, err)
	}

	var created struct {
		ID int `json:"id"`
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &created); err != nil {
			return 0, fmt.Errorf("decode created asset %s: %w", desc.SerialNumber, err)
		}
	}
	return created.ID, nil
}

// UpdateAsset patches only the fields that changed. An empty patch is a
// caller bug; the reconciler never issues one.
func (c *SnipeITClient) UpdateAsset(ctx context.Context, assetID int, patch map[string]any) error {
	if _, err := c.mutate(ctx, http.MethodPatch, fmt.Sprintf("/hardware/%d", assetID), patch); err != nil {
		return fmt.Errorf("update asset %d: %w", assetID, err)
	}
	return nil
}

// CheckoutAsset assigns an asset to a user.
func (c *SnipeITClient) CheckoutAsset(ctx context.Context, assetID, userID int) error {
	body := map[string]any{
		"checkout_to_type": "user",
		"assigned_user":    userID,
	}
	if _, err := c.mutate(ctx, http.MethodPost, fmt.Sprintf("/hardware/%d/checkout", assetID), body); err != nil {
		return fmt.Errorf("checkout asset %d to user %d: %w", assetID, userID, err)
	}
	return nil
}

// CheckinAsset returns an asset to inventory, clearing its assignee.
// A checked-in asset reports "asset is already checked in" as an error
// envelope; callers that do not care pass ignoreAlreadyIn.
func (c *SnipeITClient) CheckinAsset(ctx context.Context, assetID int, ignoreAlreadyIn bool) error {
	_, err := c.mutate(ctx, http.MethodPost, fmt.Sprintf("/hardware/%d/checkin", assetID), map[string]any{})
	if err != nil {
		if ignoreAlreadyIn && strings.Contains(strings.ToLower(err.Error()), "checked in") {
			return nil
		}
		return fmt.Errorf("checkin asset %d: %w", assetID, err)
	}
	return nil
}

// DeleteAsset permanently removes a hardware record.
func (c *SnipeITClient) DeleteAsset(ctx context.Context, assetID int) error {
	if _, err := c.mutate(ctx, http.MethodDelete, fmt.Sprintf("/hardware/%d", assetID), nil); err != nil {
		return fmt.Errorf("delete asset %d: %w", assetID, err)
	}
	return nil
}

// FindModel searches for a model by its exact name. Returns (nil, nil) when
// no model matches: the search endpoint substring-matches, so results are
// filtered to exact name equality.
func (c *SnipeITClient) FindModel(ctx context.Context, name string) (*models.Model, error) {
	path := "/models?limit=50&search=" + url.QueryEscape(name)
	var list snipeModelList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("search model %q: %w", name, err)
	}
	for _, row := range list.Rows {
		if row.Name == name {
			m := models.Model{ID: row.ID, Name: row.Name}
			if row.Category != nil {
				m.CategoryID = row.Category.ID
			}
			return &m, nil
		}
	}
	return nil, nil
}

// CreateModel creates a model record bound to a category. All Apple hardware
// shares one manufacturer record, configured as manufacturer_id.
func (c *SnipeITClient) CreateModel(ctx context.Context, name string, categoryID int) (*models.Model, error) {
	body := map[string]any{
		"name":            name,
		"category_id":     categoryID,
		"manufacturer_id": c.manufacturerID,
	}
	env, err := c.mutate(ctx, http.MethodPost, "/models", body)
	if err != nil {
		return nil, fmt.Errorf("create model %q: %w", name, err)
	}

	var created struct {
		ID int `json:"id"`
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &created); err != nil {
			return nil, fmt.Errorf("decode created model %q: %w", name, err)
		}
	}
	return &models.Model{ID: created.ID, Name: name, CategoryID: categoryID}, nil
}

// DeleteModel permanently removes a model record.
func (c *SnipeITClient) DeleteModel(ctx context.Context, modelID int) error {
	if _, err := c.mutate(ctx, http.MethodDelete, fmt.Sprintf("/models/%d", modelID), nil); err != nil {
		return fmt.Errorf("delete model %d: %w", modelID, err)
	}
	return nil
}

// FindUser searches for a user by email. Returns (nil, nil) when no user
// matches exactly (case-insensitive).
func (c *SnipeITClient) FindUser(ctx context.Context, email string) (*models.User, error) {
	path := "/users?limit=50&search=" + url.QueryEscape(email)
	var list snipeUserList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("search user %q: %w", email, err)
	}
	for _, row := range list.Rows {
		if strings.EqualFold(row.Email, email) {
			return &models.User{ID: row.ID, Name: row.Name, Email: row.Email}, nil
		}
	}
	return nil, nil
}

// ListAssets pages through all hardware records, optionally filtered to one
// category. categoryID 0 means no filter.
func (c *SnipeITClient) ListAssets(ctx context.Context, categoryID int) ([]models.DestinationAsset, error) {
	var assets []models.DestinationAsset
	for offset := 0; ; offset += c.pageSize {
		path := fmt.Sprintf("/hardware?limit=%d&offset=%d", c.pageSize, offset)
		if categoryID > 0 {
			path += fmt.Sprintf("&category_id=%d", categoryID)
		}
		var list snipeAssetList
		if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, fmt.Errorf("list assets at offset %d: %w", offset, err)
		}
		for _, row := range list.Rows {
			assets = append(assets, assetFromRow(row))
		}
		if len(list.Rows) == 0 || len(assets) >= list.Total {
			break
		}
	}
	return assets, nil
}

// ListModels pages through all model records.
func (c *SnipeITClient) ListModels(ctx context.Context) ([]models.Model, error) {
	var result []models.Model
	for offset := 0; ; offset += c.pageSize {
		path := fmt.Sprintf("/models?limit=%d&offset=%d", c.pageSize, offset)
		var list snipeModelList
		if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, fmt.Errorf("list models at offset %d: %w", offset, err)
		}
		for _, row := range list.Rows {
			m := models.Model{ID: row.ID, Name: row.Name}
			if row.Category != nil {
				m.CategoryID = row.Category.ID
			}
			result = append(result, m)
		}
		if len(list.Rows) == 0 || len(result) >= list.Total {
			break
		}
	}
	return result, nil
}
