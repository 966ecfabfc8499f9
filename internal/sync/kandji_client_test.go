// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/models"
)

func newKandjiTestClient(serverURL, blueprintID string, pageSize int) *KandjiClient {
	cfg := testSyncConfig()
	if pageSize > 0 {
		cfg.PageSize = pageSize
	}
	return NewKandjiClient(&config.KandjiConfig{
		Enabled:     true,
		URL:         serverURL,
		APIToken:    "kandji-token",
		BlueprintID: blueprintID,
	}, cfg, NewExecutor(nil, cfg, "kandji"))
}

func TestKandjiFetchAllDevices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "path", r.URL.Path, "/api/v1/devices")
		checkStringEqual(t, "auth", r.Header.Get("Authorization"), "Bearer kandji-token")

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[
			{"device_id":"d1","device_name":"Check-In iPad 1","serial_number":"KAND001","model":"iPad (9th generation)","platform":"iPad","blueprint_name":"Kiosk iPads"},
			{"device_id":"d2","device_name":"Office Mac","serial_number":"KAND002","model":"Mac mini","platform":"Mac","user":{"email":"office@wic.ca","name":"Office Admin"}}
		]`)
	}))
	defer server.Close()

	client := newKandjiTestClient(server.URL, "", 0)
	devices, failures, err := client.FetchAllDevices(context.Background())
	checkNoError(t, err)
	checkIntEqual(t, "failures", len(failures), 0)
	checkIntEqual(t, "devices", len(devices), 2)

	ipad := devices[0]
	checkStringEqual(t, "ipad serial", ipad.SerialNumber, "KAND001")
	checkStringEqual(t, "ipad class", string(ipad.Class), string(models.ClassTablet))
	checkStringEqual(t, "ipad prestage from blueprint", ipad.PrestageName, "Kiosk iPads")

	mac := devices[1]
	checkStringEqual(t, "mac class", string(mac.Class), string(models.ClassComputer))
	checkStringEqual(t, "mac email", mac.Email, "office@wic.ca")
	checkStringEqual(t, "mac real name", mac.RealName, "Office Admin")
}

func TestKandjiBlueprintFilterForwarded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkStringEqual(t, "blueprint_id", r.URL.Query().Get("blueprint_id"), "bp-42")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := newKandjiTestClient(server.URL, "bp-42", 0)
	devices, _, err := client.FetchAllDevices(context.Background())
	checkNoError(t, err)
	checkIntEqual(t, "devices", len(devices), 0)
}

func TestKandjiPaginatesByOffset(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("offset") {
		case "0":
			fmt.Fprint(w, `[
				{"device_id":"d1","serial_number":"P1","model":"iPad8,1","platform":"iPad"},
				{"device_id":"d2","serial_number":"P2","model":"iPad8,1","platform":"iPad"}
			]`)
		case "2":
			fmt.Fprint(w, `[
				{"device_id":"d3","serial_number":"P3","model":"iPad8,1","platform":"iPad"}
			]`)
		default:
			t.Errorf("unexpected offset %s", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	client := newKandjiTestClient(server.URL, "", 2)
	devices, _, err := client.FetchAllDevices(context.Background())
	checkNoError(t, err)
	checkIntEqual(t, "devices across pages", len(devices), 3)
}

func TestKandjiHTMLResponseIsAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>Sign in</body></html>`)
	}))
	defer server.Close()

	client := newKandjiTestClient(server.URL, "", 0)
	_, _, err := client.FetchAllDevices(context.Background())
	checkErrorContains(t, err, "HTML")
}

func TestKandjiMissingSerialBecomesFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[
			{"device_id":"d1","device_name":"Ghost","serial_number":"","model":"iPad8,1","platform":"iPad"},
			{"device_id":"d2","serial_number":"OK1","model":"iPad8,1","platform":"iPad"}
		]`)
	}))
	defer server.Close()

	client := newKandjiTestClient(server.URL, "", 0)
	devices, failures, err := client.FetchAllDevices(context.Background())
	checkNoError(t, err)
	checkIntEqual(t, "devices", len(devices), 1)
	checkIntEqual(t, "failures", len(failures), 1)
	checkStringEqual(t, "failure source", failures[0].Source, "kandji")
}
