// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

// Package models defines the core data types shared across the sync engine:
// source device snapshots, normalized asset descriptors, destination records,
// and per-run summaries. Types here are pure data with no I/O.
package models

// DeviceClass describes the broad hardware class of a source device.
// It feeds the categorizer's hardware-class fallback rule.
type DeviceClass string

const (
	ClassComputer  DeviceClass = "computer"
	ClassTablet    DeviceClass = "tablet"
	ClassSetTopBox DeviceClass = "settopbox"
	ClassUnknown   DeviceClass = "unknown"
)

// SourceDevice is an immutable snapshot of one device pulled from an MDM.
// The serial number is the globally unique matching key against the
// destination; everything else is advisory metadata.
type SourceDevice struct {
	SerialNumber string
	DeviceName   string
	Model        string
	Class        DeviceClass

	// PrestageName is the enrollment profile / prestage the device was
	// provisioned through. Empty when the device was enrolled manually.
	PrestageName string

	// Assigned user, when the MDM knows one. Email may be empty.
	Email    string
	Username string
	RealName string

	// EnrolledViaAutomated reports whether the device came in via automated
	// device enrollment (DEP/ADE). Informational only.
	EnrolledViaAutomated bool

	// Source names the adapter that produced this record ("jamf", "kandji",
	// "intune"). Used for traceability in logs and failure records.
	Source string

	// Degraded marks a device whose detail fetch failed after retries and
	// was built from list-level fields only. Still synced, reported in the
	// summary's degraded count.
	Degraded bool
}

// Category is a destination-side asset category. The ID is the Snipe-IT
// category ID from configuration; Label is the short key used to qualify
// model names so assets of different categories never share a model record.
type Category struct {
	ID    int
	Name  string
	Label string
}

// AssetDescriptor is the normalized output of the categorizer: everything the
// reconciler needs to create or update one destination asset. Category is
// always resolved; the fallback chain never yields an empty category.
type AssetDescriptor struct {
	SerialNumber string
	Name         string
	Category     Category

	// ModelName is category-qualified ("Staff MacBookPro16,2") so the
	// destination's model-level default category cannot silently override the
	// asset's intended category on a later sync.
	ModelName string

	// HardwareModel is the raw model string from the source.
	HardwareModel string

	// AssigneeEmail is the user the asset should be checked out to, or empty.
	AssigneeEmail string

	// LowConfidence marks descriptors that bottomed out at the default
	// category with no positive signal. Logged, never fatal.
	LowConfidence bool

	Notes string
}

// DestinationAsset is a record in the asset-management system.
type DestinationAsset struct {
	ID           int
	AssetTag     string
	SerialNumber string
	Name         string
	ModelID      int
	CategoryID   int
	CategoryName string
	StatusID     int
	AssignedTo   string
}

// Model is a destination-side model record, keyed by its category-qualified
// name. Assets reference models by ID.
type Model struct {
	ID         int
	Name       string
	CategoryID int
}

// User is a destination-side user record used for checkout.
type User struct {
	ID    int
	Name  string
	Email string
}

// ReconcileOutcome reports what the reconciler did for one device.
type ReconcileOutcome string

const (
	OutcomeCreated ReconcileOutcome = "created"
	OutcomeUpdated ReconcileOutcome = "updated"
	// OutcomeUnchanged means a matching asset existed and no field differed,
	// so no write was issued.
	OutcomeUnchanged ReconcileOutcome = "unchanged"
	OutcomeFailed    ReconcileOutcome = "failed"
	// OutcomeSkipped is reserved for dry-run mode.
	OutcomeSkipped ReconcileOutcome = "skipped"
)
