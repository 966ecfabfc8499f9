// Assetsync - MDM Device Inventory to Snipe-IT Synchronization
// Copyright 2026 West Island College IT
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/westisland-it/assetsync

/*
categorizer.go - Field Mapper / Categorizer

Maps a raw SourceDevice into a normalized AssetDescriptor. Categorization is
a strict ordered fallback chain; the first matching rule wins:

 1. Prestage / enrollment-profile name keywords (most reliable signal)
 2. Hardware-class hints (Apple TV model -> signage, iPad model -> tablet)
 3. Assignee email pattern (student domain or numeric student-ID local part)
 4. Device-name keywords (same keyword set as rule 1)
 5. Default: Staff

The chain always bottoms out at Staff; a descriptor is never left without a
category. Devices that reach the default with no positive signal are marked
LowConfidence and logged, which is informational, not an error.

Model names are category-qualified ("Staff MacBookPro16,2") because the
destination's model record carries its own default category: two devices of
the same hardware model but different categories must never share a model
record, or repeated syncs would silently flip asset categories.

Map is a pure function of its input: no network calls, no shared state.
*/
package sync

import (
	"fmt"
	"strings"

	"github.com/westisland-it/assetsync/internal/config"
	"github.com/westisland-it/assetsync/internal/logging"
	"github.com/westisland-it/assetsync/internal/models"
)

// Categorizer resolves destination categories for source devices using the
// configured category-ID table.
type Categorizer struct {
	student       models.Category
	staff         models.Category
	ssc           models.Category
	checkinIPad   models.Category
	donationsIPad models.Category
	monerisIPad   models.Category
	teacherIPad   models.Category
	appleTV       models.Category
}

// NewCategorizer builds a categorizer from the configured category table.
func NewCategorizer(cats config.CategoriesConfig) *Categorizer {
	return &Categorizer{
		student:       models.Category{ID: cats.Student, Name: "Student Loaner Laptop", Label: "Student"},
		staff:         models.Category{ID: cats.Staff, Name: "Staff Mac Laptop", Label: "Staff"},
		ssc:           models.Category{ID: cats.SSC, Name: "SSC Laptop", Label: "SSC"},
		checkinIPad:   models.Category{ID: cats.CheckinIPad, Name: "Check-In iPad", Label: "CheckIn"},
		donationsIPad: models.Category{ID: cats.DonationsIPad, Name: "Donations iPad", Label: "Donations"},
		monerisIPad:   models.Category{ID: cats.MonerisIPad, Name: "Moneris iPad", Label: "Moneris"},
		teacherIPad:   models.Category{ID: cats.TeacherIPad, Name: "Teacher iPad", Label: "Teacher"},
		appleTV:       models.Category{ID: cats.AppleTV, Name: "Apple TVs", Label: "AppleTV"},
	}
}

// Map converts a source device into a normalized asset descriptor.
func (c *Categorizer) Map(d models.SourceDevice) models.AssetDescriptor {
	category, confident := c.resolveCategory(d)

	name := d.DeviceName
	if name == "" {
		name = d.SerialNumber
	}

	hardwareModel := d.Model
	if hardwareModel == "" {
		hardwareModel = "Unknown"
	}

	desc := models.AssetDescriptor{
		SerialNumber:  d.SerialNumber,
		Name:          name,
		Category:      category,
		HardwareModel: hardwareModel,
		ModelName:     fmt.Sprintf("%s %s", category.Label, hardwareModel),
		AssigneeEmail: strings.ToLower(strings.TrimSpace(d.Email)),
		LowConfidence: !confident,
	}
	if d.PrestageName != "" {
		desc.Notes = fmt.Sprintf("Prestage: %s", d.PrestageName)
	}

	if desc.LowConfidence {
		logging.Debug().
			Str("serial", d.SerialNumber).
			Str("category", category.Name).
			Msg("no categorization signal, using default category")
	}

	return desc
}

// resolveCategory walks the fallback chain. The second return value is false
// only when the chain fell through to the default with no positive signal.
func (c *Categorizer) resolveCategory(d models.SourceDevice) (models.Category, bool) {
	prestage := strings.ToLower(d.PrestageName)
	deviceName := strings.ToLower(d.DeviceName)
	email := strings.ToLower(d.Email)
	model := strings.ToLower(d.Model)

	// Rule 1: prestage / enrollment-profile keywords.
	if prestage != "" {
		switch {
		case strings.Contains(prestage, "staff ipad"), strings.Contains(prestage, "teacher ipad"):
			return c.teacherIPad, true
		case strings.Contains(prestage, "kiosk"), strings.Contains(prestage, "check-in"):
			return c.checkinIPad, true
		case strings.Contains(prestage, "donation"):
			return c.donationsIPad, true
		case strings.Contains(prestage, "moneris"):
			return c.monerisIPad, true
		case strings.Contains(prestage, "apple tv"):
			return c.appleTV, true
		case strings.Contains(prestage, "student"), strings.Contains(prestage, "loaner"):
			return c.student, true
		case strings.Contains(prestage, "ssc"):
			return c.ssc, true
		case strings.Contains(prestage, "staff"), strings.Contains(prestage, "employee"):
			return c.staff, true
		}
	}

	// Rule 2: hardware-class hints.
	if d.Class == models.ClassSetTopBox || strings.Contains(model, "apple tv") {
		return c.appleTV, true
	}
	if d.Class == models.ClassTablet || strings.Contains(model, "ipad") {
		return c.teacherIPad, true
	}

	// Rule 3: assignee email pattern.
	if email != "" {
		if local, domain, ok := strings.Cut(email, "@"); ok {
			if strings.Contains(domain, "student") || isNumericLocalPart(local) {
				return c.student, true
			}
		}
	}

	// Rule 4: device-name keywords.
	if deviceName != "" {
		for _, kw := range []string{"student", "loaner", "loan", "it-"} {
			if strings.Contains(deviceName, kw) {
				return c.student, true
			}
		}
		if strings.Contains(deviceName, "ssc") {
			return c.ssc, true
		}
	}

	// Rule 5: default. Staff is the lowest-privilege sensible category.
	return c.staff, false
}

// isNumericLocalPart reports whether the email local part looks like a
// student ID (all digits, at least four of them).
func isNumericLocalPart(local string) bool {
	if len(local) < 4 {
		return false
	}
	for _, r := range local {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
