// Package device tracks vendor device connections per patient. A connection
// is the sync job's unit of work: which vendor account to pull and where the
// last pull left off. Measurement rows themselves live in the measurement
// package; a connection only carries identity and cursor state.
package device

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Connection lifecycle. Paused connections keep their cursor and can resume;
// revoked is terminal.
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusRevoked = "revoked"
)

var validStatuses = map[string]bool{
	StatusActive:  true,
	StatusPaused:  true,
	StatusRevoked: true,
}

// IsValidStatus reports whether s is a known connection status.
func IsValidStatus(s string) bool { return validStatuses[s] }

// vendorPattern constrains vendor slugs. The vendor name doubles as the
// measurement source tag, so it must never collide with "manual" and must
// stay queryable as a plain token.
var vendorPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,39}$`)

// IsValidVendor reports whether v is an acceptable vendor slug.
func IsValidVendor(v string) bool {
	return v != "manual" && vendorPattern.MatchString(v)
}

// Connection maps to the device_connection table.
type Connection struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patientId"`
	Vendor       string     `db:"vendor" json:"vendor"`
	VendorUserID string     `db:"vendor_user_id" json:"vendorUserId"`
	Status       string     `db:"status" json:"status"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// Syncable reports whether the sync job should pull this connection.
func (c *Connection) Syncable() bool { return c.Status == StatusActive }

// CursorFrom returns the instant the next pull should start from. New
// connections backfill a bounded window instead of the vendor's full
// history.
func (c *Connection) CursorFrom(now time.Time, backfill time.Duration) time.Time {
	if c.LastSyncedAt != nil {
		return *c.LastSyncedAt
	}
	return now.Add(-backfill)
}
