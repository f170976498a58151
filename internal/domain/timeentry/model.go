// Package timeentry records clinician-attested billable time against a
// patient. Entries are the raw material of the monthly billing summary and
// are only ever written by the clinician who performed the work.
package timeentry

import (
	"time"

	"github.com/google/uuid"
)

// Performer types. Which type a minute is logged under decides the CPT
// ladder it counts toward.
const (
	PerformerPhysician     = "physician"
	PerformerClinicalStaff = "clinical_staff"
)

// Activity categories. Closed set; unknown categories are rejected at the
// boundary so billing partitions stay enumerable.
const (
	ActivityDataReview       = "data_review"
	ActivityPatientCall      = "patient_call"
	ActivityCareCoordination = "care_coordination"
	ActivityEducation        = "education"
	ActivityDeviceSetup      = "device_setup"
)

const (
	MinMinutes = 1
	MaxMinutes = 120
	// MaxBackdate bounds how far in the past an entry may attest work.
	// Time tracking is attestation close to the event, not retroactive
	// bookkeeping.
	MaxBackdate = 7 * 24 * time.Hour
)

var validActivities = map[string]bool{
	ActivityDataReview:       true,
	ActivityPatientCall:      true,
	ActivityCareCoordination: true,
	ActivityEducation:        true,
	ActivityDeviceSetup:      true,
}

// IsValidActivity reports whether a is a known activity category.
func IsValidActivity(a string) bool { return validActivities[a] }

// TimeEntry maps to the time_entry table.
type TimeEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patientId"`
	ClinicianID   string    `db:"clinician_id" json:"clinicianId"`
	PerformerType string    `db:"performer_type" json:"performerType"`
	Activity      string    `db:"activity" json:"activity"`
	Minutes       int       `db:"minutes" json:"minutes"`
	PerformedAt   time.Time `db:"performed_at" json:"performedAt"`
	Note          string    `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// AuthoredBy reports whether the entry belongs to the given clinician.
func (te *TimeEntry) AuthoredBy(clinicianID string) bool {
	return te.ClinicianID == clinicianID
}
