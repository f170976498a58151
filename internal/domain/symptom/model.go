// Package symptom stores patient-reported symptom check-ins. Severity is a
// 0-10 self-assessment scale; a rise between consecutive check-ins for the
// same symptom feeds the worsening alert rule.
package symptom

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinSeverity = 0
	MaxSeverity = 10
)

type CheckIn struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patientId"`
	Symptom    string    `db:"symptom" json:"symptom"`
	Severity   int       `db:"severity" json:"severity"`
	Note       string    `db:"note" json:"note,omitempty"`
	ReportedAt time.Time `db:"reported_at" json:"reportedAt"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
