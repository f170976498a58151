package interaction

import (
	"time"

	"github.com/google/uuid"
)

// Interaction kinds. Every accepted clinical data point writes one row, in
// the same transaction as the data itself.
const (
	KindMeasurement    = "measurement_received"
	KindLabResult      = "lab_result_received"
	KindSymptomCheckIn = "symptom_checkin_received"
)

// Log maps to the interaction_log table. One row per patient touchpoint,
// feeding the care-management review surface.
type Log struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patientId"`
	Kind       string     `db:"kind" json:"kind"`
	RefID      *uuid.UUID `db:"ref_id" json:"refId,omitempty"`
	OccurredAt time.Time  `db:"occurred_at" json:"occurredAt"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}
