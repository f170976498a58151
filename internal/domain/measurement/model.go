package measurement

import (
	"time"

	"github.com/google/uuid"
)

// Measurement types. The enumeration is fixed; unknown types are rejected at
// the ingestion boundary.
const (
	TypeWeight            = "weight"
	TypeBPSystolic        = "bp_systolic"
	TypeBPDiastolic       = "bp_diastolic"
	TypeSpO2              = "spo2"
	TypeHeartRate         = "heart_rate"
	TypeBodyFatPct        = "body_fat_pct"
	TypeMuscleMass        = "muscle_mass"
	TypeBodyWaterPct      = "body_water_pct"
	TypePulseWaveVelocity = "pulse_wave_velocity"
)

// SourceManual is the distinguished source for patient-entered readings.
// Any other source string is a device vendor tag.
const SourceManual = "manual"

// Measurement maps to the measurement table. One physiological reading,
// stored in the canonical unit for its type. Rows are append-only: created
// once at ingestion, never mutated, never deleted.
type Measurement struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patientId"`
	Type       string    `db:"type" json:"type"`
	Value      float64   `db:"value" json:"value"`
	Unit       string    `db:"unit" json:"unit"`
	InputUnit  *string   `db:"input_unit" json:"inputUnit,omitempty"`
	Source     string    `db:"source" json:"source"`
	ExternalID *string   `db:"external_id" json:"externalId,omitempty"`
	MeasuredAt time.Time `db:"measured_at" json:"measuredAt"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// IsManual reports whether the reading was patient-entered.
func (m *Measurement) IsManual() bool { return m.Source == SourceManual }

// IsDeviceRecord reports whether the reading carries a vendor record
// identity, which makes device-channel dedup applicable.
func (m *Measurement) IsDeviceRecord() bool {
	return m.Source != SourceManual && m.ExternalID != nil && *m.ExternalID != ""
}

var validTypes = map[string]bool{
	TypeWeight:            true,
	TypeBPSystolic:        true,
	TypeBPDiastolic:       true,
	TypeSpO2:              true,
	TypeHeartRate:         true,
	TypeBodyFatPct:        true,
	TypeMuscleMass:        true,
	TypeBodyWaterPct:      true,
	TypePulseWaveVelocity: true,
}

// IsValidType reports whether t is a known measurement type.
func IsValidType(t string) bool { return validTypes[t] }
