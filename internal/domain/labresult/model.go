// Package labresult receives flagged laboratory results from the upstream
// lab-interface boundary. Results arrive already interpreted (normal,
// abnormal, critical); critical flags feed the alerting rules.
package labresult

import (
	"time"

	"github.com/google/uuid"
)

const (
	FlagNormal   = "normal"
	FlagAbnormal = "abnormal"
	FlagCritical = "critical"
)

type LabResult struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patientId"`
	TestCode   string    `db:"test_code" json:"testCode"`
	TestName   string    `db:"test_name" json:"testName"`
	Value      float64   `db:"value" json:"value"`
	Unit       string    `db:"unit" json:"unit"`
	Flag       string    `db:"flag" json:"flag"`
	ResultedAt time.Time `db:"resulted_at" json:"resultedAt"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

func (r *LabResult) IsCritical() bool {
	return r.Flag == FlagCritical
}
