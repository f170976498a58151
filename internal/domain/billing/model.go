// Package billing computes CPT-style eligibility per patient per calendar
// month, at query time, from measurements and time entries. Nothing here is
// persisted: the summary is presentation data, recomputable at any moment,
// so upstream edits and deletions are always reflected.
package billing

import (
	"time"

	"github.com/google/uuid"
)

// CPT-style code identifiers.
const (
	CodeDeviceSupply      = "99454"
	CodeStaffTimeBase     = "99457"
	CodeStaffTimeAddOn    = "99458"
	CodeCCMPhysicianBase  = "99491"
	CodeCCMPhysicianAddOn = "99437"
	CodePCMPhysicianBase  = "99424"
	CodePCMPhysicianAddOn = "99425"
	CodePCMStaffBase      = "99426"
	CodePCMStaffAddOn     = "99427"
)

// Eligibility thresholds. Device supply needs 16 distinct transmission days
// in the period; the staff ladder opens at 20 minutes with 20-minute add-on
// blocks; the physician ladders open at 30 minutes with 30-minute blocks.
// Add-on units are capped per period.
const (
	DeviceDayThreshold   = 16
	StaffBaseMinutes     = 20
	StaffAddOnBlock      = 20
	PhysicianBaseMinutes = 30
	PhysicianAddOnBlock  = 30
	AddOnUnitCap         = 2
)

// MinuteBucket is one (performerType, activity) cell of the period's minute
// partition.
type MinuteBucket struct {
	PerformerType string `db:"performer_type" json:"performerType"`
	Activity      string `db:"activity" json:"activity"`
	Minutes       int    `db:"minutes" json:"minutes"`
}

// CodeEligibility reports one code's standing for the period. Basis carries
// the arithmetic in words so a biller can verify the decision without
// re-running the query.
type CodeEligibility struct {
	Code     string `json:"code"`
	Eligible bool   `json:"eligible"`
	Units    int    `json:"units"`
	Basis    string `json:"basis"`
}

// BillingPeriodSummary is the derived monthly view for one patient. Period
// bounds are midnight-to-midnight in the patient's timezone.
type BillingPeriodSummary struct {
	PatientID          uuid.UUID         `json:"patientId"`
	PatientName        string            `json:"patientName"`
	Month              string            `json:"month"`
	PeriodStart        time.Time         `json:"periodStart"`
	PeriodEnd          time.Time         `json:"periodEnd"`
	Timezone           string            `json:"timezone"`
	BillingTrack       string            `json:"billingTrack"`
	DeviceDays         int               `json:"deviceDays"`
	DeviceDayThreshold int               `json:"deviceDayThreshold"`
	PhysicianMinutes   int               `json:"physicianMinutes"`
	StaffMinutes       int               `json:"staffMinutes"`
	TotalMinutes       int               `json:"totalMinutes"`
	MinutesByActivity  map[string]int    `json:"minutesByActivity"`
	Buckets            []MinuteBucket    `json:"buckets"`
	Codes              []CodeEligibility `json:"codes"`
}

// Code returns the eligibility entry for a code, or nil when the code is not
// part of the patient's track.
func (s *BillingPeriodSummary) Code(code string) *CodeEligibility {
	for i := range s.Codes {
		if s.Codes[i].Code == code {
			return &s.Codes[i]
		}
	}
	return nil
}
