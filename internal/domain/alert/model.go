// Package alert maintains clinical condition signals raised by the rule
// engine, escalates the ones nobody acknowledges, and exposes the clinician
// acknowledge/dismiss actions.
package alert

import (
	"time"

	"github.com/google/uuid"
)

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

const (
	StatusOpen         = "OPEN"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusDismissed    = "DISMISSED"
)

// MaxEscalationLevel is the terminal rung of the escalation ladder.
const MaxEscalationLevel = 2

type Alert struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patientId"`
	RuleID          string     `db:"rule_id" json:"ruleId"`
	RuleName        string     `db:"rule_name" json:"ruleName"`
	Severity        string     `db:"severity" json:"severity"`
	Status          string     `db:"status" json:"status"`
	Inputs          Inputs     `db:"inputs" json:"inputs"`
	Summary         string     `db:"summary" json:"summary,omitempty"`
	EscalationLevel int        `db:"escalation_level" json:"escalationLevel"`
	EscalatedAt     *time.Time `db:"escalated_at" json:"escalatedAt,omitempty"`
	LastNotifiedAt  *time.Time `db:"last_notified_at" json:"lastNotifiedAt,omitempty"`
	TriggeredAt     time.Time  `db:"triggered_at" json:"triggeredAt"`
	AcknowledgedBy  *string    `db:"acknowledged_by" json:"acknowledgedBy,omitempty"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledgedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

func (a *Alert) IsOpen() bool {
	return a.Status == StatusOpen
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusOpen, StatusAcknowledged, StatusDismissed:
		return true
	}
	return false
}
