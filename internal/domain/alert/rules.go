package alert

import (
	"time"

	"github.com/renalink/renalink/internal/domain/measurement"
)

// Rule identifiers. Stable string keys: they are persisted on alert rows and
// referenced by dashboards, so they never change meaning.
const (
	RuleWeightGain48h    = "weight_gain_48h"
	RuleBPSystolicHigh   = "bp_systolic_high"
	RuleBPSystolicLow    = "bp_systolic_low"
	RuleSpO2Low          = "spo2_low"
	RuleLabCritical      = "lab_critical"
	RuleSymptomWorsening = "symptom_worsening"
)

var ruleNames = map[string]string{
	RuleWeightGain48h:    "Rapid weight gain over 48 hours",
	RuleBPSystolicHigh:   "Systolic blood pressure high",
	RuleBPSystolicLow:    "Systolic blood pressure low",
	RuleSpO2Low:          "Oxygen saturation low",
	RuleLabCritical:      "Critical lab result",
	RuleSymptomWorsening: "Symptom worsening",
}

// RuleName returns the human-readable name stored alongside the rule id.
func RuleName(ruleID string) string {
	return ruleNames[ruleID]
}

// Weight-gain rule bounds: fires above the warning bound, severity steps up
// at the critical bound.
const (
	WeightGainWindow     = 48 * time.Hour
	WeightGainWarningKg  = 1.0
	WeightGainCriticalKg = 2.0
)

const (
	ComparisonGTE = ">="
	ComparisonLTE = "<="
)

// thresholdRule is one fixed-comparison rule on a single measurement value.
type thresholdRule struct {
	ruleID     string
	mtype      string
	threshold  float64
	comparison string
	severity   string
}

var thresholdRules = []thresholdRule{
	{RuleBPSystolicHigh, measurement.TypeBPSystolic, 180, ComparisonGTE, SeverityCritical},
	{RuleBPSystolicLow, measurement.TypeBPSystolic, 90, ComparisonLTE, SeverityWarning},
	{RuleSpO2Low, measurement.TypeSpO2, 92, ComparisonLTE, SeverityCritical},
}

func (r thresholdRule) matches(value float64) bool {
	switch r.comparison {
	case ComparisonGTE:
		return value >= r.threshold
	case ComparisonLTE:
		return value <= r.threshold
	}
	return false
}
