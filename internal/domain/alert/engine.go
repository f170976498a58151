package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/labresult"
	"github.com/renalink/renalink/internal/domain/measurement"
	"github.com/renalink/renalink/internal/domain/symptom"
	"github.com/renalink/renalink/internal/platform/telemetry"
	"github.com/renalink/renalink/internal/platform/ws"
)

// Broadcaster pushes alert lifecycle events onto the live dashboard feed.
// *ws.Hub satisfies it.
type Broadcaster interface {
	PublishAlert(eventType, patientID, alertID string, data json.RawMessage)
}

// Engine evaluates the fixed rule set against newly committed clinical data.
// It is wired in as the evaluator of the measurement, lab result, and
// symptom services, and always runs after their ingestion transactions have
// committed: an evaluation failure is logged and can never undo an
// ingestion.
type Engine struct {
	alerts       Repository
	measurements measurement.Repository
	broadcaster  Broadcaster
	tel          *telemetry.TelemetryProvider
	logger       zerolog.Logger
}

var (
	_ measurement.Evaluator = (*Engine)(nil)
	_ labresult.Evaluator   = (*Engine)(nil)
	_ symptom.Evaluator     = (*Engine)(nil)
)

func NewEngine(alerts Repository, measurements measurement.Repository, broadcaster Broadcaster, tel *telemetry.TelemetryProvider, logger zerolog.Logger) *Engine {
	return &Engine{
		alerts:       alerts,
		measurements: measurements,
		broadcaster:  broadcaster,
		tel:          tel,
		logger:       logger.With().Str("component", "alert_engine").Logger(),
	}
}

// MeasurementAccepted runs every rule that applies to the measurement's
// type. Rules are evaluated independently: one failing is logged and the
// rest still run.
func (e *Engine) MeasurementAccepted(ctx context.Context, m *measurement.Measurement) {
	for _, rule := range thresholdRules {
		if rule.mtype != m.Type || !rule.matches(m.Value) {
			continue
		}
		unit, _ := measurement.CanonicalUnit(m.Type)
		e.fire(ctx, m.PatientID, rule.ruleID, rule.severity,
			Inputs{Threshold: &ThresholdInputs{
				Value:      m.Value,
				Threshold:  rule.threshold,
				Comparison: rule.comparison,
			}},
			fmt.Sprintf("%s: %g %s (threshold %g %s)",
				RuleName(rule.ruleID), m.Value, unit, rule.threshold, unit))
	}
	if m.Type == measurement.TypeWeight {
		e.evaluateWeightGain(ctx, m)
	}
}

// evaluateWeightGain compares the oldest and newest weight inside the 48h
// window ending at the new reading.
func (e *Engine) evaluateWeightGain(ctx context.Context, m *measurement.Measurement) {
	from := m.MeasuredAt.Add(-WeightGainWindow)
	series, err := e.measurements.ListForWindow(ctx, m.PatientID, measurement.TypeWeight, from, m.MeasuredAt)
	if err != nil {
		e.logger.Error().Err(err).
			Str("patient_id", m.PatientID.String()).
			Msg("weight gain rule: load window failed")
		return
	}
	if len(series) < 2 {
		return
	}
	oldest, newest := series[0], series[len(series)-1]
	delta := math.Round((newest.Value-oldest.Value)*1000) / 1000
	if delta <= WeightGainWarningKg {
		return
	}

	severity := SeverityWarning
	threshold := WeightGainWarningKg
	if delta >= WeightGainCriticalKg {
		severity = SeverityCritical
		threshold = WeightGainCriticalKg
	}
	e.fire(ctx, m.PatientID, RuleWeightGain48h, severity,
		Inputs{WeightGain: &WeightGainInputs{
			Oldest:      oldest.Value,
			Newest:      newest.Value,
			Delta:       delta,
			ThresholdKg: threshold,
			WindowHours: int(WeightGainWindow.Hours()),
		}},
		fmt.Sprintf("Weight gained %.1f kg in 48h (%.1f to %.1f kg)", delta, oldest.Value, newest.Value))
}

// LabResultReceived fires the critical-lab rule; normal and abnormal flags
// never alert.
func (e *Engine) LabResultReceived(ctx context.Context, lr *labresult.LabResult) {
	if !lr.IsCritical() {
		return
	}
	name := lr.TestName
	if name == "" {
		name = lr.TestCode
	}
	e.fire(ctx, lr.PatientID, RuleLabCritical, SeverityCritical,
		Inputs{Lab: &LabInputs{
			TestCode: lr.TestCode,
			TestName: lr.TestName,
			Value:    lr.Value,
			Unit:     lr.Unit,
			Flag:     lr.Flag,
		}},
		fmt.Sprintf("Critical lab result: %s %g %s", name, lr.Value, lr.Unit))
}

// CheckInRecorded fires when a symptom's severity rose between consecutive
// check-ins. The first check-in for a symptom has no baseline and never
// alerts.
func (e *Engine) CheckInRecorded(ctx context.Context, previous, current *symptom.CheckIn) {
	if previous == nil || current.Severity <= previous.Severity {
		return
	}
	e.fire(ctx, current.PatientID, RuleSymptomWorsening, SeverityWarning,
		Inputs{Symptom: &SymptomInputs{
			Symptom:          current.Symptom,
			PreviousSeverity: previous.Severity,
			CurrentSeverity:  current.Severity,
		}},
		fmt.Sprintf("Symptom %s worsened from %d to %d", current.Symptom, previous.Severity, current.Severity))
}

// fire upserts the OPEN alert for (patient, rule) and publishes the
// lifecycle event. The upsert is its own transaction, independent of
// whatever ingestion triggered it.
func (e *Engine) fire(ctx context.Context, patientID uuid.UUID, ruleID, severity string, inputs Inputs, summary string) {
	a := &Alert{
		PatientID:   patientID,
		RuleID:      ruleID,
		RuleName:    RuleName(ruleID),
		Severity:    severity,
		Inputs:      inputs,
		Summary:     summary,
		TriggeredAt: time.Now().UTC(),
	}
	created, err := e.alerts.UpsertOpen(ctx, a)
	if err != nil {
		e.logger.Error().Err(err).
			Str("rule_id", ruleID).
			Str("patient_id", patientID.String()).
			Msg("alert upsert failed")
		return
	}

	event := ws.EventAlertRetriggered
	if created {
		event = ws.EventAlertRaised
		e.tel.AlertFired(ruleID, severity)
	}

	e.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("rule_id", ruleID).
		Str("patient_id", patientID.String()).
		Str("severity", severity).
		Bool("created", created).
		Msg("alert rule fired")

	if e.broadcaster != nil {
		payload, err := json.Marshal(a)
		if err != nil {
			payload = nil
		}
		e.broadcaster.PublishAlert(event, a.PatientID.String(), a.ID.String(), payload)
	}
}
