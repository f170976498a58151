package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/platform/notification"
	"github.com/renalink/renalink/internal/platform/telemetry"
	"github.com/renalink/renalink/internal/platform/ws"
)

const (
	// DefaultEscalationInterval is how often the scheduler scans for due
	// alerts.
	DefaultEscalationInterval = 30 * time.Minute
	// EscalationWait is how long an alert sits at a level before the next
	// rung: 4h after triggeredAt at level 0, 4h after escalatedAt at
	// level 1.
	EscalationWait = 4 * time.Hour
)

// Scheduler walks OPEN alerts up the escalation ladder. It is stateless
// between runs: every cycle reads what is due from the store, so a restart
// resumes exactly where the data says it should.
type Scheduler struct {
	alerts      Repository
	notifier    notification.Notifier
	broadcaster Broadcaster
	tel         *telemetry.TelemetryProvider
	logger      zerolog.Logger
	interval    time.Duration
	wait        time.Duration
}

func NewScheduler(alerts Repository, notifier notification.Notifier, broadcaster Broadcaster, tel *telemetry.TelemetryProvider, logger zerolog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultEscalationInterval
	}
	return &Scheduler{
		alerts:      alerts,
		notifier:    notifier,
		broadcaster: broadcaster,
		tel:         tel,
		logger:      logger.With().Str("component", "escalation").Logger(),
		interval:    interval,
		wait:        EscalationWait,
	}
}

// SetWait overrides how long an alert sits at a level before escalating.
func (s *Scheduler) SetWait(d time.Duration) {
	if d > 0 {
		s.wait = d
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("escalation scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("escalation scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("escalation cycle failed")
			}
		}
	}
}

// RunOnce performs a single escalation cycle and reports how many alerts
// advanced. Per-alert failures are logged and skipped; they never stop the
// cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.wait)
	due, err := s.alerts.ListEscalatable(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select escalatable alerts: %w", err)
	}

	escalated := 0
	for _, a := range due {
		if err := s.escalate(ctx, a); err != nil {
			s.logger.Error().Err(err).
				Str("alert_id", a.ID.String()).
				Int("level", a.EscalationLevel).
				Msg("escalation failed")
			continue
		}
		escalated++
	}
	if escalated > 0 {
		s.logger.Info().Int("escalated", escalated).Msg("escalation cycle complete")
	}
	return escalated, nil
}

func (s *Scheduler) escalate(ctx context.Context, a *Alert) error {
	now := time.Now().UTC()
	level := a.EscalationLevel + 1

	// Escalation state is persisted before any delivery attempt: the level
	// advances even when the notification fails, so a flaky gateway cannot
	// make the scheduler re-notify the same rung forever.
	if err := s.alerts.UpdateEscalation(ctx, a.ID, level, now, now); err != nil {
		return err
	}
	a.EscalationLevel = level
	a.EscalatedAt = &now
	a.LastNotifiedAt = &now
	a.UpdatedAt = now

	s.tel.AlertEscalated(strconv.Itoa(level))
	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Int("level", level).
		Msg("alert escalated")

	if err := s.notifier.NotifyAlert(ctx, notification.AlertEvent{
		AlertID:    a.ID.String(),
		PatientID:  a.PatientID.String(),
		RuleID:     a.RuleID,
		Severity:   a.Severity,
		Level:      level,
		Message:    a.Summary,
		OccurredAt: now,
	}); err != nil {
		s.tel.NotificationFailed()
		s.logger.Error().Err(err).
			Str("alert_id", a.ID.String()).
			Int("level", level).
			Msg("escalation notification failed")
	}

	if s.broadcaster != nil {
		payload, err := json.Marshal(a)
		if err != nil {
			payload = nil
		}
		s.broadcaster.PublishAlert(ws.EventAlertEscalated, a.PatientID.String(), a.ID.String(), payload)
	}
	return nil
}
