package alert

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/internal/platform/ws"
)

// Service carries the clinician-facing alert operations. Acknowledge and
// dismiss are terminal: they end the escalation ladder for that alert
// instance.
type Service struct {
	alerts      Repository
	broadcaster Broadcaster
	logger      zerolog.Logger
}

func NewService(alerts Repository, broadcaster Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		alerts:      alerts,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "alert").Logger(),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFoundf("alert %s not found", id)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "get alert", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error) {
	if status != "" && !IsValidStatus(status) {
		return nil, 0, httperr.Validationf("status must be one of OPEN, ACKNOWLEDGED, DISMISSED")
	}
	alerts, total, err := s.alerts.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, httperr.Wrap(httperr.KindInternal, "list alerts", err)
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return alerts, total, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Alert, int, error) {
	if status != "" && !IsValidStatus(status) {
		return nil, 0, httperr.Validationf("status must be one of OPEN, ACKNOWLEDGED, DISMISSED")
	}
	alerts, total, err := s.alerts.ListByPatient(ctx, patientID, status, limit, offset)
	if err != nil {
		return nil, 0, httperr.Wrap(httperr.KindInternal, "list alerts", err)
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return alerts, total, nil
}

func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*Alert, error) {
	return s.close(ctx, id, actor, StatusAcknowledged)
}

func (s *Service) Dismiss(ctx context.Context, id uuid.UUID, actor string) (*Alert, error) {
	return s.close(ctx, id, actor, StatusDismissed)
}

func (s *Service) close(ctx context.Context, id uuid.UUID, actor, status string) (*Alert, error) {
	if actor == "" {
		return nil, httperr.Validationf("acting clinician is required")
	}

	var (
		a   *Alert
		err error
	)
	now := time.Now().UTC()
	if status == StatusAcknowledged {
		a, err = s.alerts.Acknowledge(ctx, id, actor, now)
	} else {
		a, err = s.alerts.Dismiss(ctx, id, actor, now)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, httperr.NotFoundf("alert %s not found", id)
		case errors.Is(err, ErrNotOpen):
			return nil, httperr.New(httperr.KindConstraintViolation, "alert is not open")
		}
		return nil, httperr.Wrap(httperr.KindInternal, "close alert", err)
	}

	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("actor", actor).
		Str("status", a.Status).
		Msg("alert closed")

	if s.broadcaster != nil {
		event := ws.EventAlertAcknowledged
		if status == StatusDismissed {
			event = ws.EventAlertDismissed
		}
		payload, err := json.Marshal(a)
		if err != nil {
			payload = nil
		}
		s.broadcaster.PublishAlert(event, a.PatientID.String(), a.ID.String(), payload)
	}
	return a, nil
}

// OpenCount backs the open-alerts health gauge.
func (s *Service) OpenCount(ctx context.Context) (int64, error) {
	return s.alerts.CountOpen(ctx)
}
