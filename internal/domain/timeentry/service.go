package timeentry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/platform/auth"
	"github.com/renalink/renalink/internal/platform/httperr"
)

// futureGrace absorbs client clock skew on performedAt.
const futureGrace = 5 * time.Minute

const maxNoteLength = 2000

// EntryRequest is the writable surface of a time entry. The author,
// performer type, and patient binding come from the route and the actor,
// never from the body.
type EntryRequest struct {
	Activity    string    `json:"activity"`
	Minutes     int       `json:"minutes"`
	PerformedAt time.Time `json:"performedAt"`
	Note        string    `json:"note"`
}

type Service struct {
	entries Repository
	logger  zerolog.Logger
}

func NewService(entries Repository, logger zerolog.Logger) *Service {
	return &Service{
		entries: entries,
		logger:  logger.With().Str("component", "timeentry").Logger(),
	}
}

// performerTypeForRole maps the actor's token role onto the billing
// performer type. Service principals cannot attest billable time.
func performerTypeForRole(role string) (string, error) {
	switch role {
	case auth.RolePhysician:
		return PerformerPhysician, nil
	case auth.RoleClinicalStaff:
		return PerformerClinicalStaff, nil
	}
	return "", httperr.Forbiddenf("role %q cannot log billable time", role)
}

// Create attests a new entry authored by the acting clinician.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, actorID, actorRole string, req EntryRequest) (*TimeEntry, error) {
	if actorID == "" {
		return nil, httperr.Validationf("acting clinician is required")
	}
	performer, err := performerTypeForRole(actorRole)
	if err != nil {
		return nil, err
	}
	te := &TimeEntry{
		PatientID:     patientID,
		ClinicianID:   actorID,
		PerformerType: performer,
	}
	if err := applyRequest(te, req); err != nil {
		return nil, err
	}

	if err := s.entries.Insert(ctx, te); err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "create time entry", err)
	}

	s.logger.Info().
		Str("entry_id", te.ID.String()).
		Str("patient_id", te.PatientID.String()).
		Str("clinician_id", te.ClinicianID).
		Str("activity", te.Activity).
		Int("minutes", te.Minutes).
		Msg("time entry created")
	return te, nil
}

// Update replaces the writable fields of an entry. Only the author may
// touch it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, actorID string, req EntryRequest) (*TimeEntry, error) {
	te, err := s.load(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if err := applyRequest(te, req); err != nil {
		return nil, err
	}

	if err := s.entries.Update(ctx, te); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFoundf("time entry %s not found", id)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "update time entry", err)
	}

	s.logger.Info().
		Str("entry_id", te.ID.String()).
		Str("clinician_id", actorID).
		Msg("time entry updated")
	return te, nil
}

// Delete removes an entry. Only the author may delete it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID string) error {
	te, err := s.load(ctx, id, actorID)
	if err != nil {
		return err
	}

	if err := s.entries.Delete(ctx, te.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return httperr.NotFoundf("time entry %s not found", id)
		}
		return httperr.Wrap(httperr.KindInternal, "delete time entry", err)
	}

	s.logger.Info().
		Str("entry_id", te.ID.String()).
		Str("clinician_id", actorID).
		Msg("time entry deleted")
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*TimeEntry, int, error) {
	entries, total, err := s.entries.ListByPatient(ctx, patientID, from, to, limit, offset)
	if err != nil {
		return nil, 0, httperr.Wrap(httperr.KindInternal, "list time entries", err)
	}
	if entries == nil {
		entries = []*TimeEntry{}
	}
	return entries, total, nil
}

// load fetches an entry and enforces authorship.
func (s *Service) load(ctx context.Context, id uuid.UUID, actorID string) (*TimeEntry, error) {
	if actorID == "" {
		return nil, httperr.Validationf("acting clinician is required")
	}
	te, err := s.entries.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFoundf("time entry %s not found", id)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "get time entry", err)
	}
	if !te.AuthoredBy(actorID) {
		return nil, httperr.Forbiddenf("time entry %s belongs to another clinician", id)
	}
	return te, nil
}

// applyRequest validates the request and writes it onto the entry.
func applyRequest(te *TimeEntry, req EntryRequest) error {
	activity := strings.TrimSpace(req.Activity)
	if !IsValidActivity(activity) {
		return httperr.Validationf("activity must be one of data_review, patient_call, care_coordination, education, device_setup")
	}
	if req.Minutes < MinMinutes || req.Minutes > MaxMinutes {
		return httperr.Validationf("minutes must be between %d and %d", MinMinutes, MaxMinutes)
	}

	now := time.Now().UTC()
	performedAt := req.PerformedAt
	if performedAt.IsZero() {
		performedAt = now
	}
	performedAt = performedAt.UTC()
	if performedAt.After(now.Add(futureGrace)) {
		return httperr.Validationf("performedAt must not be in the future")
	}
	if performedAt.Before(now.Add(-MaxBackdate)) {
		return httperr.Validationf("performedAt must be within the last 7 days")
	}

	note := strings.TrimSpace(req.Note)
	if len(note) > maxNoteLength {
		return httperr.Validationf("note must be at most %d characters", maxNoteLength)
	}

	te.Activity = activity
	te.Minutes = req.Minutes
	te.PerformedAt = performedAt
	te.Note = note
	return nil
}
