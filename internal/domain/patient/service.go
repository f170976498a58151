package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/renalink/renalink/internal/platform/httperr"
)

var validTracks = map[string]bool{
	TrackCCM: true,
	TrackPCM: true,
}

var validStatuses = map[string]bool{
	StatusActive:     true,
	StatusPaused:     true,
	StatusDischarged: true,
}

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

func (s *Service) Enroll(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return httperr.Validationf("name is required")
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return httperr.Validationf("unknown timezone %q", p.Timezone)
	}
	if p.BillingTrack == "" {
		p.BillingTrack = TrackCCM
	}
	if !validTracks[p.BillingTrack] {
		return httperr.Validationf("invalid billing track %q", p.BillingTrack)
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if !validStatuses[p.Status] {
		return httperr.Validationf("invalid status %q", p.Status)
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, httperr.NotFoundf("patient %s not found", id)
	}
	return p, err
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return httperr.Validationf("name is required")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return httperr.Validationf("unknown timezone %q", p.Timezone)
	}
	if !validTracks[p.BillingTrack] {
		return httperr.Validationf("invalid billing track %q", p.BillingTrack)
	}
	if !validStatuses[p.Status] {
		return httperr.Validationf("invalid status %q", p.Status)
	}
	err := s.patients.Update(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return httperr.NotFoundf("patient %s not found", p.ID)
	}
	return err
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Patient, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, httperr.Validationf("invalid status %q", status)
	}
	return s.patients.List(ctx, status, limit, offset)
}
