package device

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/patient"
	"github.com/renalink/renalink/internal/platform/httperr"
)

const maxVendorUserIDLength = 128

// ConnectRequest registers a vendor account for a patient.
type ConnectRequest struct {
	Vendor       string `json:"vendor"`
	VendorUserID string `json:"vendorUserId"`
}

type Service struct {
	connections Repository
	patients    patient.PatientRepository
	logger      zerolog.Logger
}

func NewService(connections Repository, patients patient.PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		connections: connections,
		patients:    patients,
		logger:      logger.With().Str("component", "device").Logger(),
	}
}

func (s *Service) Connect(ctx context.Context, patientID uuid.UUID, req ConnectRequest) (*Connection, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, httperr.NotFoundf("patient %s not found", patientID)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "load patient", err)
	}

	vendor := strings.TrimSpace(req.Vendor)
	if !IsValidVendor(vendor) {
		return nil, httperr.Validationf("vendor must be a lowercase slug, not %q", req.Vendor)
	}
	vendorUserID := strings.TrimSpace(req.VendorUserID)
	if vendorUserID == "" {
		return nil, httperr.Validationf("vendorUserId is required")
	}
	if len(vendorUserID) > maxVendorUserIDLength {
		return nil, httperr.Validationf("vendorUserId exceeds %d characters", maxVendorUserIDLength)
	}

	c := &Connection{
		PatientID:    patientID,
		Vendor:       vendor,
		VendorUserID: vendorUserID,
		Status:       StatusActive,
	}
	if err := s.connections.Insert(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, httperr.Newf(httperr.KindConstraintViolation,
				"vendor account %s/%s is already connected", vendor, vendorUserID)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "insert device connection", err)
	}

	s.logger.Info().
		Str("connection_id", c.ID.String()).
		Str("patient_id", patientID.String()).
		Str("vendor", vendor).
		Msg("device connection registered")
	return c, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Connection, error) {
	conns, err := s.connections.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "list device connections", err)
	}
	if conns == nil {
		conns = []*Connection{}
	}
	return conns, nil
}

func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return s.transition(ctx, id, StatusPaused, StatusActive)
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return s.transition(ctx, id, StatusActive, StatusPaused)
}

func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return s.transition(ctx, id, StatusRevoked, StatusActive, StatusPaused)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, allowedFrom ...string) (*Connection, error) {
	c, err := s.connections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, httperr.NotFoundf("device connection %s not found", id)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "load device connection", err)
	}

	from := ""
	for _, st := range allowedFrom {
		if c.Status == st {
			from = st
			break
		}
	}
	if from == "" {
		return nil, httperr.Newf(httperr.KindConstraintViolation,
			"cannot move a %s connection to %s", c.Status, to)
	}

	updated, err := s.connections.UpdateStatus(ctx, id, from, to)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, httperr.NotFoundf("device connection %s not found", id)
	case errors.Is(err, ErrStatusConflict):
		return nil, httperr.Newf(httperr.KindConstraintViolation,
			"device connection %s changed concurrently", id)
	case err != nil:
		return nil, httperr.Wrap(httperr.KindInternal, "update device connection", err)
	}

	s.logger.Info().
		Str("connection_id", id.String()).
		Str("from", from).
		Str("to", to).
		Msg("device connection status changed")
	return updated, nil
}
