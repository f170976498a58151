package measurement

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/interaction"
	"github.com/renalink/renalink/internal/platform/db"
	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/internal/platform/telemetry"
)

// futureGrace absorbs device clock skew when rejecting future timestamps.
const futureGrace = 5 * time.Minute

// IngestRequest is the normalized submission from the API layer or the
// device-sync job.
type IngestRequest struct {
	PatientID  uuid.UUID `json:"patientId"`
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	MeasuredAt time.Time `json:"measuredAt"`
	Source     string    `json:"source"`
	ExternalID *string   `json:"externalId,omitempty"`
}

// IngestResult reports the stored reading. A duplicate is a success: the
// existing row comes back flagged, never an error.
type IngestResult struct {
	Measurement *Measurement `json:"measurement"`
	IsDuplicate bool         `json:"isDuplicate"`
}

// Evaluator reacts to an accepted measurement after its transaction has
// committed. Implementations isolate their own failures; evaluation can
// never undo or fail the ingestion.
type Evaluator interface {
	MeasurementAccepted(ctx context.Context, m *Measurement)
}

type Service struct {
	measurements Repository
	interactions interaction.Repository
	run          db.Runner
	evaluator    Evaluator
	tel          *telemetry.TelemetryProvider
	logger       zerolog.Logger
}

func NewService(measurements Repository, interactions interaction.Repository, run db.Runner, tel *telemetry.TelemetryProvider, logger zerolog.Logger) *Service {
	return &Service{
		measurements: measurements,
		interactions: interactions,
		run:          run,
		tel:          tel,
		logger:       logger,
	}
}

// SetEvaluator attaches the alert evaluator. Wired after construction
// because the evaluator needs this service's repository.
func (s *Service) SetEvaluator(ev Evaluator) { s.evaluator = ev }

// Ingest runs the pipeline: validate, convert to canonical, dedup, persist
// the measurement and its interaction row atomically, then hand the new
// reading to the alert evaluator outside the transaction.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	m, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	var result *IngestResult
	if m.IsDeviceRecord() {
		result, err = s.ingestDevice(ctx, m)
	} else {
		result, err = s.ingestManual(ctx, m)
	}
	if err != nil {
		return nil, err
	}

	if result.IsDuplicate {
		return result, nil
	}

	s.tel.MeasurementIngested(m.Source, m.Type)
	if s.evaluator != nil {
		s.evaluator.MeasurementAccepted(ctx, result.Measurement)
	}
	return result, nil
}

func (s *Service) normalize(req IngestRequest) (*Measurement, error) {
	if req.PatientID == uuid.Nil {
		return nil, httperr.Validationf("patientId is required")
	}
	if !IsValidType(req.Type) {
		return nil, httperr.Validationf("unknown measurement type %q", req.Type)
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return nil, httperr.Validationf("value must be a finite number")
	}
	if req.MeasuredAt.IsZero() {
		return nil, httperr.Validationf("measuredAt is required")
	}
	if req.MeasuredAt.After(time.Now().Add(futureGrace)) {
		return nil, httperr.Validationf("measuredAt must not be in the future")
	}
	if req.Source == "" {
		req.Source = SourceManual
	}

	value, unit, err := Convert(req.Type, req.Value, req.Unit)
	if err != nil {
		if errors.Is(err, ErrUnsupportedUnit) {
			return nil, httperr.Wrap(httperr.KindUnsupportedUnit, err.Error(), err)
		}
		return nil, httperr.Wrap(httperr.KindValidationFailed, err.Error(), err)
	}

	m := &Measurement{
		PatientID:  req.PatientID,
		Type:       req.Type,
		Value:      value,
		Unit:       unit,
		Source:     req.Source,
		ExternalID: req.ExternalID,
		MeasuredAt: req.MeasuredAt.UTC(),
	}
	if req.Unit != "" && req.Unit != unit {
		input := req.Unit
		m.InputUnit = &input
	}
	return m, nil
}

// ingestDevice relies on the (source, externalId) uniqueness constraint:
// the insert statement itself resolves the race, so a re-sync of the same
// vendor record is idempotent.
func (s *Service) ingestDevice(ctx context.Context, m *Measurement) (*IngestResult, error) {
	var storedID uuid.UUID
	var created bool
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		storedID, created, err = s.measurements.InsertDeviceIdempotent(ctx, m)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.interactions.Record(ctx, &interaction.Log{
			PatientID:  m.PatientID,
			Kind:       interaction.KindMeasurement,
			RefID:      &m.ID,
			OccurredAt: m.MeasuredAt,
		})
	})
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "store device measurement", err)
	}

	if created {
		return &IngestResult{Measurement: m}, nil
	}

	existing, err := s.measurements.GetByID(ctx, storedID)
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "load duplicate measurement", err)
	}
	s.tel.DuplicateSkipped("device")
	s.logger.Debug().
		Str("patient_id", m.PatientID.String()).
		Str("source", m.Source).
		Str("external_id", *m.ExternalID).
		Msg("device measurement re-delivered, returning existing row")
	return &IngestResult{Measurement: existing, IsDuplicate: true}, nil
}

// ingestManual guards the check-then-insert with an advisory lock on the
// (patient, type, time bucket) key so concurrent double-taps serialize.
func (s *Service) ingestManual(ctx context.Context, m *Measurement) (*IngestResult, error) {
	var result *IngestResult
	err := s.run(ctx, func(ctx context.Context) error {
		if err := s.measurements.AcquireDedupLock(ctx, DedupLockKey(m.PatientID, m.Type, m.MeasuredAt)); err != nil {
			return err
		}
		nearby, err := s.measurements.ListNear(ctx, m.PatientID, m.Type, m.MeasuredAt, ManualDedupWindow)
		if err != nil {
			return err
		}
		if dup := FindDuplicate(m, nearby); dup != nil {
			result = &IngestResult{Measurement: dup, IsDuplicate: true}
			return nil
		}
		if err := s.measurements.Insert(ctx, m); err != nil {
			return err
		}
		if err := s.interactions.Record(ctx, &interaction.Log{
			PatientID:  m.PatientID,
			Kind:       interaction.KindMeasurement,
			RefID:      &m.ID,
			OccurredAt: m.MeasuredAt,
		}); err != nil {
			return err
		}
		result = &IngestResult{Measurement: m}
		return nil
	})
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "store measurement", err)
	}

	if result.IsDuplicate {
		s.tel.DuplicateSkipped("manual")
		s.logger.Debug().
			Str("patient_id", m.PatientID.String()).
			Str("type", m.Type).
			Msg("manual measurement within dedup window, returning existing row")
	}
	return result, nil
}

// ListByPatient returns stored readings newest-first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, mtype string, from, to time.Time, limit, offset int) ([]*Measurement, int, error) {
	if mtype != "" && !IsValidType(mtype) {
		return nil, 0, httperr.Validationf("unknown measurement type %q", mtype)
	}
	return s.measurements.ListByPatient(ctx, patientID, mtype, from, to, limit, offset)
}

// Trend classifies the lookback window ending now for one type.
func (s *Service) Trend(ctx context.Context, patientID uuid.UUID, mtype string, lookback time.Duration) (Trend, error) {
	if !IsValidType(mtype) {
		return Trend{}, httperr.Validationf("unknown measurement type %q", mtype)
	}
	now := time.Now().UTC()
	series, err := s.measurements.ListForWindow(ctx, patientID, mtype, now.Add(-lookback), now)
	if err != nil {
		return Trend{}, err
	}
	return AnalyzeTrend(mtype, series), nil
}

// BPReadings pairs systolic and diastolic rows in [from, to].
func (s *Service) BPReadings(ctx context.Context, patientID uuid.UUID, from, to time.Time) (BPSeries, error) {
	systolic, err := s.measurements.ListForWindow(ctx, patientID, TypeBPSystolic, from, to)
	if err != nil {
		return BPSeries{}, err
	}
	diastolic, err := s.measurements.ListForWindow(ctx, patientID, TypeBPDiastolic, from, to)
	if err != nil {
		return BPSeries{}, err
	}
	return PairBloodPressure(systolic, diastolic), nil
}
