package labresult

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/interaction"
	"github.com/renalink/renalink/internal/platform/db"
	"github.com/renalink/renalink/internal/platform/httperr"
)

const futureGrace = 5 * time.Minute

var validFlags = map[string]bool{
	FlagNormal:   true,
	FlagAbnormal: true,
	FlagCritical: true,
}

type RecordRequest struct {
	PatientID  uuid.UUID `json:"patientId"`
	TestCode   string    `json:"testCode"`
	TestName   string    `json:"testName"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Flag       string    `json:"flag"`
	ResultedAt time.Time `json:"resultedAt"`
}

// Evaluator reacts to a recorded lab result after its transaction has
// committed.
type Evaluator interface {
	LabResultReceived(ctx context.Context, lr *LabResult)
}

type Service struct {
	labs         Repository
	interactions interaction.Repository
	run          db.Runner
	evaluator    Evaluator
	logger       zerolog.Logger
}

func NewService(labs Repository, interactions interaction.Repository, run db.Runner, logger zerolog.Logger) *Service {
	return &Service{
		labs:         labs,
		interactions: interactions,
		run:          run,
		logger:       logger.With().Str("component", "labresult").Logger(),
	}
}

// SetEvaluator wires the alert engine in after construction. The engine
// depends on this package, so it cannot be a constructor argument.
func (s *Service) SetEvaluator(e Evaluator) {
	s.evaluator = e
}

func (s *Service) Record(ctx context.Context, req RecordRequest) (*LabResult, error) {
	lr, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	err = s.run(ctx, func(ctx context.Context) error {
		if err := s.labs.Insert(ctx, lr); err != nil {
			return err
		}
		return s.interactions.Record(ctx, &interaction.Log{
			PatientID:  lr.PatientID,
			Kind:       interaction.KindLabResult,
			RefID:      &lr.ID,
			OccurredAt: lr.ResultedAt,
		})
	})
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "record lab result", err)
	}

	s.logger.Info().
		Str("patient_id", lr.PatientID.String()).
		Str("test_code", lr.TestCode).
		Str("flag", lr.Flag).
		Msg("lab result recorded")

	if s.evaluator != nil {
		s.evaluator.LabResultReceived(ctx, lr)
	}
	return lr, nil
}

func (s *Service) validate(req RecordRequest) (*LabResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, httperr.Validationf("patientId is required")
	}
	if req.TestCode == "" {
		return nil, httperr.Validationf("testCode is required")
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return nil, httperr.Validationf("value must be a finite number")
	}
	flag := req.Flag
	if flag == "" {
		flag = FlagNormal
	}
	if !validFlags[flag] {
		return nil, httperr.Validationf("flag must be one of normal, abnormal, critical")
	}
	if req.ResultedAt.IsZero() {
		return nil, httperr.Validationf("resultedAt is required")
	}
	if req.ResultedAt.After(time.Now().Add(futureGrace)) {
		return nil, httperr.Validationf("resultedAt must not be in the future")
	}
	return &LabResult{
		PatientID:  req.PatientID,
		TestCode:   req.TestCode,
		TestName:   req.TestName,
		Value:      req.Value,
		Unit:       req.Unit,
		Flag:       flag,
		ResultedAt: req.ResultedAt.UTC(),
	}, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	results, total, err := s.labs.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, httperr.Wrap(httperr.KindInternal, "list lab results", err)
	}
	if results == nil {
		results = []*LabResult{}
	}
	return results, total, nil
}
