package symptom

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/interaction"
	"github.com/renalink/renalink/internal/platform/db"
	"github.com/renalink/renalink/internal/platform/httperr"
)

const futureGrace = 5 * time.Minute

type CheckInRequest struct {
	Symptom    string    `json:"symptom"`
	Severity   int       `json:"severity"`
	Note       string    `json:"note"`
	ReportedAt time.Time `json:"reportedAt"`
}

// Evaluator reacts to a recorded check-in after its transaction has
// committed. previous is nil when this is the first check-in for the
// symptom.
type Evaluator interface {
	CheckInRecorded(ctx context.Context, previous, current *CheckIn)
}

type Service struct {
	checkIns     Repository
	interactions interaction.Repository
	run          db.Runner
	evaluator    Evaluator
	logger       zerolog.Logger
}

func NewService(checkIns Repository, interactions interaction.Repository, run db.Runner, logger zerolog.Logger) *Service {
	return &Service{
		checkIns:     checkIns,
		interactions: interactions,
		run:          run,
		logger:       logger.With().Str("component", "symptom").Logger(),
	}
}

// SetEvaluator wires the alert engine in after construction.
func (s *Service) SetEvaluator(e Evaluator) {
	s.evaluator = e
}

func (s *Service) Record(ctx context.Context, patientID uuid.UUID, req CheckInRequest) (*CheckIn, error) {
	if patientID == uuid.Nil {
		return nil, httperr.Validationf("patientId is required")
	}
	symptomName := strings.ToLower(strings.TrimSpace(req.Symptom))
	if symptomName == "" {
		return nil, httperr.Validationf("symptom is required")
	}
	if req.Severity < MinSeverity || req.Severity > MaxSeverity {
		return nil, httperr.Validationf("severity must be between %d and %d", MinSeverity, MaxSeverity)
	}
	reportedAt := req.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = time.Now()
	}
	if reportedAt.After(time.Now().Add(futureGrace)) {
		return nil, httperr.Validationf("reportedAt must not be in the future")
	}

	ci := &CheckIn{
		PatientID:  patientID,
		Symptom:    symptomName,
		Severity:   req.Severity,
		Note:       req.Note,
		ReportedAt: reportedAt.UTC(),
	}

	var previous *CheckIn
	err := s.run(ctx, func(ctx context.Context) error {
		prev, err := s.checkIns.LatestBefore(ctx, patientID, ci.Symptom, ci.ReportedAt)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		previous = prev
		if err := s.checkIns.Insert(ctx, ci); err != nil {
			return err
		}
		return s.interactions.Record(ctx, &interaction.Log{
			PatientID:  ci.PatientID,
			Kind:       interaction.KindSymptomCheckIn,
			RefID:      &ci.ID,
			OccurredAt: ci.ReportedAt,
		})
	})
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "record check-in", err)
	}

	s.logger.Info().
		Str("patient_id", ci.PatientID.String()).
		Str("symptom", ci.Symptom).
		Int("severity", ci.Severity).
		Msg("symptom check-in recorded")

	if s.evaluator != nil {
		s.evaluator.CheckInRecorded(ctx, previous, ci)
	}
	return ci, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, symptomName string, limit, offset int) ([]*CheckIn, int, error) {
	checkIns, total, err := s.checkIns.ListByPatient(ctx, patientID, strings.ToLower(symptomName), limit, offset)
	if err != nil {
		return nil, 0, httperr.Wrap(httperr.KindInternal, "list check-ins", err)
	}
	if checkIns == nil {
		checkIns = []*CheckIn{}
	}
	return checkIns, total, nil
}
