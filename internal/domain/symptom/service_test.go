package symptom

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/interaction"
	"github.com/renalink/renalink/internal/platform/db"
	"github.com/renalink/renalink/internal/platform/httperr"
)

type mockCheckInRepo struct {
	checkIns []*CheckIn
}

func (m *mockCheckInRepo) Insert(_ context.Context, ci *CheckIn) error {
	ci.ID = uuid.New()
	ci.CreatedAt = time.Now()
	m.checkIns = append(m.checkIns, ci)
	return nil
}

func (m *mockCheckInRepo) LatestBefore(_ context.Context, patientID uuid.UUID, symptom string, before time.Time) (*CheckIn, error) {
	var candidates []*CheckIn
	for _, ci := range m.checkIns {
		if ci.PatientID == patientID && ci.Symptom == symptom && ci.ReportedAt.Before(before) {
			candidates = append(candidates, ci)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReportedAt.After(candidates[j].ReportedAt)
	})
	return candidates[0], nil
}

func (m *mockCheckInRepo) ListByPatient(_ context.Context, patientID uuid.UUID, symptom string, limit, offset int) ([]*CheckIn, int, error) {
	var r []*CheckIn
	for _, ci := range m.checkIns {
		if ci.PatientID != patientID {
			continue
		}
		if symptom != "" && ci.Symptom != symptom {
			continue
		}
		r = append(r, ci)
	}
	return r, len(r), nil
}

type mockInteractionRepo struct {
	records []*interaction.Log
}

func (m *mockInteractionRepo) Record(_ context.Context, l *interaction.Log) error {
	l.ID = uuid.New()
	m.records = append(m.records, l)
	return nil
}

func (m *mockInteractionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*interaction.Log, int, error) {
	return nil, 0, nil
}

type captureEvaluator struct {
	calls []struct{ previous, current *CheckIn }
}

func (e *captureEvaluator) CheckInRecorded(_ context.Context, previous, current *CheckIn) {
	e.calls = append(e.calls, struct{ previous, current *CheckIn }{previous, current})
}

func newTestService() (*Service, *mockCheckInRepo, *mockInteractionRepo, *captureEvaluator) {
	checkIns := &mockCheckInRepo{}
	interactions := &mockInteractionRepo{}
	evaluator := &captureEvaluator{}
	passthrough := db.Runner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	})
	svc := NewService(checkIns, interactions, passthrough, zerolog.Nop())
	svc.SetEvaluator(evaluator)
	return svc, checkIns, interactions, evaluator
}

func TestRecord_FirstCheckIn(t *testing.T) {
	svc, repo, interactions, evaluator := newTestService()
	pid := uuid.New()

	ci, err := svc.Record(context.Background(), pid, CheckInRequest{
		Symptom:    "Swelling",
		Severity:   4,
		ReportedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ci.Symptom != "swelling" {
		t.Errorf("symptom = %q, want lowercased swelling", ci.Symptom)
	}
	if len(repo.checkIns) != 1 {
		t.Errorf("stored check-ins = %d, want 1", len(repo.checkIns))
	}
	if len(interactions.records) != 1 || interactions.records[0].Kind != interaction.KindSymptomCheckIn {
		t.Error("expected one symptom interaction record")
	}
	if len(evaluator.calls) != 1 {
		t.Fatalf("evaluator calls = %d, want 1", len(evaluator.calls))
	}
	if evaluator.calls[0].previous != nil {
		t.Error("first check-in has no previous")
	}
}

func TestRecord_PassesPreviousCheckIn(t *testing.T) {
	svc, _, _, evaluator := newTestService()
	pid := uuid.New()
	base := time.Now().Add(-24 * time.Hour)

	svc.Record(context.Background(), pid, CheckInRequest{Symptom: "swelling", Severity: 3, ReportedAt: base})
	svc.Record(context.Background(), pid, CheckInRequest{Symptom: "swelling", Severity: 6, ReportedAt: base.Add(12 * time.Hour)})

	if len(evaluator.calls) != 2 {
		t.Fatalf("evaluator calls = %d, want 2", len(evaluator.calls))
	}
	second := evaluator.calls[1]
	if second.previous == nil {
		t.Fatal("expected previous check-in on second call")
	}
	if second.previous.Severity != 3 || second.current.Severity != 6 {
		t.Errorf("severities = %d -> %d, want 3 -> 6", second.previous.Severity, second.current.Severity)
	}
}

func TestRecord_PreviousIsSameSymptomOnly(t *testing.T) {
	svc, _, _, evaluator := newTestService()
	pid := uuid.New()
	base := time.Now().Add(-24 * time.Hour)

	svc.Record(context.Background(), pid, CheckInRequest{Symptom: "fatigue", Severity: 5, ReportedAt: base})
	svc.Record(context.Background(), pid, CheckInRequest{Symptom: "swelling", Severity: 2, ReportedAt: base.Add(time.Hour)})

	if evaluator.calls[1].previous != nil {
		t.Error("check-ins for different symptoms are not consecutive")
	}
}

func TestRecord_DefaultsReportedAtToNow(t *testing.T) {
	svc, _, _, _ := newTestService()

	ci, err := svc.Record(context.Background(), uuid.New(), CheckInRequest{Symptom: "nausea", Severity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(ci.ReportedAt) > time.Minute {
		t.Error("expected reportedAt to default to now")
	}
}

func TestRecord_ValidationFailures(t *testing.T) {
	svc, _, _, _ := newTestService()
	pid := uuid.New()
	at := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		pid  uuid.UUID
		req  CheckInRequest
	}{
		{"missing patient", uuid.Nil, CheckInRequest{Symptom: "swelling", Severity: 3, ReportedAt: at}},
		{"missing symptom", pid, CheckInRequest{Severity: 3, ReportedAt: at}},
		{"severity too low", pid, CheckInRequest{Symptom: "swelling", Severity: -1, ReportedAt: at}},
		{"severity too high", pid, CheckInRequest{Symptom: "swelling", Severity: 11, ReportedAt: at}},
		{"future reportedAt", pid, CheckInRequest{Symptom: "swelling", Severity: 3, ReportedAt: time.Now().Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.pid, tt.req)
			if !httperr.IsKind(err, httperr.KindValidationFailed) {
				t.Errorf("kind = %v, want validation_failed", httperr.KindOf(err))
			}
		})
	}
}
