package timeentry

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/platform/auth"
	"github.com/renalink/renalink/internal/platform/httperr"
)

type mockEntryRepo struct {
	store     map[uuid.UUID]*TimeEntry
	insertErr error
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{store: make(map[uuid.UUID]*TimeEntry)}
}

func (m *mockEntryRepo) Insert(_ context.Context, te *TimeEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	te.ID = uuid.New()
	now := time.Now().UTC()
	te.CreatedAt = now
	te.UpdatedAt = now
	cp := *te
	m.store[te.ID] = &cp
	return nil
}

func (m *mockEntryRepo) GetByID(_ context.Context, id uuid.UUID) (*TimeEntry, error) {
	te, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *te
	return &cp, nil
}

func (m *mockEntryRepo) Update(_ context.Context, te *TimeEntry) error {
	stored, ok := m.store[te.ID]
	if !ok {
		return ErrNotFound
	}
	te.UpdatedAt = time.Now().UTC()
	stored.Activity = te.Activity
	stored.Minutes = te.Minutes
	stored.PerformedAt = te.PerformedAt
	stored.Note = te.Note
	stored.UpdatedAt = te.UpdatedAt
	return nil
}

func (m *mockEntryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockEntryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*TimeEntry, int, error) {
	var out []*TimeEntry
	for _, te := range m.store {
		if te.PatientID != patientID {
			continue
		}
		if !from.IsZero() && te.PerformedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !te.PerformedAt.Before(to) {
			continue
		}
		cp := *te
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PerformedAt.After(out[j].PerformedAt) })
	return out, len(out), nil
}

func newTestService() (*Service, *mockEntryRepo) {
	repo := newMockEntryRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func validRequest() EntryRequest {
	return EntryRequest{
		Activity:    ActivityDataReview,
		Minutes:     25,
		PerformedAt: time.Now().UTC().Add(-2 * time.Hour),
		Note:        "Reviewed weight and BP trends",
	}
}

func TestServiceCreate(t *testing.T) {
	svc, repo := newTestService()
	pid := uuid.New()

	te, err := svc.Create(context.Background(), pid, "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if te.ID == uuid.Nil {
		t.Error("id not assigned")
	}
	if te.PatientID != pid || te.ClinicianID != "dr-chen" {
		t.Errorf("attribution = (%s, %s)", te.PatientID, te.ClinicianID)
	}
	if te.PerformerType != PerformerPhysician {
		t.Errorf("performerType = %s, want %s", te.PerformerType, PerformerPhysician)
	}
	if len(repo.store) != 1 {
		t.Errorf("stored entries = %d, want 1", len(repo.store))
	}
}

func TestServiceCreateStaffRole(t *testing.T) {
	svc, _ := newTestService()

	te, err := svc.Create(context.Background(), uuid.New(), "nurse-diaz", auth.RoleClinicalStaff, validRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if te.PerformerType != PerformerClinicalStaff {
		t.Errorf("performerType = %s, want %s", te.PerformerType, PerformerClinicalStaff)
	}
}

func TestServiceCreateRejectsServiceRole(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.Create(context.Background(), uuid.New(), "sync-job", auth.RoleService, validRequest())
	if !httperr.IsKind(err, httperr.KindForbidden) {
		t.Errorf("error = %v, want forbidden", err)
	}
	if len(repo.store) != 0 {
		t.Errorf("stored entries = %d, want 0", len(repo.store))
	}
}

func TestServiceCreateRequiresActor(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), uuid.New(), "", auth.RolePhysician, validRequest())
	if !httperr.IsKind(err, httperr.KindValidationFailed) {
		t.Errorf("error = %v, want validation failure", err)
	}
}

func TestServiceCreateDefaultsPerformedAt(t *testing.T) {
	svc, _ := newTestService()
	req := validRequest()
	req.PerformedAt = time.Time{}

	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if time.Since(te.PerformedAt) > time.Minute {
		t.Errorf("performedAt = %v, want roughly now", te.PerformedAt)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name   string
		mutate func(*EntryRequest)
	}{
		{"unknown activity", func(r *EntryRequest) { r.Activity = "paperwork" }},
		{"empty activity", func(r *EntryRequest) { r.Activity = "" }},
		{"zero minutes", func(r *EntryRequest) { r.Minutes = 0 }},
		{"negative minutes", func(r *EntryRequest) { r.Minutes = -10 }},
		{"over two hours", func(r *EntryRequest) { r.Minutes = 121 }},
		{"future performedAt", func(r *EntryRequest) { r.PerformedAt = now.Add(2 * time.Hour) }},
		{"beyond look-back window", func(r *EntryRequest) { r.PerformedAt = now.Add(-8 * 24 * time.Hour) }},
		{"oversized note", func(r *EntryRequest) {
			long := make([]byte, maxNoteLength+1)
			for i := range long {
				long[i] = 'x'
			}
			r.Note = string(long)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService()
			req := validRequest()
			tc.mutate(&req)

			_, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, req)
			if !httperr.IsKind(err, httperr.KindValidationFailed) {
				t.Errorf("error = %v, want validation failure", err)
			}
			if len(repo.store) != 0 {
				t.Errorf("stored entries = %d, want 0", len(repo.store))
			}
		})
	}
}

func TestServiceUpdateByAuthor(t *testing.T) {
	svc, repo := newTestService()
	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := validRequest()
	req.Activity = ActivityPatientCall
	req.Minutes = 40

	updated, err := svc.Update(context.Background(), te.ID, "dr-chen", req)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Activity != ActivityPatientCall || updated.Minutes != 40 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.PerformerType != PerformerPhysician {
		t.Error("performerType must survive updates")
	}
	if stored := repo.store[te.ID]; stored.Minutes != 40 {
		t.Errorf("stored minutes = %d, want 40", stored.Minutes)
	}
}

func TestServiceUpdateByOtherClinician(t *testing.T) {
	svc, repo := newTestService()
	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := validRequest()
	req.Minutes = 60
	_, err = svc.Update(context.Background(), te.ID, "dr-osei", req)
	if !httperr.IsKind(err, httperr.KindForbidden) {
		t.Errorf("error = %v, want forbidden", err)
	}
	if stored := repo.store[te.ID]; stored.Minutes != 25 {
		t.Error("entry must be untouched")
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), uuid.New(), "dr-chen", validRequest())
	if !httperr.IsKind(err, httperr.KindNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestServiceUpdateValidation(t *testing.T) {
	svc, _ := newTestService()
	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := validRequest()
	req.Minutes = 500
	if _, err := svc.Update(context.Background(), te.ID, "dr-chen", req); !httperr.IsKind(err, httperr.KindValidationFailed) {
		t.Errorf("error = %v, want validation failure", err)
	}
}

func TestServiceDelete(t *testing.T) {
	svc, repo := newTestService()
	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), te.ID, "dr-chen"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.store) != 0 {
		t.Errorf("stored entries = %d, want 0", len(repo.store))
	}
}

func TestServiceDeleteByOtherClinician(t *testing.T) {
	svc, repo := newTestService()
	te, err := svc.Create(context.Background(), uuid.New(), "dr-chen", auth.RolePhysician, validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), te.ID, "nurse-diaz"); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Errorf("error = %v, want forbidden", err)
	}
	if len(repo.store) != 1 {
		t.Error("entry must be untouched")
	}
}

func TestServiceDeleteNotFound(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.Delete(context.Background(), uuid.New(), "dr-chen"); !httperr.IsKind(err, httperr.KindNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestServiceListByPatientWindow(t *testing.T) {
	svc, _ := newTestService()
	pid := uuid.New()
	now := time.Now().UTC()

	for _, age := range []time.Duration{time.Hour, 26 * time.Hour, 50 * time.Hour} {
		req := validRequest()
		req.PerformedAt = now.Add(-age)
		if _, err := svc.Create(context.Background(), pid, "dr-chen", auth.RolePhysician, req); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	entries, total, err := svc.ListByPatient(context.Background(), pid, now.Add(-48*time.Hour), now, 50, 0)
	if err != nil {
		t.Fatalf("ListByPatient() error = %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Errorf("list = %d/%d, want 2/2", len(entries), total)
	}

	all, total, err := svc.ListByPatient(context.Background(), pid, time.Time{}, time.Time{}, 50, 0)
	if err != nil {
		t.Fatalf("ListByPatient() error = %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Errorf("unbounded list = %d/%d, want 3/3", len(all), total)
	}
}
