package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/patient"
	"github.com/renalink/renalink/internal/domain/timeentry"
	"github.com/renalink/renalink/internal/platform/httperr"
)

type mockUsageRepo struct {
	deviceDays int
	buckets    []MinuteBucket
	deviceErr  error
	minutesErr error

	gotTimezone string
	gotFrom     time.Time
	gotTo       time.Time
}

func (m *mockUsageRepo) DeviceDays(_ context.Context, _ uuid.UUID, timezone string, from, to time.Time) (int, error) {
	m.gotTimezone = timezone
	m.gotFrom = from
	m.gotTo = to
	if m.deviceErr != nil {
		return 0, m.deviceErr
	}
	return m.deviceDays, nil
}

func (m *mockUsageRepo) MinuteTotals(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]MinuteBucket, error) {
	if m.minutesErr != nil {
		return nil, m.minutesErr
	}
	return m.buckets, nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: map[uuid.UUID]*patient.Patient{}}
}

func (m *mockPatientRepo) Create(_ context.Context, p *patient.Patient) error {
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *patient.Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return patient.ErrNotFound
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, _ string, _, _ int) ([]*patient.Patient, int, error) {
	out := make([]*patient.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type billingEnv struct {
	svc       *Service
	usage     *mockUsageRepo
	patients  *mockPatientRepo
	patientID uuid.UUID
}

func newBillingEnv(t *testing.T, track, timezone string) *billingEnv {
	t.Helper()
	usage := &mockUsageRepo{}
	patients := newMockPatientRepo()
	id := uuid.New()
	patients.patients[id] = &patient.Patient{
		ID:           id,
		Name:         "Rosa Delgado",
		Timezone:     timezone,
		BillingTrack: track,
		Status:       "active",
	}
	return &billingEnv{
		svc:       NewService(usage, patients, zerolog.Nop()),
		usage:     usage,
		patients:  patients,
		patientID: id,
	}
}

func physicianBucket(activity string, minutes int) MinuteBucket {
	return MinuteBucket{PerformerType: timeentry.PerformerPhysician, Activity: activity, Minutes: minutes}
}

func staffBucket(activity string, minutes int) MinuteBucket {
	return MinuteBucket{PerformerType: timeentry.PerformerClinicalStaff, Activity: activity, Minutes: minutes}
}

func requireCode(t *testing.T, sum *BillingPeriodSummary, code string) *CodeEligibility {
	t.Helper()
	c := sum.Code(code)
	if c == nil {
		t.Fatalf("summary has no entry for code %s", code)
	}
	return c
}

func TestSummaryDeviceSupplyThreshold(t *testing.T) {
	cases := []struct {
		name     string
		days     int
		eligible bool
		units    int
	}{
		{"at threshold", 16, true, 1},
		{"above threshold", 18, true, 1},
		{"below threshold", 14, false, 0},
		{"no transmissions", 0, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newBillingEnv(t, patient.TrackCCM, "UTC")
			env.usage.deviceDays = tc.days

			sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			c := requireCode(t, sum, CodeDeviceSupply)
			if c.Eligible != tc.eligible || c.Units != tc.units {
				t.Errorf("99454 = eligible %v units %d, want %v/%d", c.Eligible, c.Units, tc.eligible, tc.units)
			}
			if sum.DeviceDays != tc.days {
				t.Errorf("DeviceDays = %d, want %d", sum.DeviceDays, tc.days)
			}
		})
	}
}

func TestSummaryStaffTimeLadder(t *testing.T) {
	cases := []struct {
		name       string
		minutes    int
		baseUnits  int
		addOnUnits int
	}{
		{"under base", 19, 0, 0},
		{"base exactly", 20, 1, 0},
		{"one add-on", 45, 1, 1},
		{"two add-ons", 65, 1, 2},
		{"capped", 85, 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newBillingEnv(t, patient.TrackCCM, "UTC")
			env.usage.buckets = []MinuteBucket{staffBucket(timeentry.ActivityPatientCall, tc.minutes)}

			sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			base := requireCode(t, sum, CodeStaffTimeBase)
			addOn := requireCode(t, sum, CodeStaffTimeAddOn)
			if base.Units != tc.baseUnits {
				t.Errorf("99457 units = %d, want %d", base.Units, tc.baseUnits)
			}
			if base.Eligible != (tc.baseUnits > 0) {
				t.Errorf("99457 eligible = %v", base.Eligible)
			}
			if addOn.Units != tc.addOnUnits {
				t.Errorf("99458 units = %d, want %d", addOn.Units, tc.addOnUnits)
			}
			if addOn.Eligible != (tc.addOnUnits > 0) {
				t.Errorf("99458 eligible = %v", addOn.Eligible)
			}
		})
	}
}

func TestSummaryCCMPhysicianLadder(t *testing.T) {
	cases := []struct {
		name       string
		minutes    int
		baseUnits  int
		addOnUnits int
	}{
		{"under base", 29, 0, 0},
		{"base exactly", 30, 1, 0},
		{"one add-on", 60, 1, 1},
		{"two add-ons", 90, 1, 2},
		{"capped", 150, 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newBillingEnv(t, patient.TrackCCM, "UTC")
			env.usage.buckets = []MinuteBucket{physicianBucket(timeentry.ActivityDataReview, tc.minutes)}

			sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			base := requireCode(t, sum, CodeCCMPhysicianBase)
			addOn := requireCode(t, sum, CodeCCMPhysicianAddOn)
			if base.Units != tc.baseUnits || addOn.Units != tc.addOnUnits {
				t.Errorf("99491/99437 units = %d/%d, want %d/%d",
					base.Units, addOn.Units, tc.baseUnits, tc.addOnUnits)
			}
			if sum.Code(CodePCMPhysicianBase) != nil {
				t.Error("CCM summary should not carry PCM codes")
			}
		})
	}
}

func TestSummaryPCMPhysicianPriority(t *testing.T) {
	env := newBillingEnv(t, patient.TrackPCM, "UTC")
	env.usage.buckets = []MinuteBucket{
		physicianBucket(timeentry.ActivityDataReview, 35),
		staffBucket(timeentry.ActivityPatientCall, 40),
	}

	sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	phys := requireCode(t, sum, CodePCMPhysicianBase)
	if !phys.Eligible || phys.Units != 1 {
		t.Errorf("99424 = eligible %v units %d, want eligible/1", phys.Eligible, phys.Units)
	}
	staffBase := requireCode(t, sum, CodePCMStaffBase)
	if staffBase.Eligible || staffBase.Units != 0 {
		t.Errorf("99426 = eligible %v units %d, want locked out", staffBase.Eligible, staffBase.Units)
	}
	if staffBase.Basis != "physician time takes precedence for the period" {
		t.Errorf("99426 basis = %q", staffBase.Basis)
	}

	// The RPM staff ladder is track-independent and stays live.
	rpmStaff := requireCode(t, sum, CodeStaffTimeBase)
	if !rpmStaff.Eligible {
		t.Error("99457 should remain eligible on the PCM track")
	}
	if sum.Code(CodeCCMPhysicianBase) != nil {
		t.Error("PCM summary should not carry CCM codes")
	}
}

func TestSummaryPCMStaffFamilyWithoutPhysician(t *testing.T) {
	env := newBillingEnv(t, patient.TrackPCM, "UTC")
	env.usage.buckets = []MinuteBucket{
		physicianBucket(timeentry.ActivityDataReview, 20),
		staffBucket(timeentry.ActivityCareCoordination, 70),
	}

	sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if c := requireCode(t, sum, CodePCMPhysicianBase); c.Eligible {
		t.Error("99424 should not be eligible at 20 physician minutes")
	}
	staffBase := requireCode(t, sum, CodePCMStaffBase)
	if !staffBase.Eligible || staffBase.Units != 1 {
		t.Errorf("99426 = eligible %v units %d, want eligible/1", staffBase.Eligible, staffBase.Units)
	}
	if addOn := requireCode(t, sum, CodePCMStaffAddOn); addOn.Units != 1 {
		t.Errorf("99427 units = %d, want 1 for 70 staff minutes", addOn.Units)
	}
}

func TestSummaryMinutePartition(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "UTC")
	env.usage.buckets = []MinuteBucket{
		physicianBucket(timeentry.ActivityDataReview, 25),
		staffBucket(timeentry.ActivityDataReview, 15),
		staffBucket(timeentry.ActivityPatientCall, 30),
	}

	sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.PhysicianMinutes != 25 || sum.StaffMinutes != 45 || sum.TotalMinutes != 70 {
		t.Errorf("partition = %d/%d/%d, want 25/45/70",
			sum.PhysicianMinutes, sum.StaffMinutes, sum.TotalMinutes)
	}
	if got := sum.MinutesByActivity[timeentry.ActivityDataReview]; got != 40 {
		t.Errorf("data_review minutes = %d, want 40 across both performers", got)
	}
	if got := sum.MinutesByActivity[timeentry.ActivityPatientCall]; got != 30 {
		t.Errorf("patient_call minutes = %d, want 30", got)
	}
	if len(sum.Buckets) != 3 {
		t.Errorf("buckets = %d, want 3", len(sum.Buckets))
	}
}

func TestSummaryMonthBoundsUsePatientTimezone(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "America/New_York")

	sum, err := env.svc.Summary(context.Background(), env.patientID, "2026-03")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	loc, _ := time.LoadLocation("America/New_York")
	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, loc)
	wantEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, loc)
	if !sum.PeriodStart.Equal(wantStart) || !sum.PeriodEnd.Equal(wantEnd) {
		t.Errorf("period = [%v, %v), want [%v, %v)", sum.PeriodStart, sum.PeriodEnd, wantStart, wantEnd)
	}
	if sum.Month != "2026-03" {
		t.Errorf("Month = %q, want 2026-03", sum.Month)
	}
	if env.usage.gotTimezone != "America/New_York" {
		t.Errorf("usage query timezone = %q", env.usage.gotTimezone)
	}
	if !env.usage.gotFrom.Equal(wantStart) || !env.usage.gotTo.Equal(wantEnd) {
		t.Errorf("usage window = [%v, %v)", env.usage.gotFrom, env.usage.gotTo)
	}
}

func TestSummaryDefaultsToCurrentMonth(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "UTC")

	sum, err := env.svc.Summary(context.Background(), env.patientID, "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if want := time.Now().UTC().Format("2006-01"); sum.Month != want {
		t.Errorf("Month = %q, want current month %q", sum.Month, want)
	}
}

func TestSummaryRejectsBadMonth(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "UTC")

	for _, month := range []string{"March-2026", "2026-3", "2026-07-01", "202607"} {
		if _, err := env.svc.Summary(context.Background(), env.patientID, month); !httperr.IsKind(err, httperr.KindValidationFailed) {
			t.Errorf("month %q: err = %v, want validation error", month, err)
		}
	}
}

func TestSummaryPatientNotFound(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "UTC")

	_, err := env.svc.Summary(context.Background(), uuid.New(), "2026-07")
	if !httperr.IsKind(err, httperr.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSummaryUsageQueryFailure(t *testing.T) {
	env := newBillingEnv(t, patient.TrackCCM, "UTC")
	env.usage.deviceErr = context.DeadlineExceeded

	_, err := env.svc.Summary(context.Background(), env.patientID, "2026-07")
	if !httperr.IsKind(err, httperr.KindInternal) {
		t.Errorf("err = %v, want internal", err)
	}
}
