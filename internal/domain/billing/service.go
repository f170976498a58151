package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/patient"
	"github.com/renalink/renalink/internal/domain/timeentry"
	"github.com/renalink/renalink/internal/platform/httperr"
)

type Service struct {
	usage    UsageRepository
	patients patient.PatientRepository
	logger   zerolog.Logger
}

func NewService(usage UsageRepository, patients patient.PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		usage:    usage,
		patients: patients,
		logger:   logger.With().Str("component", "billing").Logger(),
	}
}

// Summary computes the billing view for one patient and month. month is
// "YYYY-MM"; empty means the current month in the patient's timezone.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID, month string) (*BillingPeriodSummary, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, httperr.NotFoundf("patient %s not found", patientID)
		}
		return nil, httperr.Wrap(httperr.KindInternal, "load patient", err)
	}
	loc, err := p.Location()
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "resolve patient timezone", err)
	}

	start, end, err := monthBounds(month, loc)
	if err != nil {
		return nil, err
	}

	deviceDays, err := s.usage.DeviceDays(ctx, patientID, p.Timezone, start, end)
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "count device days", err)
	}
	buckets, err := s.usage.MinuteTotals(ctx, patientID, start, end)
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInternal, "sum minutes", err)
	}

	sum := &BillingPeriodSummary{
		PatientID:          p.ID,
		PatientName:        p.Name,
		Month:              start.Format("2006-01"),
		PeriodStart:        start,
		PeriodEnd:          end,
		Timezone:           p.Timezone,
		BillingTrack:       p.BillingTrack,
		DeviceDays:         deviceDays,
		DeviceDayThreshold: DeviceDayThreshold,
		MinutesByActivity:  map[string]int{},
		Buckets:            buckets,
	}
	if sum.Buckets == nil {
		sum.Buckets = []MinuteBucket{}
	}
	for _, b := range buckets {
		sum.TotalMinutes += b.Minutes
		sum.MinutesByActivity[b.Activity] += b.Minutes
		switch b.PerformerType {
		case timeentry.PerformerPhysician:
			sum.PhysicianMinutes += b.Minutes
		case timeentry.PerformerClinicalStaff:
			sum.StaffMinutes += b.Minutes
		}
	}
	sum.Codes = computeCodes(p.BillingTrack, deviceDays, sum.PhysicianMinutes, sum.StaffMinutes)
	return sum, nil
}

// monthBounds resolves "YYYY-MM" into the half-open month window in loc.
func monthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	var anchor time.Time
	if month == "" {
		anchor = time.Now().In(loc)
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return time.Time{}, time.Time{}, httperr.Validationf("month must be formatted YYYY-MM")
		}
		anchor = parsed
	}
	start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// computeCodes walks the ladders that apply to the patient's track. The
// device-supply code and the staff RPM ladder are track-independent; the
// physician minutes feed the CCM ladder or the PCM code family.
func computeCodes(track string, deviceDays, physicianMinutes, staffMinutes int) []CodeEligibility {
	codes := []CodeEligibility{deviceSupplyCode(deviceDays)}
	codes = append(codes, ladder(CodeStaffTimeBase, CodeStaffTimeAddOn, staffMinutes, StaffBaseMinutes, StaffAddOnBlock)...)

	switch track {
	case patient.TrackCCM:
		codes = append(codes, ladder(CodeCCMPhysicianBase, CodeCCMPhysicianAddOn, physicianMinutes, PhysicianBaseMinutes, PhysicianAddOnBlock)...)
	case patient.TrackPCM:
		codes = append(codes, pcmCodes(physicianMinutes, staffMinutes)...)
	}
	return codes
}

func deviceSupplyCode(days int) CodeEligibility {
	e := CodeEligibility{
		Code:     CodeDeviceSupply,
		Eligible: days >= DeviceDayThreshold,
		Basis:    fmt.Sprintf("%d device days in period (threshold %d)", days, DeviceDayThreshold),
	}
	if e.Eligible {
		e.Units = 1
	}
	return e
}

// ladder evaluates a base-plus-add-on minute ladder: the base code needs
// baseMin minutes, and every further full block adds one add-on unit up to
// the cap.
func ladder(baseCode, addOnCode string, minutes, baseMin, block int) []CodeEligibility {
	base := CodeEligibility{
		Code:     baseCode,
		Eligible: minutes >= baseMin,
		Basis:    fmt.Sprintf("%d min logged (base threshold %d min)", minutes, baseMin),
	}
	addOn := CodeEligibility{
		Code:  addOnCode,
		Basis: fmt.Sprintf("%d min logged (one unit per %d min beyond base, cap %d)", minutes, block, AddOnUnitCap),
	}
	if base.Eligible {
		base.Units = 1
		units := (minutes - baseMin) / block
		if units > AddOnUnitCap {
			units = AddOnUnitCap
		}
		addOn.Units = units
		addOn.Eligible = units > 0
	}
	return []CodeEligibility{base, addOn}
}

// pcmCodes applies the single-family rule: when the physician ladder is
// eligible it claims the period and the staff family is locked out.
func pcmCodes(physicianMinutes, staffMinutes int) []CodeEligibility {
	phys := ladder(CodePCMPhysicianBase, CodePCMPhysicianAddOn, physicianMinutes, PhysicianBaseMinutes, PhysicianAddOnBlock)
	staff := ladder(CodePCMStaffBase, CodePCMStaffAddOn, staffMinutes, PhysicianBaseMinutes, PhysicianAddOnBlock)
	if phys[0].Eligible {
		for i := range staff {
			staff[i].Eligible = false
			staff[i].Units = 0
			staff[i].Basis = "physician time takes precedence for the period"
		}
	}
	return append(phys, staff...)
}
