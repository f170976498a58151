package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageRepository reads the raw billing inputs. Both queries run at request
// time against the source tables; there is no materialized state to refresh
// or invalidate.
type UsageRepository interface {
	// DeviceDays counts distinct calendar dates in the given IANA timezone
	// carrying at least one non-manual measurement in [from, to).
	DeviceDays(ctx context.Context, patientID uuid.UUID, timezone string, from, to time.Time) (int, error)
	// MinuteTotals sums time-entry minutes in [from, to), grouped by
	// (performerType, activity).
	MinuteTotals(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MinuteBucket, error)
}
