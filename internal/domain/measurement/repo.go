package measurement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no measurement matches the lookup.
var ErrNotFound = errors.New("measurement not found")

type Repository interface {
	// Insert stores a new reading. The caller has already run dedup.
	Insert(ctx context.Context, m *Measurement) error

	// InsertDeviceIdempotent inserts m unless a row with the same
	// (source, externalId) already exists. Returns the stored row's id and
	// whether this call created it; the uniqueness race is absorbed by the
	// statement, never surfaced as a constraint error.
	InsertDeviceIdempotent(ctx context.Context, m *Measurement) (uuid.UUID, bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Measurement, error)

	// ListForWindow returns readings of one type in [from, to], ordered by
	// MeasuredAt ascending. Serves trend analysis, BP pairing and the
	// weight-window alert rule.
	ListForWindow(ctx context.Context, patientID uuid.UUID, mtype string, from, to time.Time) ([]*Measurement, error)

	// ListByPatient returns readings newest-first, optionally filtered by
	// type and bounded by [from, to] (zero time = unbounded).
	ListByPatient(ctx context.Context, patientID uuid.UUID, mtype string, from, to time.Time, limit, offset int) ([]*Measurement, int, error)

	// ListNear returns readings of one patient and type within +-window of
	// at, any source. Dedup candidate query.
	ListNear(ctx context.Context, patientID uuid.UUID, mtype string, at time.Time, window time.Duration) ([]*Measurement, error)

	// AcquireDedupLock takes the transaction-scoped advisory lock for a
	// manual dedup bucket. Must run inside a transaction; the lock is
	// released on commit or rollback.
	AcquireDedupLock(ctx context.Context, key int64) error
}
