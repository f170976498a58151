package timeentry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no time entry matches the lookup.
var ErrNotFound = errors.New("time entry not found")

type Repository interface {
	Insert(ctx context.Context, te *TimeEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimeEntry, error)
	Update(ctx context.Context, te *TimeEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient returns entries newest-first, optionally bounded by
	// [from, to) on performedAt (zero time = unbounded).
	ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*TimeEntry, int, error)
}
