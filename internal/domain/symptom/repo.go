package symptom

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("check-in not found")

type Repository interface {
	Insert(ctx context.Context, ci *CheckIn) error
	// LatestBefore returns the most recent check-in for the same patient and
	// symptom reported strictly before the given instant, or ErrNotFound.
	LatestBefore(ctx context.Context, patientID uuid.UUID, symptom string, before time.Time) (*CheckIn, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, symptom string, limit, offset int) ([]*CheckIn, int, error)
}
