package interaction

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Record(ctx context.Context, l *Log) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Log, int, error)
}
