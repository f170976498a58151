package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("alert not found")
	// ErrNotOpen reports an acknowledge/dismiss attempt on an alert whose
	// status already left OPEN.
	ErrNotOpen = errors.New("alert is not open")
)

type Repository interface {
	// UpsertOpen creates an OPEN alert for (patient, rule), or updates the
	// already-open one's inputs, severity, summary, and triggeredAt in
	// place. Escalation state and status are never touched. On return the
	// alert carries the stored row's id and escalation fields; created
	// reports whether a new row was inserted.
	UpsertOpen(ctx context.Context, a *Alert) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Alert, int, error)
	// ListEscalatable selects OPEN alerts below the level cap whose last
	// transition (triggeredAt at level 0, escalatedAt at level 1) is older
	// than the cutoff.
	ListEscalatable(ctx context.Context, cutoff time.Time) ([]*Alert, error)
	UpdateEscalation(ctx context.Context, id uuid.UUID, level int, escalatedAt, lastNotifiedAt time.Time) error
	// Acknowledge and Dismiss require the alert to be OPEN; they return
	// ErrNotOpen otherwise.
	Acknowledge(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*Alert, error)
	Dismiss(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*Alert, error)
	CountOpen(ctx context.Context) (int64, error)
}
