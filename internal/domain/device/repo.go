package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no connection matches the lookup.
	ErrNotFound = errors.New("device connection not found")
	// ErrDuplicateAccount is returned when the (vendor, vendorUserID) pair
	// is already registered.
	ErrDuplicateAccount = errors.New("vendor account already connected")
	// ErrStatusConflict is returned when a guarded status transition found
	// the row in a different state than the caller observed.
	ErrStatusConflict = errors.New("device connection status changed")
)

type Repository interface {
	Insert(ctx context.Context, c *Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Connection, error)
	// ListSyncable returns every active connection, oldest cursor first.
	ListSyncable(ctx context.Context) ([]*Connection, error)
	// UpdateStatus moves id from one status to another. The from guard
	// keeps a concurrent transition from being silently overwritten.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*Connection, error)
	// CommitCursor records a completed pull. The cursor only moves forward.
	CommitCursor(ctx context.Context, id uuid.UUID, syncedAt time.Time) error
}
