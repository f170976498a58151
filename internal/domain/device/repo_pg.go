package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renalink/renalink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type PgRepository struct{ pool *pgxpool.Pool }

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const connectionCols = `id, patient_id, vendor, vendor_user_id, status,
	last_synced_at, created_at, updated_at`

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.PatientID, &c.Vendor, &c.VendorUserID, &c.Status,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *PgRepository) Insert(ctx context.Context, c *Connection) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO device_connection (id, patient_id, vendor, vendor_user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		c.ID, c.PatientID, c.Vendor, c.VendorUserID, c.Status, now)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateAccount
	}
	return err
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Connection, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+connectionCols+` FROM device_connection WHERE id = $1`, id)
	return scanConnection(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Connection, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+connectionCols+` FROM device_connection WHERE patient_id = $1 ORDER BY created_at`,
		patientID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (r *PgRepository) ListSyncable(ctx context.Context) ([]*Connection, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+connectionCols+` FROM device_connection
		WHERE status = $1
		ORDER BY last_synced_at NULLS FIRST, created_at`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list syncable connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func collectConnections(rows pgx.Rows) ([]*Connection, error) {
	var out []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*Connection, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE device_connection
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+connectionCols, id, to, from)
	c, err := scanConnection(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	return c, err
}

func (r *PgRepository) CommitCursor(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE device_connection
		SET last_synced_at = GREATEST(COALESCE(last_synced_at, $2), $2), updated_at = now()
		WHERE id = $1`, id, syncedAt)
	if err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
