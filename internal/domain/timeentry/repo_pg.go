package timeentry

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
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const timeEntryCols = `id, patient_id, clinician_id, performer_type, activity, minutes, performed_at, note, created_at, updated_at`

func scanTimeEntry(row pgx.Row) (*TimeEntry, error) {
	var te TimeEntry
	err := row.Scan(&te.ID, &te.PatientID, &te.ClinicianID, &te.PerformerType,
		&te.Activity, &te.Minutes, &te.PerformedAt, &te.Note, &te.CreatedAt, &te.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &te, nil
}

func (r *PgRepository) Insert(ctx context.Context, te *TimeEntry) error {
	te.ID = uuid.New()
	now := time.Now().UTC()
	te.CreatedAt = now
	te.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO time_entry (`+timeEntryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		te.ID, te.PatientID, te.ClinicianID, te.PerformerType, te.Activity,
		te.Minutes, te.PerformedAt, te.Note, te.CreatedAt, te.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert time entry: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*TimeEntry, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+timeEntryCols+` FROM time_entry WHERE id = $1`, id)
	return scanTimeEntry(row)
}

func (r *PgRepository) Update(ctx context.Context, te *TimeEntry) error {
	te.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE time_entry
		SET activity = $2, minutes = $3, performed_at = $4, note = $5, updated_at = $6
		WHERE id = $1`,
		te.ID, te.Activity, te.Minutes, te.PerformedAt, te.Note, te.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update time entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM time_entry WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*TimeEntry, int, error) {
	where := `WHERE patient_id = $1`
	args := []any{patientID}
	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(` AND performed_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(` AND performed_at < $%d`, len(args))
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM time_entry `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count time entries: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT `+timeEntryCols+` FROM time_entry
		%s
		ORDER BY performed_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()

	var entries []*TimeEntry
	for rows.Next() {
		te, err := scanTimeEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan time entry: %w", err)
		}
		entries = append(entries, te)
	}
	return entries, total, rows.Err()
}
