package measurement

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

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewMeasurementRepoPG(pool *pgxpool.Pool) Repository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const measurementCols = `id, patient_id, type, value, unit, input_unit,
	source, external_id, measured_at, created_at`

func scanMeasurement(row pgx.Row) (*Measurement, error) {
	var m Measurement
	err := row.Scan(&m.ID, &m.PatientID, &m.Type, &m.Value, &m.Unit, &m.InputUnit,
		&m.Source, &m.ExternalID, &m.MeasuredAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *measurementRepoPG) Insert(ctx context.Context, m *Measurement) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO measurement (id, patient_id, type, value, unit, input_unit, source, external_id, measured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.PatientID, m.Type, m.Value, m.Unit, m.InputUnit, m.Source, m.ExternalID, m.MeasuredAt)
	return err
}

func (r *measurementRepoPG) InsertDeviceIdempotent(ctx context.Context, m *Measurement) (uuid.UUID, bool, error) {
	m.ID = uuid.New()
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO measurement (id, patient_id, type, value, unit, input_unit, source, external_id, measured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source, external_id) WHERE external_id IS NOT NULL DO NOTHING
		RETURNING id`,
		m.ID, m.PatientID, m.Type, m.Value, m.Unit, m.InputUnit, m.Source, m.ExternalID, m.MeasuredAt).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, err
	}

	// No row came back, so the record already exists; resolve its id.
	err = r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM measurement WHERE source = $1 AND external_id = $2`,
		m.Source, m.ExternalID).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve existing device record: %w", err)
	}
	return id, false, nil
}

func (r *measurementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Measurement, error) {
	return scanMeasurement(r.conn(ctx).QueryRow(ctx,
		`SELECT `+measurementCols+` FROM measurement WHERE id = $1`, id))
}

func (r *measurementRepoPG) ListForWindow(ctx context.Context, patientID uuid.UUID, mtype string, from, to time.Time) ([]*Measurement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+measurementCols+` FROM measurement
		WHERE patient_id = $1 AND type = $2 AND measured_at >= $3 AND measured_at <= $4
		ORDER BY measured_at ASC`, patientID, mtype, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeasurements(rows)
}

func (r *measurementRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, mtype string, from, to time.Time, limit, offset int) ([]*Measurement, int, error) {
	where := ` WHERE patient_id = $1`
	args := []interface{}{patientID}
	if mtype != "" {
		args = append(args, mtype)
		where += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(` AND measured_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(` AND measured_at <= $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM measurement`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+measurementCols+` FROM measurement`+where+
		` ORDER BY measured_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectMeasurements(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *measurementRepoPG) ListNear(ctx context.Context, patientID uuid.UUID, mtype string, at time.Time, window time.Duration) ([]*Measurement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+measurementCols+` FROM measurement
		WHERE patient_id = $1 AND type = $2 AND measured_at BETWEEN $3 AND $4
		ORDER BY measured_at ASC`,
		patientID, mtype, at.Add(-window), at.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeasurements(rows)
}

func (r *measurementRepoPG) AcquireDedupLock(ctx context.Context, key int64) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

func collectMeasurements(rows pgx.Rows) ([]*Measurement, error) {
	var items []*Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
