package labresult

import (
	"context"
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

const labResultCols = `id, patient_id, test_code, test_name, value, unit, flag, resulted_at, created_at`

func scanLabResult(row pgx.Row) (*LabResult, error) {
	var lr LabResult
	err := row.Scan(&lr.ID, &lr.PatientID, &lr.TestCode, &lr.TestName,
		&lr.Value, &lr.Unit, &lr.Flag, &lr.ResultedAt, &lr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &lr, nil
}

func (r *PgRepository) Insert(ctx context.Context, lr *LabResult) error {
	lr.ID = uuid.New()
	lr.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_result (id, patient_id, test_code, test_name, value, unit, flag, resulted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		lr.ID, lr.PatientID, lr.TestCode, lr.TestName, lr.Value, lr.Unit, lr.Flag, lr.ResultedAt, lr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lab result: %w", err)
	}
	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_result WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count lab results: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+labResultCols+` FROM lab_result
		WHERE patient_id = $1
		ORDER BY resulted_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list lab results: %w", err)
	}
	defer rows.Close()

	var results []*LabResult
	for rows.Next() {
		lr, err := scanLabResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lab result: %w", err)
		}
		results = append(results, lr)
	}
	return results, total, rows.Err()
}
