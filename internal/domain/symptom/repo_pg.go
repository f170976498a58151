package symptom

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

const checkInCols = `id, patient_id, symptom, severity, note, reported_at, created_at`

func scanCheckIn(row pgx.Row) (*CheckIn, error) {
	var ci CheckIn
	err := row.Scan(&ci.ID, &ci.PatientID, &ci.Symptom, &ci.Severity,
		&ci.Note, &ci.ReportedAt, &ci.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ci, nil
}

func (r *PgRepository) Insert(ctx context.Context, ci *CheckIn) error {
	ci.ID = uuid.New()
	ci.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO symptom_checkin (id, patient_id, symptom, severity, note, reported_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ci.ID, ci.PatientID, ci.Symptom, ci.Severity, ci.Note, ci.ReportedAt, ci.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}

func (r *PgRepository) LatestBefore(ctx context.Context, patientID uuid.UUID, symptom string, before time.Time) (*CheckIn, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+checkInCols+` FROM symptom_checkin
		WHERE patient_id = $1 AND symptom = $2 AND reported_at < $3
		ORDER BY reported_at DESC
		LIMIT 1`, patientID, symptom, before)
	return scanCheckIn(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, symptom string, limit, offset int) ([]*CheckIn, int, error) {
	where := `WHERE patient_id = $1`
	args := []any{patientID}
	if symptom != "" {
		where += ` AND symptom = $2`
		args = append(args, symptom)
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM symptom_checkin `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count check-ins: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM symptom_checkin %s ORDER BY reported_at DESC LIMIT $%d OFFSET $%d`,
		checkInCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var checkIns []*CheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan check-in: %w", err)
		}
		checkIns = append(checkIns, ci)
	}
	return checkIns, total, rows.Err()
}
