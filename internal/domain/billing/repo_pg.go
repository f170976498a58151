package billing

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

// DeviceDays converts each measurement timestamp into the patient's local
// calendar date before the distinct count, so a reading at 23:50 and one at
// 00:10 the next local morning land on two different days.
func (r *PgRepository) DeviceDays(ctx context.Context, patientID uuid.UUID, timezone string, from, to time.Time) (int, error) {
	var days int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT (measured_at AT TIME ZONE $2)::date)
		FROM measurement
		WHERE patient_id = $1
		  AND source <> 'manual'
		  AND measured_at >= $3 AND measured_at < $4`,
		patientID, timezone, from, to).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("count device days: %w", err)
	}
	return days, nil
}

func (r *PgRepository) MinuteTotals(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]MinuteBucket, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT performer_type, activity, COALESCE(SUM(minutes), 0)::int
		FROM time_entry
		WHERE patient_id = $1 AND performed_at >= $2 AND performed_at < $3
		GROUP BY performer_type, activity
		ORDER BY performer_type, activity`,
		patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum time entry minutes: %w", err)
	}
	defer rows.Close()

	var buckets []MinuteBucket
	for rows.Next() {
		var b MinuteBucket
		if err := rows.Scan(&b.PerformerType, &b.Activity, &b.Minutes); err != nil {
			return nil, fmt.Errorf("scan minute bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
