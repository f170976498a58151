package alert

import (
	"context"
	"encoding/json"
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

const alertCols = `id, patient_id, rule_id, rule_name, severity, status, inputs, summary,
	escalation_level, escalated_at, last_notified_at, triggered_at,
	acknowledged_by, acknowledged_at, created_at, updated_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	var rawInputs []byte
	err := row.Scan(&a.ID, &a.PatientID, &a.RuleID, &a.RuleName, &a.Severity, &a.Status,
		&rawInputs, &a.Summary, &a.EscalationLevel, &a.EscalatedAt, &a.LastNotifiedAt,
		&a.TriggeredAt, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Inputs, err = DecodeInputs(a.RuleID, rawInputs)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertOpen relies on the partial unique index on (patient_id, rule_id)
// WHERE status = 'OPEN'. The xmax = 0 check distinguishes a fresh insert
// from a conflicting update within the same statement.
func (r *PgRepository) UpsertOpen(ctx context.Context, a *Alert) (bool, error) {
	if err := a.Inputs.ValidateFor(a.RuleID); err != nil {
		return false, err
	}
	inputsJSON, err := json.Marshal(a.Inputs)
	if err != nil {
		return false, fmt.Errorf("encode alert inputs: %w", err)
	}
	now := time.Now().UTC()

	var created bool
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO alert (id, patient_id, rule_id, rule_name, severity, status, inputs, summary,
		                   escalation_level, triggered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'OPEN', $6, $7, 0, $8, $9, $9)
		ON CONFLICT (patient_id, rule_id) WHERE status = 'OPEN' DO UPDATE SET
			inputs       = EXCLUDED.inputs,
			severity     = EXCLUDED.severity,
			summary      = EXCLUDED.summary,
			triggered_at = EXCLUDED.triggered_at,
			updated_at   = EXCLUDED.updated_at
		RETURNING id, escalation_level, escalated_at, last_notified_at, created_at, updated_at, (xmax = 0)`,
		uuid.New(), a.PatientID, a.RuleID, a.RuleName, a.Severity, inputsJSON, a.Summary,
		a.TriggeredAt, now).
		Scan(&a.ID, &a.EscalationLevel, &a.EscalatedAt, &a.LastNotifiedAt,
			&a.CreatedAt, &a.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert alert: %w", err)
	}
	a.Status = StatusOpen
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alert WHERE id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PgRepository) List(ctx context.Context, status string, limit, offset int) ([]*Alert, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM alert`, `SELECT `+alertCols+` FROM alert`, nil, status, limit, offset)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Alert, int, error) {
	return r.list(ctx,
		`SELECT COUNT(*) FROM alert WHERE patient_id = $1`,
		`SELECT `+alertCols+` FROM alert WHERE patient_id = $1`,
		[]any{patientID}, status, limit, offset)
}

func (r *PgRepository) list(ctx context.Context, countQuery, selectQuery string, args []any, status string, limit, offset int) ([]*Alert, int, error) {
	if status != "" {
		clause := " WHERE status = $1"
		if len(args) > 0 {
			clause = fmt.Sprintf(" AND status = $%d", len(args)+1)
		}
		countQuery += clause
		selectQuery += clause
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	selectQuery += fmt.Sprintf(" ORDER BY triggered_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}

func (r *PgRepository) ListEscalatable(ctx context.Context, cutoff time.Time) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM alert
		WHERE status = 'OPEN' AND escalation_level < $1
		  AND ((escalation_level = 0 AND triggered_at < $2)
		    OR (escalation_level = 1 AND escalated_at < $2))
		ORDER BY triggered_at`, MaxEscalationLevel, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select escalatable alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateEscalation advances the ladder by exactly one rung. The guard on the
// previous level and OPEN status makes a concurrent acknowledge or a
// repeated scheduler pass a no-op rather than a double bump.
func (r *PgRepository) UpdateEscalation(ctx context.Context, id uuid.UUID, level int, escalatedAt, lastNotifiedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE alert
		SET escalation_level = $2, escalated_at = $3, last_notified_at = $4, updated_at = $3
		WHERE id = $1 AND status = 'OPEN' AND escalation_level = $2 - 1`,
		id, level, escalatedAt, lastNotifiedAt)
	if err != nil {
		return fmt.Errorf("update escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOpen
	}
	return nil
}

func (r *PgRepository) Acknowledge(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*Alert, error) {
	return r.close(ctx, id, StatusAcknowledged, actor, at)
}

func (r *PgRepository) Dismiss(ctx context.Context, id uuid.UUID, actor string, at time.Time) (*Alert, error) {
	return r.close(ctx, id, StatusDismissed, actor, at)
}

func (r *PgRepository) close(ctx context.Context, id uuid.UUID, status, actor string, at time.Time) (*Alert, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE alert
		SET status = $2, acknowledged_by = $3, acknowledged_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+alertCols, id, status, actor, at)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM alert WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check alert existence: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrNotOpen
	}
	return a, err
}

func (r *PgRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM alert WHERE status = 'OPEN'`).Scan(&n)
	return n, err
}
