package postgres

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

var alertSortable = map[string]string{
	"created_at": "created_at",
	"alert_type": "alert_type",
}

// AlertRepo persists device alerts.
type AlertRepo struct {
	pool *pgxpool.Pool
}

// NewAlertRepo constructs a new AlertRepo.
func NewAlertRepo(pool *pgxpool.Pool) ports.AlertRepository {
	return &AlertRepo{pool: pool}
}

func (repo *AlertRepo) db(ctx context.Context) dbtx {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

const alertColumns = `id, device_id, company_id, alert_type, message, created_at, resolved_at`

func scanAlert(row interface{ Scan(...any) error }) (*alert.Alert, error) {
	var a alert.Alert
	if err := row.Scan(&a.ID, &a.DeviceID, &a.CompanyID, &a.AlertType, &a.Message, &a.CreatedAt, &a.ResolvedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an open alert and fills its id.
func (repo *AlertRepo) Create(ctx context.Context, a *alert.Alert) error {
	err := repo.db(ctx).QueryRow(ctx, `
		INSERT INTO alerts (device_id, company_id, alert_type, message, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, a.DeviceID, a.CompanyID, a.AlertType, a.Message).Scan(&a.ID, &a.CreatedAt)
	return classify(err, "alert")
}

// List returns one tenant-scoped page of alerts with the total count,
// optionally filtered by resolution state.
func (repo *AlertRepo) List(ctx context.Context, scope ports.Scope, q ports.AlertListQuery) ([]*alert.Alert, int, error) {
	orderBy, err := sortClause(alertSortable, q.SortBy, "created_at", q.SortOrder)
	if err != nil {
		return nil, 0, err
	}
	limit := clampLimit(q.Limit, 10, 100)

	where := ` WHERE 1=1`
	args := []any{}
	if !scope.Admin() {
		args = append(args, scope.CompanyID)
		where += fmt.Sprintf(` AND company_id = $%d`, len(args))
	}
	if q.Resolved != nil {
		if *q.Resolved {
			where += ` AND resolved_at IS NOT NULL`
		} else {
			where += ` AND resolved_at IS NULL`
		}
	}

	var total int
	if err := repo.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err, "alert")
	}

	args = append(args, limit, q.Offset())
	rows, err := repo.db(ctx).Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts`+where+`
		ORDER BY `+orderBy+
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, classify(err, "alert")
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, classify(err, "alert")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "alert")
	}
	return out, total, nil
}

// Resolve stamps resolved_at exactly once and returns the updated row.
// An already-resolved alert is a conflict, a missing one is not found.
func (repo *AlertRepo) Resolve(ctx context.Context, scope ports.Scope, id string, at time.Time) (*alert.Alert, error) {
	query := `
		UPDATE alerts
		SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL`
	args := []any{id, at}
	if !scope.Admin() {
		query += ` AND company_id = $3`
		args = append(args, scope.CompanyID)
	}
	query += ` RETURNING ` + alertColumns

	a, err := scanAlert(repo.db(ctx).QueryRow(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if fault.IsKind(classify(err, "alert"), fault.KindNotFound) {
		// distinguish a missing alert from one already resolved
		existing, getErr := repo.getByID(ctx, scope, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Resolved() {
			return nil, fault.New(fault.KindConflict, "alert is already resolved")
		}
	}
	return nil, classify(err, "alert")
}

func (repo *AlertRepo) getByID(ctx context.Context, scope ports.Scope, id string) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	args := []any{id}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}
	a, err := scanAlert(repo.db(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, "alert")
	}
	return a, nil
}

// CountActive counts unresolved alerts within the caller's tenant.
func (repo *AlertRepo) CountActive(ctx context.Context, scope ports.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL`
	args := []any{}
	if !scope.Admin() {
		query += ` AND company_id = $1`
		args = append(args, scope.CompanyID)
	}
	var total int
	if err := repo.db(ctx).QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, classify(err, "alert")
	}
	return total, nil
}
