package postgres

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/domain/device"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// deviceSortable is the allow-list for device listing sorts.
var deviceSortable = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"last_seen":  "last_seen",
}

// DeviceRepo reads the device directory using pgx and plain SQL. The
// telemetry path only ever advances last_seen; creation and deletion stay
// with directory management.
type DeviceRepo struct {
	pool *pgxpool.Pool
}

// NewDeviceRepo constructs a new DeviceRepo.
func NewDeviceRepo(pool *pgxpool.Pool) ports.DeviceRepository {
	return &DeviceRepo{pool: pool}
}

func (repo *DeviceRepo) db(ctx context.Context) dbtx {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

// GetByID fetches one device within the caller's tenant. A device in
// another tenant reads as not found so existence never leaks.
func (repo *DeviceRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*device.Device, error) {
	query := `
		SELECT id, company_id, imei, name, COALESCE(sim_number, ''), last_seen, created_at
		FROM devices
		WHERE id = $1`
	args := []any{id}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}

	var d device.Device
	err := repo.db(ctx).QueryRow(ctx, query, args...).Scan(
		&d.ID, &d.CompanyID, &d.IMEI, &d.Name, &d.SIMNumber, &d.LastSeen, &d.CreatedAt,
	)
	if err != nil {
		return nil, classify(err, "device")
	}
	return &d, nil
}

// List returns one tenant-scoped page of the directory with the total
// row count. The optional presence filter compares last_seen against the
// cutoff the service derives from the freshness window.
func (repo *DeviceRepo) List(ctx context.Context, scope ports.Scope, q ports.DeviceListQuery) ([]*device.Device, int, error) {
	orderBy, err := sortClause(deviceSortable, q.SortBy, "created_at", q.SortOrder)
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
	if q.Online != nil {
		args = append(args, q.OnlineSince)
		if *q.Online {
			where += fmt.Sprintf(` AND last_seen IS NOT NULL AND last_seen > $%d`, len(args))
		} else {
			where += fmt.Sprintf(` AND (last_seen IS NULL OR last_seen <= $%d)`, len(args))
		}
	}

	var total int
	if err := repo.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM devices`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err, "device")
	}

	args = append(args, limit, q.Offset())
	query := `
		SELECT id, company_id, imei, name, COALESCE(sim_number, ''), last_seen, created_at
		FROM devices` + where +
		` ORDER BY ` + orderBy +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := repo.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classify(err, "device")
	}
	defer rows.Close()

	var out []*device.Device
	for rows.Next() {
		var d device.Device
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.IMEI, &d.Name, &d.SIMNumber, &d.LastSeen, &d.CreatedAt); err != nil {
			return nil, 0, classify(err, "device")
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "device")
	}
	return out, total, nil
}

// TouchLastSeen advances last_seen to at. last_seen only ever moves
// forward, so a delayed retry cannot regress presence.
func (repo *DeviceRepo) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	_, err := repo.db(ctx).Exec(ctx, `
		UPDATE devices
		SET last_seen = $2
		WHERE id = $1 AND (last_seen IS NULL OR last_seen <= $2)
	`, deviceID, at)
	return classify(err, "device")
}

// Count returns the tenant's device total.
func (repo *DeviceRepo) Count(ctx context.Context, scope ports.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM devices`
	args := []any{}
	if !scope.Admin() {
		query += ` WHERE company_id = $1`
		args = append(args, scope.CompanyID)
	}
	var n int
	if err := repo.db(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err, "device")
	}
	return n, nil
}

// CountSeenSince counts devices whose last sample is younger than since;
// the dashboard's online figure.
func (repo *DeviceRepo) CountSeenSince(ctx context.Context, scope ports.Scope, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM devices WHERE last_seen IS NOT NULL AND last_seen > $1`
	args := []any{since}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}
	var n int
	if err := repo.db(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err, "device")
	}
	return n, nil
}
