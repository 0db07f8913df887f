package postgres

import (
	"context"
	"fmt"

	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// locationSortable is the allow-list for sample listing sorts.
var locationSortable = map[string]string{
	"recorded_at": "recorded_at",
}

const heatmapBucketCap = 1000

// LocationRepo persists the append-only sample log using pgx and plain
// SQL. The (device_id, recorded_at) index backs every range scan here.
type LocationRepo struct {
	pool *pgxpool.Pool
}

// NewLocationRepo constructs a new LocationRepo.
func NewLocationRepo(pool *pgxpool.Pool) ports.LocationRepository {
	return &LocationRepo{pool: pool}
}

func (repo *LocationRepo) db(ctx context.Context) dbtx {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

// Append inserts one immutable sample. recorded_at is assigned by the
// database clock inside the INSERT so clients cannot skew interval
// queries, and concurrent ingests for one device persist non-decreasing
// timestamps regardless of arrival order.
func (repo *LocationRepo) Append(ctx context.Context, sample *telemetry.LocationSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	err := repo.db(ctx).QueryRow(ctx, `
		INSERT INTO locations (device_id, latitude, longitude, speed, heading, recorded_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		RETURNING id, recorded_at
	`,
		sample.DeviceID,
		sample.Latitude,
		sample.Longitude,
		sample.Speed,
		sample.Heading,
		sample.RawPayload,
	).Scan(&sample.ID, &sample.RecordedAt)
	return classify(err, "location")
}

// Latest returns the device's most recent sample.
func (repo *LocationRepo) Latest(ctx context.Context, deviceID string) (*telemetry.LocationSample, error) {
	var s telemetry.LocationSample
	err := repo.db(ctx).QueryRow(ctx, `
		SELECT id, device_id, latitude, longitude, speed, heading, recorded_at, raw_payload
		FROM locations
		WHERE device_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, deviceID).Scan(&s.ID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Speed, &s.Heading, &s.RecordedAt, &s.RawPayload)
	if err != nil {
		return nil, classify(err, "location")
	}
	return &s, nil
}

// windowClause appends optional recorded_at bounds to a query.
func windowClause(window telemetry.TimeRange, args []any) (string, []any) {
	clause := ""
	if window.Start != nil {
		args = append(args, *window.Start)
		clause += fmt.Sprintf(` AND recorded_at >= $%d`, len(args))
	}
	if window.End != nil {
		args = append(args, *window.End)
		clause += fmt.Sprintf(` AND recorded_at <= $%d`, len(args))
	}
	return clause, args
}

// RangeAsc streams the device's samples strictly ascending by
// recorded_at within the optional bounds and materializes them for the
// route engine.
func (repo *LocationRepo) RangeAsc(ctx context.Context, deviceID string, window telemetry.TimeRange) ([]*telemetry.LocationSample, error) {
	args := []any{deviceID}
	clause, args := windowClause(window, args)

	rows, err := repo.db(ctx).Query(ctx, `
		SELECT id, device_id, latitude, longitude, speed, heading, recorded_at, raw_payload
		FROM locations
		WHERE device_id = $1`+clause+`
		ORDER BY recorded_at ASC
	`, args...)
	if err != nil {
		return nil, classify(err, "location")
	}
	defer rows.Close()

	var out []*telemetry.LocationSample
	for rows.Next() {
		var s telemetry.LocationSample
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Speed, &s.Heading, &s.RecordedAt, &s.RawPayload); err != nil {
			return nil, classify(err, "location")
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "location")
	}
	return out, nil
}

// List returns one page of a device's history plus the total count.
func (repo *LocationRepo) List(ctx context.Context, deviceID string, window telemetry.TimeRange, q ports.PageQuery) ([]*telemetry.LocationSample, int, error) {
	orderBy, err := sortClause(locationSortable, q.SortBy, "recorded_at", q.SortOrder)
	if err != nil {
		return nil, 0, err
	}
	limit := clampLimit(q.Limit, 50, 500)

	args := []any{deviceID}
	clause, args := windowClause(window, args)

	var total int
	if err := repo.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM locations WHERE device_id = $1`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, classify(err, "location")
	}

	args = append(args, limit, q.Offset())
	rows, err := repo.db(ctx).Query(ctx, `
		SELECT id, device_id, latitude, longitude, speed, heading, recorded_at, raw_payload
		FROM locations
		WHERE device_id = $1`+clause+`
		ORDER BY `+orderBy+
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, classify(err, "location")
	}
	defer rows.Close()

	var out []*telemetry.LocationSample
	for rows.Next() {
		var s telemetry.LocationSample
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Speed, &s.Heading, &s.RecordedAt, &s.RawPayload); err != nil {
			return nil, 0, classify(err, "location")
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "location")
	}
	return out, total, nil
}

// Heatmap groups samples into 4-decimal coordinate cells with counts,
// densest first, capped at heatmapBucketCap buckets.
func (repo *LocationRepo) Heatmap(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange) ([]ports.HeatmapBucket, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if deviceID != "" {
		args = append(args, deviceID)
		where += fmt.Sprintf(` AND l.device_id = $%d`, len(args))
	} else if !scope.Admin() {
		args = append(args, scope.CompanyID)
		where += fmt.Sprintf(` AND d.company_id = $%d`, len(args))
	}
	if window.Start != nil {
		args = append(args, *window.Start)
		where += fmt.Sprintf(` AND l.recorded_at >= $%d`, len(args))
	}
	if window.End != nil {
		args = append(args, *window.End)
		where += fmt.Sprintf(` AND l.recorded_at <= $%d`, len(args))
	}

	rows, err := repo.db(ctx).Query(ctx, `
		SELECT ROUND(l.latitude::numeric, 4)::float8 AS lat,
		       ROUND(l.longitude::numeric, 4)::float8 AS lng,
		       COUNT(*)::int AS intensity
		FROM locations l
		JOIN devices d ON l.device_id = d.id`+where+`
		GROUP BY 1, 2
		ORDER BY intensity DESC
		LIMIT `+fmt.Sprintf("%d", heatmapBucketCap), args...)
	if err != nil {
		return nil, classify(err, "location")
	}
	defer rows.Close()

	var out []ports.HeatmapBucket
	for rows.Next() {
		var b ports.HeatmapBucket
		if err := rows.Scan(&b.Lat, &b.Lng, &b.Intensity); err != nil {
			return nil, classify(err, "location")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "location")
	}
	return out, nil
}

// Count returns the tenant's total sample count for the dashboard.
func (repo *LocationRepo) Count(ctx context.Context, scope ports.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM locations l`
	args := []any{}
	if !scope.Admin() {
		query += ` JOIN devices d ON l.device_id = d.id WHERE d.company_id = $1`
		args = append(args, scope.CompanyID)
	}
	var n int
	if err := repo.db(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err, "location")
	}
	return n, nil
}
