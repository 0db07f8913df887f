package postgres

import (
	"context"
	"fmt"

	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/geo"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// geofenceSortable is the allow-list for geofence listing sorts.
var geofenceSortable = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

// GeofenceRepo persists geofences with the shape tag in its own column so
// circle and polygon records stay distinguishable at read time; the
// geometry payload is decoded into the in-process tagged variant, never
// evaluated by the database.
type GeofenceRepo struct {
	pool *pgxpool.Pool
}

// NewGeofenceRepo constructs a new GeofenceRepo.
func NewGeofenceRepo(pool *pgxpool.Pool) ports.GeofenceRepository {
	return &GeofenceRepo{pool: pool}
}

func (repo *GeofenceRepo) db(ctx context.Context) dbtx {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

// Create inserts a validated geofence and fills its id.
func (repo *GeofenceRepo) Create(ctx context.Context, fence *geo.Geofence) error {
	if err := fence.Validate(); err != nil {
		return err
	}
	geom, err := fence.Shape.MarshalGeometry()
	if err != nil {
		return err
	}

	err = repo.db(ctx).QueryRow(ctx, `
		INSERT INTO geofences (company_id, name, shape_type, geometry, active, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`,
		fence.CompanyID, fence.Name, fence.Shape.Type.String(), geom, fence.Active,
	).Scan(&fence.ID, &fence.CreatedAt)
	return classify(err, "geofence")
}

func scanGeofence(row interface{ Scan(...any) error }) (*geo.Geofence, error) {
	var (
		fence     geo.Geofence
		shapeType string
		geom      []byte
	)
	if err := row.Scan(&fence.ID, &fence.CompanyID, &fence.Name, &shapeType, &geom, &fence.Active, &fence.CreatedAt); err != nil {
		return nil, err
	}
	shape, err := geo.UnmarshalGeometry(shapeType, geom)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "corrupt geofence geometry", err)
	}
	fence.Shape = shape
	return &fence, nil
}

// GetByID fetches one geofence within the caller's tenant.
func (repo *GeofenceRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*geo.Geofence, error) {
	query := `
		SELECT id, company_id, name, shape_type, geometry, active, created_at
		FROM geofences
		WHERE id = $1`
	args := []any{id}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}

	fence, err := scanGeofence(repo.db(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, classify(err, "geofence")
	}
	return fence, nil
}

// List returns one tenant-scoped page of geofences with the total count.
func (repo *GeofenceRepo) List(ctx context.Context, scope ports.Scope, q ports.PageQuery) ([]*geo.Geofence, int, error) {
	orderBy, err := sortClause(geofenceSortable, q.SortBy, "created_at", q.SortOrder)
	if err != nil {
		return nil, 0, err
	}
	limit := clampLimit(q.Limit, 10, 100)

	where := ``
	args := []any{}
	if !scope.Admin() {
		args = append(args, scope.CompanyID)
		where = ` WHERE company_id = $1`
	}

	var total int
	if err := repo.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM geofences`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(err, "geofence")
	}

	args = append(args, limit, q.Offset())
	rows, err := repo.db(ctx).Query(ctx, `
		SELECT id, company_id, name, shape_type, geometry, active, created_at
		FROM geofences`+where+`
		ORDER BY `+orderBy+
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, classify(err, "geofence")
	}
	defer rows.Close()

	var out []*geo.Geofence
	for rows.Next() {
		fence, err := scanGeofence(rows)
		if err != nil {
			return nil, 0, classify(err, "geofence")
		}
		out = append(out, fence)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "geofence")
	}
	return out, total, nil
}

// ListActive returns every active geofence of one company, evaluation
// order fixed by creation time.
func (repo *GeofenceRepo) ListActive(ctx context.Context, companyID string) ([]*geo.Geofence, error) {
	rows, err := repo.db(ctx).Query(ctx, `
		SELECT id, company_id, name, shape_type, geometry, active, created_at
		FROM geofences
		WHERE company_id = $1 AND active
		ORDER BY created_at ASC
	`, companyID)
	if err != nil {
		return nil, classify(err, "geofence")
	}
	defer rows.Close()

	var out []*geo.Geofence
	for rows.Next() {
		fence, err := scanGeofence(rows)
		if err != nil {
			return nil, classify(err, "geofence")
		}
		out = append(out, fence)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "geofence")
	}
	return out, nil
}

// Update rewrites name, shape, and active flag within the caller's
// tenant.
func (repo *GeofenceRepo) Update(ctx context.Context, scope ports.Scope, fence *geo.Geofence) error {
	if err := fence.Validate(); err != nil {
		return err
	}
	geom, err := fence.Shape.MarshalGeometry()
	if err != nil {
		return err
	}

	query := `
		UPDATE geofences
		SET name = $2, shape_type = $3, geometry = $4, active = $5
		WHERE id = $1`
	args := []any{fence.ID, fence.Name, fence.Shape.Type.String(), geom, fence.Active}
	if !scope.Admin() {
		query += ` AND company_id = $6`
		args = append(args, scope.CompanyID)
	}

	tag, err := repo.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return classify(err, "geofence")
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("geofence")
	}
	return nil
}

// Delete removes one geofence within the caller's tenant.
func (repo *GeofenceRepo) Delete(ctx context.Context, scope ports.Scope, id string) error {
	query := `DELETE FROM geofences WHERE id = $1`
	args := []any{id}
	if !scope.Admin() {
		query += ` AND company_id = $2`
		args = append(args, scope.CompanyID)
	}

	tag, err := repo.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return classify(err, "geofence")
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("geofence")
	}
	return nil
}
