package postgres

import (
	"context"
	"errors"

	"fleettrack/internal/domain/fault"
	"fleettrack/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repositories care about.
const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

// classify maps a pgx error into the service fault taxonomy. The entity
// name feeds not-found messages so callers never see raw SQL detail.
func classify(err error, entity string) error {
	if err == nil {
		return nil
	}
	var already *fault.Error
	if errors.As(err, &already) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.NotFound(entity)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimeout, "database deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindTimeout, "database call canceled", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fault.Wrap(fault.KindConflict, "duplicate identifier", err)
		case pgFKViolation:
			return fault.Wrap(fault.KindValidation, "referenced record does not exist", err)
		}
		return fault.Wrap(fault.KindInternal, "database error", err)
	}

	// anything unreachable at the connection level is retryable
	if pgconn.SafeToRetry(err) {
		return fault.Wrap(fault.KindUnavailable, "database unreachable", err)
	}
	return fault.Wrap(fault.KindInternal, "database error", err)
}

// dbtx is the slice of pgx shared by *pgxpool.Pool and pgx.Tx; repository
// methods run against the transaction installed in ctx when one exists,
// else directly against the pool.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sortClause validates caller-supplied sort input against an allow-list
// and returns a safe ORDER BY fragment. Anything outside the list is a
// validation error; caller strings are never interpolated into SQL.
func sortClause(allowed map[string]string, sortBy, fallback string, order ports.SortOrder) (string, error) {
	col := allowed[fallback]
	if sortBy != "" {
		c, ok := allowed[sortBy]
		if !ok {
			return "", fault.Validationf("unsupported sort field %q", sortBy)
		}
		col = c
	}

	dir := "DESC"
	switch order {
	case "", ports.SortDesc:
	case ports.SortAsc:
		dir = "ASC"
	default:
		return "", fault.Validationf("unsupported sort order %q", order)
	}
	return col + " " + dir, nil
}

// clampLimit bounds page sizes.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
