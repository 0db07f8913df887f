package ports

import (
	"context"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/command"
	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/geo"
	"fleettrack/internal/domain/telemetry"
)

// Scope is the caller's tenant partition, supplied by the directory
// collaborator through auth claims. Every repository query must be scoped
// by it unless the caller is the super-admin.
type Scope struct {
	CompanyID string
	Role      string
}

// Admin reports whether the scope bypasses company filtering.
func (scope Scope) Admin() bool { return scope.Role == "ADMIN" }

// SortOrder is a validated sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PageQuery is shared pagination + sorting input for listing queries.
// SortBy is checked against each repository's allow-list; anything outside
// it is a validation error, never interpolated into SQL.
type PageQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder SortOrder
}

// Offset converts 1-based page/limit into a row offset.
func (q PageQuery) Offset() int {
	page := q.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * q.Limit
}

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DeviceListQuery filters the device directory listing.
type DeviceListQuery struct {
	PageQuery
	// Online filters by derived presence when set; OnlineSince is the
	// cutoff (now - freshness window) computed by the service.
	Online      *bool
	OnlineSince time.Time
}

// DeviceRepository reads the device directory and advances last_seen.
// Device creation and deletion belong to directory management and are not
// exposed here.
type DeviceRepository interface {
	GetByID(ctx context.Context, scope Scope, id string) (*device.Device, error)
	List(ctx context.Context, scope Scope, q DeviceListQuery) ([]*device.Device, int, error)
	TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error
	Count(ctx context.Context, scope Scope) (int, error)
	CountSeenSince(ctx context.Context, scope Scope, since time.Time) (int, error)
}

// HeatmapBucket is a rounded coordinate cell with a sample count.
type HeatmapBucket struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity int     `json:"intensity"`
}

// LocationRepository appends and reads the immutable sample log.
type LocationRepository interface {
	// Append inserts the sample with a server-assigned recorded_at and
	// fills sample.ID and sample.RecordedAt from the insert.
	Append(ctx context.Context, sample *telemetry.LocationSample) error
	Latest(ctx context.Context, deviceID string) (*telemetry.LocationSample, error)
	// RangeAsc returns samples strictly ascending by recorded_at within
	// the optional bounds.
	RangeAsc(ctx context.Context, deviceID string, window telemetry.TimeRange) ([]*telemetry.LocationSample, error)
	List(ctx context.Context, deviceID string, window telemetry.TimeRange, q PageQuery) ([]*telemetry.LocationSample, int, error)
	Heatmap(ctx context.Context, scope Scope, deviceID string, window telemetry.TimeRange) ([]HeatmapBucket, error)
	Count(ctx context.Context, scope Scope) (int, error)
}

// GeofenceRepository manages tenant geofences. The ingestion path only
// reads; writes come from operator actions.
type GeofenceRepository interface {
	Create(ctx context.Context, fence *geo.Geofence) error
	GetByID(ctx context.Context, scope Scope, id string) (*geo.Geofence, error)
	List(ctx context.Context, scope Scope, q PageQuery) ([]*geo.Geofence, int, error)
	ListActive(ctx context.Context, companyID string) ([]*geo.Geofence, error)
	Update(ctx context.Context, scope Scope, fence *geo.Geofence) error
	Delete(ctx context.Context, scope Scope, id string) error
}

// CommandRepository persists the command lifecycle. Status updates are
// guarded in SQL so a row never moves backward even under concurrent
// writers.
type CommandRepository interface {
	Create(ctx context.Context, cmd *command.Command) error
	GetByID(ctx context.Context, scope Scope, id string) (*command.Command, error)
	GetByIdempotencyKey(ctx context.Context, companyID, key string) (*command.Command, error)
	// MarkSent transitions pending -> sent; a row not in pending is left
	// untouched and reported via the bool.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	// ApplyAck transitions sent|pending -> acknowledged/failed per the
	// worker's report; returns false when the guard rejects the move.
	ApplyAck(ctx context.Context, id string, next command.Status, at time.Time) (bool, error)
}

// AlertListQuery filters the alert listing.
type AlertListQuery struct {
	PageQuery
	Resolved *bool
}

// AlertRepository persists device alerts.
type AlertRepository interface {
	Create(ctx context.Context, a *alert.Alert) error
	List(ctx context.Context, scope Scope, q AlertListQuery) ([]*alert.Alert, int, error)
	Resolve(ctx context.Context, scope Scope, id string, at time.Time) (*alert.Alert, error)
	CountActive(ctx context.Context, scope Scope) (int, error)
}
