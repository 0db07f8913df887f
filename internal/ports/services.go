package ports

import (
	"context"
	"encoding/json"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/geo"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/contracts"
)

// ----- Tracking -----

// IngestInput is one telemetry sample as received from a device.
type IngestInput struct {
	DeviceID   string
	Latitude   float64
	Longitude  float64
	Speed      *float64
	Heading    *float64
	RawPayload json.RawMessage
}

// IngestResult reports the persisted sample identity and the
// server-assigned timestamp.
type IngestResult struct {
	SampleID   string    `json:"sample_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RouteResult is the reconstructed route plus its statistics.
type RouteResult struct {
	Samples []*telemetry.LocationSample
	Stats   telemetry.RouteStats
}

// HistoryResult is one page of a device's sample log.
type HistoryResult struct {
	Samples []*telemetry.LocationSample
	Total   int
}

// TrackingService ingests telemetry and derives route analytics.
type TrackingService interface {
	Ingest(ctx context.Context, scope Scope, in IngestInput) (IngestResult, error)
	ComputeRoute(ctx context.Context, scope Scope, deviceID string, window telemetry.TimeRange) (RouteResult, error)
	Latest(ctx context.Context, scope Scope, deviceID string) (*telemetry.LocationSample, error)
	History(ctx context.Context, scope Scope, deviceID string, window telemetry.TimeRange, q PageQuery) (HistoryResult, error)
	Heatmap(ctx context.Context, scope Scope, deviceID string, window telemetry.TimeRange) ([]HeatmapBucket, error)
}

// ----- Geofences -----

// GeofenceInput carries operator-supplied geofence fields.
type GeofenceInput struct {
	Name         string
	ShapeType    string
	Center       *geo.Point
	RadiusMeters *float64
	Ring         []geo.Point
	// Active toggles participation in tenant-wide checks. Nil keeps the
	// current value on update and defaults to true on create.
	Active *bool
	// CompanyID is honored for admins only; other callers always write
	// into their own tenant.
	CompanyID string
}

// MembershipReport is the outcome of checking a device against geofences.
type MembershipReport struct {
	DeviceID   string           `json:"device_id"`
	Location   geo.Point        `json:"location"`
	RecordedAt time.Time        `json:"recorded_at"`
	Geofences  []geo.Membership `json:"geofences"`
}

// GeofenceService manages geofences and evaluates membership on demand.
type GeofenceService interface {
	Create(ctx context.Context, scope Scope, in GeofenceInput) (*geo.Geofence, error)
	Get(ctx context.Context, scope Scope, id string) (*geo.Geofence, error)
	List(ctx context.Context, scope Scope, q PageQuery) ([]*geo.Geofence, int, error)
	Update(ctx context.Context, scope Scope, id string, in GeofenceInput) (*geo.Geofence, error)
	Delete(ctx context.Context, scope Scope, id string) error
	// CheckDevice evaluates the device's most recent sample against one
	// geofence when geofenceID is non-empty, else against every active
	// geofence of the tenant.
	CheckDevice(ctx context.Context, scope Scope, deviceID, geofenceID string) (MembershipReport, error)
}

// ----- Command dispatch -----

// SubmitCommandInput is an operator command request for one device.
type SubmitCommandInput struct {
	DeviceID       string
	CommandType    string
	Payload        json.RawMessage
	IdempotencyKey string
}

// SubmitCommandResult reports the dispatched command.
type SubmitCommandResult struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	// Replayed is true when an idempotency key matched an existing
	// command and no new row was created.
	Replayed bool `json:"replayed,omitempty"`
}

// CommandView is the read model for GET /commands/{id}.
type CommandView struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	AckedAt     *time.Time      `json:"acked_at,omitempty"`
}

// DispatchService persists commands and hands them to the durable queue.
type DispatchService interface {
	Submit(ctx context.Context, scope Scope, in SubmitCommandInput) (SubmitCommandResult, error)
	Get(ctx context.Context, scope Scope, id string) (CommandView, error)
}

// CommandPublisher hands a command message to the durable queue. The
// message must survive broker restarts until consumed (persistent
// delivery on a durable queue).
type CommandPublisher interface {
	PublishCommand(ctx context.Context, msg contracts.CommandMessage) error
}

// IdempotencyStore reserves client-supplied idempotency keys. Reserve
// returns the previously stored command id when the key is already taken.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, commandID string, ttl time.Duration) (existing string, reserved bool, err error)
	Release(ctx context.Context, key string) error
}

// ----- Fleet directory & dashboard -----

// DeviceView is a directory read annotated with derived presence.
type DeviceView struct {
	*device.Device
	Online bool
}

// DashboardStats aggregates the tenant overview.
type DashboardStats struct {
	TotalDevices   int `json:"total_devices"`
	OnlineDevices  int `json:"online_devices"`
	OfflineDevices int `json:"offline_devices"`
	TotalLocations int `json:"total_locations"`
	ActiveAlerts   int `json:"active_alerts"`
}

// AlertInput carries operator-supplied alert fields.
type AlertInput struct {
	DeviceID  string
	AlertType string
	Message   string
}

// FleetService exposes tenant-scoped device reads with presence
// annotation, the dashboard overview, and device alerts.
type FleetService interface {
	ListDevices(ctx context.Context, scope Scope, q DeviceListQuery) ([]DeviceView, int, error)
	GetDevice(ctx context.Context, scope Scope, id string) (DeviceView, *telemetry.LocationSample, error)
	Stats(ctx context.Context, scope Scope) (DashboardStats, error)
	CreateAlert(ctx context.Context, scope Scope, in AlertInput) (*alert.Alert, error)
	ListAlerts(ctx context.Context, scope Scope, q AlertListQuery) ([]*alert.Alert, int, error)
	ResolveAlert(ctx context.Context, scope Scope, id string) (*alert.Alert, error)
}

// LiveFeed broadcasts position updates to subscribed dashboard clients.
// Broadcast must never block the ingest path.
type LiveFeed interface {
	Broadcast(companyID string, update contracts.LiveLocationUpdate)
}
