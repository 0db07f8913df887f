package service

import (
	"context"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/ports"
)

// fleetService holds all dependencies required by the device directory
// and dashboard reads.
type fleetService struct {
	logger    *logger.Logger
	devices   ports.DeviceRepository
	locations ports.LocationRepository
	alerts    ports.AlertRepository
	freshness time.Duration
	now       func() time.Time
}

// NewFleetService constructs the service with required dependencies.
// freshness is the presence window; zero falls back to the default.
func NewFleetService(
	log *logger.Logger,
	devices ports.DeviceRepository,
	locations ports.LocationRepository,
	alerts ports.AlertRepository,
	freshness time.Duration,
) ports.FleetService {
	if freshness <= 0 {
		freshness = device.DefaultFreshnessWindow
	}
	return &fleetService{
		logger:    log,
		devices:   devices,
		locations: locations,
		alerts:    alerts,
		freshness: freshness,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListDevices returns one page of the tenant's devices annotated with
// derived presence. Presence is computed per request, never stored.
func (service *fleetService) ListDevices(ctx context.Context, scope ports.Scope, q ports.DeviceListQuery) ([]ports.DeviceView, int, error) {
	now := service.now()
	q.OnlineSince = now.Add(-service.freshness)

	devices, total, err := service.devices.List(ctx, scope, q)
	if err != nil {
		return nil, 0, err
	}

	views := make([]ports.DeviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, ports.DeviceView{
			Device: dev,
			Online: device.IsOnline(dev.LastSeen, now, service.freshness),
		})
	}
	return views, total, nil
}

// GetDevice returns one device with presence annotation and its latest
// sample, when one exists.
func (service *fleetService) GetDevice(ctx context.Context, scope ports.Scope, id string) (ports.DeviceView, *telemetry.LocationSample, error) {
	dev, err := service.devices.GetByID(ctx, scope, id)
	if err != nil {
		return ports.DeviceView{}, nil, err
	}

	sample, err := service.locations.Latest(ctx, id)
	if err != nil {
		if !fault.IsKind(err, fault.KindNotFound) {
			return ports.DeviceView{}, nil, err
		}
		sample = nil
	}

	view := ports.DeviceView{
		Device: dev,
		Online: device.IsOnline(dev.LastSeen, service.now(), service.freshness),
	}
	return view, sample, nil
}

// Stats aggregates the tenant dashboard overview.
func (service *fleetService) Stats(ctx context.Context, scope ports.Scope) (ports.DashboardStats, error) {
	total, err := service.devices.Count(ctx, scope)
	if err != nil {
		return ports.DashboardStats{}, err
	}
	online, err := service.devices.CountSeenSince(ctx, scope, service.now().Add(-service.freshness))
	if err != nil {
		return ports.DashboardStats{}, err
	}
	locations, err := service.locations.Count(ctx, scope)
	if err != nil {
		return ports.DashboardStats{}, err
	}
	activeAlerts, err := service.alerts.CountActive(ctx, scope)
	if err != nil {
		return ports.DashboardStats{}, err
	}

	return ports.DashboardStats{
		TotalDevices:   total,
		OnlineDevices:  online,
		OfflineDevices: total - online,
		TotalLocations: locations,
		ActiveAlerts:   activeAlerts,
	}, nil
}

// CreateAlert records an operator alert against a device of the tenant.
func (service *fleetService) CreateAlert(ctx context.Context, scope ports.Scope, in ports.AlertInput) (*alert.Alert, error) {
	dev, err := service.devices.GetByID(ctx, scope, in.DeviceID)
	if err != nil {
		return nil, err
	}

	a, err := alert.NewAlert(in.DeviceID, dev.CompanyID, in.AlertType, in.Message)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err.Error(), err)
	}
	if err := service.alerts.Create(ctx, a); err != nil {
		return nil, err
	}

	service.logger.Info(ctx, "alert_created", "Device alert recorded", map[string]any{
		"alert_id":   a.ID,
		"device_id":  a.DeviceID,
		"alert_type": a.AlertType,
	})
	return a, nil
}

// ListAlerts returns one page of the tenant's alerts.
func (service *fleetService) ListAlerts(ctx context.Context, scope ports.Scope, q ports.AlertListQuery) ([]*alert.Alert, int, error) {
	return service.alerts.List(ctx, scope, q)
}

// ResolveAlert stamps the alert resolved. Resolution happens at most once.
func (service *fleetService) ResolveAlert(ctx context.Context, scope ports.Scope, id string) (*alert.Alert, error) {
	a, err := service.alerts.Resolve(ctx, scope, id, service.now())
	if err != nil {
		return nil, err
	}
	service.logger.Info(ctx, "alert_resolved", "Device alert resolved", map[string]any{
		"alert_id":  a.ID,
		"device_id": a.DeviceID,
	})
	return a, nil
}
