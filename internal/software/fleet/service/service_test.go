package service

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceRepo struct {
	devices     []*device.Device
	gotQuery    ports.DeviceListQuery
	seenSince   time.Time
	onlineCount int
}

func (r *fakeDeviceRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*device.Device, error) {
	for _, d := range r.devices {
		if d.ID == id && (scope.Admin() || d.CompanyID == scope.CompanyID) {
			return d, nil
		}
	}
	return nil, fault.NotFound("device")
}

func (r *fakeDeviceRepo) List(ctx context.Context, scope ports.Scope, q ports.DeviceListQuery) ([]*device.Device, int, error) {
	r.gotQuery = q
	return r.devices, len(r.devices), nil
}

func (r *fakeDeviceRepo) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	return nil
}

func (r *fakeDeviceRepo) Count(ctx context.Context, scope ports.Scope) (int, error) {
	return len(r.devices), nil
}

func (r *fakeDeviceRepo) CountSeenSince(ctx context.Context, scope ports.Scope, since time.Time) (int, error) {
	r.seenSince = since
	return r.onlineCount, nil
}

type fakeLocationRepo struct {
	latest     map[string]*telemetry.LocationSample
	totalCount int
}

func (r *fakeLocationRepo) Append(ctx context.Context, sample *telemetry.LocationSample) error {
	return nil
}

func (r *fakeLocationRepo) Latest(ctx context.Context, deviceID string) (*telemetry.LocationSample, error) {
	if s, ok := r.latest[deviceID]; ok {
		return s, nil
	}
	return nil, fault.NotFound("location sample")
}

func (r *fakeLocationRepo) RangeAsc(ctx context.Context, deviceID string, window telemetry.TimeRange) ([]*telemetry.LocationSample, error) {
	return nil, nil
}

func (r *fakeLocationRepo) List(ctx context.Context, deviceID string, window telemetry.TimeRange, q ports.PageQuery) ([]*telemetry.LocationSample, int, error) {
	return nil, 0, nil
}

func (r *fakeLocationRepo) Heatmap(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange) ([]ports.HeatmapBucket, error) {
	return nil, nil
}

func (r *fakeLocationRepo) Count(ctx context.Context, scope ports.Scope) (int, error) {
	return r.totalCount, nil
}

type fakeAlertRepo struct {
	alerts      map[string]*alert.Alert
	activeCount int
	created     []*alert.Alert
}

func (r *fakeAlertRepo) Create(ctx context.Context, a *alert.Alert) error {
	a.ID = "alert-1"
	r.created = append(r.created, a)
	return nil
}

func (r *fakeAlertRepo) List(ctx context.Context, scope ports.Scope, q ports.AlertListQuery) ([]*alert.Alert, int, error) {
	out := make([]*alert.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (r *fakeAlertRepo) Resolve(ctx context.Context, scope ports.Scope, id string, at time.Time) (*alert.Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return nil, fault.NotFound("alert")
	}
	if a.Resolved() {
		return nil, fault.New(fault.KindConflict, "alert is already resolved")
	}
	a.ResolvedAt = &at
	return a, nil
}

func (r *fakeAlertRepo) CountActive(ctx context.Context, scope ports.Scope) (int, error) {
	return r.activeCount, nil
}

var fleetNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newFleetFixture(devices *fakeDeviceRepo, locations *fakeLocationRepo, alerts *fakeAlertRepo) ports.FleetService {
	svc := NewFleetService(logger.New("fleet-test"), devices, locations, alerts, 300*time.Second)
	svc.(*fleetService).now = func() time.Time { return fleetNow }
	return svc
}

func seen(ago time.Duration) *time.Time {
	ts := fleetNow.Add(-ago)
	return &ts
}

func TestListDevicesAnnotatesPresence(t *testing.T) {
	devices := &fakeDeviceRepo{devices: []*device.Device{
		{ID: "dev-fresh", CompanyID: "co-1", LastSeen: seen(30 * time.Second)},
		{ID: "dev-edge", CompanyID: "co-1", LastSeen: seen(300 * time.Second)},
		{ID: "dev-stale", CompanyID: "co-1", LastSeen: seen(2 * time.Hour)},
		{ID: "dev-never", CompanyID: "co-1"},
	}}
	svc := newFleetFixture(devices, &fakeLocationRepo{}, &fakeAlertRepo{})

	views, total, err := svc.ListDevices(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ports.DeviceListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	online := map[string]bool{}
	for _, v := range views {
		online[v.ID] = v.Online
	}
	assert.True(t, online["dev-fresh"])
	// a device seen exactly one window ago is already offline
	assert.False(t, online["dev-edge"])
	assert.False(t, online["dev-stale"])
	assert.False(t, online["dev-never"])

	// the repository filter cutoff mirrors the same window
	assert.Equal(t, fleetNow.Add(-300*time.Second), devices.gotQuery.OnlineSince)
}

func TestGetDeviceWithLatestSample(t *testing.T) {
	devices := &fakeDeviceRepo{devices: []*device.Device{
		{ID: "dev-1", CompanyID: "co-1", LastSeen: seen(time.Minute)},
	}}
	locations := &fakeLocationRepo{latest: map[string]*telemetry.LocationSample{
		"dev-1": {ID: "smp-1", DeviceID: "dev-1", Latitude: 55.75, Longitude: 37.61, RecordedAt: fleetNow},
	}}
	svc := newFleetFixture(devices, locations, &fakeAlertRepo{})

	view, sample, err := svc.GetDevice(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-1")
	require.NoError(t, err)
	assert.True(t, view.Online)
	require.NotNil(t, sample)
	assert.Equal(t, "smp-1", sample.ID)
}

func TestGetDeviceWithoutSamples(t *testing.T) {
	devices := &fakeDeviceRepo{devices: []*device.Device{
		{ID: "dev-1", CompanyID: "co-1"},
	}}
	svc := newFleetFixture(devices, &fakeLocationRepo{}, &fakeAlertRepo{})

	view, sample, err := svc.GetDevice(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-1")
	require.NoError(t, err)
	assert.False(t, view.Online)
	assert.Nil(t, sample)
}

func TestGetDeviceUnknown(t *testing.T) {
	svc := newFleetFixture(&fakeDeviceRepo{}, &fakeLocationRepo{}, &fakeAlertRepo{})

	_, _, err := svc.GetDevice(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-x")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestStats(t *testing.T) {
	devices := &fakeDeviceRepo{
		devices: []*device.Device{
			{ID: "dev-1", CompanyID: "co-1"},
			{ID: "dev-2", CompanyID: "co-1"},
			{ID: "dev-3", CompanyID: "co-1"},
		},
		onlineCount: 2,
	}
	locations := &fakeLocationRepo{totalCount: 1204}
	alerts := &fakeAlertRepo{activeCount: 3}
	svc := newFleetFixture(devices, locations, alerts)

	stats, err := svc.Stats(context.Background(), ports.Scope{CompanyID: "co-1", Role: "MANAGER"})
	require.NoError(t, err)
	assert.Equal(t, ports.DashboardStats{
		TotalDevices:   3,
		OnlineDevices:  2,
		OfflineDevices: 1,
		TotalLocations: 1204,
		ActiveAlerts:   3,
	}, stats)
	assert.Equal(t, fleetNow.Add(-300*time.Second), devices.seenSince)
}

func TestCreateAlert(t *testing.T) {
	devices := &fakeDeviceRepo{devices: []*device.Device{
		{ID: "dev-1", CompanyID: "co-1"},
	}}
	alerts := &fakeAlertRepo{}
	svc := newFleetFixture(devices, &fakeLocationRepo{}, alerts)

	a, err := svc.CreateAlert(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ports.AlertInput{
		DeviceID:  "dev-1",
		AlertType: "speeding",
		Message:   "92 km/h in a 60 zone",
	})
	require.NoError(t, err)
	assert.Equal(t, "co-1", a.CompanyID)
	assert.Equal(t, "speeding", a.AlertType)
	require.Len(t, alerts.created, 1)
}

func TestCreateAlertValidation(t *testing.T) {
	devices := &fakeDeviceRepo{devices: []*device.Device{
		{ID: "dev-1", CompanyID: "co-1"},
	}}
	svc := newFleetFixture(devices, &fakeLocationRepo{}, &fakeAlertRepo{})

	_, err := svc.CreateAlert(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ports.AlertInput{
		DeviceID:  "dev-1",
		AlertType: "  ",
	})
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestCreateAlertUnknownDevice(t *testing.T) {
	svc := newFleetFixture(&fakeDeviceRepo{}, &fakeLocationRepo{}, &fakeAlertRepo{})

	_, err := svc.CreateAlert(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ports.AlertInput{
		DeviceID:  "dev-x",
		AlertType: "speeding",
	})
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestResolveAlert(t *testing.T) {
	alerts := &fakeAlertRepo{alerts: map[string]*alert.Alert{
		"alert-1": {ID: "alert-1", DeviceID: "dev-1", CompanyID: "co-1", AlertType: "speeding"},
	}}
	svc := newFleetFixture(&fakeDeviceRepo{}, &fakeLocationRepo{}, alerts)
	scope := ports.Scope{CompanyID: "co-1", Role: "MANAGER"}

	a, err := svc.ResolveAlert(context.Background(), scope, "alert-1")
	require.NoError(t, err)
	require.NotNil(t, a.ResolvedAt)
	assert.Equal(t, fleetNow, *a.ResolvedAt)

	_, err = svc.ResolveAlert(context.Background(), scope, "alert-1")
	require.Error(t, err)
	assert.Equal(t, fault.KindConflict, fault.KindOf(err))
}

func TestFreshnessFallback(t *testing.T) {
	svc := NewFleetService(logger.New("fleet-test"), &fakeDeviceRepo{}, &fakeLocationRepo{}, &fakeAlertRepo{}, 0)
	assert.Equal(t, device.DefaultFreshnessWindow, svc.(*fleetService).freshness)
}
