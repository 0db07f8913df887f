package service

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/geo"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeofenceRepo struct {
	fences  map[string]*geo.Geofence
	nextID  int
	deleted []string
}

func newFakeGeofenceRepo() *fakeGeofenceRepo {
	return &fakeGeofenceRepo{fences: map[string]*geo.Geofence{}}
}

func (r *fakeGeofenceRepo) Create(ctx context.Context, fence *geo.Geofence) error {
	r.nextID++
	fence.ID = "gf-" + string(rune('0'+r.nextID))
	fence.CreatedAt = time.Now().UTC()
	clone := *fence
	r.fences[fence.ID] = &clone
	return nil
}

func (r *fakeGeofenceRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*geo.Geofence, error) {
	fence, ok := r.fences[id]
	if !ok || (!scope.Admin() && fence.CompanyID != scope.CompanyID) {
		return nil, fault.NotFound("geofence")
	}
	clone := *fence
	return &clone, nil
}

func (r *fakeGeofenceRepo) List(ctx context.Context, scope ports.Scope, q ports.PageQuery) ([]*geo.Geofence, int, error) {
	out := make([]*geo.Geofence, 0, len(r.fences))
	for _, fence := range r.fences {
		if scope.Admin() || fence.CompanyID == scope.CompanyID {
			out = append(out, fence)
		}
	}
	return out, len(out), nil
}

func (r *fakeGeofenceRepo) ListActive(ctx context.Context, companyID string) ([]*geo.Geofence, error) {
	out := make([]*geo.Geofence, 0, len(r.fences))
	for _, fence := range r.fences {
		if fence.CompanyID == companyID && fence.Active {
			out = append(out, fence)
		}
	}
	return out, nil
}

func (r *fakeGeofenceRepo) Update(ctx context.Context, scope ports.Scope, fence *geo.Geofence) error {
	if _, err := r.GetByID(ctx, scope, fence.ID); err != nil {
		return err
	}
	clone := *fence
	r.fences[fence.ID] = &clone
	return nil
}

func (r *fakeGeofenceRepo) Delete(ctx context.Context, scope ports.Scope, id string) error {
	if _, err := r.GetByID(ctx, scope, id); err != nil {
		return err
	}
	delete(r.fences, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeDeviceRepo struct {
	devices map[string]*device.Device
}

func (r *fakeDeviceRepo) GetByID(ctx context.Context, scope ports.Scope, id string) (*device.Device, error) {
	d, ok := r.devices[id]
	if !ok || (!scope.Admin() && d.CompanyID != scope.CompanyID) {
		return nil, fault.NotFound("device")
	}
	return d, nil
}

func (r *fakeDeviceRepo) List(ctx context.Context, scope ports.Scope, q ports.DeviceListQuery) ([]*device.Device, int, error) {
	return nil, 0, nil
}
func (r *fakeDeviceRepo) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	return nil
}
func (r *fakeDeviceRepo) Count(ctx context.Context, scope ports.Scope) (int, error) { return 0, nil }
func (r *fakeDeviceRepo) CountSeenSince(ctx context.Context, scope ports.Scope, since time.Time) (int, error) {
	return 0, nil
}

type fakeLocationRepo struct {
	latest map[string]*telemetry.LocationSample
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
	return 0, nil
}

type geofenceFixture struct {
	svc       ports.GeofenceService
	fences    *fakeGeofenceRepo
	devices   *fakeDeviceRepo
	locations *fakeLocationRepo
}

func newGeofenceFixture() *geofenceFixture {
	fences := newFakeGeofenceRepo()
	devices := &fakeDeviceRepo{devices: map[string]*device.Device{
		"dev-1": {ID: "dev-1", CompanyID: "co-1"},
	}}
	locations := &fakeLocationRepo{latest: map[string]*telemetry.LocationSample{}}
	svc := NewGeofenceService(logger.New("geofence-test"), fences, devices, locations)
	return &geofenceFixture{svc: svc, fences: fences, devices: devices, locations: locations}
}

func managerScope() ports.Scope { return ports.Scope{CompanyID: "co-1", Role: "MANAGER"} }

func circleInput(name string, lat, lng, radius float64) ports.GeofenceInput {
	return ports.GeofenceInput{
		Name:         name,
		ShapeType:    "circle",
		Center:       &geo.Point{Lat: lat, Lng: lng},
		RadiusMeters: &radius,
	}
}

func TestCreateCircleGeofence(t *testing.T) {
	f := newGeofenceFixture()

	fence, err := f.svc.Create(context.Background(), managerScope(), circleInput("depot", 55.75, 37.61, 500))
	require.NoError(t, err)
	assert.NotEmpty(t, fence.ID)
	assert.Equal(t, "co-1", fence.CompanyID)
	assert.Equal(t, geo.ShapeCircle, fence.Shape.Type)
	assert.True(t, fence.Active)
}

func TestCreatePolygonGeofence(t *testing.T) {
	f := newGeofenceFixture()

	fence, err := f.svc.Create(context.Background(), managerScope(), ports.GeofenceInput{
		Name:      "yard",
		ShapeType: "polygon",
		Ring: []geo.Point{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, geo.ShapePolygon, fence.Shape.Type)
}

func TestCreateValidation(t *testing.T) {
	f := newGeofenceFixture()

	tests := []struct {
		name string
		in   ports.GeofenceInput
	}{
		{name: "unsupported shape", in: ports.GeofenceInput{Name: "x", ShapeType: "ellipse"}},
		{name: "circle without center", in: ports.GeofenceInput{Name: "x", ShapeType: "circle"}},
		{name: "zero radius", in: circleInput("x", 55, 37, 0)},
		{name: "latitude out of range", in: circleInput("x", 91, 37, 100)},
		{name: "short ring", in: ports.GeofenceInput{Name: "x", ShapeType: "polygon", Ring: []geo.Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}}},
		{name: "empty name", in: circleInput("   ", 55, 37, 100)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), managerScope(), tc.in)
			require.Error(t, err)
			assert.Equal(t, fault.KindValidation, fault.KindOf(err))
		})
	}
}

func TestCreateTenantPlacement(t *testing.T) {
	f := newGeofenceFixture()

	// a non-admin caller always writes into its own tenant
	in := circleInput("depot", 55, 37, 100)
	in.CompanyID = "co-other"
	fence, err := f.svc.Create(context.Background(), managerScope(), in)
	require.NoError(t, err)
	assert.Equal(t, "co-1", fence.CompanyID)

	// an admin must name the target tenant explicitly
	_, err = f.svc.Create(context.Background(), ports.Scope{Role: "ADMIN"}, circleInput("hq", 55, 37, 100))
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))

	adminIn := circleInput("hq", 55, 37, 100)
	adminIn.CompanyID = "co-2"
	fence, err = f.svc.Create(context.Background(), ports.Scope{Role: "ADMIN"}, adminIn)
	require.NoError(t, err)
	assert.Equal(t, "co-2", fence.CompanyID)
}

func TestUpdateReplacesShape(t *testing.T) {
	f := newGeofenceFixture()

	fence, err := f.svc.Create(context.Background(), managerScope(), circleInput("depot", 55.75, 37.61, 500))
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), managerScope(), fence.ID, ports.GeofenceInput{
		Name:      "depot north",
		ShapeType: "polygon",
		Ring: []geo.Point{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "depot north", updated.Name)
	assert.Equal(t, geo.ShapePolygon, updated.Shape.Type)
	assert.Equal(t, fence.ID, updated.ID)
}

func TestUpdateTogglesActive(t *testing.T) {
	f := newGeofenceFixture()

	fence, err := f.svc.Create(context.Background(), managerScope(), circleInput("depot", 55, 37, 100))
	require.NoError(t, err)
	require.True(t, fence.Active)

	off := false
	in := circleInput("depot", 55, 37, 100)
	in.Active = &off
	updated, err := f.svc.Update(context.Background(), managerScope(), fence.ID, in)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	// nil leaves the stored value untouched
	updated, err = f.svc.Update(context.Background(), managerScope(), fence.ID, circleInput("depot", 55, 37, 100))
	require.NoError(t, err)
	assert.False(t, updated.Active)

	on := true
	in.Active = &on
	updated, err = f.svc.Update(context.Background(), managerScope(), fence.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.Active)
}

func TestUpdateUnknown(t *testing.T) {
	f := newGeofenceFixture()

	_, err := f.svc.Update(context.Background(), managerScope(), "gf-missing", circleInput("x", 55, 37, 100))
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestDeleteScoped(t *testing.T) {
	f := newGeofenceFixture()

	fence, err := f.svc.Create(context.Background(), managerScope(), circleInput("depot", 55, 37, 100))
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), ports.Scope{CompanyID: "co-2", Role: "MANAGER"}, fence.ID)
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))

	require.NoError(t, f.svc.Delete(context.Background(), managerScope(), fence.ID))
	assert.Equal(t, []string{fence.ID}, f.fences.deleted)
}

func TestCheckDeviceAgainstActiveFences(t *testing.T) {
	f := newGeofenceFixture()
	scope := managerScope()

	inside, err := f.svc.Create(context.Background(), scope, circleInput("around device", 55.75, 37.61, 5000))
	require.NoError(t, err)
	outside, err := f.svc.Create(context.Background(), scope, circleInput("far away", 40.71, -74.0, 5000))
	require.NoError(t, err)

	// a deactivated fence never participates in a tenant-wide check
	inactive, err := f.svc.Create(context.Background(), scope, circleInput("disabled", 55.75, 37.61, 5000))
	require.NoError(t, err)
	off := false
	deactivate := circleInput("disabled", 55.75, 37.61, 5000)
	deactivate.Active = &off
	disabled, err := f.svc.Update(context.Background(), scope, inactive.ID, deactivate)
	require.NoError(t, err)
	require.False(t, disabled.Active)

	recorded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.locations.latest["dev-1"] = &telemetry.LocationSample{
		DeviceID: "dev-1", Latitude: 55.75, Longitude: 37.61, RecordedAt: recorded,
	}

	report, err := f.svc.CheckDevice(context.Background(), scope, "dev-1", "")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", report.DeviceID)
	assert.Equal(t, recorded, report.RecordedAt)
	require.Len(t, report.Geofences, 2)

	byID := map[string]bool{}
	for _, m := range report.Geofences {
		byID[m.GeofenceID] = m.Inside
	}
	assert.True(t, byID[inside.ID])
	assert.False(t, byID[outside.ID])
}

func TestCheckDeviceSingleFence(t *testing.T) {
	f := newGeofenceFixture()
	scope := managerScope()

	fence, err := f.svc.Create(context.Background(), scope, circleInput("depot", 55.75, 37.61, 5000))
	require.NoError(t, err)
	f.locations.latest["dev-1"] = &telemetry.LocationSample{
		DeviceID: "dev-1", Latitude: 55.75, Longitude: 37.61, RecordedAt: time.Now().UTC(),
	}

	report, err := f.svc.CheckDevice(context.Background(), scope, "dev-1", fence.ID)
	require.NoError(t, err)
	require.Len(t, report.Geofences, 1)
	assert.Equal(t, fence.ID, report.Geofences[0].GeofenceID)
	assert.True(t, report.Geofences[0].Inside)
}

func TestCheckDeviceWithoutSamples(t *testing.T) {
	f := newGeofenceFixture()

	_, err := f.svc.CheckDevice(context.Background(), managerScope(), "dev-1", "")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}
