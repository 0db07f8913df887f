package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fleettrack/internal/domain/device"
	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/contracts"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeUnitOfWork struct {
	calls int
	err   error
}

func (u *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.calls++
	if u.err != nil {
		return u.err
	}
	return fn(ctx)
}

type fakeDeviceRepo struct {
	devices    map[string]*device.Device
	lastSeenAt map[string]time.Time
}

func newFakeDeviceRepo(devices ...*device.Device) *fakeDeviceRepo {
	r := &fakeDeviceRepo{devices: map[string]*device.Device{}, lastSeenAt: map[string]time.Time{}}
	for _, d := range devices {
		r.devices[d.ID] = d
	}
	return r
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
	r.lastSeenAt[deviceID] = at
	return nil
}

func (r *fakeDeviceRepo) Count(ctx context.Context, scope ports.Scope) (int, error) { return 0, nil }
func (r *fakeDeviceRepo) CountSeenSince(ctx context.Context, scope ports.Scope, since time.Time) (int, error) {
	return 0, nil
}

type fakeLocationRepo struct {
	appended  []*telemetry.LocationSample
	appendErr error
	samples   []*telemetry.LocationSample
	buckets   []ports.HeatmapBucket
}

func (r *fakeLocationRepo) Append(ctx context.Context, sample *telemetry.LocationSample) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	sample.ID = "smp-1"
	sample.RecordedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.appended = append(r.appended, sample)
	return nil
}

func (r *fakeLocationRepo) Latest(ctx context.Context, deviceID string) (*telemetry.LocationSample, error) {
	if len(r.samples) == 0 {
		return nil, fault.NotFound("location sample")
	}
	return r.samples[len(r.samples)-1], nil
}

func (r *fakeLocationRepo) RangeAsc(ctx context.Context, deviceID string, window telemetry.TimeRange) ([]*telemetry.LocationSample, error) {
	return r.samples, nil
}

func (r *fakeLocationRepo) List(ctx context.Context, deviceID string, window telemetry.TimeRange, q ports.PageQuery) ([]*telemetry.LocationSample, int, error) {
	return r.samples, len(r.samples), nil
}

func (r *fakeLocationRepo) Heatmap(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange) ([]ports.HeatmapBucket, error) {
	return r.buckets, nil
}

func (r *fakeLocationRepo) Count(ctx context.Context, scope ports.Scope) (int, error) {
	return len(r.samples), nil
}

type fakeFeed struct {
	updates   []contracts.LiveLocationUpdate
	companies []string
}

func (f *fakeFeed) Broadcast(companyID string, update contracts.LiveLocationUpdate) {
	f.companies = append(f.companies, companyID)
	f.updates = append(f.updates, update)
}

type trackingFixture struct {
	svc       ports.TrackingService
	uow       *fakeUnitOfWork
	devices   *fakeDeviceRepo
	locations *fakeLocationRepo
	feed      *fakeFeed
}

func newTrackingFixture(limiter *mw.DeviceRateLimiter) *trackingFixture {
	uow := &fakeUnitOfWork{}
	devices := newFakeDeviceRepo(&device.Device{ID: "dev-1", CompanyID: "co-1", IMEI: "356938035643809"})
	locations := &fakeLocationRepo{}
	feed := &fakeFeed{}
	svc := NewTrackingService(logger.New("tracking-test"), uow, devices, locations, feed, limiter)
	return &trackingFixture{svc: svc, uow: uow, devices: devices, locations: locations, feed: feed}
}

func ingestInput() ports.IngestInput {
	speed := 42.5
	return ports.IngestInput{
		DeviceID:   "dev-1",
		Latitude:   55.7558,
		Longitude:  37.6173,
		Speed:      &speed,
		RawPayload: json.RawMessage(`{"battery":87}`),
	}
}

func TestIngestHappyPath(t *testing.T) {
	f := newTrackingFixture(nil)

	res, err := f.svc.Ingest(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ingestInput())
	require.NoError(t, err)
	assert.Equal(t, "smp-1", res.SampleID)
	assert.False(t, res.RecordedAt.IsZero())

	require.Len(t, f.locations.appended, 1)
	assert.Equal(t, 1, f.uow.calls)
	// last_seen advances with the same timestamp the insert assigned
	assert.Equal(t, res.RecordedAt, f.devices.lastSeenAt["dev-1"])

	require.Len(t, f.feed.updates, 1)
	assert.Equal(t, []string{"co-1"}, f.feed.companies)
	assert.Equal(t, "dev-1", f.feed.updates[0].DeviceID)
	assert.Equal(t, 55.7558, f.feed.updates[0].Latitude)
}

func TestIngestRejectsInvalidCoordinates(t *testing.T) {
	f := newTrackingFixture(nil)

	in := ingestInput()
	in.Latitude = 91

	_, err := f.svc.Ingest(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, in)
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
	assert.Equal(t, 0, f.uow.calls)
	assert.Empty(t, f.feed.updates)
}

func TestIngestUnknownDevice(t *testing.T) {
	f := newTrackingFixture(nil)

	in := ingestInput()
	in.DeviceID = "dev-missing"

	_, err := f.svc.Ingest(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, in)
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
	assert.Empty(t, f.locations.appended)
	assert.Empty(t, f.feed.updates)
}

func TestIngestRateLimited(t *testing.T) {
	// one token, no refill worth mentioning within the test
	limiter := mw.NewDeviceRateLimiter(rate.Limit(0.001), 1)
	f := newTrackingFixture(limiter)
	scope := ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}

	_, err := f.svc.Ingest(context.Background(), scope, ingestInput())
	require.NoError(t, err)

	_, err = f.svc.Ingest(context.Background(), scope, ingestInput())
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, f.locations.appended, 1)
}

func TestIngestTransactionFailureSkipsBroadcast(t *testing.T) {
	f := newTrackingFixture(nil)
	f.locations.appendErr = errors.New("connection reset")

	_, err := f.svc.Ingest(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, ingestInput())
	require.Error(t, err)
	assert.Empty(t, f.feed.updates)
	// last_seen must not advance when the sample insert failed
	assert.Empty(t, f.devices.lastSeenAt)
}

func TestComputeRoute(t *testing.T) {
	f := newTrackingFixture(nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	speed10, speed30 := 10.0, 30.0
	f.locations.samples = []*telemetry.LocationSample{
		{DeviceID: "dev-1", Latitude: 0, Longitude: 0, Speed: &speed10, RecordedAt: base},
		{DeviceID: "dev-1", Latitude: 0, Longitude: 1, Speed: &speed30, RecordedAt: base.Add(time.Minute)},
	}

	res, err := f.svc.ComputeRoute(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-1", telemetry.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, res.Samples, 2)
	assert.Equal(t, 2, res.Stats.PointCount)
	assert.Equal(t, 30.0, res.Stats.MaxSpeed)
	assert.InDelta(t, 111195, res.Stats.TotalDistanceMeters, 100)
}

func TestComputeRouteUnknownDevice(t *testing.T) {
	f := newTrackingFixture(nil)

	_, err := f.svc.ComputeRoute(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-x", telemetry.TimeRange{})
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestHeatmapTenantWide(t *testing.T) {
	f := newTrackingFixture(nil)
	f.locations.buckets = []ports.HeatmapBucket{{Lat: 55.76, Lng: 37.62, Intensity: 14}}

	// an empty device id aggregates the whole tenant and skips the
	// device existence check
	buckets, err := f.svc.Heatmap(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "", telemetry.TimeRange{})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 14, buckets[0].Intensity)
}

func TestHeatmapUnknownDevice(t *testing.T) {
	f := newTrackingFixture(nil)

	_, err := f.svc.Heatmap(context.Background(), ports.Scope{CompanyID: "co-1", Role: "OPERATOR"}, "dev-x", telemetry.TimeRange{})
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}
