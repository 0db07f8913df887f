package service

import (
	"context"
	"errors"

	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/contracts"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/metrics"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"
)

// ErrRateLimited is returned when a device submits samples faster than its
// token bucket allows.
var ErrRateLimited = errors.New("device sample rate exceeded")

// trackingService holds all dependencies required by telemetry ingestion
// and route analytics.
type trackingService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	devices   ports.DeviceRepository
	locations ports.LocationRepository
	feed      ports.LiveFeed
	limiter   *mw.DeviceRateLimiter
}

// NewTrackingService constructs the service with required dependencies.
func NewTrackingService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	devices ports.DeviceRepository,
	locations ports.LocationRepository,
	feed ports.LiveFeed,
	limiter *mw.DeviceRateLimiter,
) ports.TrackingService {
	return &trackingService{
		logger:    log,
		uow:       uow,
		devices:   devices,
		locations: locations,
		feed:      feed,
		limiter:   limiter,
	}
}

// Ingest validates and persists one telemetry sample, advancing the
// device's last_seen in the same transaction so presence and the sample
// log never disagree.
func (service *trackingService) Ingest(ctx context.Context, scope ports.Scope, in ports.IngestInput) (ports.IngestResult, error) {
	sample, err := telemetry.NewLocationSample(in.DeviceID, in.Latitude, in.Longitude, in.Speed, in.Heading, in.RawPayload)
	if err != nil {
		metrics.SamplesIngested.WithLabelValues("rejected").Inc()
		return ports.IngestResult{}, fault.Wrap(fault.KindValidation, err.Error(), err)
	}

	if service.limiter != nil && !service.limiter.Allow(sample.DeviceID) {
		metrics.SamplesIngested.WithLabelValues("rate_limited").Inc()
		return ports.IngestResult{}, ErrRateLimited
	}

	var companyID string
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		dev, err := service.devices.GetByID(ctx, scope, sample.DeviceID)
		if err != nil {
			return err
		}
		companyID = dev.CompanyID

		if err := service.locations.Append(ctx, sample); err != nil {
			return err
		}
		// recorded_at is now filled by the insert
		return service.devices.TouchLastSeen(ctx, sample.DeviceID, sample.RecordedAt)
	})
	if err != nil {
		metrics.SamplesIngested.WithLabelValues("failed").Inc()
		service.logger.Error(ctx, "telemetry_ingest_failed", "Failed to persist telemetry sample", err, map[string]any{
			"device_id": sample.DeviceID,
		})
		return ports.IngestResult{}, err
	}
	metrics.SamplesIngested.WithLabelValues("ok").Inc()

	if service.feed != nil {
		service.feed.Broadcast(companyID, contracts.LiveLocationUpdate{
			DeviceID:   sample.DeviceID,
			Latitude:   sample.Latitude,
			Longitude:  sample.Longitude,
			Speed:      sample.Speed,
			Heading:    sample.Heading,
			RecordedAt: sample.RecordedAt,
		})
	}

	return ports.IngestResult{SampleID: sample.ID, RecordedAt: sample.RecordedAt}, nil
}

// ComputeRoute reconstructs the sample sequence for a device within the
// window and folds route statistics over it.
func (service *trackingService) ComputeRoute(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange) (ports.RouteResult, error) {
	if _, err := service.devices.GetByID(ctx, scope, deviceID); err != nil {
		return ports.RouteResult{}, err
	}
	samples, err := service.locations.RangeAsc(ctx, deviceID, window)
	if err != nil {
		return ports.RouteResult{}, err
	}
	return ports.RouteResult{
		Samples: samples,
		Stats:   telemetry.ComputeRouteStats(samples),
	}, nil
}

// Latest returns the most recent sample of a device.
func (service *trackingService) Latest(ctx context.Context, scope ports.Scope, deviceID string) (*telemetry.LocationSample, error) {
	if _, err := service.devices.GetByID(ctx, scope, deviceID); err != nil {
		return nil, err
	}
	return service.locations.Latest(ctx, deviceID)
}

// History returns one page of a device's sample log.
func (service *trackingService) History(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange, q ports.PageQuery) (ports.HistoryResult, error) {
	if _, err := service.devices.GetByID(ctx, scope, deviceID); err != nil {
		return ports.HistoryResult{}, err
	}
	samples, total, err := service.locations.List(ctx, deviceID, window, q)
	if err != nil {
		return ports.HistoryResult{}, err
	}
	return ports.HistoryResult{Samples: samples, Total: total}, nil
}

// Heatmap aggregates sample density into rounded coordinate buckets, for
// one device or the whole tenant when deviceID is empty.
func (service *trackingService) Heatmap(ctx context.Context, scope ports.Scope, deviceID string, window telemetry.TimeRange) ([]ports.HeatmapBucket, error) {
	if deviceID != "" {
		if _, err := service.devices.GetByID(ctx, scope, deviceID); err != nil {
			return nil, err
		}
	}
	return service.locations.Heatmap(ctx, scope, deviceID, window)
}
