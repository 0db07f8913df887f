package telemetry

import (
	"time"

	"fleettrack/internal/domain/geo"
)

// RouteStats aggregates an ordered sample sequence for one device. All
// speed figures are device-reported; the average is the arithmetic mean
// over every sample (absent speed counted as 0), not derived from
// distance over time.
type RouteStats struct {
	TotalDistanceMeters float64 `json:"total_distance_meters"`
	MaxSpeed            float64 `json:"max_speed"`
	AvgSpeed            float64 `json:"avg_speed"`
	DurationMs          int64   `json:"duration_ms"`
	PointCount          int     `json:"point_count"`
}

// ComputeRouteStats folds statistics over samples ordered strictly
// ascending by recorded_at. Fewer than 2 samples yield zero distance and
// duration; the speed aggregates still cover whatever samples exist.
func ComputeRouteStats(samples []*LocationSample) RouteStats {
	stats := RouteStats{PointCount: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var speedSum float64
	for i, sample := range samples {
		speed := sample.SpeedOrZero()
		speedSum += speed
		if speed > stats.MaxSpeed {
			stats.MaxSpeed = speed
		}
		if i > 0 {
			stats.TotalDistanceMeters += geo.Haversine(samples[i-1].Point(), sample.Point())
		}
	}
	stats.AvgSpeed = speedSum / float64(len(samples))

	if len(samples) >= 2 {
		first := samples[0].RecordedAt
		last := samples[len(samples)-1].RecordedAt
		stats.DurationMs = last.Sub(first).Milliseconds()
	}
	return stats
}

// TimeRange bounds a sample query; either side may be open.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}
