package telemetry

import (
	"testing"
	"time"

	"fleettrack/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(t *testing.T, lat, lng float64, speed *float64, at time.Time) *LocationSample {
	t.Helper()
	s, err := NewLocationSample("dev-1", lat, lng, speed, nil, nil)
	require.NoError(t, err)
	s.RecordedAt = at
	return s
}

func speedOf(v float64) *float64 { return &v }

func TestComputeRouteStats(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("three sample route", func(t *testing.T) {
		samples := []*LocationSample{
			sampleAt(t, 0, 0, speedOf(10), start),
			sampleAt(t, 0, 1, speedOf(20), start.Add(1*time.Minute)),
			sampleAt(t, 0, 2, speedOf(30), start.Add(2*time.Minute)),
		}
		stats := ComputeRouteStats(samples)

		assert.Equal(t, 3, stats.PointCount)
		assert.Equal(t, 30.0, stats.MaxSpeed)
		assert.Equal(t, 20.0, stats.AvgSpeed)
		assert.Equal(t, int64(120000), stats.DurationMs)

		// two one-degree equatorial hops
		expected := 2 * geo.Haversine(geo.Point{Lat: 0, Lng: 0}, geo.Point{Lat: 0, Lng: 1})
		assert.InDelta(t, expected, stats.TotalDistanceMeters, 1)
	})

	t.Run("absent speed counts as zero", func(t *testing.T) {
		samples := []*LocationSample{
			sampleAt(t, 0, 0, nil, start),
			sampleAt(t, 0, 1, speedOf(30), start.Add(time.Minute)),
		}
		stats := ComputeRouteStats(samples)
		assert.Equal(t, 15.0, stats.AvgSpeed)
		assert.Equal(t, 30.0, stats.MaxSpeed)
	})

	t.Run("single sample", func(t *testing.T) {
		stats := ComputeRouteStats([]*LocationSample{sampleAt(t, 10, 10, speedOf(42), start)})
		assert.Equal(t, 1, stats.PointCount)
		assert.Equal(t, 0.0, stats.TotalDistanceMeters)
		assert.Equal(t, int64(0), stats.DurationMs)
		assert.Equal(t, 42.0, stats.AvgSpeed)
		assert.Equal(t, 42.0, stats.MaxSpeed)
	})

	t.Run("empty", func(t *testing.T) {
		stats := ComputeRouteStats(nil)
		assert.Equal(t, RouteStats{}, stats)
	})
}

func TestSampleValidation(t *testing.T) {
	testCases := []struct {
		name    string
		lat     float64
		lng     float64
		speed   *float64
		heading *float64
		wantErr error
	}{
		{"valid", 41.3, 69.2, speedOf(12), speedOf(359.9), nil},
		{"latitude out of range", 90.5, 0, nil, nil, ErrInvalidLatitude},
		{"longitude out of range", 0, -180.5, nil, nil, ErrInvalidLongitude},
		{"negative speed", 0, 0, speedOf(-1), nil, ErrNegativeSpeed},
		{"heading at 360 rejected", 0, 0, nil, speedOf(360), ErrInvalidHeading},
		{"heading at 0 allowed", 0, 0, nil, speedOf(0), nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLocationSample("dev-1", tc.lat, tc.lng, tc.speed, tc.heading, nil)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("missing device", func(t *testing.T) {
		_, err := NewLocationSample("  ", 0, 0, nil, nil, nil)
		assert.ErrorIs(t, err, ErrMissingDeviceID)
	})
}
