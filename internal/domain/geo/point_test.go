package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	moscow := Point{Lat: 55.7558, Lng: 37.6173}
	spb := Point{Lat: 59.9311, Lng: 30.3609}

	t.Run("zero distance to itself", func(t *testing.T) {
		assert.Equal(t, 0.0, Haversine(moscow, moscow))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.InDelta(t, Haversine(moscow, spb), Haversine(spb, moscow), 1e-9)
	})

	t.Run("known distance", func(t *testing.T) {
		// Moscow to Saint Petersburg is roughly 633 km great-circle
		d := Haversine(moscow, spb)
		assert.InDelta(t, 633000, d, 5000)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		a := Point{Lat: 0, Lng: 0}
		b := Point{Lat: 1, Lng: 0}
		assert.InDelta(t, 111195, Haversine(a, b), 100)
	})
}

func TestPointInCircle(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	onBoundary := Point{Lat: 1, Lng: 0}
	radius := Haversine(center, onBoundary)

	testCases := []struct {
		name   string
		p      Point
		radius float64
		inside bool
	}{
		{"center itself", center, 100, true},
		{"exactly on boundary", onBoundary, radius, true},
		{"just outside", Point{Lat: 1.001, Lng: 0}, radius, false},
		{"well inside", Point{Lat: 0.5, Lng: 0}, radius, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.inside, PointInCircle(tc.p, center, tc.radius))
		})
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}

	testCases := []struct {
		name   string
		p      Point
		ring   []Point
		inside bool
	}{
		{"centroid", Point{Lat: 5, Lng: 5}, square, true},
		{"outside", Point{Lat: 15, Lng: 5}, square, false},
		{"near edge inside", Point{Lat: 0.001, Lng: 5}, square, true},
		{"degenerate two-vertex ring", Point{Lat: 5, Lng: 5}, square[:2], false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.inside, PointInPolygon(tc.p, tc.ring))
		})
	}

	t.Run("concave polygon notch excluded", func(t *testing.T) {
		// U-shape: the notch between the arms is outside
		u := []Point{
			{Lat: 0, Lng: 0},
			{Lat: 10, Lng: 0},
			{Lat: 10, Lng: 4},
			{Lat: 2, Lng: 4},
			{Lat: 2, Lng: 6},
			{Lat: 10, Lng: 6},
			{Lat: 10, Lng: 10},
			{Lat: 0, Lng: 10},
		}
		assert.False(t, PointInPolygon(Point{Lat: 8, Lng: 5}, u))
		assert.True(t, PointInPolygon(Point{Lat: 1, Lng: 5}, u))
	})
}

func TestCoordinateRanges(t *testing.T) {
	assert.True(t, ValidLatitude(90))
	assert.True(t, ValidLatitude(-90))
	assert.False(t, ValidLatitude(90.0001))
	assert.True(t, ValidLongitude(180))
	assert.False(t, ValidLongitude(-180.0001))
}
