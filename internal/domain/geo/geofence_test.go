package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCircleFence(t *testing.T, id, name string, center Point, radius float64) Geofence {
	t.Helper()
	shape, err := NewCircleShape(center, radius)
	require.NoError(t, err)
	fence, err := NewGeofence("company-1", name, shape)
	require.NoError(t, err)
	fence.ID = id
	return *fence
}

func TestNewGeofence(t *testing.T) {
	shape, err := NewCircleShape(Point{Lat: 1, Lng: 1}, 10)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		fence, err := NewGeofence("company-1", "  depot  ", shape)
		require.NoError(t, err)
		assert.Equal(t, "depot", fence.Name)
		assert.True(t, fence.Active)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := NewGeofence("company-1", "   ", shape)
		assert.ErrorIs(t, err, ErrEmptyGeofenceName)
	})

	t.Run("missing company", func(t *testing.T) {
		_, err := NewGeofence("", "depot", shape)
		assert.ErrorIs(t, err, ErrEmptyCompanyID)
	})
}

func TestEvaluate(t *testing.T) {
	inside := mustCircleFence(t, "f1", "near", Point{Lat: 0, Lng: 0}, 150000)
	outside := mustCircleFence(t, "f2", "far", Point{Lat: 50, Lng: 50}, 1000)
	alsoInside := mustCircleFence(t, "f3", "wide", Point{Lat: 0.5, Lng: 0}, 200000)

	p := Point{Lat: 1, Lng: 0}
	memberships := Evaluate(p, []Geofence{inside, outside, alsoInside})

	require.Len(t, memberships, 3)
	// one result per fence, in input order
	assert.Equal(t, "f1", memberships[0].GeofenceID)
	assert.Equal(t, "f2", memberships[1].GeofenceID)
	assert.Equal(t, "f3", memberships[2].GeofenceID)

	assert.True(t, memberships[0].Inside)
	assert.False(t, memberships[1].Inside)
	assert.True(t, memberships[2].Inside)

	t.Run("no fences", func(t *testing.T) {
		assert.Empty(t, Evaluate(p, nil))
	})
}
