package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"fleettrack/internal/domain/geo"
)

var (
	ErrMissingDeviceID  = errors.New("device ID is missing")
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrNegativeSpeed    = errors.New("speed cannot be negative")
	ErrInvalidHeading   = errors.New("heading must be in [0, 360)")
	ErrZeroRecordedAt   = errors.New("recorded_at must be a valid timestamp")
)

// LocationSample is the domain entity corresponding to the `locations`
// table. Samples are immutable once written and append-only; the ordering
// key is (device_id, recorded_at) with recorded_at assigned by the server.
type LocationSample struct {
	ID         string
	DeviceID   string
	Latitude   float64
	Longitude  float64
	Speed      *float64
	Heading    *float64
	RecordedAt time.Time
	RawPayload json.RawMessage
}

// NewLocationSample constructs a validated sample. Speed and heading are
// optional; recorded_at is left zero here because the store assigns it at
// insert time.
func NewLocationSample(deviceID string, lat, lng float64, speed, heading *float64, rawPayload json.RawMessage) (*LocationSample, error) {
	sample := &LocationSample{
		DeviceID:   strings.TrimSpace(deviceID),
		Latitude:   lat,
		Longitude:  lng,
		Speed:      speed,
		Heading:    heading,
		RawPayload: rawPayload,
	}
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	return sample, nil
}

// Validate checks invariants of the LocationSample entity.
func (sample *LocationSample) Validate() error {
	if sample.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if !geo.ValidLatitude(sample.Latitude) {
		return ErrInvalidLatitude
	}
	if !geo.ValidLongitude(sample.Longitude) {
		return ErrInvalidLongitude
	}
	if sample.Speed != nil && (*sample.Speed < 0 || math.IsNaN(*sample.Speed)) {
		return ErrNegativeSpeed
	}
	if sample.Heading != nil && (*sample.Heading < 0 || *sample.Heading >= 360 || math.IsNaN(*sample.Heading)) {
		return ErrInvalidHeading
	}
	return nil
}

// Point returns the sample position as a geometry kernel point.
func (sample *LocationSample) Point() geo.Point {
	return geo.Point{Lat: sample.Latitude, Lng: sample.Longitude}
}

// SpeedOrZero returns the reported speed, treating an absent reading as 0.
func (sample *LocationSample) SpeedOrZero() float64 {
	if sample.Speed == nil {
		return 0
	}
	return *sample.Speed
}
