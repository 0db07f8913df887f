package geo

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyGeofenceName = errors.New("geofence name cannot be empty")
	ErrEmptyCompanyID    = errors.New("company_id cannot be empty")
)

// Geofence is the domain entity corresponding to the `geofences` table.
// Every geofence belongs to exactly one company; the ingestion path only
// ever reads these records.
type Geofence struct {
	ID        string
	CompanyID string
	Name      string
	Shape     Shape
	Active    bool
	CreatedAt time.Time
}

// NewGeofence constructs a validated, active Geofence.
func NewGeofence(companyID, name string, shape Shape) (*Geofence, error) {
	fence := &Geofence{
		CompanyID: strings.TrimSpace(companyID),
		Name:      strings.TrimSpace(name),
		Shape:     shape,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := fence.Validate(); err != nil {
		return nil, err
	}
	return fence, nil
}

// Validate checks invariants of the Geofence entity.
func (fence *Geofence) Validate() error {
	if strings.TrimSpace(fence.CompanyID) == "" {
		return ErrEmptyCompanyID
	}
	if strings.TrimSpace(fence.Name) == "" {
		return ErrEmptyGeofenceName
	}
	return fence.Shape.Validate()
}

// Membership is the result of testing one point against one geofence.
type Membership struct {
	GeofenceID string `json:"geofence_id"`
	Name       string `json:"name"`
	Inside     bool   `json:"inside"`
}

// Evaluate tests a point against every fence in order and returns one
// Membership per fence. Results are recomputed on every call; membership is
// never cached so geofence edits take effect immediately.
func Evaluate(p Point, fences []Geofence) []Membership {
	out := make([]Membership, 0, len(fences))
	for _, fence := range fences {
		out = append(out, Membership{
			GeofenceID: fence.ID,
			Name:       fence.Name,
			Inside:     fence.Shape.Contains(p),
		})
	}
	return out
}
