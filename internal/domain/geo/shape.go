package geo

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ShapeType discriminates the persisted geometry variants.
type ShapeType string

const (
	ShapeCircle  ShapeType = "circle"
	ShapePolygon ShapeType = "polygon"
)

var (
	ErrInvalidShapeType = errors.New("shape type must be circle or polygon")
	ErrInvalidRadius    = errors.New("circle radius must be positive")
	ErrRingTooSmall     = errors.New("polygon ring needs at least 3 vertices")
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// Valid reports whether shapeType is one of the allowed constants.
func (shapeType ShapeType) Valid() bool {
	switch shapeType {
	case ShapeCircle, ShapePolygon:
		return true
	default:
		return false
	}
}

// String returns the string representation of the ShapeType.
func (shapeType ShapeType) String() string {
	return string(shapeType)
}

// Shape is the tagged geometry variant evaluated in-process: exactly one of
// Circle or Polygon is set, selected by Type. Keeping the variant explicit
// decouples containment checks from any storage engine's spatial extension.
type Shape struct {
	Type    ShapeType `json:"type"`
	Circle  *Circle   `json:"circle,omitempty"`
	Polygon *Polygon  `json:"polygon,omitempty"`
}

// Circle is a center point with a radius in meters.
type Circle struct {
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Polygon is an ordered vertex ring, implicitly closed.
type Polygon struct {
	Ring []Point `json:"ring"`
}

// NewCircleShape constructs a validated circular Shape.
func NewCircleShape(center Point, radiusMeters float64) (Shape, error) {
	shape := Shape{Type: ShapeCircle, Circle: &Circle{Center: center, RadiusMeters: radiusMeters}}
	if err := shape.Validate(); err != nil {
		return Shape{}, err
	}
	return shape, nil
}

// NewPolygonShape constructs a validated polygonal Shape.
func NewPolygonShape(ring []Point) (Shape, error) {
	shape := Shape{Type: ShapePolygon, Polygon: &Polygon{Ring: ring}}
	if err := shape.Validate(); err != nil {
		return Shape{}, err
	}
	return shape, nil
}

// Validate checks the variant invariants: the tag matches the populated
// variant, radii are positive, rings carry at least 3 in-range vertices.
func (shape Shape) Validate() error {
	switch shape.Type {
	case ShapeCircle:
		if shape.Circle == nil || shape.Polygon != nil {
			return ErrInvalidShapeType
		}
		if shape.Circle.RadiusMeters <= 0 {
			return ErrInvalidRadius
		}
		if !ValidLatitude(shape.Circle.Center.Lat) {
			return ErrInvalidLatitude
		}
		if !ValidLongitude(shape.Circle.Center.Lng) {
			return ErrInvalidLongitude
		}
		return nil
	case ShapePolygon:
		if shape.Polygon == nil || shape.Circle != nil {
			return ErrInvalidShapeType
		}
		if len(shape.Polygon.Ring) < 3 {
			return ErrRingTooSmall
		}
		for i, v := range shape.Polygon.Ring {
			if !ValidLatitude(v.Lat) {
				return fmt.Errorf("ring vertex %d: %w", i, ErrInvalidLatitude)
			}
			if !ValidLongitude(v.Lng) {
				return fmt.Errorf("ring vertex %d: %w", i, ErrInvalidLongitude)
			}
		}
		return nil
	default:
		return ErrInvalidShapeType
	}
}

// Contains dispatches the containment test on the shape tag.
func (shape Shape) Contains(p Point) bool {
	switch shape.Type {
	case ShapeCircle:
		return PointInCircle(p, shape.Circle.Center, shape.Circle.RadiusMeters)
	case ShapePolygon:
		return PointInPolygon(p, shape.Polygon.Ring)
	default:
		return false
	}
}

// MarshalGeometry encodes the variant payload (without the tag) for the
// geometry column; the tag is stored separately in shape_type so records
// stay distinguishable at read time.
func (shape Shape) MarshalGeometry() ([]byte, error) {
	switch shape.Type {
	case ShapeCircle:
		return json.Marshal(shape.Circle)
	case ShapePolygon:
		return json.Marshal(shape.Polygon)
	default:
		return nil, ErrInvalidShapeType
	}
}

// UnmarshalGeometry decodes a geometry column payload back into a Shape
// using the stored shape_type tag.
func UnmarshalGeometry(shapeType string, raw []byte) (Shape, error) {
	switch ShapeType(shapeType) {
	case ShapeCircle:
		var c Circle
		if err := json.Unmarshal(raw, &c); err != nil {
			return Shape{}, fmt.Errorf("decode circle geometry: %w", err)
		}
		return Shape{Type: ShapeCircle, Circle: &c}, nil
	case ShapePolygon:
		var p Polygon
		if err := json.Unmarshal(raw, &p); err != nil {
			return Shape{}, fmt.Errorf("decode polygon geometry: %w", err)
		}
		return Shape{Type: ShapePolygon, Polygon: &p}, nil
	default:
		return Shape{}, ErrInvalidShapeType
	}
}
