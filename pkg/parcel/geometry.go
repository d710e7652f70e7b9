package parcel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GeometryKind selects the geometry variant. A deployment uses exactly one.
type GeometryKind string

const (
	// GeometryPoint is a single WGS84 latitude/longitude pair.
	GeometryPoint GeometryKind = "point"

	// GeometryPolygon is an ordered boundary of projected (Minna / UTM) points.
	GeometryPolygon GeometryKind = "polygon"
)

// MinPolygonPoints is the smallest accepted polygon boundary.
const MinPolygonPoints = 4

// ParseGeometryKind parses a configured geometry schema name.
func ParseGeometryKind(s string) (GeometryKind, error) {
	switch GeometryKind(strings.ToLower(strings.TrimSpace(s))) {
	case GeometryPoint:
		return GeometryPoint, nil
	case GeometryPolygon:
		return GeometryPolygon, nil
	default:
		return "", fmt.Errorf("unknown geometry schema %q (expected point or polygon)", s)
	}
}

// LatLng is a point in decimal degrees.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProjectedPoint is one corner of a surveyed boundary.
type ProjectedPoint struct {
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
}

// Geometry is a tagged variant: Point is set for GeometryPoint, Polygon for
// GeometryPolygon.
type Geometry struct {
	Kind    GeometryKind     `json:"kind"`
	Point   *LatLng          `json:"point,omitempty"`
	Polygon []ProjectedPoint `json:"polygon,omitempty"`
}

// NewPointGeometry builds a point geometry.
func NewPointGeometry(lat, lng float64) Geometry {
	return Geometry{Kind: GeometryPoint, Point: &LatLng{Latitude: lat, Longitude: lng}}
}

// NewPolygonGeometry builds a polygon geometry from a copy of points.
func NewPolygonGeometry(points []ProjectedPoint) Geometry {
	return Geometry{Kind: GeometryPolygon, Polygon: append([]ProjectedPoint(nil), points...)}
}

// Clone returns a deep copy.
func (g Geometry) Clone() Geometry {
	out := Geometry{Kind: g.Kind}
	if g.Point != nil {
		p := *g.Point
		out.Point = &p
	}
	if g.Polygon != nil {
		out.Polygon = append([]ProjectedPoint(nil), g.Polygon...)
	}
	return out
}

// Validate checks g against the deployment schema.
func (g Geometry) Validate(schema GeometryKind) error {
	verr := &ValidationError{}
	g.validate(schema, verr)
	return verr.orNil()
}

func (g Geometry) validate(schema GeometryKind, verr *ValidationError) {
	if g.Kind != schema {
		verr.add("geometry", "expected %s geometry, got %q", schema, g.Kind)
		return
	}
	switch g.Kind {
	case GeometryPoint:
		if g.Point == nil {
			verr.add("latitude", "is required")
			verr.add("longitude", "is required")
			return
		}
		checkRange(verr, "latitude", g.Point.Latitude, -90, 90)
		checkRange(verr, "longitude", g.Point.Longitude, -180, 180)
	case GeometryPolygon:
		if len(g.Polygon) < MinPolygonPoints {
			verr.add("points", "at least %d points are required, got %d", MinPolygonPoints, len(g.Polygon))
		}
		for i, p := range g.Polygon {
			if !isFinite(p.Easting) {
				verr.add(fmt.Sprintf("points[%d].easting", i), "must be a finite number")
			}
			if !isFinite(p.Northing) {
				verr.add(fmt.Sprintf("points[%d].northing", i), "must be a finite number")
			}
		}
	}
}

func checkRange(verr *ValidationError, field string, v, lo, hi float64) {
	if !isFinite(v) {
		verr.add(field, "must be a finite number")
		return
	}
	if v < lo || v > hi {
		verr.add(field, "must be between %g and %g", lo, hi)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Coordinate is a number received from a client. Browser forms often send
// numbers as strings, so both encodings are accepted.
type Coordinate float64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q", s)
		}
		*c = Coordinate(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid coordinate %s", string(data))
	}
	*c = Coordinate(f)
	return nil
}

// PointInput is a polygon corner as sent by a client.
type PointInput struct {
	Easting  *Coordinate `json:"easting"`
	Northing *Coordinate `json:"northing"`
}

// geometryFromInput assembles a geometry of the given schema from raw client
// fields, recording missing values in verr.
func geometryFromInput(schema GeometryKind, lat, lng *Coordinate, points []PointInput, verr *ValidationError) Geometry {
	switch schema {
	case GeometryPoint:
		if lat == nil {
			verr.add("latitude", "is required")
		}
		if lng == nil {
			verr.add("longitude", "is required")
		}
		if lat == nil || lng == nil {
			return Geometry{Kind: GeometryPoint}
		}
		return NewPointGeometry(float64(*lat), float64(*lng))
	default:
		out := make([]ProjectedPoint, 0, len(points))
		for i, p := range points {
			if p.Easting == nil {
				verr.add(fmt.Sprintf("points[%d].easting", i), "is required")
			}
			if p.Northing == nil {
				verr.add(fmt.Sprintf("points[%d].northing", i), "is required")
			}
			if p.Easting == nil || p.Northing == nil {
				continue
			}
			out = append(out, ProjectedPoint{Easting: float64(*p.Easting), Northing: float64(*p.Northing)})
		}
		return NewPolygonGeometry(out)
	}
}
