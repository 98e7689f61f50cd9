// Package geo provides the planar geometry operations used by the capacity
// engine: geometry classification, footprint area, anchor points, strict
// point-in-polygon tests, an R-tree index and EPSG reprojection.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Geometry type names, matching the OGC simple feature names.
const (
	TypePoint        = "Point"
	TypePolygon      = "Polygon"
	TypeMultiPolygon = "MultiPolygon"
	TypeLineString   = "LineString"
	TypeMultiPoint   = "MultiPoint"
	TypeOther        = "Geometry"
)

// Classify returns the OGC type name of g. A nil geometry is TypeOther.
func Classify(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return TypePoint
	case *geom.Polygon:
		return TypePolygon
	case *geom.MultiPolygon:
		return TypeMultiPolygon
	case *geom.LineString:
		return TypeLineString
	case *geom.MultiPoint:
		return TypeMultiPoint
	default:
		return TypeOther
	}
}

// IsPolygonal reports whether the type name describes an areal geometry.
func IsPolygonal(geomType string) bool {
	return geomType == TypePolygon || geomType == TypeMultiPolygon
}

// Area returns the planar area of a polygonal geometry in squared CRS units,
// independent of ring orientation. Non-areal geometries have zero area.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var sum float64
		for i := 0; i < t.NumPolygons(); i++ {
			sum += polygonArea(t.Polygon(i))
		}
		return sum
	default:
		return 0
	}
}

// polygonArea is the shell area less the hole areas. go-geom reports signed
// ring areas, so each ring is taken by magnitude.
func polygonArea(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return 0
	}
	a := math.Abs(p.LinearRing(0).Area())
	for i := 1; i < p.NumLinearRings(); i++ {
		a -= math.Abs(p.LinearRing(i).Area())
	}
	return max(a, 0)
}

// Anchor returns the coordinate used for containment tests: the point itself
// for points, the area centroid for polygons.
func Anchor(g geom.T) (geom.Coord, error) {
	switch t := g.(type) {
	case nil:
		return nil, eris.New("geo: anchor of nil geometry")
	case *geom.Point:
		flat := t.FlatCoords()
		if len(flat) < 2 {
			return nil, eris.New("geo: anchor of empty point")
		}
		return geom.Coord{flat[0], flat[1]}, nil
	default:
		c, err := xy.Centroid(g)
		if err != nil {
			return nil, eris.Wrap(err, "geo: centroid")
		}
		if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
			return nil, eris.New("geo: degenerate centroid")
		}
		return geom.Coord{c[0], c[1]}, nil
	}
}

// Distance returns the planar distance between two coordinates.
func Distance(a, b geom.Coord) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}
