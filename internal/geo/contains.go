package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Within reports whether c lies strictly inside the polygonal geometry g.
// Points on a shell or hole boundary are not within. Non-areal geometries
// contain nothing.
func Within(c geom.Coord, g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return withinPolygon(c, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if withinPolygon(c, t.Polygon(i)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func withinPolygon(c geom.Coord, p *geom.Polygon) bool {
	n := p.NumLinearRings()
	if n == 0 {
		return false
	}
	shell := p.LinearRing(0)
	if xy.LocatePointInRing(shell.Layout(), c, shell.FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < n; i++ {
		hole := p.LinearRing(i)
		if xy.LocatePointInRing(hole.Layout(), c, hole.FlatCoords()) != location.Exterior {
			return false
		}
	}
	return true
}
