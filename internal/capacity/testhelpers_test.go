package capacity

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/capacity-cli/internal/geo"
)

func rect(x0, y0, w, h float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x0 + w, y0}, {x0 + w, y0 + h}, {x0, y0 + h}, {x0, y0},
	}})
}

func pt(x, y float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

func facility(g geom.T, capacity float64) Facility {
	return Facility{Geometry: g, Capacity: capacity}
}

func nullCapacity() float64 {
	return math.NaN()
}

var facilityColumns = []string{ColGeometry, ColCapacity}

var zoneColumns = []string{ColGeometry, ColPopulation}

func facilityTable(epsg int, rows ...Facility) FacilityTable {
	return FacilityTable{EPSG: epsg, Columns: facilityColumns, Rows: rows}
}

func zoneTable(epsg int, rows ...Zone) ZoneTable {
	return ZoneTable{EPSG: epsg, Columns: zoneColumns, Rows: rows}
}

func worldParams() Params {
	p := DefaultParams()
	p.DemandPer1000 = 300
	p.BaseCount = 100
	p.M2PerPerson = 5
	p.EPSG = 3857
	return p
}

// prepared classifies rows and derives their geometry types the way
// Recompute does before the merge stage.
func prepared(baseCount float64, rows ...Facility) []Facility {
	for i := range rows {
		rows[i].ID = i
		if rows[i].GeomType == "" {
			rows[i].GeomType = geo.Classify(rows[i].Geometry)
		}
	}
	return ClassifyCapTypes(rows, baseCount)
}
