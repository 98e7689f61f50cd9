package capacity

import (
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/geo"
)

// MergeStats summarises a coincidence merge.
type MergeStats struct {
	Points      int
	Polygons    int
	Covered     int
	Transferred int
}

// MergeCoincident resolves point/polygon duplicates. Every point strictly
// inside a polygon is dropped with DropReasonCovered. Real-type covered points
// hand their capacity to each covering polygon, which takes the maximum over
// all such points and becomes real itself. Every row comes back, dropped rows
// included, with Keep and DropReason reset before the merge.
func MergeCoincident(rows []Facility) ([]Facility, MergeStats) {
	out := cloneFacilities(rows)
	for i := range out {
		out[i].Keep = true
		out[i].DropReason = ""
	}

	var (
		stats  MergeStats
		points []int
		polys  = geo.NewIndex()
	)
	for i := range out {
		switch {
		case out[i].GeomType == geo.TypePoint:
			points = append(points, i)
		case geo.IsPolygonal(out[i].GeomType):
			polys.Insert(i, out[i].Geometry)
		}
	}
	stats.Points = len(points)
	stats.Polygons = polys.Len()
	if len(points) == 0 || polys.Len() == 0 {
		return out, stats
	}

	transfer := make(map[int]float64)
	for _, pi := range points {
		anchor, err := geo.Anchor(out[pi].Geometry)
		if err != nil {
			continue
		}
		covering := polys.Containing(anchor)
		if len(covering) == 0 {
			continue
		}

		pt := &out[pi]
		if pt.CapType == CapTypeReal {
			for _, poly := range covering {
				if cur, ok := transfer[poly]; !ok || pt.Capacity > cur {
					transfer[poly] = pt.Capacity
				}
			}
		}
		pt.Keep = false
		pt.DropReason = DropReasonCovered
		stats.Covered++
	}

	for poly, capacity := range transfer {
		out[poly].Capacity = capacity
		out[poly].CapType = CapTypeReal
		stats.Transferred++
	}

	zap.L().Debug("capacity: merged coincident facilities",
		zap.String("component", "capacity.merge"),
		zap.Int("covered", stats.Covered),
		zap.Int("transferred", stats.Transferred),
	)
	return out, stats
}
