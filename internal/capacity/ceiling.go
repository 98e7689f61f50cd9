package capacity

import (
	"math"

	"github.com/sells-group/capacity-cli/internal/geo"
)

// growthFactor bounds how far a placeholder capacity may grow.
const growthFactor = 3.0

// SanpinCap returns the footprint ceiling of a facility: floor(area /
// m2PerPerson) for base-type polygons, +Inf for everything else.
func SanpinCap(f *Facility, m2PerPerson float64) float64 {
	if f.CapType != CapTypeBase || !geo.IsPolygonal(f.GeomType) {
		return math.Inf(1)
	}
	return math.Floor(geo.Area(f.Geometry) / m2PerPerson)
}

// CapMax returns the final ceiling. Base facilities are bounded by both the
// growth factor and the footprint ceiling; real facilities are frozen. The
// result is never below the current capacity.
func CapMax(f *Facility) float64 {
	if f.CapType != CapTypeBase || !f.Keep {
		return f.Capacity
	}
	ceiling := math.Min(growthFactor*f.Capacity, f.SanpinCap)
	return math.Max(ceiling, f.Capacity)
}

// ApplyCeilings sets SanpinCap and CapMax on every row. Dropped rows get no
// footprint ceiling and are frozen at their capacity.
func ApplyCeilings(rows []Facility, m2PerPerson float64) []Facility {
	out := cloneFacilities(rows)
	for i := range out {
		f := &out[i]
		if f.Keep {
			f.SanpinCap = SanpinCap(f, m2PerPerson)
		} else {
			f.SanpinCap = math.Inf(1)
		}
		f.CapMax = CapMax(f)
	}
	return out
}
