package capacity

import (
	"math"
)

// baseTolerance is the absolute tolerance for matching the placeholder value.
const baseTolerance = 1e-6

// ClassifyCapType returns the cap type of a capacity value: null/NaN and
// values within tolerance of baseCount are placeholders, anything else was
// observed.
func ClassifyCapType(capacity, baseCount float64) string {
	if math.IsNaN(capacity) {
		return CapTypeBase
	}
	if math.Abs(capacity-baseCount) <= baseTolerance {
		return CapTypeBase
	}
	return CapTypeReal
}

// ClassifyCapTypes tags every row with its cap type and replaces null
// capacities with zero. Rows are initialised as kept.
func ClassifyCapTypes(rows []Facility, baseCount float64) []Facility {
	out := cloneFacilities(rows)
	for i := range out {
		f := &out[i]
		f.CapType = ClassifyCapType(f.Capacity, baseCount)
		if math.IsNaN(f.Capacity) {
			f.Capacity = 0
		}
		f.Keep = true
		f.DropReason = ""
	}
	return out
}
