// Package capacity recomputes facility service capacity against zone demand.
//
// The pipeline runs four stages over a facility table, each returning a new
// table and leaving its input untouched:
//
//	MergeCoincident -> ApplyCeilings -> AttachDemand -> Allocate
//
// Recompute wires the stages together with input validation, reprojection and
// cap-type classification.
package capacity

import (
	"math"
	"slices"

	"github.com/twpayne/go-geom"
)

// Capacity types.
const (
	CapTypeBase = "base"
	CapTypeReal = "real"
)

// DropReasonCovered marks a point absorbed by a covering polygon.
const DropReasonCovered = "covered_by_polygon"

// Unattached is the block id of a facility whose anchor lies in no zone.
const Unattached = -1

// Column names of the tabular record.
const (
	ColGeometry      = "geometry"
	ColCapacity      = "capacity"
	ColCapType       = "cap_type"
	ColGeomType      = "geom_type"
	ColSanpinCap     = "sanpin_cap"
	ColCapMax        = "cap_max"
	ColBlockID       = "block_id"
	ColDemand        = "demand"
	ColNewCapacity   = "new_capacity"
	ColAddedCapacity = "added_capacity"
	ColSaturated     = "saturated"
	ColKeep          = "keep"
	ColDropReason    = "drop_reason"
	ColPopulation    = "population"
)

// OutputColumns is the column order of a recomputed facility row.
var OutputColumns = []string{
	ColGeometry, ColCapacity, ColCapType, ColGeomType, ColSanpinCap, ColCapMax,
	ColBlockID, ColDemand, ColNewCapacity, ColAddedCapacity, ColSaturated,
	ColKeep, ColDropReason,
}

// Facility is one physical service point. Geometry and Attributes are shared
// between stage outputs and must be treated as read-only.
type Facility struct {
	// ID is the row position in the input table.
	ID         int
	Geometry   geom.T
	GeomType   string
	Attributes map[string]any

	// Capacity is NaN when the input value was null.
	Capacity float64
	CapType  string

	SanpinCap float64
	CapMax    float64

	BlockID int
	Demand  float64

	NewCapacity   float64
	AddedCapacity float64
	Saturated     bool

	Keep       bool
	DropReason string
}

// Eligible reports whether the allocation engine may grow f.
func (f *Facility) Eligible() bool {
	return f.Keep && f.CapType == CapTypeBase && f.BlockID != Unattached
}

// Headroom is the gap between the ceiling and the current capacity, never
// negative.
func (f *Facility) Headroom() float64 {
	return math.Max(f.CapMax-f.Capacity, 0)
}

// Zone is a demand zone ("block").
type Zone struct {
	BlockID    int
	Geometry   geom.T
	Population float64
	Demand     float64
}

// FacilityTable is the facility input: rows, the EPSG code of their
// geometries (0 when unknown) and the attribute columns present in the source.
type FacilityTable struct {
	EPSG    int
	Columns []string
	Rows    []Facility
}

// HasColumn reports whether the source carried the named column.
func (t FacilityTable) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// ZoneTable is the zone input.
type ZoneTable struct {
	EPSG    int
	Columns []string
	Rows    []Zone
}

// HasColumn reports whether the source carried the named column.
func (t ZoneTable) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// cloneFacilities returns a shallow copy of rows; each stage works on its own
// slice so no row is mutated across a stage boundary.
func cloneFacilities(rows []Facility) []Facility {
	out := make([]Facility, len(rows))
	copy(out, rows)
	return out
}
