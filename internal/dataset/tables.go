package dataset

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// FacilityTable converts a layer into the facility input of a recomputation.
// capacityColumn names the attribute holding capacity (capacity.ColCapacity
// when empty); a layer without it yields a table without the capacity column
// so that the recomputation reports it. Input attributes are kept on every
// row.
func FacilityTable(c *Collection, capacityColumn string) (capacity.FacilityTable, error) {
	if capacityColumn == "" {
		capacityColumn = capacity.ColCapacity
	}
	t := capacity.FacilityTable{
		EPSG:    c.EPSG,
		Columns: []string{capacity.ColGeometry},
		Rows:    make([]capacity.Facility, 0, len(c.Features)),
	}
	hasCapacity := c.HasColumn(capacityColumn)
	if hasCapacity {
		t.Columns = append(t.Columns, capacity.ColCapacity)
	}
	hasGeomType := c.HasColumn(capacity.ColGeomType)
	if hasGeomType {
		t.Columns = append(t.Columns, capacity.ColGeomType)
	}

	for i, f := range c.Features {
		row := capacity.Facility{
			ID:         i,
			Geometry:   f.Geometry,
			Attributes: f.Properties,
			Capacity:   math.NaN(),
		}
		if hasCapacity {
			v, err := toFloat(f.Properties[capacityColumn])
			if err != nil {
				return capacity.FacilityTable{}, eris.Wrapf(err, "dataset: facility %d: %s", i, capacityColumn)
			}
			row.Capacity = v
		}
		if hasGeomType {
			if s, ok := f.Properties[capacity.ColGeomType].(string); ok {
				row.GeomType = s
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ZoneTable converts a layer into the zone input. populationColumn defaults
// to capacity.ColPopulation and blockIDColumn to capacity.ColBlockID. When the
// layer carries the block id attribute its values become the block ids;
// otherwise ids are assigned by position.
func ZoneTable(c *Collection, populationColumn, blockIDColumn string) (capacity.ZoneTable, error) {
	if populationColumn == "" {
		populationColumn = capacity.ColPopulation
	}
	if blockIDColumn == "" {
		blockIDColumn = capacity.ColBlockID
	}
	t := capacity.ZoneTable{
		EPSG:    c.EPSG,
		Columns: []string{capacity.ColGeometry},
		Rows:    make([]capacity.Zone, 0, len(c.Features)),
	}
	hasPopulation := c.HasColumn(populationColumn)
	if hasPopulation {
		t.Columns = append(t.Columns, capacity.ColPopulation)
	}
	hasBlockID := c.HasColumn(blockIDColumn)
	if hasBlockID {
		t.Columns = append(t.Columns, capacity.ColBlockID)
	}

	for i, f := range c.Features {
		z := capacity.Zone{BlockID: i, Geometry: f.Geometry, Population: math.NaN()}
		if hasPopulation {
			v, err := toFloat(f.Properties[populationColumn])
			if err != nil {
				return capacity.ZoneTable{}, eris.Wrapf(err, "dataset: zone %d: %s", i, populationColumn)
			}
			z.Population = v
		}
		if hasBlockID {
			v, err := toFloat(f.Properties[blockIDColumn])
			if err != nil || math.IsNaN(v) || v != math.Trunc(v) {
				return capacity.ZoneTable{}, eris.Errorf("dataset: zone %d: %s must be an integer, got %v", i, blockIDColumn, f.Properties[blockIDColumn])
			}
			z.BlockID = int(v)
		}
		t.Rows = append(t.Rows, z)
	}
	return t, nil
}
