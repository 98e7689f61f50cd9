package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// Sheet names of the XLSX export.
const (
	SheetFacilities = "facilities"
	SheetZones      = "zones"
)

var zoneReportColumns = []string{
	"block_id", "demand", "facilities", "headroom", "multiplier", "budget",
	"allocated", "passes", "converged", "unplaced", "skipped",
}

// WriteXLSX saves a workbook with one facility sheet (geometry as WKT) and
// one sheet of per-zone allocation outcomes.
func WriteXLSX(path string, res *capacity.Result) error {
	file := xlsx.NewFile()

	fs, err := file.AddSheet(SheetFacilities)
	if err != nil {
		return eris.Wrap(err, "xlsx: add facilities sheet")
	}
	cols := tabularColumns(res)
	addStringRow(fs, cols)
	for i := range res.Facilities {
		f := &res.Facilities[i]
		props := properties(f)
		row := fs.AddRow()
		for _, col := range cols {
			if col == capacity.ColGeometry {
				s, err := geometryWKT(f.Geometry)
				if err != nil {
					return eris.Wrapf(err, "xlsx: facility %d", f.ID)
				}
				row.AddCell().SetString(s)
				continue
			}
			setCell(row.AddCell(), props[col])
		}
	}

	zs, err := file.AddSheet(SheetZones)
	if err != nil {
		return eris.Wrap(err, "xlsx: add zones sheet")
	}
	addStringRow(zs, zoneReportColumns)
	for _, z := range res.Allocation.Zones {
		row := zs.AddRow()
		for _, v := range []any{
			z.BlockID, z.Demand, z.Facilities, z.Headroom, z.Multiplier, z.Budget,
			z.Allocated, z.Passes, z.Converged, z.Unplaced, z.Skipped,
		} {
			setCell(row.AddCell(), v)
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func setCell(cell *xlsx.Cell, v any) {
	switch t := v.(type) {
	case nil:
	case float64:
		cell.SetFloat(t)
	case int:
		cell.SetInt(t)
	case bool:
		cell.SetBool(t)
	case string:
		cell.SetString(t)
	default:
		cell.SetString(formatValue(t))
	}
}
