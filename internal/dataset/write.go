package dataset

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// Write stores res at path in the format given by its extension:
// .geojson/.json, .csv or .xlsx.
func Write(path string, res *capacity.Result) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "dataset: create %s", path)
		}
		if err := WriteGeoJSON(f, res); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrapf(f.Close(), "dataset: close %s", path)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "dataset: create %s", path)
		}
		if err := WriteCSV(f, res); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrapf(f.Close(), "dataset: close %s", path)
	case ".xlsx":
		return WriteXLSX(path, res)
	default:
		return eris.Errorf("dataset: unsupported output format %q", ext)
	}
}

// record returns the recomputed columns of f, geometry excluded. Infinite
// ceilings are reported as null.
func record(f *capacity.Facility) map[string]any {
	return map[string]any{
		capacity.ColCapacity:      f.Capacity,
		capacity.ColCapType:       f.CapType,
		capacity.ColGeomType:      f.GeomType,
		capacity.ColSanpinCap:     finite(f.SanpinCap),
		capacity.ColCapMax:        finite(f.CapMax),
		capacity.ColBlockID:       f.BlockID,
		capacity.ColDemand:        f.Demand,
		capacity.ColNewCapacity:   f.NewCapacity,
		capacity.ColAddedCapacity: f.AddedCapacity,
		capacity.ColSaturated:     f.Saturated,
		capacity.ColKeep:          f.Keep,
		capacity.ColDropReason:    f.DropReason,
	}
}

// properties overlays the recomputed columns on the input attributes.
func properties(f *capacity.Facility) map[string]any {
	props := make(map[string]any, len(f.Attributes)+len(capacity.OutputColumns))
	for k, v := range f.Attributes {
		props[k] = v
	}
	for k, v := range record(f) {
		props[k] = v
	}
	return props
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// tabularColumns is the flat column order of CSV and XLSX output: the
// recomputed columns followed by the remaining input attributes, sorted.
func tabularColumns(res *capacity.Result) []string {
	cols := append([]string(nil), capacity.OutputColumns...)
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	var extra []string
	for i := range res.Facilities {
		for k := range res.Facilities[i].Attributes {
			if !known[k] {
				known[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}
