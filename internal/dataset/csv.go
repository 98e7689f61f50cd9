package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// WriteCSV writes one row per facility with the geometry as WKT.
func WriteCSV(w io.Writer, res *capacity.Result) error {
	cols := tabularColumns(res)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "dataset: write csv header")
	}

	row := make([]string, len(cols))
	for i := range res.Facilities {
		f := &res.Facilities[i]
		props := properties(f)
		for j, col := range cols {
			if col == capacity.ColGeometry {
				s, err := geometryWKT(f.Geometry)
				if err != nil {
					return eris.Wrapf(err, "dataset: facility %d", f.ID)
				}
				row[j] = s
				continue
			}
			row[j] = formatValue(props[col])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "dataset: write csv row %d", i)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "dataset: flush csv")
}

func geometryWKT(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "encode wkt")
	}
	return s, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
