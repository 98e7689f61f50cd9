package dataset

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/db"
	"github.com/sells-group/capacity-cli/internal/geo"
)

// ReadZonesPostGIS loads zones from a PostGIS table with block_id,
// population and geom columns. The EPSG code is the SRID of the stored
// geometries.
func ReadZonesPostGIS(ctx context.Context, pool db.Pool, table string) (capacity.ZoneTable, error) {
	sql := fmt.Sprintf(`SELECT block_id, population, ST_AsEWKB(geom) FROM %s ORDER BY block_id`,
		db.Identifier(table).Sanitize())
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return capacity.ZoneTable{}, eris.Wrapf(err, "dataset: query zones from %s", table)
	}
	defer rows.Close()

	t := capacity.ZoneTable{
		Columns: []string{capacity.ColGeometry, capacity.ColPopulation, capacity.ColBlockID},
	}
	for rows.Next() {
		var (
			blockID    int64
			population *float64
			raw        []byte
		)
		if err := rows.Scan(&blockID, &population, &raw); err != nil {
			return capacity.ZoneTable{}, eris.Wrap(err, "dataset: scan zone")
		}
		g, err := ewkb.Unmarshal(raw)
		if err != nil {
			return capacity.ZoneTable{}, eris.Wrapf(err, "dataset: decode zone %d geometry", blockID)
		}
		if t.EPSG == 0 {
			t.EPSG = g.SRID()
		}
		z := capacity.Zone{BlockID: int(blockID), Geometry: g, Population: math.NaN()}
		if population != nil {
			z.Population = *population
		}
		t.Rows = append(t.Rows, z)
	}
	if err := rows.Err(); err != nil {
		return capacity.ZoneTable{}, eris.Wrapf(err, "dataset: iterate zones from %s", table)
	}
	return t, nil
}

// facilityColumns is the column order of the PostGIS result table.
var facilityColumns = []string{
	"run_id", "row_id", "geom", "capacity", "cap_type", "geom_type", "sanpin_cap",
	"cap_max", "block_id", "demand", "new_capacity", "added_capacity", "saturated",
	"keep", "drop_reason",
}

// EnsureFacilityTable creates the PostGIS result table when it is missing.
func EnsureFacilityTable(ctx context.Context, pool db.Pool, table string, epsg int) error {
	ident := db.Identifier(table).Sanitize()
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id         TEXT NOT NULL,
			row_id         INTEGER NOT NULL,
			geom           geometry(Geometry, %d),
			capacity       DOUBLE PRECISION NOT NULL,
			cap_type       TEXT NOT NULL,
			geom_type      TEXT NOT NULL,
			sanpin_cap     DOUBLE PRECISION,
			cap_max        DOUBLE PRECISION,
			block_id       INTEGER NOT NULL,
			demand         DOUBLE PRECISION NOT NULL,
			new_capacity   DOUBLE PRECISION NOT NULL,
			added_capacity DOUBLE PRECISION NOT NULL,
			saturated      BOOLEAN NOT NULL,
			keep           BOOLEAN NOT NULL,
			drop_reason    TEXT,
			PRIMARY KEY (run_id, row_id)
		)`, ident, epsg)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "dataset: create %s", table)
	}
	return nil
}

// CopyFacilities replaces the contents of the PostGIS result table with the
// facilities of res, geometries encoded as EWKB in the working CRS.
func CopyFacilities(ctx context.Context, pool db.Pool, table string, res *capacity.Result) (int64, error) {
	if err := EnsureFacilityTable(ctx, pool, table, res.Params.EPSG); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(res.Facilities))
	for i := range res.Facilities {
		f := &res.Facilities[i]
		raw, err := encodeEWKB(f.Geometry, res.Params.EPSG)
		if err != nil {
			return 0, eris.Wrapf(err, "dataset: facility %d", f.ID)
		}
		var dropReason any
		if f.DropReason != "" {
			dropReason = f.DropReason
		}
		rows = append(rows, []any{
			res.RunID, f.ID, raw, f.Capacity, f.CapType, f.GeomType, finite(f.SanpinCap),
			finite(f.CapMax), f.BlockID, f.Demand, f.NewCapacity, f.AddedCapacity, f.Saturated,
			f.Keep, dropReason,
		})
	}

	n, err := db.ReplaceRows(ctx, pool, table, facilityColumns, rows)
	if err != nil {
		return 0, err
	}
	zap.L().Info("facilities copied to postgis",
		zap.String("component", "dataset.postgis"),
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return n, nil
}

func encodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	// Result geometries are shared with the caller; tag a copy.
	c, err := geo.Clone(g)
	if err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(geo.WithSRID(c, srid), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode ewkb")
	}
	return data, nil
}
