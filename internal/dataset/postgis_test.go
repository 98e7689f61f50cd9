package dataset

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

func zoneEWKB(t *testing.T, srid int) []byte {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0},
	}}).SetSRID(srid)
	raw, err := ewkb.Marshal(poly, ewkb.NDR)
	require.NoError(t, err)
	return raw
}

func TestReadZonesPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pop := 1500.0
	mock.ExpectQuery(`SELECT block_id, population, ST_AsEWKB\(geom\) FROM "public"."zones"`).
		WillReturnRows(pgxmock.NewRows([]string{"block_id", "population", "st_asewkb"}).
			AddRow(int64(3), &pop, zoneEWKB(t, 3857)))

	zt, err := ReadZonesPostGIS(context.Background(), mock, "public.zones")
	require.NoError(t, err)

	assert.Equal(t, 3857, zt.EPSG)
	assert.True(t, zt.HasColumn(capacity.ColBlockID))
	require.Len(t, zt.Rows, 1)
	assert.Equal(t, 3, zt.Rows[0].BlockID)
	assert.Equal(t, 1500.0, zt.Rows[0].Population)
	assert.IsType(t, &geom.Polygon{}, zt.Rows[0].Geometry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadZonesPostGIS_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT block_id").WillReturnError(fmt.Errorf("relation does not exist"))

	_, err = ReadZonesPostGIS(context.Background(), mock, "zones")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset: query zones from zones")
}

func TestCopyFacilities(t *testing.T) {
	res := recomputed(t)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "capacity"."facilities"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "capacity"."facilities"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"capacity", "facilities"}, facilityColumns).WillReturnResult(3)
	mock.ExpectCommit()

	n, err := CopyFacilities(context.Background(), mock, "capacity.facilities", res)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 0, res.Facilities[0].Geometry.SRID(), "result geometries are not tagged in place")
}

func TestCopyFacilities_CreateError(t *testing.T) {
	res := recomputed(t)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFacilities(context.Background(), mock, "facilities", res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset: create facilities")
}

func TestEncodeEWKB_LeavesInputUntagged(t *testing.T) {
	p := geom.NewPointFlat(geom.XY, []float64{1, 2})

	raw, err := encodeEWKB(p, 3857)
	require.NoError(t, err)
	assert.Equal(t, 0, p.SRID())

	g, err := ewkb.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, 3857, g.SRID())

	raw, err = encodeEWKB(nil, 3857)
	require.NoError(t, err)
	assert.Nil(t, raw)
}
