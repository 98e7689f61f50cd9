package dataset

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/capacity-cli/internal/geo"
)

const mercatorPRJ = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`

// clockwise returns a clockwise (outer) square ring.
func clockwise(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

// counterClockwise returns a counter-clockwise (hole) square ring.
func counterClockwise(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}, {X: x, Y: y}}
}

func writeZoneShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "zones.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("POP", 10),
	}))

	simple := shp.Polygon(*shp.NewPolyLine([][]shp.Point{clockwise(0, 0, 100)}))
	holed := shp.Polygon(*shp.NewPolyLine([][]shp.Point{clockwise(200, 0, 100), counterClockwise(225, 25, 50)}))
	multi := shp.Polygon(*shp.NewPolyLine([][]shp.Point{clockwise(400, 0, 10), clockwise(500, 0, 10)}))

	for i, p := range []*shp.Polygon{&simple, &holed, &multi} {
		w.Write(p)
		require.NoError(t, w.WriteAttribute(i, 0, []string{"north", "south", "islands"}[i]))
		require.NoError(t, w.WriteAttribute(i, 1, (i+1)*1000))
	}
	w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones.prj"), []byte(mercatorPRJ), 0o644))
	return path
}

func TestReadShapefile(t *testing.T) {
	path := writeZoneShapefile(t, t.TempDir())

	c, err := ReadShapefile(path)
	require.NoError(t, err)

	assert.Equal(t, 3857, c.EPSG)
	assert.Equal(t, []string{"NAME", "POP"}, c.Columns)
	require.Len(t, c.Features, 3)

	simple, ok := c.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 10000, geo.Area(simple), 1e-9)
	assert.Equal(t, "north", c.Features[0].Properties["NAME"])
	assert.Equal(t, "1000", c.Features[0].Properties["POP"])

	holed, ok := c.Features[1].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, holed.NumLinearRings())
	assert.InDelta(t, 10000-2500, geo.Area(holed), 1e-9)

	multi, ok := c.Features[2].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, multi.NumPolygons())
	assert.InDelta(t, 200, geo.Area(multi), 1e-9)

	zt, err := ZoneTable(c, "POP", "")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, zt.Rows[1].Population)
}

func TestReadShapefile_NoPRJ(t *testing.T) {
	dir := t.TempDir()
	path := writeZoneShapefile(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "zones.prj")))

	c, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.EPSG)
}

func TestReadShapefile_Points(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.NumberField("CAPACITY", 6)}))
	w.Write(&shp.Point{X: 10, Y: 20})
	require.NoError(t, w.WriteAttribute(0, 0, 100))
	w.Close()

	c, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, c.Features, 1)
	pt, ok := c.Features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20}, pt.FlatCoords())

	ft, err := FacilityTable(c, "CAPACITY")
	require.NoError(t, err)
	assert.Equal(t, 100.0, ft.Rows[0].Capacity)
}

func TestReadShapefileZIP(t *testing.T) {
	src := t.TempDir()
	writeZoneShapefile(t, src)

	zipPath := filepath.Join(t.TempDir(), "zones.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		entry, err := zw.Create("layer/zones" + ext)
		require.NoError(t, err)
		in, err := os.Open(filepath.Join(src, "zones"+ext))
		require.NoError(t, err)
		_, err = io.Copy(entry, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	c, err := ReadShapefileZIP(zipPath)
	require.NoError(t, err)
	assert.Equal(t, 3857, c.EPSG)
	assert.Len(t, c.Features, 3)
}

func TestReadShapefileZIP_NoShapefile(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	entry, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = entry.Write([]byte("nothing here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	_, err = ReadShapefileZIP(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file found")
}

func TestPRJEPSG(t *testing.T) {
	tests := []struct {
		name string
		prj  string
		want int
	}{
		{"projected authority", mercatorPRJ, 3857},
		{"geographic authority", `GEOGCS["WGS 84",DATUM["WGS_1984"],AUTHORITY["EPSG","4326"]]`, 4326},
		{"esri wgs84", `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]]`, 4326},
		{"esri web mercator", `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`, 3857},
		{"unknown", `LOCAL_CS["site grid"]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prjEPSG(tt.prj))
		})
	}
}
