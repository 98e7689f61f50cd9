package dataset

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/resilience"
)

// ReadShapefileZIP extracts a zipped shapefile into a temporary directory and
// reads the first .shp inside it.
func ReadShapefileZIP(zipPath string) (*Collection, error) {
	dir, err := os.MkdirTemp("", "capacity-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create extract dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	if err := extractZIP(zipPath, dir); err != nil {
		return nil, eris.Wrapf(err, "dataset: extract %s", zipPath)
	}
	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: find .shp file")
	}
	return ReadShapefile(shpPath)
}

// ReadShapefile reads point and polygon records with their dBASE attributes.
// The EPSG code is taken from the sidecar .prj file when present. Other shape
// types are skipped.
func ReadShapefile(shpPath string) (*Collection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	log := zap.L().With(
		zap.String("component", "dataset.shapefile"),
		zap.String("path", shpPath),
	)

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	c := &Collection{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				props[name] = nil
			} else {
				props[name] = val
			}
		}
		c.Features = append(c.Features, Feature{Geometry: g, Properties: props})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "dataset: read shapefile %s", shpPath)
	}

	c.Columns = columnsOf(c.Features)
	epsg, err := readPRJ(strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj")
	if err != nil {
		return nil, err
	}
	c.EPSG = epsg

	if skipped > 0 {
		log.Debug("skipped unsupported shapefile records", zap.Int("skipped", skipped))
	}
	log.Info("shapefile loaded", zap.Int("features", len(c.Features)), zap.Int("epsg", c.EPSG))
	return c, nil
}

// shapeToGeometry converts a go-shp record. Polygon parts are grouped by ring
// orientation: clockwise rings open a new polygon, counter-clockwise rings are
// holes of the polygon before them.
func shapeToGeometry(s shp.Shape) geom.T {
	switch t := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y})
	case *shp.Polygon:
		return ringsToGeometry(t.Parts, t.Points)
	case *shp.PolygonZ:
		return ringsToGeometry(t.Parts, t.Points)
	default:
		return nil
	}
}

func ringsToGeometry(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if xy.IsRingCounterClockwise(geom.XY, flat) && len(polys) > 0 {
			if err := polys[len(polys)-1].Push(ring); err != nil {
				zap.L().Debug("dataset: skipping malformed hole", zap.Int("part", i), zap.Error(err))
			}
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("dataset: skipping malformed ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		polys = append(polys, poly)
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon", zap.Error(err))
		}
	}
	return mp
}

var prjAuthority = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)

// readPRJ returns the EPSG code of a .prj file, or 0 when the file is absent
// or names no code.
func readPRJ(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "dataset: read %s", path)
	}
	return prjEPSG(string(data)), nil
}

// prjEPSG extracts the EPSG code of a WKT coordinate system. The outermost
// AUTHORITY clause is the last one. ESRI-flavoured files carry no authority,
// so the common WGS 84 and web mercator names are recognised directly.
func prjEPSG(wktCRS string) int {
	if m := prjAuthority.FindAllStringSubmatch(wktCRS, -1); len(m) > 0 {
		if code, err := strconv.Atoi(m[len(m)-1][1]); err == nil {
			return code
		}
	}
	switch {
	case strings.Contains(wktCRS, "WGS_1984_Web_Mercator"):
		return 3857
	case strings.HasPrefix(strings.TrimSpace(wktCRS), "GEOGCS") && strings.Contains(wktCRS, "WGS_1984"):
		return 4326
	}
	return 0
}

// downloadFile downloads a URL to a local file.
// downloadPolicy governs retries of layer downloads.
var downloadPolicy = resilience.DefaultPolicy()

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	p := downloadPolicy
	p.OnRetry = resilience.LogRetries(url)
	return resilience.Do(ctx, p, func(ctx context.Context) error {
		return fetchFile(ctx, client, url, dest)
	})
}

// fetchFile performs one download attempt. Throttling and gateway failures
// come back as transient errors.
func fetchFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("download returned status %d", resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP flattens the files of a ZIP archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return eris.Wrapf(out.Close(), "close %s", dest)
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
