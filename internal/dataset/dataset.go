// Package dataset reads facility and zone layers from GeoJSON, shapefiles and
// PostGIS, converts them into capacity tables and writes recomputed results.
package dataset

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one record of a spatial layer.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

// Collection is a spatial layer: its features, the EPSG code of their
// geometries (0 when the source carried no CRS) and the attribute names seen
// across all features.
type Collection struct {
	EPSG     int
	Columns  []string
	Features []Feature
}

// WithFallbackEPSG sets the EPSG code when the source had none.
func (c *Collection) WithFallbackEPSG(epsg int) *Collection {
	if c.EPSG <= 0 && epsg > 0 {
		c.EPSG = epsg
	}
	return c
}

// HasColumn reports whether any feature carried the named attribute.
func (c *Collection) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Open reads a layer from a local path or an http(s) URL. The format follows
// the extension: .geojson/.json, .shp, or .zip holding a shapefile.
func Open(ctx context.Context, client *http.Client, src string) (*Collection, error) {
	local := src
	if isURL(src) {
		if client == nil {
			client = http.DefaultClient
		}
		dir, err := os.MkdirTemp("", "capacity-download-*")
		if err != nil {
			return nil, eris.Wrap(err, "dataset: create download dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		u, err := url.Parse(src)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: parse url %s", src)
		}
		local = filepath.Join(dir, path.Base(u.Path))
		zap.L().Info("downloading layer",
			zap.String("component", "dataset.open"),
			zap.String("url", src),
		)
		if err := downloadFile(ctx, client, src, local); err != nil {
			return nil, eris.Wrapf(err, "dataset: download %s", src)
		}
	}

	switch ext := strings.ToLower(filepath.Ext(local)); ext {
	case ".geojson", ".json":
		f, err := os.Open(local)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: open %s", local)
		}
		defer f.Close() //nolint:errcheck
		return ReadGeoJSON(f)
	case ".shp":
		return ReadShapefile(local)
	case ".zip":
		return ReadShapefileZIP(local)
	default:
		return nil, eris.Errorf("dataset: unsupported layer format %q", ext)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// columnsOf returns the sorted union of property names.
func columnsOf(features []Feature) []string {
	seen := make(map[string]bool)
	for _, f := range features {
		for k := range f.Properties {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// toFloat converts an attribute value to a number. Null and blank values are
// NaN; anything non-numeric is an error.
func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, eris.Wrapf(err, "not a number: %q", t.String())
		}
		return f, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, eris.Errorf("not a number: %q", t)
		}
		return f, nil
	default:
		return 0, eris.Errorf("not a number: %v (%T)", v, v)
	}
}
