package geo

import (
	"fmt"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Well-known EPSG codes.
const (
	EPSGWGS84         = 4326
	EPSGWebMercator   = 3857
	EPSGWorldMercator = 3395
)

var builtinDefinitions = map[int]string{
	EPSGWGS84:         "+proj=longlat +datum=WGS84 +no_defs",
	EPSGWebMercator:   "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	EPSGWorldMercator: "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
}

// Definition returns the proj4 definition of an EPSG code: the built-in
// geographic and mercator systems plus WGS84 UTM zones (326xx north,
// 327xx south).
func Definition(epsg int) (string, bool) {
	if def, ok := builtinDefinitions[epsg]; ok {
		return def, true
	}
	switch {
	case epsg >= 32601 && epsg <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", epsg-32600), true
	case epsg >= 32701 && epsg <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", epsg-32700), true
	}
	return "", false
}

// Reprojector transforms geometries between EPSG coordinate systems.
// Transforms are built lazily and cached; a Reprojector is safe for
// concurrent use.
type Reprojector struct {
	defs map[int]string

	mu    sync.Mutex
	cache map[[2]int]proj.Transformer
}

// NewReprojector creates a Reprojector. extra supplies proj4 definitions for
// codes outside the built-in set and overrides built-in ones.
func NewReprojector(extra map[int]string) *Reprojector {
	defs := make(map[int]string, len(extra))
	for k, v := range extra {
		defs[k] = v
	}
	return &Reprojector{defs: defs, cache: make(map[[2]int]proj.Transformer)}
}

func (r *Reprojector) definition(epsg int) (string, error) {
	if def, ok := r.defs[epsg]; ok {
		return def, nil
	}
	if def, ok := Definition(epsg); ok {
		return def, nil
	}
	return "", eris.Errorf("geo: no projection definition for EPSG:%d", epsg)
}

// Supports reports whether epsg can be used as a source or target.
func (r *Reprojector) Supports(epsg int) bool {
	_, err := r.definition(epsg)
	return err == nil
}

func (r *Reprojector) transformer(from, to int) (proj.Transformer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]int{from, to}
	if t, ok := r.cache[key]; ok {
		return t, nil
	}

	srcDef, err := r.definition(from)
	if err != nil {
		return nil, err
	}
	dstDef, err := r.definition(to)
	if err != nil {
		return nil, err
	}
	src, err := proj.Parse(srcDef)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse EPSG:%d", from)
	}
	dst, err := proj.Parse(dstDef)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse EPSG:%d", to)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: transform EPSG:%d -> EPSG:%d", from, to)
	}
	r.cache[key] = t
	return t, nil
}

// Reproject returns a copy of g expressed in EPSG:to. g itself is never
// modified. A geometry already in the target system is returned unchanged.
func (r *Reprojector) Reproject(g geom.T, from, to int) (geom.T, error) {
	if g == nil || from == to {
		return g, nil
	}
	t, err := r.transformer(from, to)
	if err != nil {
		return nil, err
	}

	out, err := Clone(g)
	if err != nil {
		return nil, err
	}
	// A nil transform means the systems are equivalent.
	if t == nil {
		return WithSRID(out, to), nil
	}
	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrapf(err, "geo: transform coordinate %d", i/stride)
		}
		flat[i], flat[i+1] = x, y
	}
	return WithSRID(out, to), nil
}

// Clone returns a deep copy of g.
func Clone(g geom.T) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone(), nil
	case *geom.MultiPoint:
		return t.Clone(), nil
	case *geom.LineString:
		return t.Clone(), nil
	case *geom.Polygon:
		return t.Clone(), nil
	case *geom.MultiPolygon:
		return t.Clone(), nil
	default:
		return nil, eris.Errorf("geo: cannot reproject %T", g)
	}
}

// WithSRID tags g with srid in place and returns it.
func WithSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid)
	case *geom.MultiPoint:
		return t.SetSRID(srid)
	case *geom.LineString:
		return t.SetSRID(srid)
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	default:
		return g
	}
}
