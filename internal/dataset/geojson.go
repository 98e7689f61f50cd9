package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// crsMember is the legacy named "crs" member of a GeoJSON object. RFC 7946
// dropped it, but GIS exports still carry it for projected data.
type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

var epsgName = regexp.MustCompile(`EPSG:{1,2}(\d+)$`)

// epsg returns the EPSG code named by c, or 0.
func (c *crsMember) epsg() int {
	if c == nil {
		return 0
	}
	name := c.Properties.Name
	if name == "urn:ogc:def:crs:OGC:1.3:CRS84" || name == "CRS84" {
		return 4326
	}
	m := epsgName.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

func namedCRS(epsg int) *crsMember {
	c := &crsMember{Type: "name"}
	c.Properties.Name = fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", epsg)
	return c
}

// ReadGeoJSON decodes a FeatureCollection. The EPSG code comes from the crs
// member and is 0 without one.
func ReadGeoJSON(r io.Reader) (*Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "dataset: decode feature collection")
	}
	var meta struct {
		CRS *crsMember `json:"crs"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, eris.Wrap(err, "dataset: decode crs member")
	}

	c := &Collection{EPSG: meta.CRS.epsg(), Features: make([]Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		c.Features = append(c.Features, Feature{Geometry: f.Geometry, Properties: f.Properties})
	}
	c.Columns = columnsOf(c.Features)
	return c, nil
}

type outputCollection struct {
	Type     string             `json:"type"`
	CRS      *crsMember         `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// Features renders the facilities of a result as GeoJSON features carrying
// their input attributes and the recomputed columns.
func Features(res *capacity.Result) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(res.Facilities))
	for i := range res.Facilities {
		f := &res.Facilities[i]
		out = append(out, &geojson.Feature{
			ID:         strconv.Itoa(f.ID),
			Geometry:   f.Geometry,
			Properties: properties(f),
		})
	}
	return out
}

// WriteGeoJSON writes the facilities of res as a FeatureCollection tagged
// with the working CRS.
func WriteGeoJSON(w io.Writer, res *capacity.Result) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(outputCollection{
		Type:     "FeatureCollection",
		CRS:      namedCRS(res.Params.EPSG),
		Features: Features(res),
	}); err != nil {
		return eris.Wrap(err, "dataset: encode geojson")
	}
	return nil
}
