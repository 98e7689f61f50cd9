// Package catalog holds the service types known to the recomputation and
// their default scaling parameters.
package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

// ErrUnknownService is returned when a service name is not in the catalog.
var ErrUnknownService = eris.New("catalog: unknown service")

// builtin is the allowlist of service types.
var builtin = []string{
	"school", "kindergarten", "hospital", "polyclinic", "pitch", "swimming_pool", "stadium",
	"theatre", "museum", "cinema", "mall", "convenience", "supermarket", "cemetery", "religion",
	"market", "university", "playground", "pharmacy", "fuel", "beach", "train_building", "bank",
	"lawyer", "cafe", "subway_entrance", "multifunctional_center", "hairdresser", "restaurant",
	"bar", "park", "government", "recruitment", "hotel", "zoo", "circus", "post", "police",
	"dog_park", "hostel", "bakery", "parking", "guest_house", "reserve", "sanatorium",
	"embankment", "machine_building_plant", "brewery", "woodworking_plant", "oil_refinery",
	"plant_of_building_materials", "wastewater_plant", "water_works", "substation",
	"train_station", "bus_station", "bus_stop", "pier", "animal_shelter", "prison", "landfill",
	"plant_nursery", "greenhouse_complex", "warehouse", "farmland", "livestock", "nursing_home",
	"library", "gallery", "monastery", "diplomatic", "court_house", "veterinary", "notary",
	"houseware", "car_wash", "golf_course", "plant_gas_oil", "railway_roundhouse",
	"aeroway_terminal", "crematorium",
}

// Unit is one standard building size of a service.
type Unit struct {
	Name     string  `yaml:"name" json:"name"`
	Capacity float64 `yaml:"capacity" json:"capacity"`
}

// Service is a catalog entry. Zero-valued norms mean "not configured" and
// leave the corresponding parameter to the caller.
type Service struct {
	Name          string   `yaml:"name" json:"name"`
	DemandPer1000 float64  `yaml:"demand_per_1000" json:"demand_per_1000"`
	M2PerPerson   float64  `yaml:"m2_per_person" json:"m2_per_person"`
	K             *float64 `yaml:"k,omitempty" json:"k,omitempty"`
	Units         []Unit   `yaml:"units" json:"units"`
}

// BaseCount returns the smallest unit capacity, the placeholder capacity
// assigned to facilities of this service without observed data. It returns
// false when no unit has a positive capacity.
func (s Service) BaseCount() (float64, bool) {
	base := math.Inf(1)
	for _, u := range s.Units {
		if u.Capacity > 0 && u.Capacity < base {
			base = u.Capacity
		}
	}
	if math.IsInf(base, 1) {
		return 0, false
	}
	return base, true
}

type file struct {
	Services []Service `yaml:"services" json:"services"`
}

// Catalog maps folded service names to entries.
type Catalog struct {
	services map[string]Service
}

// New returns a catalog of the built-in service names with no norms.
func New() *Catalog {
	c := &Catalog{services: make(map[string]Service, len(builtin))}
	for _, name := range builtin {
		c.services[c.key(name)] = Service{Name: name}
	}
	return c
}

// Load returns the built-in catalog merged with the services in path. A
// ".json" file may also be a bare array of services. Services in the file
// extend the allowlist.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var f file
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			err = json.Unmarshal(data, &f.Services)
		} else {
			err = json.Unmarshal(data, &f)
		}
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}

	c := New()
	for i, s := range f.Services {
		if strings.TrimSpace(s.Name) == "" {
			return nil, eris.Errorf("catalog: %s: service %d has no name", path, i)
		}
		if s.DemandPer1000 < 0 || s.M2PerPerson < 0 {
			return nil, eris.Errorf("catalog: %s: service %q has negative norms", path, s.Name)
		}
		c.services[c.key(s.Name)] = s
	}
	return c, nil
}

// key folds name; a Caser is stateful, so each call gets its own.
func (c *Catalog) key(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Names returns the sorted service names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.services))
	for _, s := range c.services {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the service called name, ignoring case.
func (c *Catalog) Lookup(name string) (Service, error) {
	s, ok := c.services[c.key(name)]
	if !ok {
		return Service{}, eris.Wrapf(ErrUnknownService, "%q, valid services: %s", name, strings.Join(c.Names(), ", "))
	}
	return s, nil
}

// Params returns p with the norms configured for the named service filled
// in. Norms the catalog does not carry keep their value from p.
func (c *Catalog) Params(name string, p capacity.Params) (capacity.Params, error) {
	s, err := c.Lookup(name)
	if err != nil {
		return p, err
	}
	if s.DemandPer1000 > 0 {
		p.DemandPer1000 = s.DemandPer1000
	}
	if s.M2PerPerson > 0 {
		p.M2PerPerson = s.M2PerPerson
	}
	if base, ok := s.BaseCount(); ok {
		p.BaseCount = base
	}
	if s.K != nil {
		p.K = *s.K
	}
	return p, nil
}
