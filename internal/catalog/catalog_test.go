package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/capacity-cli/internal/capacity"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNew_Builtin(t *testing.T) {
	c := New()

	names := c.Names()
	assert.Len(t, names, len(builtin))
	assert.Contains(t, names, "school")
	assert.Contains(t, names, "crematorium")
	assert.IsIncreasing(t, names)

	s, err := c.Lookup("School")
	require.NoError(t, err)
	assert.Equal(t, "school", s.Name)
	_, ok := s.BaseCount()
	assert.False(t, ok, "built-in entries carry no units")
}

func TestLookup_Unknown(t *testing.T) {
	_, err := New().Lookup("spaceport")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownService))
	assert.Contains(t, err.Error(), `"spaceport"`)
	assert.Contains(t, err.Error(), "kindergarten")
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "services.yaml", `
services:
  - name: school
    demand_per_1000: 120
    m2_per_person: 10
    k: 1.5
    units:
      - {name: small, capacity: 600}
      - {name: large, capacity: 250}
      - {name: empty, capacity: 0}
  - name: Coworking
    demand_per_1000: 15
    m2_per_person: 6
`)
	c, err := Load(path)
	require.NoError(t, err)

	s, err := c.Lookup("SCHOOL")
	require.NoError(t, err)
	base, ok := s.BaseCount()
	require.True(t, ok)
	assert.Equal(t, 250.0, base)

	_, err = c.Lookup("coworking")
	require.NoError(t, err, "file entries extend the allowlist")
	assert.Contains(t, c.Names(), "Coworking")
	assert.Contains(t, c.Names(), "hospital")
}

func TestLoad_JSONArray(t *testing.T) {
	path := writeFile(t, "default.json", `[
	  {"name": "kindergarten", "units": [{"name": "a", "capacity": 140}, {"name": "b", "capacity": 90}]},
	  {"name": "polyclinic", "units": []}
	]`)
	c, err := Load(path)
	require.NoError(t, err)

	s, err := c.Lookup("kindergarten")
	require.NoError(t, err)
	base, ok := s.BaseCount()
	require.True(t, ok)
	assert.Equal(t, 90.0, base)
}

func TestLoad_JSONObject(t *testing.T) {
	path := writeFile(t, "catalog.json", `{"services": [{"name": "pharmacy", "demand_per_1000": 0.3}]}`)
	c, err := Load(path)
	require.NoError(t, err)

	s, err := c.Lookup("pharmacy")
	require.NoError(t, err)
	assert.Equal(t, 0.3, s.DemandPer1000)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"bad yaml", "c.yaml", "services: [", "catalog: parse"},
		{"no name", "c.yaml", "services:\n  - demand_per_1000: 1\n", "has no name"},
		{"negative", "c.yaml", "services:\n  - name: x\n    m2_per_person: -1\n", "negative norms"},
		{"bad json", "c.json", "[{", "catalog: parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: read")
}

func TestParams(t *testing.T) {
	path := writeFile(t, "services.yaml", `
services:
  - name: school
    demand_per_1000: 120
    m2_per_person: 10
    k: 0
    units: [{name: std, capacity: 300}]
  - name: cafe
    units: [{name: std, capacity: 40}]
`)
	c, err := Load(path)
	require.NoError(t, err)

	in := capacity.DefaultParams()
	in.EPSG = 3857
	in.M2PerPerson = 4

	p, err := c.Params("school", in)
	require.NoError(t, err)
	assert.Equal(t, 120.0, p.DemandPer1000)
	assert.Equal(t, 10.0, p.M2PerPerson)
	assert.Equal(t, 300.0, p.BaseCount)
	assert.Equal(t, 0.0, p.K, "an explicit zero exponent is honored")
	assert.Equal(t, 3857, p.EPSG)

	p, err = c.Params("cafe", in)
	require.NoError(t, err)
	assert.Equal(t, 40.0, p.BaseCount)
	assert.Equal(t, 4.0, p.M2PerPerson, "unset norms keep the caller's value")
	assert.Equal(t, capacity.DefaultK, p.K)

	p, err = c.Params("nowhere", in)
	require.Error(t, err)
	assert.Equal(t, in, p)
}
