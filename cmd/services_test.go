package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServicesList(t *testing.T) {
	testConfig(t)

	c := &cobra.Command{}
	var out bytes.Buffer
	c.SetOut(&out)
	require.NoError(t, servicesListCmd.RunE(c, nil))

	assert.Contains(t, out.String(), "school\n")
	assert.Contains(t, out.String(), "hospital\n")
}

func TestServicesShow_FromCatalogFile(t *testing.T) {
	testConfig(t)
	path := writeLayer(t, "catalog.yaml", `
services:
  - name: kindergarten
    demand_per_1000: 60
    units:
      - {name: small, capacity: 90}
      - {name: large, capacity: 240}
`)

	c := &cobra.Command{}
	c.Flags().String("catalog", "", "")
	require.NoError(t, c.Flags().Set("catalog", path))
	var out bytes.Buffer
	c.SetOut(&out)
	require.NoError(t, servicesShowCmd.RunE(c, []string{"Kindergarten"}))

	assert.Contains(t, out.String(), "name: kindergarten")
	assert.Contains(t, out.String(), "demand_per_1000: 60")
	assert.Contains(t, out.String(), "# base_count: 90")
}

func TestServicesShow_Unknown(t *testing.T) {
	testConfig(t)

	c := &cobra.Command{}
	err := servicesShowCmd.RunE(c, []string{"spaceport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}
