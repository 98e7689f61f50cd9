package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/capacity-cli/internal/catalog"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Inspect the service catalog",
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known service types",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := serviceCatalog(cmd)
		if err != nil {
			return err
		}
		for _, name := range cat.Names() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var servicesShowCmd = &cobra.Command{
	Use:   "show <service>",
	Short: "Show the norms and units of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := serviceCatalog(cmd)
		if err != nil {
			return err
		}
		svc, err := cat.Lookup(args[0])
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(svc); err != nil {
			return eris.Wrap(err, "services show")
		}
		if base, ok := svc.BaseCount(); ok {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# base_count: %g\n", base)
		}
		return enc.Close()
	},
}

// serviceCatalog loads the catalog named by --catalog or the configuration.
func serviceCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	return initCatalog(stringFlag(cmd, "catalog", cfg.Capacity.CatalogPath))
}

func init() {
	servicesCmd.PersistentFlags().String("catalog", "", "service catalog file (YAML or JSON)")
	servicesCmd.AddCommand(servicesListCmd)
	servicesCmd.AddCommand(servicesShowCmd)
	rootCmd.AddCommand(servicesCmd)
}
