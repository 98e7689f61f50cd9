package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/dataset"
	"github.com/sells-group/capacity-cli/internal/db"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute facility capacities against zone demand",
	Long: `Reads a facility layer and a zone layer (GeoJSON, shapefile, zipped shapefile,
URL or a PostGIS zone table), recomputes capacities and writes the result by
output extension (.geojson, .csv, .xlsx).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRecompute(cmd)
	},
}

func init() {
	addRecomputeFlags(recomputeCmd)
	rootCmd.AddCommand(recomputeCmd)
}

func addRecomputeFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("facilities", "", "facility layer: path or URL (.geojson, .json, .shp, .zip)")
	f.String("zones", "", "zone layer: path or URL")
	f.String("zones-table", "", "read zones from this PostGIS table instead of --zones")
	f.String("out", "", "output path (.geojson, .json, .csv, .xlsx)")
	f.Bool("to-postgis", false, "also copy the result rows into postgis.facilities_table")

	f.String("service", "", "service type whose catalog norms fill the parameters")
	f.String("catalog", "", "service catalog file (YAML or JSON)")
	f.Int("epsg", 0, "projected working CRS")
	f.Int("source-epsg", 0, "CRS assumed for layers without CRS metadata")
	f.Float64("demand-per-1000", 0, "demand per 1000 residents")
	f.Float64("base-count", 0, "placeholder capacity of base-type facilities")
	f.Float64("m2-per-person", 0, "footprint area per unit of capacity")
	f.Float64("k", capacity.DefaultK, "demand-sensitivity exponent")
	f.Int("max-passes", capacity.DefaultMaxPasses, "water-filling passes per zone")
	f.Int("concurrency", capacity.DefaultConcurrency, "zones allocated in parallel")
	f.String("tie-break", string(capacity.TieBreakFirst), "overlapping zone policy (first, nearest_centroid)")

	f.String("capacity-column", "", "facility capacity attribute")
	f.String("population-column", "", "zone population attribute")
	f.String("block-id-column", "", "zone id attribute (default block_id); ids are positional when the layer lacks it")
}

// resolveParams layers configuration, catalog norms and explicit flags, in
// that order of precedence from lowest to highest.
func resolveParams(cmd *cobra.Command) (string, capacity.Params, error) {
	f := cmd.Flags()
	params := cfg.Capacity.Params

	service := cfg.Capacity.Service
	if f.Changed("service") {
		service, _ = f.GetString("service")
	}
	if service != "" {
		path := cfg.Capacity.CatalogPath
		if f.Changed("catalog") {
			path, _ = f.GetString("catalog")
		}
		cat, err := initCatalog(path)
		if err != nil {
			return "", params, err
		}
		if params, err = cat.Params(service, params); err != nil {
			return "", params, err
		}
	}

	if f.Changed("epsg") {
		params.EPSG, _ = f.GetInt("epsg")
	}
	if f.Changed("demand-per-1000") {
		params.DemandPer1000, _ = f.GetFloat64("demand-per-1000")
	}
	if f.Changed("base-count") {
		params.BaseCount, _ = f.GetFloat64("base-count")
	}
	if f.Changed("m2-per-person") {
		params.M2PerPerson, _ = f.GetFloat64("m2-per-person")
	}
	if f.Changed("k") {
		params.K, _ = f.GetFloat64("k")
	}
	if f.Changed("max-passes") {
		params.MaxPasses, _ = f.GetInt("max-passes")
	}
	if f.Changed("concurrency") {
		params.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("tie-break") {
		tb, _ := f.GetString("tie-break")
		params.TieBreak = capacity.TieBreak(tb)
	}
	return service, params, nil
}

// stringFlag returns the flag value when set, otherwise fallback.
func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}

// lazyPool opens the PostGIS pool on first use.
type lazyPool struct {
	pool *pgxpool.Pool
}

func (l *lazyPool) get(ctx context.Context) (db.Pool, error) {
	if l.pool != nil {
		return l.pool, nil
	}
	if err := cfg.Validate("postgis"); err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg.PostGISURL(), &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}
	l.pool = pool
	return pool, nil
}

func (l *lazyPool) close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

func runRecompute(cmd *cobra.Command) error {
	ctx := cmd.Context()
	log := zap.L().With(zap.String("component", "cmd.recompute"))

	if err := cfg.Validate("recompute"); err != nil {
		return err
	}
	facilitiesSrc, _ := cmd.Flags().GetString("facilities")
	zonesSrc, _ := cmd.Flags().GetString("zones")
	zonesTable := stringFlag(cmd, "zones-table", "")
	if zonesSrc == "" && zonesTable == "" {
		zonesTable = cfg.PostGIS.ZonesTable
	}
	out, _ := cmd.Flags().GetString("out")
	toPostGIS, _ := cmd.Flags().GetBool("to-postgis")
	if facilitiesSrc == "" {
		return eris.New("--facilities is required")
	}
	if zonesSrc == "" && zonesTable == "" {
		return eris.New("--zones or --zones-table is required")
	}
	if out == "" && !toPostGIS {
		return eris.New("--out or --to-postgis is required")
	}

	service, params, err := resolveParams(cmd)
	if err != nil {
		return err
	}
	sourceEPSG := cfg.Capacity.SourceEPSG
	if cmd.Flags().Changed("source-epsg") {
		sourceEPSG, _ = cmd.Flags().GetInt("source-epsg")
	}
	reprojector, err := initReprojector()
	if err != nil {
		return err
	}

	var pg lazyPool
	defer pg.close()
	client := &http.Client{Timeout: 10 * time.Minute}

	fc, err := dataset.Open(ctx, client, facilitiesSrc)
	if err != nil {
		return err
	}
	facilities, err := dataset.FacilityTable(fc.WithFallbackEPSG(sourceEPSG),
		stringFlag(cmd, "capacity-column", cfg.Capacity.CapacityColumn))
	if err != nil {
		return err
	}

	var zones capacity.ZoneTable
	if zonesSrc != "" {
		zc, err := dataset.Open(ctx, client, zonesSrc)
		if err != nil {
			return err
		}
		zones, err = dataset.ZoneTable(zc.WithFallbackEPSG(sourceEPSG),
			stringFlag(cmd, "population-column", cfg.Capacity.PopulationColumn),
			stringFlag(cmd, "block-id-column", cfg.Capacity.BlockIDColumn))
		if err != nil {
			return err
		}
	} else {
		pool, err := pg.get(ctx)
		if err != nil {
			return err
		}
		if zones, err = dataset.ReadZonesPostGIS(ctx, pool, zonesTable); err != nil {
			return err
		}
		if zones.EPSG == 0 {
			zones.EPSG = sourceEPSG
		}
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	opts := []capacity.Option{capacity.WithReprojector(reprojector)}
	var runID string
	if st != nil {
		defer st.Close() //nolint:errcheck
		run, err := st.CreateRun(ctx, service, params)
		if err != nil {
			return err
		}
		runID = run.ID
		opts = append(opts, capacity.WithRunID(runID))
	}
	fail := func(err error) error {
		if st != nil {
			if ferr := st.FailRun(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
				log.Warn("record failed run", zap.String("run_id", runID), zap.Error(ferr))
			}
		}
		return err
	}

	res, err := capacity.Recompute(ctx, facilities, zones, params, opts...)
	if err != nil {
		return fail(err)
	}

	if out != "" {
		if err := dataset.Write(out, res); err != nil {
			return fail(err)
		}
		log.Info("result written", zap.String("run_id", res.RunID), zap.String("path", out))
	}
	if toPostGIS {
		pool, err := pg.get(ctx)
		if err != nil {
			return fail(err)
		}
		if _, err := dataset.CopyFacilities(ctx, pool, cfg.PostGIS.FacilitiesTable, res); err != nil {
			return fail(err)
		}
	}

	summary := capacity.Summarize(res)
	if st != nil {
		if err := st.CompleteRun(ctx, runID, summary); err != nil {
			return err
		}
	}
	formatSummary(cmd.OutOrStdout(), res.RunID, service, summary)
	return nil
}

// formatSummary writes a recomputation summary to w.
func formatSummary(out io.Writer, runID, service string, s capacity.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", runID)
	if service != "" {
		_, _ = fmt.Fprintf(w, "Service:\t%s\n", service)
	}
	_, _ = fmt.Fprintf(w, "Facilities:\t%d (kept %d, dropped %d)\n", s.Facilities, s.Kept, s.Dropped)
	_, _ = fmt.Fprintf(w, "Cap types:\t%d real, %d base\n", s.Real, s.Base)
	_, _ = fmt.Fprintf(w, "Attached:\t%d (unattached %d)\n", s.Attached, s.Unattached)
	_, _ = fmt.Fprintf(w, "Grown:\t%d (saturated %d)\n", s.Grown, s.Saturated)
	_, _ = fmt.Fprintf(w, "Capacity:\t%.0f -> %.0f (+%.0f)\n", s.CapacityBefore, s.CapacityAfter, s.Added)
	_, _ = fmt.Fprintf(w, "Zones:\t%d (allocated %d, non-converged %d)\n", s.Zones, s.ZonesAllocated, s.NonConverged)
	_ = w.Flush()
}

