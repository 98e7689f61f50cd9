package capacity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/geo"
)

// Result is the output of a recomputation: one facility row per input row,
// dropped rows included, plus the prepared zones and stage statistics.
type Result struct {
	RunID      string           `json:"run_id"`
	Params     Params           `json:"params"`
	Facilities []Facility       `json:"-"`
	Zones      []Zone           `json:"-"`
	Merge      MergeStats       `json:"merge"`
	Attach     AttachStats      `json:"attach"`
	Allocation AllocationReport `json:"allocation"`
	Duration   time.Duration    `json:"duration"`
}

// Option configures Recompute.
type Option func(*recomputeConfig)

type recomputeConfig struct {
	reprojector *geo.Reprojector
	runID       string
}

// WithReprojector supplies the reprojector, e.g. one carrying extra proj4
// definitions.
func WithReprojector(r *geo.Reprojector) Option {
	return func(c *recomputeConfig) {
		c.reprojector = r
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(c *recomputeConfig) {
		c.runID = id
	}
}

// Recompute runs the full pipeline: validation, reprojection to params.EPSG,
// zone demand, cap-type classification, coincidence merge, ceilings, demand
// attachment and allocation. Configuration and input errors are fatal and
// produce no partial result.
func Recompute(ctx context.Context, facilities FacilityTable, zones ZoneTable, params Params, opts ...Option) (*Result, error) {
	start := time.Now()
	cfg := recomputeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reprojector == nil {
		cfg.reprojector = geo.NewReprojector(nil)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.New().String()
	}

	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := validateInputs(facilities, zones, params, cfg.reprojector); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "capacity: recompute cancelled")
	}

	log := zap.L().With(
		zap.String("component", "capacity.recompute"),
		zap.String("run_id", cfg.runID),
	)

	frows, err := projectFacilities(facilities, params.EPSG, cfg.reprojector)
	if err != nil {
		return nil, err
	}
	zrows, err := projectZones(zones, params.EPSG, cfg.reprojector)
	if err != nil {
		return nil, err
	}
	zrows = PrepareZones(zrows, params.DemandPer1000, !zones.HasColumn(ColBlockID))

	classified := ClassifyCapTypes(frows, params.BaseCount)
	merged, mergeStats := MergeCoincident(classified)
	ceiled := ApplyCeilings(merged, params.M2PerPerson)
	attached, attachStats := AttachDemand(ceiled, zrows, params.TieBreak)

	allocated, report, err := Allocate(ctx, attached, AllocateOptions{
		K:           params.K,
		MaxPasses:   params.MaxPasses,
		Concurrency: params.Concurrency,
		DemandMax:   MaxDemand(zrows),
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      cfg.runID,
		Params:     params,
		Facilities: allocated,
		Zones:      zrows,
		Merge:      mergeStats,
		Attach:     attachStats,
		Allocation: report,
		Duration:   time.Since(start),
	}

	sum := Summarize(res)
	log.Info("capacity recomputed",
		zap.Int("facilities", sum.Facilities),
		zap.Int("dropped", sum.Dropped),
		zap.Int("attached", sum.Attached),
		zap.Int("grown", sum.Grown),
		zap.Float64("added_capacity", sum.Added),
		zap.Int("non_converged_zones", sum.NonConverged),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func validateInputs(facilities FacilityTable, zones ZoneTable, params Params, r *geo.Reprojector) error {
	for _, col := range []string{ColGeometry, ColCapacity} {
		if !facilities.HasColumn(col) {
			return &MissingColumnError{Table: "facilities", Column: col}
		}
	}
	for _, col := range []string{ColGeometry, ColPopulation} {
		if !zones.HasColumn(col) {
			return &MissingColumnError{Table: "zones", Column: col}
		}
	}
	if facilities.EPSG <= 0 {
		return eris.Wrap(ErrMissingCRS, "facilities")
	}
	if zones.EPSG <= 0 {
		return eris.Wrap(ErrMissingCRS, "zones")
	}
	for _, code := range []int{facilities.EPSG, zones.EPSG} {
		if code != params.EPSG && (!r.Supports(code) || !r.Supports(params.EPSG)) {
			return eris.Wrapf(ErrInvalidParams, "cannot reproject EPSG:%d to EPSG:%d", code, params.EPSG)
		}
	}
	return nil
}

func projectFacilities(t FacilityTable, epsg int, r *geo.Reprojector) ([]Facility, error) {
	out := cloneFacilities(t.Rows)
	derive := !t.HasColumn(ColGeomType)
	for i := range out {
		f := &out[i]
		f.ID = i
		g, err := r.Reproject(f.Geometry, t.EPSG, epsg)
		if err != nil {
			return nil, eris.Wrapf(err, "capacity: reproject facility %d", i)
		}
		f.Geometry = g
		if derive || f.GeomType == "" {
			f.GeomType = geo.Classify(g)
		}
	}
	return out, nil
}

func projectZones(t ZoneTable, epsg int, r *geo.Reprojector) ([]Zone, error) {
	out := make([]Zone, len(t.Rows))
	copy(out, t.Rows)
	for i := range out {
		g, err := r.Reproject(out[i].Geometry, t.EPSG, epsg)
		if err != nil {
			return nil, eris.Wrapf(err, "capacity: reproject zone %d", i)
		}
		out[i].Geometry = g
	}
	return out, nil
}
