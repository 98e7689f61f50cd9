package capacity

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Reasons a zone received no additional capacity.
const (
	SkipNoDemand   = "no_demand"
	SkipNoHeadroom = "no_headroom"
)

// AllocateOptions tunes the allocation engine.
type AllocateOptions struct {
	// K is the demand-sensitivity exponent.
	K float64
	// MaxPasses bounds water-filling per zone; <= 0 means DefaultMaxPasses.
	MaxPasses int
	// Concurrency bounds parallel zones; <= 0 means DefaultConcurrency.
	Concurrency int
	// DemandMax is the global maximum zone demand. When <= 0 it is derived
	// from the facility rows.
	DemandMax float64
}

// ZoneReport describes the allocation outcome of one zone.
type ZoneReport struct {
	BlockID    int     `json:"block_id"`
	Demand     float64 `json:"demand"`
	Facilities int     `json:"facilities"`
	Headroom   float64 `json:"headroom"`
	Multiplier float64 `json:"multiplier"`
	Budget     float64 `json:"budget"`
	Allocated  float64 `json:"allocated"`
	Passes     int     `json:"passes"`
	Converged  bool    `json:"converged"`
	Unplaced   float64 `json:"unplaced"`
	Skipped    string  `json:"skipped,omitempty"`
}

// AllocationReport collects per-zone outcomes in block id order.
type AllocationReport struct {
	DemandMax    float64      `json:"demand_max"`
	Zones        []ZoneReport `json:"zones"`
	NonConverged int          `json:"non_converged"`
}

// BudgetMultiplier is w(demand) / w(demandMax) with w(d) = exp(k * d /
// demandMax), evaluated as a single exponent so large k cannot overflow.
// demandMax is floored at 1.
func BudgetMultiplier(demand, demandMax, k float64) float64 {
	if demandMax < 1 {
		demandMax = 1
	}
	return math.Exp(k * (demand/demandMax - 1))
}

// ZoneBudget is max(headroom) * multiplier * len(headroom), capped at the
// total headroom.
func ZoneBudget(headroom []float64, multiplier float64) float64 {
	if len(headroom) == 0 {
		return 0
	}
	total := floats.Sum(headroom)
	if total <= 0 {
		return 0
	}
	return math.Min(floats.Max(headroom)*multiplier*float64(len(headroom)), total)
}

type zoneGroup struct {
	blockID int
	demand  float64
	rows    []int
}

type zoneOutcome struct {
	report ZoneReport
	adds   []float64
}

// Allocate distributes additional capacity to eligible facilities (kept,
// base-type, attached) zone by zone. Zones run in parallel on read-only input
// and results are merged by row after every zone has finished. Facilities
// outside the allocation keep their capacity. Saturated is only set for
// facilities in zones that received a budget; rows of skipped zones stay
// unsaturated even when capacity already equals cap_max.
func Allocate(ctx context.Context, rows []Facility, opts AllocateOptions) ([]Facility, AllocationReport, error) {
	out := cloneFacilities(rows)
	for i := range out {
		out[i].NewCapacity = out[i].Capacity
		out[i].AddedCapacity = 0
		out[i].Saturated = false
	}

	dmax := opts.DemandMax
	if dmax <= 0 {
		dmax = 1
		for i := range out {
			if out[i].Demand > dmax {
				dmax = out[i].Demand
			}
		}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	groups := groupByZone(out)
	outcomes := make([]zoneOutcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for gi := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "capacity: allocation cancelled")
			}
			outcomes[gi] = allocateZone(groups[gi], out, dmax, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, AllocationReport{}, err
	}

	report := AllocationReport{DemandMax: dmax, Zones: make([]ZoneReport, 0, len(groups))}
	for gi, grp := range groups {
		oc := outcomes[gi]
		if oc.adds != nil {
			for j, ri := range grp.rows {
				oc.report.Allocated += applyAddition(&out[ri], oc.adds[j])
			}
		}
		if oc.report.Skipped == "" && !oc.report.Converged {
			report.NonConverged++
		}
		report.Zones = append(report.Zones, oc.report)
	}

	if report.NonConverged > 0 {
		zap.L().Warn("capacity: water-filling hit the pass limit",
			zap.String("component", "capacity.allocate"),
			zap.Int("zones", report.NonConverged),
		)
	}
	return out, report, nil
}

// groupByZone collects eligible rows per block id, ordered by block id.
func groupByZone(rows []Facility) []zoneGroup {
	byID := make(map[int]*zoneGroup)
	for i := range rows {
		if !rows[i].Eligible() {
			continue
		}
		grp, ok := byID[rows[i].BlockID]
		if !ok {
			grp = &zoneGroup{blockID: rows[i].BlockID, demand: rows[i].Demand}
			byID[rows[i].BlockID] = grp
		}
		grp.rows = append(grp.rows, i)
	}

	groups := make([]zoneGroup, 0, len(byID))
	for _, grp := range byID {
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].blockID < groups[b].blockID })
	return groups
}

// allocateZone computes the additions for one zone without touching rows.
func allocateZone(grp zoneGroup, rows []Facility, dmax float64, opts AllocateOptions) zoneOutcome {
	rep := ZoneReport{BlockID: grp.blockID, Demand: grp.demand, Facilities: len(grp.rows)}
	if grp.demand <= 0 {
		rep.Skipped = SkipNoDemand
		return zoneOutcome{report: rep}
	}

	head := make([]float64, len(grp.rows))
	for j, ri := range grp.rows {
		head[j] = rows[ri].Headroom()
	}
	rep.Headroom = floats.Sum(head)
	if rep.Headroom <= 0 {
		rep.Skipped = SkipNoHeadroom
		return zoneOutcome{report: rep}
	}

	rep.Multiplier = BudgetMultiplier(grp.demand, dmax, opts.K)
	rep.Budget = ZoneBudget(head, rep.Multiplier)
	if rep.Budget <= 0 {
		rep.Skipped = SkipNoHeadroom
		return zoneOutcome{report: rep}
	}

	initial := make([]float64, len(head))
	floats.ScaleTo(initial, rep.Budget/rep.Headroom, head)

	wf := WaterFill(head, initial, opts.MaxPasses)
	rep.Passes = wf.Passes
	rep.Converged = wf.Converged
	rep.Unplaced = wf.Unplaced

	zap.L().Debug("capacity: zone allocated",
		zap.String("component", "capacity.allocate"),
		zap.Int("block_id", grp.blockID),
		zap.Float64("demand", grp.demand),
		zap.Float64("budget", rep.Budget),
		zap.Int("passes", wf.Passes),
	)
	return zoneOutcome{report: rep, adds: wf.Alloc}
}

// applyAddition rounds capacity+add half-to-even, keeps the result inside
// [capacity, cap_max] and returns the capacity actually added.
func applyAddition(f *Facility, add float64) float64 {
	next := math.RoundToEven(f.Capacity + add)
	next = math.Max(next, f.Capacity)
	next = math.Min(next, math.Max(f.CapMax, f.Capacity))
	f.NewCapacity = next
	f.AddedCapacity = next - f.Capacity
	f.Saturated = isClose(next, f.CapMax)
	return f.AddedCapacity
}

// isClose mirrors numpy.isclose with its default tolerances.
func isClose(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}
