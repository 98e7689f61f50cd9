package capacity

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/geo"
)

// AttachStats summarises demand attachment.
type AttachStats struct {
	Attached   int
	Unattached int
	// Ambiguous counts anchors that fell inside more than one zone.
	Ambiguous int
}

// PrepareZones computes zone demand from population and assigns sequential
// block ids when the source had none. Null populations count as zero.
func PrepareZones(zones []Zone, demandPer1000 float64, assignIDs bool) []Zone {
	out := make([]Zone, len(zones))
	copy(out, zones)
	for i := range out {
		z := &out[i]
		if math.IsNaN(z.Population) {
			z.Population = 0
		}
		z.Demand = z.Population * demandPer1000 / 1000.0
		if assignIDs {
			z.BlockID = i
		}
	}
	return out
}

// MaxDemand returns the largest zone demand, floored at 1 so that budget
// scaling never divides by a vanishing maximum.
func MaxDemand(zones []Zone) float64 {
	dmax := 1.0
	for _, z := range zones {
		if z.Demand > dmax {
			dmax = z.Demand
		}
	}
	return dmax
}

// AttachDemand assigns every kept facility to the zone containing its anchor
// (the point itself, or the polygon centroid) and copies that zone's demand.
// Facilities outside every zone, and dropped rows, get Unattached and zero
// demand. Anchors inside several zones are resolved by policy.
func AttachDemand(rows []Facility, zones []Zone, policy TieBreak) ([]Facility, AttachStats) {
	out := cloneFacilities(rows)

	ix := geo.NewIndex()
	for i := range zones {
		ix.Insert(i, zones[i].Geometry)
	}
	centroids := make(map[int]zoneCentroid)

	var stats AttachStats
	for i := range out {
		f := &out[i]
		f.BlockID = Unattached
		f.Demand = 0
		if !f.Keep {
			continue
		}

		anchor, err := geo.Anchor(f.Geometry)
		if err != nil {
			stats.Unattached++
			continue
		}
		matches := ix.Containing(anchor)
		if len(matches) == 0 {
			stats.Unattached++
			continue
		}

		pick := matches[0]
		if len(matches) > 1 {
			stats.Ambiguous++
			if policy == TieBreakNearestCentroid {
				pick = nearestZone(anchor, matches, zones, centroids)
			}
		}
		f.BlockID = zones[pick].BlockID
		f.Demand = zones[pick].Demand
		stats.Attached++
	}

	if stats.Ambiguous > 0 {
		zap.L().Warn("capacity: facility anchors inside overlapping zones",
			zap.String("component", "capacity.attach"),
			zap.Int("ambiguous", stats.Ambiguous),
			zap.String("tie_break", string(policy)),
		)
	}
	return out, stats
}

type zoneCentroid struct {
	c  []float64
	ok bool
}

// nearestZone returns the candidate whose centroid is closest to anchor.
// candidates are in table order, so the strict comparison keeps the earliest
// zone on ties.
func nearestZone(anchor []float64, candidates []int, zones []Zone, cache map[int]zoneCentroid) int {
	best, bestDist := candidates[0], math.Inf(1)
	for _, zi := range candidates {
		zc, seen := cache[zi]
		if !seen {
			c, err := geo.Anchor(zones[zi].Geometry)
			zc = zoneCentroid{c: c, ok: err == nil}
			cache[zi] = zc
		}
		if !zc.ok {
			continue
		}
		if d := geo.Distance(anchor, zc.c); d < bestDist {
			best, bestDist = zi, d
		}
	}
	return best
}
