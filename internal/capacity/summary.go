package capacity

// Summary aggregates a Result for logs, run records and API responses.
type Summary struct {
	Facilities     int     `json:"facilities"`
	Kept           int     `json:"kept"`
	Dropped        int     `json:"dropped"`
	Real           int     `json:"real"`
	Base           int     `json:"base"`
	Attached       int     `json:"attached"`
	Unattached     int     `json:"unattached"`
	Grown          int     `json:"grown"`
	Saturated      int     `json:"saturated"`
	CapacityBefore float64 `json:"capacity_before"`
	CapacityAfter  float64 `json:"capacity_after"`
	Added          float64 `json:"added"`
	Zones          int     `json:"zones"`
	ZonesAllocated int     `json:"zones_allocated"`
	NonConverged   int     `json:"non_converged"`
}

// Summarize counts the kept and dropped rows of r and totals their capacity.
// Capacity totals only include kept rows.
func Summarize(r *Result) Summary {
	s := Summary{
		Facilities:   len(r.Facilities),
		Zones:        len(r.Zones),
		NonConverged: r.Allocation.NonConverged,
	}
	for i := range r.Facilities {
		f := &r.Facilities[i]
		if !f.Keep {
			s.Dropped++
			continue
		}
		s.Kept++
		switch f.CapType {
		case CapTypeReal:
			s.Real++
		default:
			s.Base++
		}
		if f.BlockID == Unattached {
			s.Unattached++
		} else {
			s.Attached++
		}
		if f.AddedCapacity > 0 {
			s.Grown++
		}
		if f.Saturated {
			s.Saturated++
		}
		s.CapacityBefore += f.Capacity
		s.CapacityAfter += f.NewCapacity
		s.Added += f.AddedCapacity
	}
	for _, z := range r.Allocation.Zones {
		if z.Skipped == "" {
			s.ZonesAllocated++
		}
	}
	return s
}
