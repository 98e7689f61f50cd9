package capacity

import (
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Defaults for the allocation engine.
const (
	DefaultK           = 2.0
	DefaultMaxPasses   = 12
	DefaultConcurrency = 4
)

// ErrMissingCRS is returned when a spatial input carries no coordinate
// reference system.
var ErrMissingCRS = eris.New("capacity: input has no coordinate reference system")

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = eris.New("capacity: invalid parameters")

// MissingColumnError names a required column absent from an input table.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("capacity: %s table is missing required column %q", e.Table, e.Column)
}

// IsInputError reports whether err stems from invalid caller input rather
// than an internal failure.
func IsInputError(err error) bool {
	var mc *MissingColumnError
	return errors.As(err, &mc) || eris.Is(err, ErrMissingCRS) || eris.Is(err, ErrInvalidParams)
}

// TieBreak selects a zone when a facility anchor lies inside several zones.
type TieBreak string

// Tie-break policies.
const (
	// TieBreakFirst picks the zone that comes first in the zone table.
	TieBreakFirst TieBreak = "first"
	// TieBreakNearestCentroid picks the zone whose centroid is closest to the
	// anchor, falling back to table order on equal distance.
	TieBreakNearestCentroid TieBreak = "nearest_centroid"
)

// Params are the per-call recomputation parameters.
type Params struct {
	// DemandPer1000 converts zone population into demand.
	DemandPer1000 float64 `json:"demand_per_1000" yaml:"demand_per_1000" mapstructure:"demand_per_1000"`
	// BaseCount is the placeholder capacity identifying base-type facilities.
	BaseCount float64 `json:"base_count" yaml:"base_count" mapstructure:"base_count"`
	// M2PerPerson is the footprint area norm per unit of capacity.
	M2PerPerson float64 `json:"m2_per_person" yaml:"m2_per_person" mapstructure:"m2_per_person"`
	// EPSG is the projected working CRS; all geometry is reprojected to it.
	EPSG int `json:"epsg" yaml:"epsg" mapstructure:"epsg"`
	// K is the demand-sensitivity exponent of the zone budget.
	K float64 `json:"k" yaml:"k" mapstructure:"k"`
	// MaxPasses bounds the water-filling iterations per zone.
	MaxPasses int `json:"max_passes" yaml:"max_passes" mapstructure:"max_passes"`
	// Concurrency bounds the number of zones allocated in parallel.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	// TieBreak chooses among overlapping zones.
	TieBreak TieBreak `json:"tie_break" yaml:"tie_break" mapstructure:"tie_break"`
}

// DefaultParams returns Params with the tuning knobs at their defaults. The
// scaling parameters and EPSG code have no defaults and must be supplied.
func DefaultParams() Params {
	return Params{
		K:           DefaultK,
		MaxPasses:   DefaultMaxPasses,
		Concurrency: DefaultConcurrency,
		TieBreak:    TieBreakFirst,
	}
}

// WithDefaults fills unset iteration, concurrency and tie-break knobs. K is
// left alone because zero is a meaningful exponent (a flat budget).
func (p Params) WithDefaults() Params {
	if p.MaxPasses <= 0 {
		p.MaxPasses = DefaultMaxPasses
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.TieBreak == "" {
		p.TieBreak = TieBreakFirst
	}
	return p
}

// Validate checks p after defaults have been applied.
func (p Params) Validate() error {
	finite := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Wrapf(ErrInvalidParams, "%s must be finite, got %v", name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"demand_per_1000", p.DemandPer1000},
		{"base_count", p.BaseCount},
		{"m2_per_person", p.M2PerPerson},
		{"k", p.K},
	} {
		if err := finite(c.name, c.v); err != nil {
			return err
		}
	}
	if p.DemandPer1000 < 0 {
		return eris.Wrapf(ErrInvalidParams, "demand_per_1000 must not be negative, got %v", p.DemandPer1000)
	}
	if p.M2PerPerson <= 0 {
		return eris.Wrapf(ErrInvalidParams, "m2_per_person must be positive, got %v", p.M2PerPerson)
	}
	if p.EPSG <= 0 {
		return eris.Wrapf(ErrInvalidParams, "epsg must be set, got %d", p.EPSG)
	}
	switch p.TieBreak {
	case TieBreakFirst, TieBreakNearestCentroid:
	default:
		return eris.Wrapf(ErrInvalidParams, "unknown tie_break %q", p.TieBreak)
	}
	return nil
}
