package capacity

import (
	"gonum.org/v1/gonum/floats"
)

const (
	// overshootTol is how far an allocation may exceed its headroom before a
	// water-filling pass is needed.
	overshootTol = 1e-9
	// freeTol is how far below its headroom an allocation must sit to take
	// redistributed surplus.
	freeTol = 1e-12
)

// WaterFillResult is the outcome of WaterFill.
type WaterFillResult struct {
	// Alloc holds the final allocation, element-wise at most the headroom.
	Alloc []float64
	// Passes is the number of clip-and-redistribute passes performed.
	Passes int
	// Converged is false when the pass limit was reached with an overshoot
	// still present; Alloc was then clipped to headroom.
	Converged bool
	// Unplaced is surplus that could not be redistributed, either because
	// every entry was saturated or because the final clip discarded it.
	Unplaced float64
}

// WaterFill distributes an initial allocation across capped entries. Each
// pass clips every entry exceeding its headroom and spreads the clipped
// surplus over the entries still below headroom, in proportion to their
// headroom. It stops once no entry overshoots, once nothing is free, or after
// maxPasses passes (DefaultMaxPasses when maxPasses <= 0). Hitting the pass
// limit is not an error: the result is clipped and reported as not converged.
//
// headroom and initial must have equal length; neither is modified.
func WaterFill(headroom, initial []float64, maxPasses int) WaterFillResult {
	if len(headroom) != len(initial) {
		panic("capacity: water-fill length mismatch")
	}
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	n := len(headroom)
	add := make([]float64, n)
	copy(add, initial)
	over := make([]float64, n)
	res := WaterFillResult{Alloc: add}

	for {
		if n == 0 {
			res.Converged = true
			break
		}
		floats.SubTo(over, add, headroom)
		if floats.Max(over) <= overshootTol {
			res.Converged = true
			break
		}
		if res.Passes >= maxPasses {
			break
		}
		res.Passes++

		surplus := positiveSum(over)
		clip(add, headroom)

		freeHead := 0.0
		for i := range add {
			if add[i] < headroom[i]-freeTol {
				freeHead += headroom[i]
			}
		}
		if freeHead <= 0 {
			res.Unplaced = surplus
			res.Converged = true
			break
		}
		for i := range add {
			if add[i] < headroom[i]-freeTol {
				add[i] += surplus * headroom[i] / freeHead
			}
		}
	}

	if !res.Converged {
		floats.SubTo(over, add, headroom)
		res.Unplaced = positiveSum(over)
		clip(add, headroom)
	}
	return res
}

func positiveSum(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func clip(add, limit []float64) {
	for i := range add {
		if add[i] > limit[i] {
			add[i] = limit[i]
		}
	}
}
