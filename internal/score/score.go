// Package score resolves a target-plane radius into a tournament ring
// score using a configurable ring-radius table.
package score

import "fmt"

// RingTable maps score labels to ring radii in cm. Keys are "X" plus the
// integers 10 down to 1. Radii must strictly increase from 10 down to 1,
// and X's radius must be <= 10's radius.
type RingTable struct {
	X     float64
	Rings [10]float64 // Rings[0] = radius for score 10, Rings[9] = radius for score 1
}

// DefaultRingTable is the standard World Archery-style face used in the
// end-to-end scenarios: X=2, 10=4, 9=8, 8=12, 7=16, 6=20, 5=24, 4=28,
// 3=32, 2=36, 1=40 (cm).
func DefaultRingTable() RingTable {
	return RingTable{
		X:     2,
		Rings: [10]float64{4, 8, 12, 16, 20, 24, 28, 32, 36, 40},
	}
}

// Validate checks the strictly-increasing-radius invariant.
func (rt RingTable) Validate() error {
	if rt.X > rt.Rings[0] {
		return fmt.Errorf("score: X radius %.2f must not exceed the 10-ring radius %.2f", rt.X, rt.Rings[0])
	}
	for i := 1; i < len(rt.Rings); i++ {
		if rt.Rings[i] <= rt.Rings[i-1] {
			return fmt.Errorf("score: ring radii must strictly increase from 10 down to 1, got %v", rt.Rings)
		}
	}
	return nil
}

// FromRadius resolves r_cm to (score, is_x). A radius exactly on a ring
// boundary counts as the tighter (higher) score. Deterministic and
// dependent only on r and the ring table.
func FromRadius(r float64, rt RingTable) (int, bool) {
	if r <= rt.X {
		return 10, true
	}
	for i, radius := range rt.Rings {
		if r <= radius {
			return 10 - i, false
		}
	}
	return 0, false
}
