package localize

import "math"

// ReasonUnavailable tags the TDOA localizer's explicit unavailable result.
const ReasonUnavailable = "unavailable"

// TDOAResult is the TDOA localizer's output, or Unavailable=true when not
// all four channels reported a valid arrival time.
type TDOAResult struct {
	Estimate    Estimate
	Unavailable bool
}

// CompassTimes are per-compass microsecond arrival offsets, referenced so
// the earliest channel is zero. Negative values mean "missing".
type CompassTimes struct {
	N, E, S, W int64
}

// Valid reports whether all four compass positions have a non-negative
// arrival time.
func (c CompassTimes) Valid() bool {
	return c.N >= 0 && c.E >= 0 && c.S >= 0 && c.W >= 0
}

// TDOA converts per-compass microsecond arrival offsets into a second
// (sx, sy) estimate with a quality confidence. Requires all four channels
// present; otherwise returns Unavailable.
func TDOA(times CompassTimes, waveSpeedMPS, targetDiameterCM float64) TDOAResult {
	if !times.Valid() {
		return TDOAResult{Unavailable: true}
	}

	maxSpanM := targetDiameterCM / 100.0

	dN := float64(times.N) * 1e-6 * waveSpeedMPS
	dE := float64(times.E) * 1e-6 * waveSpeedMPS
	dS := float64(times.S) * 1e-6 * waveSpeedMPS
	dW := float64(times.W) * 1e-6 * waveSpeedMPS

	sx := clamp(-(dE-dW)/maxSpanM, -1, 1)
	sy := clamp(-(dN-dS)/maxSpanM, -1, 1)

	vals := [4]int64{times.N, times.E, times.S, times.W}
	minT, maxT := vals[0], vals[0]
	for _, t := range vals {
		if t < minT {
			minT = t
		}
		if t > maxT {
			maxT = t
		}
	}
	nAtZero := 0
	for _, t := range vals {
		if t == minT {
			nAtZero++
		}
	}
	spread := float64(maxT - minT)
	expected := (maxSpanM / waveSpeedMPS) * 1e6

	conf := tdoaConfidence(nAtZero, spread, expected)

	return TDOAResult{Estimate: Estimate{SX: sx, SY: sy, Confidence: conf}}
}

func tdoaConfidence(nAtZero int, spread, expected float64) float64 {
	switch {
	case nAtZero >= 3:
		return 0.05
	case nAtZero == 2:
		return 0.15
	case spread < 100:
		return 0.1
	case spread > 1.5*expected:
		return 0.0
	case spread > expected:
		return 0.15
	default:
		return math.Min(0.7, 0.3+0.4*spread/expected)
	}
}
