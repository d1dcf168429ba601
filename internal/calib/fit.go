// Package calib holds the calibration fit model (identity, linear,
// quadratic), the least-squares solver that produces it, the coordinate
// mapper that applies it, and its atomic on-disk persistence.
package calib

import (
	"fmt"
	"math"
)

// Model tags which basis a CalibrationFit uses.
type Model string

const (
	ModelIdentity  Model = "identity"
	ModelLinear    Model = "linear_sxsy"
	ModelQuadratic Model = "poly2_sxsy"
	// ModelLegacyAffine is read-supported for backward compatibility with
	// fit files written by the original meters-era implementation, but is
	// never produced by Apply.
	ModelLegacyAffine Model = "affine_sxsy"
)

// Fit is the tagged calibration-fit variant. CoeffsX/CoeffsY hold the
// per-axis coefficient vector in the basis order for Model; Identity and
// LegacyAffine ignore them (LegacyAffine instead uses the 6 a..f fields).
type Fit struct {
	Model   Model
	CoeffsX []float64
	CoeffsY []float64
	Version int

	// HalfSpanCM is used only by ModelIdentity.
	HalfSpanCM float64

	// Legacy affine coefficients: x = a*sx + b*sy + c, y = d*sx + e*sy + f.
	LegacyA, LegacyB, LegacyC, LegacyD, LegacyE, LegacyF float64
}

// basisLen returns the required coefficient-vector length for a model, or
// 0 for models that don't use CoeffsX/CoeffsY.
func basisLen(m Model) int {
	switch m {
	case ModelLinear:
		return 3
	case ModelQuadratic:
		return 6
	default:
		return 0
	}
}

// Validate checks the coefficient-vector-length invariant for the tagged
// model.
func (f Fit) Validate() error {
	switch f.Model {
	case ModelIdentity, ModelLegacyAffine:
		return nil
	case ModelLinear, ModelQuadratic:
		want := basisLen(f.Model)
		if len(f.CoeffsX) != want || len(f.CoeffsY) != want {
			return fmt.Errorf("calib: model %s requires %d coefficients per axis, got x=%d y=%d",
				f.Model, want, len(f.CoeffsX), len(f.CoeffsY))
		}
		return nil
	default:
		return fmt.Errorf("calib: unknown model %q", f.Model)
	}
}

// basis evaluates the feature basis vector for a given model and (sx, sy).
func basis(m Model, sx, sy float64) []float64 {
	switch m {
	case ModelLinear:
		return []float64{sx, sy, 1}
	case ModelQuadratic:
		return []float64{sx, sy, sx * sy, sx * sx, sy * sy, 1}
	default:
		return nil
	}
}

func dot(coeffs, basis []float64) float64 {
	var sum float64
	for i := range coeffs {
		sum += coeffs[i] * basis[i]
	}
	return sum
}

// Apply maps a normalized (sx, sy) pair to target-plane centimeters
// through the fit.
func (f Fit) Apply(sx, sy float64) (x, y float64) {
	switch f.Model {
	case ModelIdentity:
		return f.HalfSpanCM * sx, f.HalfSpanCM * sy
	case ModelLegacyAffine:
		return f.LegacyA*sx + f.LegacyB*sy + f.LegacyC, f.LegacyD*sx + f.LegacyE*sy + f.LegacyF
	case ModelLinear, ModelQuadratic:
		b := basis(f.Model, sx, sy)
		return dot(f.CoeffsX, b), dot(f.CoeffsY, b)
	default:
		return 0, 0
	}
}

// Radius is a small convenience wrapper around math.Hypot for the mapper
// stage's r_cm computation.
func Radius(x, y float64) float64 {
	return math.Hypot(x, y)
}

// Identity returns the uncalibrated fit for the given target diameter.
func Identity(halfSpanCM float64) Fit {
	return Fit{Model: ModelIdentity, HalfSpanCM: halfSpanCM, Version: 0}
}
