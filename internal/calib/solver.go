package calib

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample is one (raw feature, ground-truth coordinate) observation
// collected while the calibration controller is Active.
type Sample struct {
	SX, SY             float64
	XTruthCM, YTruthCM float64
}

// Residuals reports the fit quality in centimeters.
type Residuals struct {
	MeanCM float64
	MaxCM  float64
}

// ErrInsufficientSamples is returned when fewer than 3 valid samples are
// available.
var ErrInsufficientSamples = errors.New("calib: need at least 3 valid samples")

// ErrSolverDegenerate is returned when the least-squares design matrix is
// rank-deficient.
var ErrSolverDegenerate = errors.New("calib: least-squares solve failed (degenerate design matrix)")

// Solve fits a per-axis ordinary least squares model from samples. It
// picks the quadratic basis at n>=6 samples and the linear basis
// otherwise, and reports fit-quality residuals. The returned Fit carries
// prevVersion+1; callers decide when to install and persist it.
func Solve(samples []Sample, prevVersion int) (Fit, Residuals, error) {
	n := len(samples)
	if n < 3 {
		return Fit{}, Residuals{}, ErrInsufficientSamples
	}

	model := ModelLinear
	if n >= 6 {
		model = ModelQuadratic
	}
	cols := basisLen(model)

	design := mat.NewDense(n, cols, nil)
	for i, s := range samples {
		design.SetRow(i, basis(model, s.SX, s.SY))
	}
	xTruth := mat.NewDense(n, 1, nil)
	yTruth := mat.NewDense(n, 1, nil)
	for i, s := range samples {
		xTruth.Set(i, 0, s.XTruthCM)
		yTruth.Set(i, 0, s.YTruthCM)
	}

	coeffsX, err := solveAxis(design, xTruth, cols)
	if err != nil {
		return Fit{}, Residuals{}, err
	}
	coeffsY, err := solveAxis(design, yTruth, cols)
	if err != nil {
		return Fit{}, Residuals{}, err
	}

	fit := Fit{
		Model:   model,
		CoeffsX: coeffsX,
		CoeffsY: coeffsY,
		Version: prevVersion + 1,
	}

	res := computeResiduals(fit, samples)
	return fit, res, nil
}

// solveAxis runs ordinary least squares for one axis via QR decomposition
// of the design matrix, detecting a rank-deficient system from a
// near-zero diagonal entry of R.
func solveAxis(design, truth *mat.Dense, cols int) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(design)

	var r mat.Dense
	qr.RTo(&r)
	for i := 0; i < cols; i++ {
		if math.Abs(r.At(i, i)) < 1e-9 {
			return nil, ErrSolverDegenerate
		}
	}

	var solved mat.Dense
	if err := qr.SolveTo(&solved, false, truth); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverDegenerate, err)
	}

	out := make([]float64, cols)
	for i := 0; i < cols; i++ {
		out[i] = solved.At(i, 0)
	}
	return out, nil
}

func computeResiduals(fit Fit, samples []Sample) Residuals {
	var sum, max float64
	for _, s := range samples {
		x, y := fit.Apply(s.SX, s.SY)
		r := math.Hypot(x-s.XTruthCM, y-s.YTruthCM)
		sum += r
		if r > max {
			max = r
		}
	}
	return Residuals{MeanCM: sum / float64(len(samples)), MaxCM: max}
}
