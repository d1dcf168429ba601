// Package fusion combines the energy and TDOA localization estimates by
// per-method confidence and inter-method disagreement.
package fusion

import (
	"math"

	"github.com/banshee-data/impactrange/internal/localize"
)

// Method tags which fusion path produced the output, for observability.
type Method string

const (
	MethodEnergyOnly          Method = "energy_only"
	MethodLowConfAvg          Method = "low_conf_avg"
	MethodAgreeFuse           Method = "agree_fuse"
	MethodDisagreeFuse        Method = "disagree_fuse"
	MethodHighDisagreeEnergy  Method = "high_disagree_energy"
)

// Result is the fused coordinate estimate.
type Result struct {
	SX, SY float64
	Method Method
}

// Fuse combines an energy estimate (always present) with an optional TDOA
// estimate (tdoaAvailable=false when the TDOA localizer reported
// unavailable), scaling TDOA's confidence by trustFactor before weighting.
func Fuse(energy localize.Estimate, tdoa localize.Estimate, tdoaAvailable bool, trustFactor float64) Result {
	if !tdoaAvailable {
		return Result{SX: energy.SX, SY: energy.SY, Method: MethodEnergyOnly}
	}

	tdoaConfEff := trustFactor * tdoa.Confidence

	if energy.Confidence+tdoaConfEff < 0.1 {
		return Result{
			SX:     (energy.SX + tdoa.SX) / 2,
			SY:     (energy.SY + tdoa.SY) / 2,
			Method: MethodLowConfAvg,
		}
	}

	wE := energy.Confidence
	wT := tdoaConfEff
	total := wE + wT
	if total > 0 {
		wE /= total
		wT /= total
	}

	delta := math.Hypot(energy.SX-tdoa.SX, energy.SY-tdoa.SY)

	switch {
	case delta < 0.2:
		return Result{
			SX:     wE*energy.SX + wT*tdoa.SX,
			SY:     wE*energy.SY + wT*tdoa.SY,
			Method: MethodAgreeFuse,
		}
	case delta < 0.5:
		scale := 1 - 0.3*(delta-0.2)/0.3
		wE *= scale
		wT *= scale
		total := wE + wT
		if total > 0 {
			wE /= total
			wT /= total
		}
		return Result{
			SX:     wE*energy.SX + wT*tdoa.SX,
			SY:     wE*energy.SY + wT*tdoa.SY,
			Method: MethodDisagreeFuse,
		}
	default:
		return Result{SX: energy.SX, SY: energy.SY, Method: MethodHighDisagreeEnergy}
	}
}
