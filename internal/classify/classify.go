// Package classify applies the multi-feature scoring gate that separates
// genuine arrow impacts from spurious vibration.
package classify

import (
	"math"
	"sort"

	"github.com/banshee-data/impactrange/internal/config"
)

// Mode is the sensitivity profile the classifier evaluates against.
type Mode int

const (
	ModeShooting Mode = iota
	ModeCalibration
)

// Features are the derived per-burst quantities the rubric scores against.
type Features struct {
	SumEnergy  float64
	MaxEnergy  float64
	DomRatio   float64
	Top2Ratio  float64
	Entropy    float64
	MaxPeak    float64
	PeakOver   float64
	Delta      float64
	SX, SY     float64 // filled in by the localizer stage, not the classifier
}

// Label is the classifier's verdict.
type Label string

const (
	HIT   Label = "HIT"
	GHOST Label = "GHOST"
)

// Classification is the classifier's output for one burst.
type Classification struct {
	Label    Label
	Reason   string
	Score    int
	Features Features
}

// Baseline tracks the EMA of sum_energy used as the noise floor. It is
// owned by a single classifier actor and must not be shared across
// goroutines without external synchronization.
type Baseline struct {
	ema     float64
	seeded  bool
}

// Update applies the EMA recurrence and returns the pre-update baseline
// (the "prev_ema" the delta feature is computed against).
func (b *Baseline) Update(sumEnergy, alpha float64) float64 {
	prev := b.ema
	if !b.seeded {
		b.ema = sumEnergy
		b.seeded = true
		return sumEnergy
	}
	b.ema = (1-alpha)*b.ema + alpha*sumEnergy
	return prev
}

const epsilon = 1e-9

// DeriveFeatures computes the scoring features from four compass energies
// and four peaks, given the current EMA baseline (already updated by the
// caller via Baseline.Update so Delta reflects prev_ema).
func DeriveFeatures(energies [4]float64, peaks [4]float64, prevEMA float64) Features {
	sum := energies[0] + energies[1] + energies[2] + energies[3]
	maxE := math.Max(math.Max(energies[0], energies[1]), math.Max(energies[2], energies[3]))

	domRatio := 0.0
	if sum > epsilon {
		domRatio = maxE / sum
	}

	sorted := append([]float64(nil), energies[:]...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	top2 := 0.0
	if sum > epsilon {
		top2 = (sorted[0] + sorted[1]) / sum
	}

	entropy := 0.0
	if sum > epsilon {
		for _, e := range energies {
			p := e / sum
			if p > 0 {
				entropy -= p * math.Log(p+epsilon)
			}
		}
	}

	maxPeak := math.Max(math.Max(peaks[0], peaks[1]), math.Max(peaks[2], peaks[3]))
	medianPeak := medianOf4(peaks)
	peakOver := maxPeak - medianPeak

	return Features{
		SumEnergy: sum,
		MaxEnergy: maxE,
		DomRatio:  domRatio,
		Top2Ratio: top2,
		Entropy:   entropy,
		MaxPeak:   maxPeak,
		PeakOver:  peakOver,
		Delta:     sum - prevEMA,
	}
}

func medianOf4(v [4]float64) float64 {
	s := append([]float64(nil), v[:]...)
	sort.Float64s(s)
	return (s[1] + s[2]) / 2
}

// Classify runs the gate ordering from the stable contract: hard minimums,
// impulse presence, weak-signal veto, calibration-strict veto, weighted
// score against a mode threshold, then the low-energy override. It is
// deterministic given the same feature set and mode.
func Classify(f Features, mode Mode, cfg *config.TuningConfig) Classification {
	// 1. Hard minimums.
	if f.SumEnergy < cfg.GetMinEnergy() {
		return reject(f, "min_energy")
	}
	if f.MaxEnergy < cfg.GetMinMaxEnergy() {
		return reject(f, "min_max_energy")
	}
	if f.DomRatio < cfg.GetMinDomRatio() && f.SumEnergy < 10000 {
		return reject(f, "min_dom_ratio")
	}

	// 2. Impulse presence.
	if f.SumEnergy < 200 && f.MaxPeak < 300 && f.PeakOver < 10 {
		return reject(f, "too_small")
	}
	if !(f.SumEnergy >= 300 || f.MaxPeak >= 300 || f.PeakOver >= 10) {
		return reject(f, "no_impact")
	}

	// 3. Weak-signal veto.
	if f.MaxPeak < 320 && f.SumEnergy < 2000 {
		return reject(f, "weak_signal")
	}

	// 4. Calibration-strict veto.
	if mode == ModeCalibration {
		if f.SumEnergy < 5000 {
			return reject(f, "calibration_strict")
		}
		if !(f.MaxPeak >= 320 || f.SumEnergy >= 300) {
			return reject(f, "calibration_strict")
		}
	}

	// 5. Weighted score.
	score := rubricScore(f, cfg)
	threshold := cfg.GetScoreThresholdShooting()
	if mode == ModeCalibration {
		threshold = cfg.GetScoreThresholdCalibration()
	}
	if score < threshold {
		return Classification{Label: GHOST, Reason: "below_threshold", Score: score, Features: f}
	}

	// 6. Low-energy override.
	if f.SumEnergy < 5000 && score < threshold+5 {
		return Classification{Label: GHOST, Reason: "low_energy_override", Score: score, Features: f}
	}

	return Classification{Label: HIT, Reason: "accepted", Score: score, Features: f}
}

func reject(f Features, reason string) Classification {
	return Classification{Label: GHOST, Reason: reason, Score: 0, Features: f}
}

func rubricScore(f Features, cfg *config.TuningConfig) int {
	score := 0

	// Each tier accumulates independently; a burst crossing several
	// thresholds in the same feature earns points for all of them, not
	// just the single highest tier it reaches.
	if f.SumEnergy >= cfg.GetScoreSumE2Tier1() {
		score += 2
	}
	if f.SumEnergy >= cfg.GetScoreSumE2Tier2() {
		score += 3
	}
	if f.SumEnergy >= cfg.GetScoreSumE2Tier3() {
		score += 3
	}

	if f.MaxPeak >= cfg.GetScorePeakTier1() {
		score += 2
	}
	if f.MaxPeak >= cfg.GetScorePeakTier2() {
		score += 3
	}
	if f.MaxPeak >= cfg.GetScorePeakTier3() {
		score += 2
	}

	if f.DomRatio >= cfg.GetScoreDomTier1() {
		score += 2
	}
	if f.DomRatio >= cfg.GetScoreDomTier2() {
		score += 3
	}

	if f.PeakOver >= cfg.GetScorePeakOver() {
		score += 2
	}
	if f.Entropy <= cfg.GetScoreEntropyMax() {
		score += 2
	}
	if f.Top2Ratio >= cfg.GetScoreTop2Ratio() {
		score += 2
	}
	if f.Delta >= cfg.GetScoreDeltaTier1() {
		score += 2
	}
	if f.Delta >= cfg.GetScoreDeltaTier2() {
		score += 3
	}

	return score
}
