// Package pipeline wires the burst-to-shot stages — classify, dedupe,
// localize, fuse, map, score, dispatch — into the single orchestrator
// that processes each incoming ImpactBurst end to end.
package pipeline

import (
	"fmt"

	"github.com/banshee-data/impactrange/internal/burst"
	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/classify"
	"github.com/banshee-data/impactrange/internal/config"
	"github.com/banshee-data/impactrange/internal/dedupe"
	"github.com/banshee-data/impactrange/internal/dispatch"
	"github.com/banshee-data/impactrange/internal/fusion"
	"github.com/banshee-data/impactrange/internal/localize"
	"github.com/banshee-data/impactrange/internal/score"
	"github.com/banshee-data/impactrange/internal/session"
)

// Outcome records what happened to one processed burst, primarily for
// tests and diagnostics — the pipeline's externally visible effect is
// the dispatched Event (or the absence of one).
type Outcome struct {
	Classification classify.Classification
	Accepted       bool
	DropReason     string
	Energy         localize.Estimate
	TDOA           localize.TDOAResult
	Fused          fusion.Result
	XCM, YCM       float64
	RadiusCM       float64
	Score          int
	IsX            bool
}

// Pipeline is the single orchestrator. It holds the mutable
// per-deployment state (classifier baseline, dedupe window, channel
// map) and the immutable stage configuration.
type Pipeline struct {
	chanMap   burst.ChannelMap
	cfg       *config.TuningConfig
	baseline  classify.Baseline
	dedupe    *dedupe.Window
	ctrl      *session.Controller
	dispatch  *dispatch.Dispatcher
	ringTable score.RingTable
}

// New builds a Pipeline. ctrl owns Mode and the active calibration fit;
// dispatcher receives every scored shot and mode-relevant event.
func New(chanMap burst.ChannelMap, cfg *config.TuningConfig, dedupeWindow *dedupe.Window, ctrl *session.Controller, d *dispatch.Dispatcher) *Pipeline {
	return &Pipeline{
		chanMap:   chanMap,
		cfg:       cfg,
		dedupe:    dedupeWindow,
		ctrl:      ctrl,
		dispatch:  d,
		ringTable: score.DefaultRingTable(),
	}
}

// Process runs one ImpactBurst through the full stage chain. It never
// returns an error for a rejected/dropped burst — rejection is reported
// in Outcome, matching the wire-level silent-drop semantics of burst
// parsing itself.
func (p *Pipeline) Process(b burst.ImpactBurst) Outcome {
	mode := p.ctrl.Mode()
	if !mode.AcceptsBursts() {
		return Outcome{DropReason: "mode_" + mode.String()}
	}

	n, e, s, w := burst.CompassEnergies(b, p.chanMap)
	energies := [4]float64{n, e, s, w}
	peaks := peaksFor(b, p.chanMap)

	prevEMA := p.baseline.Update(energies[0]+energies[1]+energies[2]+energies[3], p.cfg.GetEMAAlpha())
	features := classify.DeriveFeatures(energies, peaks, prevEMA)

	classifyMode := classify.ModeShooting
	if mode.IsCalibration() {
		classifyMode = classify.ModeCalibration
	}
	cls := classify.Classify(features, classifyMode, p.cfg)

	if cls.Label != classify.HIT {
		return Outcome{Classification: cls, DropReason: cls.Reason}
	}

	accept, dedupeReason := p.dedupe.Check(p.cfg.GetCooldown())
	if !accept {
		return Outcome{Classification: cls, DropReason: dedupeReason}
	}

	energyEst := localize.Energy(n, e, s, w, p.cfg.GetAxisReliabilityFloor(), p.cfg.GetDeadzone())

	times, ok := compassTimes(b, p.chanMap)
	var tdoaResult localize.TDOAResult
	if ok {
		tdoaResult = localize.TDOA(times, p.cfg.GetTDOAWaveSpeedMPS(), p.cfg.GetTargetDiameterCM())
	} else {
		tdoaResult = localize.TDOAResult{Unavailable: true}
	}

	fused := fusion.Fuse(energyEst, tdoaResult.Estimate, !tdoaResult.Unavailable, p.cfg.GetTDOATrustFactor())

	fit := p.ctrl.ActiveFit()
	xcm, ycm := fit.Apply(fused.SX, fused.SY)
	radius := calib.Radius(xcm, ycm)

	ringScore, isX := score.FromRadius(radius, p.ringTable)

	outcome := Outcome{
		Classification: cls,
		Accepted:       true,
		Energy:         energyEst,
		TDOA:           tdoaResult,
		Fused:          fused,
		XCM:            xcm,
		YCM:            ycm,
		RadiusCM:       radius,
		Score:          ringScore,
		IsX:            isX,
	}

	if mode.IsCalibration() {
		// Calibration mode routes accepted hits to the pending sample
		// buffer via the operator's Confirm call (it needs the
		// ground-truth point, which isn't known from the burst alone);
		// the pipeline itself does not call Confirm.
		return outcome
	}

	if !mode.ProducesShots() {
		return outcome
	}

	shot, err := p.ctrl.AddShot(xcm, ycm, radius, ringScore, isX, nil)
	if err != nil {
		outcome.DropReason = fmt.Sprintf("add_shot_failed: %v", err)
		return outcome
	}

	if p.dispatch != nil {
		p.dispatch.Publish(dispatch.Event{Kind: dispatch.KindShot, Payload: shot})
	}
	return outcome
}

func peaksFor(b burst.ImpactBurst, chanMap burst.ChannelMap) [4]float64 {
	var out [4]float64
	for ch, compass := range chanMap {
		reading, ok := b.Channels[ch]
		if !ok {
			continue
		}
		out[compassSlot(compass)] = reading.Peak
	}
	return out
}

func compassSlot(c burst.Compass) int {
	switch c {
	case burst.North:
		return 0
	case burst.East:
		return 1
	case burst.South:
		return 2
	default:
		return 3
	}
}

// compassTimes prefers the interpolated peak_tdoa_us reading over the
// coarser interrupt-based tdoa_us reading for each channel, matching the
// original listener's `msg.get("peak_tdoa_us", {}) or msg.get("tdoa_us", {})`
// precedence.
func compassTimes(b burst.ImpactBurst, chanMap burst.ChannelMap) (localize.CompassTimes, bool) {
	var times localize.CompassTimes
	times.N, times.E, times.S, times.W = -1, -1, -1, -1
	for ch, compass := range chanMap {
		us, ok := b.PeakTDOAUs[ch]
		if !ok {
			us, ok = b.TDOAUs[ch]
		}
		if !ok {
			continue
		}
		switch compass {
		case burst.North:
			times.N = us
		case burst.East:
			times.E = us
		case burst.South:
			times.S = us
		case burst.West:
			times.W = us
		}
	}
	return times, times.Valid()
}
