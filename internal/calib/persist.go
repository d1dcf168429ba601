package calib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is the on-disk envelope around a Fit. The canonical file
// contains exactly this shape. Units is always "cm" for fits produced by
// this implementation; a loader encountering "m" (or a suspiciously
// small constant term) treats the file as legacy and discards it rather
// than risk silently mixing units.
type Record struct {
	Model   Model     `json:"model"`
	Params  RawParams `json:"params"`
	Version int       `json:"version"`
	Units   string    `json:"units"`
}

// RawParams is the {coeffs_x, coeffs_y} object stored under "params" in
// a Record.
type RawParams struct {
	CoeffsX []float64 `json:"coeffs_x,omitempty"`
	CoeffsY []float64 `json:"coeffs_y,omitempty"`
}

const unitsCM = "cm"

// legacyConstantTermFloorCM is the historical units-leakage heuristic: a
// linear/quadratic fit's constant term below this is almost certainly a
// meters-era fit (constants around 0.01-0.6 instead of 1-60). Kept as a
// defense-in-depth check alongside the explicit Units tag.
const legacyConstantTermFloorCM = 1.0

// Save atomically persists fit to path: write to a temp file in the same
// directory, then rename over the canonical path, so a reader always sees
// either the complete old file or the complete new one.
func Save(fit Fit, path string) error {
	dir := filepath.Dir(path)

	rec := Record{Model: fit.Model, Version: fit.Version, Units: unitsCM}
	if basisLen(fit.Model) > 0 {
		rec.Params = RawParams{CoeffsX: fit.CoeffsX, CoeffsY: fit.CoeffsY}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("calib: marshal fit: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".calibration_fit-*.tmp")
	if err != nil {
		return fmt.Errorf("calib: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("calib: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("calib: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("calib: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("calib: rename into place: %w", err)
	}
	return nil
}

// Load reads the canonical fit file. A fit that fails the units check
// (legacy "m" tag, or a suspiciously small constant term with no units
// tag at all) is rejected rather than silently misapplied; the caller
// should fall back to Identity and log a warning.
func Load(path string) (Fit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fit{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Fit{}, fmt.Errorf("calib: corrupt fit file %s: %w", path, err)
	}

	fit := Fit{Model: rec.Model, CoeffsX: rec.Params.CoeffsX, CoeffsY: rec.Params.CoeffsY, Version: rec.Version}
	if err := fit.Validate(); err != nil {
		return Fit{}, fmt.Errorf("calib: invalid persisted fit: %w", err)
	}

	if err := checkUnits(rec); err != nil {
		return Fit{}, err
	}
	if rec.Model == ModelLegacyAffine {
		// Legacy affine files store [a, b, c] in coeffs_x and [d, e, f] in coeffs_y.
		if len(rec.Params.CoeffsX) != 3 || len(rec.Params.CoeffsY) != 3 {
			return Fit{}, fmt.Errorf("calib: legacy affine fit requires 3 coefficients per axis, got x=%d y=%d",
				len(rec.Params.CoeffsX), len(rec.Params.CoeffsY))
		}
		fit.LegacyA, fit.LegacyB, fit.LegacyC = rec.Params.CoeffsX[0], rec.Params.CoeffsX[1], rec.Params.CoeffsX[2]
		fit.LegacyD, fit.LegacyE, fit.LegacyF = rec.Params.CoeffsY[0], rec.Params.CoeffsY[1], rec.Params.CoeffsY[2]
	}
	return fit, nil
}

func checkUnits(rec Record) error {
	if rec.Units == unitsCM {
		return nil
	}
	if rec.Units == "m" {
		return fmt.Errorf("calib: fit file uses legacy meters units, discarding")
	}
	// No units tag at all (pre-migration file): fall back to the
	// constant-term heuristic.
	constIdx := len(rec.Params.CoeffsX) - 1
	if constIdx >= 0 && rec.Params.CoeffsX[constIdx] < legacyConstantTermFloorCM {
		return fmt.Errorf("calib: fit constant term %.3f below %.1f cm, suspected legacy units",
			rec.Params.CoeffsX[constIdx], legacyConstantTermFloorCM)
	}
	return nil
}
