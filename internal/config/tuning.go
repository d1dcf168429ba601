// Package config holds the tunable constants for the classification,
// localization, fusion, and dispatch stages. Every knob is an optional
// pointer field with a documented default, so a partial JSON file only
// overrides what it mentions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical tuning file location relative to the
// repository root.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for every tunable constant named
// in the configuration surface: classifier thresholds and rubric,
// deduper cooldown, EMA alpha, localizer reliability floor and deadzone,
// TDOA wave speed and target diameter, and dispatch queue/timeout sizing.
type TuningConfig struct {
	// Classifier hard minimums.
	MinEnergy    *float64 `json:"min_energy,omitempty"`
	MinMaxEnergy *float64 `json:"min_max_energy,omitempty"`
	MinDomRatio  *float64 `json:"min_dom_ratio,omitempty"`

	// Classifier rubric tiers.
	ScoreSumE2Tier1     *float64 `json:"score_sum_e2_tier1,omitempty"`
	ScoreSumE2Tier2     *float64 `json:"score_sum_e2_tier2,omitempty"`
	ScoreSumE2Tier3     *float64 `json:"score_sum_e2_tier3,omitempty"`
	ScorePeakTier1      *float64 `json:"score_peak_tier1,omitempty"`
	ScorePeakTier2      *float64 `json:"score_peak_tier2,omitempty"`
	ScorePeakTier3      *float64 `json:"score_peak_tier3,omitempty"`
	ScoreDomTier1       *float64 `json:"score_dom_tier1,omitempty"`
	ScoreDomTier2       *float64 `json:"score_dom_tier2,omitempty"`
	ScorePeakOver       *float64 `json:"score_peak_over,omitempty"`
	ScoreEntropyMax     *float64 `json:"score_entropy_max,omitempty"`
	ScoreTop2Ratio      *float64 `json:"score_top2_ratio,omitempty"`
	ScoreDeltaTier1     *float64 `json:"score_delta_tier1,omitempty"`
	ScoreDeltaTier2     *float64 `json:"score_delta_tier2,omitempty"`
	ScoreThreshShooting *int     `json:"score_thresh_shooting,omitempty"`
	ScoreThreshCalib    *int     `json:"score_thresh_calibration,omitempty"`

	// EMA / dedupe.
	EMAAlpha      *float64 `json:"ema_alpha,omitempty"`
	CooldownSecs  *float64 `json:"cooldown_seconds,omitempty"`

	// Localization.
	AxisReliabilityFloor *float64 `json:"axis_reliability_floor,omitempty"`
	Deadzone             *float64 `json:"deadzone,omitempty"`
	TDOAWaveSpeedMPS     *float64 `json:"tdoa_wave_speed_mps,omitempty"`
	TargetDiameterCM     *float64 `json:"target_diameter_cm,omitempty"`
	TDOATrustFactor      *float64 `json:"tdoa_trust_factor,omitempty"`

	// Dispatch / pipeline resource limits.
	DispatchQueueCapacity *int    `json:"dispatch_queue_capacity,omitempty"`
	DispatchSendTimeout   *string `json:"dispatch_send_timeout,omitempty"`
	ShutdownDrainTimeout  *string `json:"shutdown_drain_timeout,omitempty"`

	// Network / persistence.
	UDPListenAddr      *string `json:"udp_listen_addr,omitempty"`
	CalibrationFitPath *string `json:"calibration_fit_path,omitempty"`
	HitLogDir          *string `json:"hit_log_dir,omitempty"`

	// Session defaults.
	ArrowsPerEnd *int `json:"arrows_per_end,omitempty"`
	MaxEnds      *int `json:"max_ends,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field nil; Get*
// accessors fall back to the documented defaults below.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Fields omitted from the file
// retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults, searching
// parent directories for DefaultConfigPath. Panics if not found; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate range-checks the fields that parse to durations or have a
// bounded domain.
func (c *TuningConfig) Validate() error {
	if c.MinDomRatio != nil && (*c.MinDomRatio < 0 || *c.MinDomRatio > 1) {
		return fmt.Errorf("min_dom_ratio must be between 0 and 1, got %f", *c.MinDomRatio)
	}
	if c.AxisReliabilityFloor != nil && (*c.AxisReliabilityFloor < 0 || *c.AxisReliabilityFloor > 1) {
		return fmt.Errorf("axis_reliability_floor must be between 0 and 1, got %f", *c.AxisReliabilityFloor)
	}
	if c.DispatchSendTimeout != nil && *c.DispatchSendTimeout != "" {
		if _, err := time.ParseDuration(*c.DispatchSendTimeout); err != nil {
			return fmt.Errorf("invalid dispatch_send_timeout %q: %w", *c.DispatchSendTimeout, err)
		}
	}
	if c.ShutdownDrainTimeout != nil && *c.ShutdownDrainTimeout != "" {
		if _, err := time.ParseDuration(*c.ShutdownDrainTimeout); err != nil {
			return fmt.Errorf("invalid shutdown_drain_timeout %q: %w", *c.ShutdownDrainTimeout, err)
		}
	}
	if c.DispatchQueueCapacity != nil && *c.DispatchQueueCapacity < 0 {
		return fmt.Errorf("dispatch_queue_capacity must be non-negative, got %d", *c.DispatchQueueCapacity)
	}
	return nil
}

func (c *TuningConfig) GetMinEnergy() float64 {
	if c.MinEnergy == nil {
		return 25.0
	}
	return *c.MinEnergy
}

func (c *TuningConfig) GetMinMaxEnergy() float64 {
	if c.MinMaxEnergy == nil {
		return 12.0
	}
	return *c.MinMaxEnergy
}

func (c *TuningConfig) GetMinDomRatio() float64 {
	if c.MinDomRatio == nil {
		return 0.35
	}
	return *c.MinDomRatio
}

func (c *TuningConfig) GetScoreSumE2Tier1() float64 {
	if c.ScoreSumE2Tier1 == nil {
		return 500
	}
	return *c.ScoreSumE2Tier1
}

func (c *TuningConfig) GetScoreSumE2Tier2() float64 {
	if c.ScoreSumE2Tier2 == nil {
		return 1000
	}
	return *c.ScoreSumE2Tier2
}

func (c *TuningConfig) GetScoreSumE2Tier3() float64 {
	if c.ScoreSumE2Tier3 == nil {
		return 5000
	}
	return *c.ScoreSumE2Tier3
}

func (c *TuningConfig) GetScorePeakTier1() float64 {
	if c.ScorePeakTier1 == nil {
		return 350
	}
	return *c.ScorePeakTier1
}

func (c *TuningConfig) GetScorePeakTier2() float64 {
	if c.ScorePeakTier2 == nil {
		return 500
	}
	return *c.ScorePeakTier2
}

func (c *TuningConfig) GetScorePeakTier3() float64 {
	if c.ScorePeakTier3 == nil {
		return 700
	}
	return *c.ScorePeakTier3
}

func (c *TuningConfig) GetScoreDomTier1() float64 {
	if c.ScoreDomTier1 == nil {
		return 0.45
	}
	return *c.ScoreDomTier1
}

func (c *TuningConfig) GetScoreDomTier2() float64 {
	if c.ScoreDomTier2 == nil {
		return 0.60
	}
	return *c.ScoreDomTier2
}

func (c *TuningConfig) GetScorePeakOver() float64 {
	if c.ScorePeakOver == nil {
		return 25.0
	}
	return *c.ScorePeakOver
}

func (c *TuningConfig) GetScoreEntropyMax() float64 {
	if c.ScoreEntropyMax == nil {
		return 1.00
	}
	return *c.ScoreEntropyMax
}

func (c *TuningConfig) GetScoreTop2Ratio() float64 {
	if c.ScoreTop2Ratio == nil {
		return 0.75
	}
	return *c.ScoreTop2Ratio
}

func (c *TuningConfig) GetScoreDeltaTier1() float64 {
	if c.ScoreDeltaTier1 == nil {
		return 1000
	}
	return *c.ScoreDeltaTier1
}

func (c *TuningConfig) GetScoreDeltaTier2() float64 {
	if c.ScoreDeltaTier2 == nil {
		return 10000
	}
	return *c.ScoreDeltaTier2
}

func (c *TuningConfig) GetScoreThresholdShooting() int {
	if c.ScoreThreshShooting == nil {
		return 10
	}
	return *c.ScoreThreshShooting
}

func (c *TuningConfig) GetScoreThresholdCalibration() int {
	if c.ScoreThreshCalib == nil {
		return 13
	}
	return *c.ScoreThreshCalib
}

func (c *TuningConfig) GetEMAAlpha() float64 {
	if c.EMAAlpha == nil {
		return 0.05
	}
	return *c.EMAAlpha
}

func (c *TuningConfig) GetCooldown() time.Duration {
	if c.CooldownSecs == nil {
		return 350 * time.Millisecond
	}
	return time.Duration(*c.CooldownSecs * float64(time.Second))
}

func (c *TuningConfig) GetAxisReliabilityFloor() float64 {
	if c.AxisReliabilityFloor == nil {
		return 0.10
	}
	return *c.AxisReliabilityFloor
}

func (c *TuningConfig) GetDeadzone() float64 {
	if c.Deadzone == nil {
		return 0.03
	}
	return *c.Deadzone
}

func (c *TuningConfig) GetTDOAWaveSpeedMPS() float64 {
	if c.TDOAWaveSpeedMPS == nil {
		return 100.0
	}
	return *c.TDOAWaveSpeedMPS
}

func (c *TuningConfig) GetTargetDiameterCM() float64 {
	if c.TargetDiameterCM == nil {
		return 126.0
	}
	return *c.TargetDiameterCM
}

// GetHalfSpanCM derives the identity-calibration half-span from the
// target diameter, matching the original HALF_SPAN = D_CM / 2 constant.
func (c *TuningConfig) GetHalfSpanCM() float64 {
	return c.GetTargetDiameterCM() / 2
}

func (c *TuningConfig) GetTDOATrustFactor() float64 {
	if c.TDOATrustFactor == nil {
		return 0.5
	}
	return *c.TDOATrustFactor
}

func (c *TuningConfig) GetDispatchQueueCapacity() int {
	if c.DispatchQueueCapacity == nil {
		return 200
	}
	return *c.DispatchQueueCapacity
}

func (c *TuningConfig) GetDispatchSendTimeout() time.Duration {
	if c.DispatchSendTimeout == nil || *c.DispatchSendTimeout == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(*c.DispatchSendTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

func (c *TuningConfig) GetShutdownDrainTimeout() time.Duration {
	if c.ShutdownDrainTimeout == nil || *c.ShutdownDrainTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.ShutdownDrainTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func (c *TuningConfig) GetUDPListenAddr() string {
	if c.UDPListenAddr == nil {
		return ":2368"
	}
	return *c.UDPListenAddr
}

func (c *TuningConfig) GetCalibrationFitPath() string {
	if c.CalibrationFitPath == nil {
		return "calibration_fit.json"
	}
	return *c.CalibrationFitPath
}

func (c *TuningConfig) GetHitLogDir() string {
	if c.HitLogDir == nil {
		return "hit_logs"
	}
	return *c.HitLogDir
}

func (c *TuningConfig) GetArrowsPerEnd() int {
	if c.ArrowsPerEnd == nil {
		return 3
	}
	return *c.ArrowsPerEnd
}

func (c *TuningConfig) GetMaxEnds() int {
	if c.MaxEnds == nil {
		return 10
	}
	return *c.MaxEnds
}
