package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyTuningConfigAllNil(t *testing.T) {
	cfg := EmptyTuningConfig()
	if cfg.MinEnergy != nil || cfg.CooldownSecs != nil || cfg.EMAAlpha != nil {
		t.Fatal("expected all fields nil on an empty config")
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetMinEnergy(); got != 25.0 {
		t.Errorf("GetMinEnergy() = %v, want 25.0", got)
	}
	if got := cfg.GetMinMaxEnergy(); got != 12.0 {
		t.Errorf("GetMinMaxEnergy() = %v, want 12.0", got)
	}
	if got := cfg.GetMinDomRatio(); got != 0.35 {
		t.Errorf("GetMinDomRatio() = %v, want 0.35", got)
	}
	if got := cfg.GetEMAAlpha(); got != 0.05 {
		t.Errorf("GetEMAAlpha() = %v, want 0.05", got)
	}
	if got := cfg.GetCooldown(); got != 350*time.Millisecond {
		t.Errorf("GetCooldown() = %v, want 350ms", got)
	}
	if got := cfg.GetAxisReliabilityFloor(); got != 0.10 {
		t.Errorf("GetAxisReliabilityFloor() = %v, want 0.10", got)
	}
	if got := cfg.GetDeadzone(); got != 0.03 {
		t.Errorf("GetDeadzone() = %v, want 0.03", got)
	}
	if got := cfg.GetTDOAWaveSpeedMPS(); got != 100.0 {
		t.Errorf("GetTDOAWaveSpeedMPS() = %v, want 100.0", got)
	}
	if got := cfg.GetTargetDiameterCM(); got != 126.0 {
		t.Errorf("GetTargetDiameterCM() = %v, want 126.0", got)
	}
	if got := cfg.GetHalfSpanCM(); got != 63.0 {
		t.Errorf("GetHalfSpanCM() = %v, want 63.0", got)
	}
	if got := cfg.GetScoreThresholdShooting(); got != 10 {
		t.Errorf("GetScoreThresholdShooting() = %v, want 10", got)
	}
	if got := cfg.GetScoreThresholdCalibration(); got != 13 {
		t.Errorf("GetScoreThresholdCalibration() = %v, want 13", got)
	}
	if got := cfg.GetDispatchQueueCapacity(); got != 200 {
		t.Errorf("GetDispatchQueueCapacity() = %v, want 200", got)
	}
	if got := cfg.GetShutdownDrainTimeout(); got != 2*time.Second {
		t.Errorf("GetShutdownDrainTimeout() = %v, want 2s", got)
	}
	if got := cfg.GetDispatchSendTimeout(); got != 3*time.Second {
		t.Errorf("GetDispatchSendTimeout() = %v, want 3s", got)
	}
	if got := cfg.GetArrowsPerEnd(); got != 3 {
		t.Errorf("GetArrowsPerEnd() = %v, want 3", got)
	}
	if got := cfg.GetMaxEnds(); got != 10 {
		t.Errorf("GetMaxEnds() = %v, want 10", got)
	}
}

func TestLoadTuningConfigOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "min_energy": 30,
  "cooldown_seconds": 0.5,
  "ema_alpha": 0.1
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got := cfg.GetMinEnergy(); got != 30 {
		t.Errorf("GetMinEnergy() = %v, want 30", got)
	}
	if got := cfg.GetCooldown(); got != 500*time.Millisecond {
		t.Errorf("GetCooldown() = %v, want 500ms", got)
	}
	if got := cfg.GetEMAAlpha(); got != 0.1 {
		t.Errorf("GetEMAAlpha() = %v, want 0.1", got)
	}
	// Fields not present in the file keep their defaults.
	if got := cfg.GetMinMaxEnergy(); got != 12.0 {
		t.Errorf("GetMinMaxEnergy() = %v, want 12.0 (default)", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")
	largeData := make([]byte, 2*1024*1024)
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("failed to write large file: %v", err)
	}
	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error for file size > 1MB, got nil")
	}
}

func TestLoadTuningConfigInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")
	if err := os.WriteFile(configPath, []byte(`{"min_energy": `), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error when loading invalid JSON, got nil")
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"empty config is valid", &TuningConfig{}, false},
		{"dom ratio too low", &TuningConfig{MinDomRatio: ptrFloat64(-0.1)}, true},
		{"dom ratio too high", &TuningConfig{MinDomRatio: ptrFloat64(1.5)}, true},
		{"axis floor out of range", &TuningConfig{AxisReliabilityFloor: ptrFloat64(2.0)}, true},
		{"bad send timeout", &TuningConfig{DispatchSendTimeout: ptrString("nope")}, true},
		{"negative queue capacity", &TuningConfig{DispatchQueueCapacity: ptrInt(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
