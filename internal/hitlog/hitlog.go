// Package hitlog appends every processed burst (accepted or rejected) to
// a daily-rotating CSV file for offline analysis, mirroring the original
// dashboard's comprehensive per-hit log.
package hitlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/impactrange/internal/classify"
	"github.com/banshee-data/impactrange/internal/fusion"
	"github.com/banshee-data/impactrange/internal/localize"
	"github.com/banshee-data/impactrange/internal/security"
)

// Header mirrors the original dashboard's CSV_HEADERS, adapted to this
// implementation's field names where they differ (sx/sy rather than
// meters, compass-keyed energy columns).
var Header = []string{
	"date", "time", "seq", "node", "session_id",
	"mode",
	"estimated_x_cm", "estimated_y_cm",
	"fused_sx", "fused_sy",
	"ground_truth_x_cm", "ground_truth_y_cm",
	"fusion_method", "energy_confidence", "tdoa_confidence",
	"energy_sx", "energy_sy",
	"total_energy", "max_peak", "dominant_ratio",
	"tdoa_sx", "tdoa_sy",
	"energy_N", "energy_E", "energy_S", "energy_W",
	"label", "classifier_score",
}

// Row is one record appended to the log. GroundTruthX/Y are only set for
// confirmed calibration samples.
type Row struct {
	Timestamp      time.Time
	Seq            int64
	Node           string
	SessionID      string
	Mode           string
	EstimatedXCM   float64
	EstimatedYCM   float64
	FusedSX        float64
	FusedSY        float64
	GroundTruthX   *float64
	GroundTruthY   *float64
	FusionMethod   fusion.Method
	EnergyConf     float64
	TDOAConf       float64
	EnergySX       float64
	EnergySY       float64
	TotalEnergy    float64
	MaxPeak        float64
	DominantRatio  float64
	TDOASX         float64
	TDOASY         float64
	EnergyN        float64
	EnergyE        float64
	EnergyS        float64
	EnergyW        float64
	Label          classify.Label
	ClassifierScore int
}

// Logger appends Rows to a daily-rotating CSV file under Dir.
type Logger struct {
	mu  sync.Mutex
	dir string

	openPath string
	file     *os.File
	writer   *csv.Writer
}

// New validates that dir exists (creating it if necessary) and returns a
// Logger rooted there. Every file this Logger opens is checked against
// dir via security.ValidatePathWithinDirectory, rejecting any date string
// that could be crafted to escape it.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("hitlog: create log dir %s: %w", dir, err)
	}
	return &Logger{dir: dir}, nil
}

// Close flushes and closes the currently open log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCurrentLocked()
}

func (l *Logger) closeCurrentLocked() error {
	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	err := l.file.Close()
	l.file = nil
	l.writer = nil
	return err
}

func (l *Logger) pathForDate(date string) string {
	return filepath.Join(l.dir, fmt.Sprintf("arrow_hits_%s.csv", date))
}

// Append writes one row, rotating to a new day's file and (re)writing the
// header if needed.
func (l *Logger) Append(r Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dateStr := r.Timestamp.Format("2006-01-02")
	path := l.pathForDate(dateStr)

	if err := security.ValidatePathWithinDirectory(path, l.dir); err != nil {
		return fmt.Errorf("hitlog: rejecting log path: %w", err)
	}

	if path != l.openPath {
		if err := l.closeCurrentLocked(); err != nil {
			return fmt.Errorf("hitlog: closing previous log file: %w", err)
		}
		if err := l.openLocked(path); err != nil {
			return err
		}
	}

	record := rowToRecord(r, dateStr)
	if err := l.writer.Write(record); err != nil {
		return fmt.Errorf("hitlog: write row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

func (l *Logger) openLocked(path string) error {
	needsHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needsHeader = false
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("hitlog: open %s: %w", path, err)
	}
	l.file = f
	l.writer = csv.NewWriter(f)
	l.openPath = path

	if needsHeader {
		if err := l.writer.Write(Header); err != nil {
			return fmt.Errorf("hitlog: write header: %w", err)
		}
		l.writer.Flush()
	}
	return nil
}

func rowToRecord(r Row, dateStr string) []string {
	gx, gy := "", ""
	if r.GroundTruthX != nil {
		gx = fmt.Sprintf("%.1f", *r.GroundTruthX)
	}
	if r.GroundTruthY != nil {
		gy = fmt.Sprintf("%.1f", *r.GroundTruthY)
	}
	return []string{
		dateStr,
		r.Timestamp.Format("15:04:05.000"),
		fmt.Sprintf("%d", r.Seq),
		r.Node,
		r.SessionID,
		r.Mode,
		fmt.Sprintf("%.1f", r.EstimatedXCM),
		fmt.Sprintf("%.1f", r.EstimatedYCM),
		fmt.Sprintf("%.3f", r.FusedSX),
		fmt.Sprintf("%.3f", r.FusedSY),
		gx,
		gy,
		string(r.FusionMethod),
		fmt.Sprintf("%.3f", r.EnergyConf),
		fmt.Sprintf("%.3f", r.TDOAConf),
		fmt.Sprintf("%.3f", r.EnergySX),
		fmt.Sprintf("%.3f", r.EnergySY),
		fmt.Sprintf("%.1f", r.TotalEnergy),
		fmt.Sprintf("%.1f", r.MaxPeak),
		fmt.Sprintf("%.4f", r.DominantRatio),
		fmt.Sprintf("%.3f", r.TDOASX),
		fmt.Sprintf("%.3f", r.TDOASY),
		fmt.Sprintf("%.1f", r.EnergyN),
		fmt.Sprintf("%.1f", r.EnergyE),
		fmt.Sprintf("%.1f", r.EnergyS),
		fmt.Sprintf("%.1f", r.EnergyW),
		string(r.Label),
		fmt.Sprintf("%d", r.ClassifierScore),
	}
}

// RowFromOutcome builds a hitlog.Row from pipeline-stage outputs. It takes
// the raw inputs directly rather than a pipeline.Outcome to avoid a
// hitlog->pipeline import cycle; the caller (the pipeline or its wiring
// in cmd/) assembles these from its own Outcome.
func RowFromOutcome(ts time.Time, seq int64, node, sessionID, mode string, n, e, s, w float64, energyEst localize.Estimate, tdoaEst localize.Estimate, tdoaAvailable bool, fused fusion.Result, xcm, ycm float64, cls classify.Classification) Row {
	tdoaConf := 0.0
	tdoaSX, tdoaSY := 0.0, 0.0
	if tdoaAvailable {
		tdoaConf = tdoaEst.Confidence
		tdoaSX, tdoaSY = tdoaEst.SX, tdoaEst.SY
	}
	return Row{
		Timestamp:       ts,
		Seq:             seq,
		Node:            node,
		SessionID:       sessionID,
		Mode:            mode,
		EstimatedXCM:    xcm,
		EstimatedYCM:    ycm,
		FusedSX:         fused.SX,
		FusedSY:         fused.SY,
		FusionMethod:    fused.Method,
		EnergyConf:      energyEst.Confidence,
		TDOAConf:        tdoaConf,
		EnergySX:        energyEst.SX,
		EnergySY:        energyEst.SY,
		TotalEnergy:     cls.Features.SumEnergy,
		MaxPeak:         cls.Features.MaxPeak,
		DominantRatio:   cls.Features.DomRatio,
		TDOASX:          tdoaSX,
		TDOASY:          tdoaSY,
		EnergyN:         n,
		EnergyE:         e,
		EnergyS:         s,
		EnergyW:         w,
		Label:           cls.Label,
		ClassifierScore: cls.Score,
	}
}
