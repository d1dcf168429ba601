package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/dispatch"
	"github.com/banshee-data/impactrange/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigratesSchema(t *testing.T) {
	s := openTestStore(t)
	var count int
	row := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='session'")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected session table to exist after migration, count=%d", count)
	}
}

func TestSaveSessionAndShot(t *testing.T) {
	s := openTestStore(t)
	sess := session.New(3, 2, time.Unix(1000, 0))
	ctx := context.Background()
	if err := s.SaveSession(ctx, sess, "test notes"); err != nil {
		t.Fatalf("save session: %v", err)
	}
	shot := sess.AddShot(time.Unix(1001, 0), 1.5, -2.5, 3.0, 9, false, nil)
	if err := s.SaveShot(ctx, sess.ID, shot); err != nil {
		t.Fatalf("save shot: %v", err)
	}

	var shotCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM shot WHERE session_id = ?", sess.ID).Scan(&shotCount); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if shotCount != 1 {
		t.Fatalf("expected 1 shot row, got %d", shotCount)
	}
}

func TestSaveCalibrationFitUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fit := calib.Fit{Model: calib.ModelLinear, CoeffsX: []float64{1, 2, 3}, CoeffsY: []float64{4, 5, 6}, Version: 1}
	res := calib.Residuals{MeanCM: 0.1, MaxCM: 0.5}
	if err := s.SaveCalibrationFit(ctx, fit, res, 1000); err != nil {
		t.Fatalf("save fit: %v", err)
	}
	if err := s.SaveCalibrationFit(ctx, fit, res, 2000); err != nil {
		t.Fatalf("re-save fit: %v", err)
	}
	var appliedTS int64
	if err := s.db.QueryRow("SELECT applied_ts FROM calibration_fit_history WHERE version = ?", 1).Scan(&appliedTS); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if appliedTS != 2000 {
		t.Fatalf("expected upsert to update applied_ts to 2000, got %d", appliedTS)
	}
}

func TestPutImplementsDispatchStore(t *testing.T) {
	s := openTestStore(t)
	var _ dispatch.Store = s

	ev := dispatch.Event{Kind: dispatch.KindModeChange, Timestamp: time.Unix(500, 0), Payload: "shooting"}
	if err := s.Put(context.Background(), ev); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM event_log WHERE kind = ?", dispatch.KindModeChange).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 logged event, got %d", count)
	}
}
