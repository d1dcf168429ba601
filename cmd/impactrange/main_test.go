package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/impactrange/internal/burst"
	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/classify"
	"github.com/banshee-data/impactrange/internal/hitlog"
	"github.com/banshee-data/impactrange/internal/pipeline"
	"github.com/banshee-data/impactrange/internal/session"
	"github.com/banshee-data/impactrange/internal/timeutil"
)

func TestAppendHitLogRowWritesCurrentSessionID(t *testing.T) {
	dir := t.TempDir()
	hl, err := hitlog.New(dir)
	if err != nil {
		t.Fatalf("hitlog.New failed: %v", err)
	}
	defer hl.Close()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ctrl := session.NewController(clock, filepath.Join(dir, "fit.json"), calib.Identity(63))
	sess := ctrl.StartSession(3, 10)

	b := burst.ImpactBurst{Node: "n1", TMillis: 1000, Channels: map[int]burst.ChannelReading{}}
	chanMap := burst.DefaultChannelMap()
	outcome := pipeline.Outcome{Classification: classify.Classification{Label: classify.HIT, Score: 12}}

	appendHitLogRow(hl, ctrl, b, chanMap, outcome, 1)

	datePart := time.UnixMilli(1000).Format("2006-01-02")
	path := filepath.Join(dir, "arrow_hits_"+datePart+".csv")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}

	sessionCol := -1
	for i, name := range hitlog.Header {
		if name == "session_id" {
			sessionCol = i
		}
	}
	if sessionCol == -1 {
		t.Fatal("session_id column missing from header")
	}
	if records[1][sessionCol] != sess.ID {
		t.Errorf("row session_id = %q, want %q", records[1][sessionCol], sess.ID)
	}
}
