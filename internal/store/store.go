// Package store persists sessions, shots, and calibration fit history to
// a local sqlite database, and exposes a live SQL debug console over it.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/dispatch"
	"github.com/banshee-data/impactrange/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a sqlite connection holding session/shot/calibration-history
// tables. It implements dispatch.Store so the dispatcher can persist
// dispatched events directly.
type Store struct {
	db *sql.DB
}

var _ dispatch.Store = (*Store)(nil)

// Open opens (creating if necessary) the sqlite database at path, applies
// the WAL/busy-timeout pragmas the teacher's radar DB uses, and migrates
// the schema up to the latest version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: apply pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: sub filesystem: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	// Note: m.Close() is not called here — its sqlite driver Close() would
	// close the underlying *sql.DB, which Store manages separately.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// SaveSession inserts or updates a session row.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session, notes string) error {
	var endTS *int64
	if sess.EndTS != nil {
		v := sess.EndTS.Unix()
		endTS = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (session_id, start_ts, end_ts, arrows_per_end, num_ends, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET end_ts = excluded.end_ts`,
		sess.ID, sess.StartTS.Unix(), endTS, sess.ArrowsPerEnd, sess.NumEnds, notes)
	if err != nil {
		return fmt.Errorf("store: save session %s: %w", sess.ID, err)
	}
	return nil
}

// SaveShot inserts one shot row under sessionID.
func (s *Store) SaveShot(ctx context.Context, sessionID string, shot session.Shot) error {
	isX := 0
	if shot.IsX {
		isX = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shot (session_id, end_number, shot_number, ts, x_cm, y_cm, r_cm, score, is_x, posture_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, shot.EndNumber, shot.ShotNumber, shot.Timestamp.Unix(),
		shot.XCM, shot.YCM, shot.RCM, shot.Score, isX, shot.PostureNote)
	if err != nil {
		return fmt.Errorf("store: save shot for session %s: %w", sessionID, err)
	}
	return nil
}

// SaveCalibrationFit records one applied calibration fit in history.
func (s *Store) SaveCalibrationFit(ctx context.Context, fit calib.Fit, res calib.Residuals, appliedUnixSecs int64) error {
	cx, err := json.Marshal(fit.CoeffsX)
	if err != nil {
		return err
	}
	cy, err := json.Marshal(fit.CoeffsY)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calibration_fit_history (version, model, coeffs_x_json, coeffs_y_json, applied_ts, residual_mean_cm, residual_max_cm)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			model = excluded.model, coeffs_x_json = excluded.coeffs_x_json,
			coeffs_y_json = excluded.coeffs_y_json, applied_ts = excluded.applied_ts,
			residual_mean_cm = excluded.residual_mean_cm, residual_max_cm = excluded.residual_max_cm`,
		fit.Version, string(fit.Model), string(cx), string(cy), appliedUnixSecs, res.MeanCM, res.MaxCM)
	if err != nil {
		return fmt.Errorf("store: save calibration fit version %d: %w", fit.Version, err)
	}
	return nil
}

// Put implements dispatch.Store: every dispatched event is appended to
// the append-only event log, giving the dispatcher a durable sink
// regardless of event kind. Shot events are additionally keyed into the
// session/shot tables by cmd/impactrange's SaveShot call in its
// dispatcher subscriber (persistDispatchedShots) — Put alone
// does not know which session a bare Shot belongs to.
func (s *Store) Put(ctx context.Context, ev dispatch.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (kind, ts, payload_json) VALUES (?, ?, ?)`,
		ev.Kind, ev.Timestamp.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("store: log event %s: %w", ev.Kind, err)
	}
	return nil
}

// AttachAdminRoutes mounts a live SQL console over the store's tables,
// following the radar DB's tailsql wiring.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("store: create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://impactrange.db", s.db, &tailsql.DBOptions{Label: "Impact Range DB"})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}
