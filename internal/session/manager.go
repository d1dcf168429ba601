package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/impactrange/internal/calib"
	"github.com/banshee-data/impactrange/internal/timeutil"
)

// ErrNoActiveSession is returned by operations that require a session
// in progress (Shooting or Scoring) when none exists.
var ErrNoActiveSession = errors.New("session: no active session")

// ErrNotCalibrating is returned by calibration-only operations when the
// controller is not in a Calibration mode.
var ErrNotCalibrating = errors.New("session: not in calibration mode")

// ErrInsufficientPendingSamples mirrors calib.ErrInsufficientSamples for
// callers that only import this package.
var ErrInsufficientPendingSamples = calib.ErrInsufficientSamples

// Controller is the single owner of the current Mode, the active
// Session, and the calibration pending-sample buffer. All state
// transitions happen under one mutex so a burst arriving mid-transition
// never observes inconsistent mode/session/fit combination.
type Controller struct {
	mu sync.Mutex

	clock   timeutil.Clock
	fitPath string

	mode    Mode
	current *Session

	activeFit calib.Fit
	pending   []calib.Sample
}

// NewController wires a controller around the given clock, the path its
// calibration fit persists to, and the fit active at startup (typically
// loaded from disk, or calib.Identity as a cold-start default).
func NewController(clock timeutil.Clock, fitPath string, initialFit calib.Fit) *Controller {
	return &Controller{
		clock:     clock,
		fitPath:   fitPath,
		mode:      Scoring(),
		activeFit: initialFit,
	}
}

// Mode returns the current operating mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ActiveFit returns the calibration fit currently applied to localized
// impacts.
func (c *Controller) ActiveFit() calib.Fit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeFit
}

// StartSession begins shooting: opens a fresh Session and switches mode
// to Shooting. Any prior session is discarded without being saved — the
// caller is expected to have already persisted it via a store if it
// mattered.
func (c *Controller) StartSession(arrowsPerEnd, numEnds int) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = New(arrowsPerEnd, numEnds, c.clock.Now())
	c.mode = Shooting()
	return c.current
}

// Pause switches Shooting to Scoring (new bursts stop feeding the
// pipeline, the session remains viewable) or Calibration{Active} to
// Calibration{Paused} (the pending buffer stops accepting samples).
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.mode.IsShooting():
		c.mode = Scoring()
	case c.mode.IsCalibrationActive():
		c.mode = CalibrationPaused()
	default:
		return fmt.Errorf("session: cannot pause from mode %s", c.mode)
	}
	return nil
}

// Resume reverses Pause: Scoring back to Shooting (only valid with a
// session already open), or Calibration{Paused} back to
// Calibration{Active}.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.mode.IsScoring() && c.current != nil:
		c.mode = Shooting()
	case c.mode.IsCalibrationPaused():
		c.mode = CalibrationActive()
	default:
		return fmt.Errorf("session: cannot resume from mode %s", c.mode)
	}
	return nil
}

// Reset abandons the active session (if any) and clears the calibration
// pending buffer, returning the controller to Scoring with no session.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.End(c.clock.Now())
	}
	c.current = nil
	c.pending = nil
	c.mode = Scoring()
}

// StartCalibration switches to Calibration{Active} and clears any
// previously queued pending samples.
func (c *Controller) StartCalibration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.mode = CalibrationActive()
}

// AddShot records a scored shot against the active session. It is the
// caller's (pipeline's) responsibility to have already checked
// Mode().ProducesShots() before calling.
func (c *Controller) AddShot(x, y, r float64, score int, isX bool, postureNote *string) (Shot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Shot{}, ErrNoActiveSession
	}
	shot := c.current.AddShot(c.clock.Now(), x, y, r, score, isX, postureNote)
	if c.current.IsComplete() {
		c.current.End(c.clock.Now())
		c.mode = Scoring()
	}
	return shot, nil
}

// Confirm queues one calibration sample: the observed energy-plane
// coordinate paired with the operator-supplied ground-truth point on
// the target face. Valid only in Calibration{Active}.
func (c *Controller) Confirm(sx, sy, xTruthCM, yTruthCM float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mode.IsCalibrationActive() {
		return ErrNotCalibrating
	}
	c.pending = append(c.pending, calib.Sample{SX: sx, SY: sy, XTruthCM: xTruthCM, YTruthCM: yTruthCM})
	return nil
}

// PendingCount reports how many calibration samples are queued.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Compute solves a candidate fit from the queued pending samples without
// applying or persisting it, so the operator can review residuals first.
func (c *Controller) Compute() (calib.Fit, calib.Residuals, error) {
	c.mu.Lock()
	samples := make([]calib.Sample, len(c.pending))
	copy(samples, c.pending)
	prevVersion := c.activeFit.Version
	c.mu.Unlock()
	return calib.Solve(samples, prevVersion)
}

// Apply solves (if not already computed by the caller) and persists a
// new fit from the pending buffer, then swaps it in as the active fit
// and clears the buffer. Pass a zero-value Fit to have Apply recompute
// from the current pending buffer.
func (c *Controller) Apply(fit calib.Fit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fit.Model == "" {
		solved, _, err := calib.Solve(c.pending, c.activeFit.Version)
		if err != nil {
			return fmt.Errorf("session: solving calibration fit: %w", err)
		}
		fit = solved
	}
	if err := fit.Validate(); err != nil {
		return fmt.Errorf("session: refusing to apply invalid fit: %w", err)
	}
	if err := calib.Save(fit, c.fitPath); err != nil {
		return fmt.Errorf("session: persisting calibration fit: %w", err)
	}
	c.activeFit = fit
	c.pending = nil
	return nil
}

// Status mirrors the original dashboard's get_session_info: nil when no
// session is active, otherwise a snapshot projection.
func (c *Controller) Status() *Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	p := c.current.Project()
	return &p
}
