// Package session tracks the current operating Mode and the active
// session lifecycle: shots, end/arrow numbering, and completion.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Shot is one scored, dispatched impact.
type Shot struct {
	Timestamp  time.Time
	XCM, YCM   float64
	RCM        float64
	Score      int
	IsX        bool
	EndNumber  int
	ShotNumber int
	// PostureNote is an opaque pass-through for an external posture/pose
	// subsystem; the core never interprets it.
	PostureNote *string
}

// Session is one shooting session: a fixed arrows-per-end/num-ends
// structure filled in order.
type Session struct {
	ID           string
	StartTS      time.Time
	EndTS        *time.Time
	ArrowsPerEnd int
	NumEnds      int
	Shots        []Shot
}

// New starts a session with a fresh UUID.
func New(arrowsPerEnd, numEnds int, start time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		StartTS:      start,
		ArrowsPerEnd: arrowsPerEnd,
		NumEnds:      numEnds,
	}
}

// IsComplete reports whether every arrow of every end has been shot.
func (s *Session) IsComplete() bool {
	return len(s.Shots) >= s.ArrowsPerEnd*s.NumEnds
}

// AddShot appends a shot, computing its end_number and shot_number from
// the running total, and returns the appended shot. It does not enforce
// IsComplete — callers decide whether to keep accepting shots past
// completion (the session/mode controller gates that upstream).
func (s *Session) AddShot(ts time.Time, x, y, r float64, score int, isX bool, postureNote *string) Shot {
	total := len(s.Shots) + 1
	shot := Shot{
		Timestamp:   ts,
		XCM:         x,
		YCM:         y,
		RCM:         r,
		Score:       score,
		IsX:         isX,
		EndNumber:   ((total - 1) / s.ArrowsPerEnd) + 1,
		ShotNumber:  ((total - 1) % s.ArrowsPerEnd) + 1,
		PostureNote: postureNote,
	}
	s.Shots = append(s.Shots, shot)
	return shot
}

// End closes the session, setting EndTS. Matches the source's behavior of
// allowing early/incomplete termination.
func (s *Session) End(ts time.Time) {
	if s.EndTS == nil {
		s.EndTS = &ts
	}
}

// Total returns the sum of all shot scores broadcast so far.
func (s *Session) Total() int {
	total := 0
	for _, sh := range s.Shots {
		total += sh.Score
	}
	return total
}

// Projection is the session read-model returned by Controller.Status.
// It is not attached to dispatched events, and the dispatcher sends no
// state snapshot to new subscribers.
type Projection struct {
	SessionID    string  `json:"session_id"`
	Total        int     `json:"total"`
	Shots        []Shot  `json:"shots"`
	ArrowsPerEnd int     `json:"arrows_per_end"`
	NumEnds      int     `json:"num_ends"`
	IsComplete   bool    `json:"is_complete"`
	MedianRCM    float64 `json:"median_r_cm"`
	P85RCM       float64 `json:"p85_r_cm"`
	P98RCM       float64 `json:"p98_r_cm"`
}

// Project builds the current read-model, including shot-radius
// percentile statistics over the session so far.
func (s *Session) Project() Projection {
	radii := make([]float64, len(s.Shots))
	for i, sh := range s.Shots {
		radii[i] = sh.RCM
	}
	sortFloats(radii)

	p := Projection{
		SessionID:    s.ID,
		Total:        s.Total(),
		Shots:        s.Shots,
		ArrowsPerEnd: s.ArrowsPerEnd,
		NumEnds:      s.NumEnds,
		IsComplete:   s.IsComplete(),
	}
	if len(radii) > 0 {
		p.MedianRCM = stat.Quantile(0.5, stat.Empirical, radii, nil)
		p.P85RCM = stat.Quantile(0.85, stat.Empirical, radii, nil)
		p.P98RCM = stat.Quantile(0.98, stat.Empirical, radii, nil)
	}
	return p
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

// Info is a human-oriented summary, mirroring the original
// session_manager's get_session_info.
func (s *Session) Info() string {
	return fmt.Sprintf("session %s: %d/%d shots, complete=%v", s.ID, len(s.Shots), s.ArrowsPerEnd*s.NumEnds, s.IsComplete())
}
