package stroke

import "gorow/internal/formats/frame"

// Tracker turns consecutive cumulative readings into per stroke points.
type Tracker struct {
	previous *frame.RawReading

	// Running totals of the emitted points, kept across baseline resets.
	TotalDistance float64
	TotalDuration float64
}

// Push records r as the new baseline. It returns the stroke between the
// previous baseline and r, or false if there was no baseline yet.
func (t *Tracker) Push(r frame.RawReading) (Point, bool) {
	previous := t.previous
	t.previous = &r
	if previous == nil {
		return Point{}, false
	}

	p := Point{
		Duration:    float64(r.Duration - previous.Duration),
		Distance:    float64(r.Distance - previous.Distance),
		Pace:        r.Pace,
		StrokeRate:  r.StrokeRate,
		Power:       r.Power,
		CalorieRate: r.CalorieRate,
		Resistance:  r.Resistance,
	}
	t.TotalDistance += p.Distance
	t.TotalDuration += p.Duration
	return p, true
}

// Reset drops the baseline. The device restarts its counters on a session
// reset, so readings from before a reconnect must never be diffed against
// readings after it.
func (t *Tracker) Reset() {
	t.previous = nil
}

func (t *Tracker) HasBaseline() bool {
	return t.previous != nil
}
