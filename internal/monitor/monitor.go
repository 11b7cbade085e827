package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/augustoroman/hexdump"
	"github.com/hashicorp/go-hclog"

	"gorow/internal/clock"
	"gorow/internal/formats/frame"
	"gorow/internal/session"
	"gorow/internal/stroke"
)

// Link is the device side of a running session.
type Link interface {
	ReadLine(timeout time.Duration) (string, bool, error)
	Reconnect(ctx context.Context) error
}

type Publisher interface {
	Publish(p stroke.Point)
}

// Archiver records a finished session somewhere besides its file.
type Archiver interface {
	Archive(s *session.Session, stats *stroke.Stats) error
}

type Config struct {
	ReadTimeout       time.Duration
	FlushInterval     time.Duration
	FlushAfterStrokes int
}

type Summary struct {
	ID         string          `json:"id"`
	Path       string          `json:"path"`
	Stats      *stroke.Stats   `json:"stats"`
	Pauses     []session.Pause `json:"pauses"`
	TotalPause time.Duration   `json:"total_pause"`
}

// Monitor drives one recording session: it reads frames from the link,
// turns them into strokes, flushes them periodically and survives
// disconnects.
type Monitor struct {
	Config    Config
	Link      Link
	Manager   *session.Manager
	Publisher Publisher
	Archiver  Archiver
	Clock     clock.Clock
	Logger    hclog.Logger
}

func New(config Config, link Link, manager *session.Manager, c clock.Clock, logger hclog.Logger) *Monitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Monitor{
		Config:  config,
		Link:    link,
		Manager: manager,
		Clock:   c,
		Logger:  logger,
	}
}

// Start opens a new session through the manager, which resets the device.
func (m *Monitor) Start() (*session.Session, error) {
	return m.Manager.Start()
}

// RunSession starts a session and records it until ctx is done or the
// device is lost for good.
func (m *Monitor) RunSession(ctx context.Context) (*Summary, error) {
	s, err := m.Start()
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, s)
}

type run struct {
	session   *session.Session
	tracker   stroke.Tracker
	live      stroke.Accumulator
	lastFlush time.Time
}

// Run records s until ctx is done or reconnecting fails. The session is
// always stopped and saved before Run returns. The returned error is
// ErrReconnectFailed from the link if the device was lost, or a save
// error.
func (m *Monitor) Run(ctx context.Context, s *session.Session) (*Summary, error) {
	r := &run{session: s, lastFlush: m.Clock.Now()}
	m.Logger.Info("session started", "path", s.Path())

	var runErr error
	for ctx.Err() == nil {
		line, ok, err := m.Link.ReadLine(m.Config.ReadTimeout)
		if err != nil {
			m.Logger.Warn("read error", "error", err)
			if err := m.recover(ctx, r); err != nil {
				if ctx.Err() == nil {
					runErr = err
				}
				break
			}
			continue
		}
		if !ok {
			continue
		}

		switch frame.KindOf(line) {
		case frame.Data:
			m.handleFrame(r, line)
		default:
			m.Logger.Info("received", "line", line)
		}
	}

	summary, err := m.Finish(r.session)
	if err != nil {
		return summary, err
	}
	return summary, runErr
}

func (m *Monitor) recover(ctx context.Context, r *run) error {
	s := r.session
	s.Pause()
	if flushed := s.Flushed(); s.Len() > flushed {
		if err := s.PartialSave(flushed); err != nil {
			m.Logger.Error("could not flush session", "error", err)
		} else {
			m.Logger.Info("partial session flushed", "strokes", s.Len())
		}
	}

	if err := m.Link.Reconnect(ctx); err != nil {
		m.Logger.Error("failed to reconnect, ending session", "error", err)
		return err
	}

	r.tracker.Reset()
	s.Resume()
	r.lastFlush = m.Clock.Now()
	m.Logger.Info("session resumed after reconnection")
	return nil
}

func (m *Monitor) handleFrame(r *run, line string) {
	reading, err := frame.Decode(line)
	if err != nil {
		m.Logger.Warn("could not decode frame", "error", err)
		if m.Logger.IsDebug() {
			m.Logger.Debug("rejected frame\n" + hexdump.Dump([]byte(line)))
		}
		return
	}

	p, ok := r.tracker.Push(reading)
	if !ok {
		return
	}
	s := r.session
	s.Add(p)
	r.live.Add(p)
	if m.Publisher != nil {
		m.Publisher.Publish(p)
	}

	live := r.live.Stats()
	m.Logger.Info("stroke",
		"distance", r.tracker.TotalDistance,
		"duration", r.tracker.TotalDuration,
		"avg_500m", fmt.Sprintf("%.1f", live.MeanPace),
		"avg_power", fmt.Sprintf("%.0f", live.MeanPower),
		"spm", p.StrokeRate)

	flushed := s.Flushed()
	pending := s.Len() - flushed
	if m.Clock.Now().Sub(r.lastFlush) >= m.Config.FlushInterval || pending >= m.Config.FlushAfterStrokes {
		if err := s.PartialSave(flushed); err != nil {
			m.Logger.Error("could not flush session", "error", err)
			return
		}
		r.lastFlush = m.Clock.Now()
		m.Logger.Debug("session flushed", "strokes", pending)
	}
}

// Finish stops and saves s, then reports and archives it. It can be
// called again for a session whose final save failed.
func (m *Monitor) Finish(s *session.Session) (*Summary, error) {
	var err error
	if m.Manager.Active() == s {
		_, err = m.Manager.Stop()
	} else {
		// stopped elsewhere; make sure the data is on disk
		s.Resume()
		err = s.Save()
	}
	if err != nil {
		m.Logger.Error("could not save session", "error", err)
		return nil, err
	}

	summary := &Summary{
		ID:         s.ID(),
		Path:       s.Path(),
		Pauses:     s.Pauses(),
		TotalPause: s.TotalPause(),
	}
	if s.Len() == 0 {
		m.Logger.Info("no data recorded in session")
		return summary, nil
	}

	summary.Stats = stroke.Calculate(s.Points())
	st := summary.Stats
	m.Logger.Info("session summary",
		"strokes", st.NumStrokes,
		"distance", fmt.Sprintf("%.1f", st.TotalDistance),
		"duration", fmt.Sprintf("%.0f", st.TotalDuration),
		"avg_500m", fmt.Sprintf("%.1f", st.MeanPace),
		"avg_power", fmt.Sprintf("%.0f", st.MeanPower),
		"calories", fmt.Sprintf("%.0f", st.TotalCalories),
		"pause", s.TotalPause(),
		"interruptions", len(summary.Pauses),
		"path", s.Path())

	if m.Archiver != nil {
		if err := m.Archiver.Archive(s, st); err != nil {
			m.Logger.Warn("could not archive session", "error", err)
		}
	}
	return summary, nil
}
