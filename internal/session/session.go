package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/clock"
	"gorow/internal/formats/rws"
	"gorow/internal/migrations"
	"gorow/internal/stroke"
)

// TimeLayout is the layout of the start time in session file names.
const TimeLayout = "2006-01-02_15-04-05"

type Pause struct {
	PausedAt  time.Time `json:"paused_at"`
	ResumedAt time.Time `json:"resumed_at"`
}

func (p Pause) Duration() time.Duration {
	return p.ResumedAt.Sub(p.PausedAt)
}

// Session collects the strokes of one workout and persists them to a
// single file named after the start time.
type Session struct {
	mu sync.Mutex

	start   time.Time
	dir     string
	path    string
	points  []stroke.Point
	flushed int

	pausedAt   *time.Time
	pauses     []Pause
	totalPause time.Duration

	clock  clock.Clock
	Logger hclog.Logger
}

func filePath(dir string, start time.Time) string {
	return filepath.Join(dir, start.Format(TimeLayout)+rws.Extension)
}

// New creates the data directory if needed and returns an empty session
// starting at start.
func New(dir string, start time.Time, c clock.Clock) (*Session, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}
	return &Session{
		start:  start,
		dir:    dir,
		path:   filePath(dir, start),
		clock:  c,
		Logger: hclog.NewNullLogger(),
	}, nil
}

func (s *Session) Add(p stroke.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

// Pause marks the start of a pause. It does nothing if the session is
// already paused.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pausedAt != nil {
		return
	}
	now := s.clock.Now()
	s.pausedAt = &now
}

// Resume closes the current pause and records it. It does nothing if the
// session is not paused.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pausedAt == nil {
		return
	}
	p := Pause{PausedAt: *s.pausedAt, ResumedAt: s.clock.Now()}
	s.pauses = append(s.pauses, p)
	s.totalPause += p.Duration()
	s.pausedAt = nil
}

// PartialSave appends the points from index from onwards to the session
// file, creating it if it does not exist yet. Flushing the same suffix
// twice duplicates rows, so callers pass Flushed().
func (s *Session) PartialSave(from int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if from >= len(s.points) {
		return nil
	}
	rows := stroke.ToTable(s.points[from:])

	table := rows
	if _, err := os.Stat(s.path); err == nil {
		existing, err := rws.Read(s.path)
		if err != nil {
			return fmt.Errorf("could not read session file: %w", err)
		}
		if table, err = existing.Append(rows); err != nil {
			return fmt.Errorf("could not append to session file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	table.SetSchemaVersion(migrations.CurrentSchemaVersion)
	if err := rws.Write(s.path, table); err != nil {
		return fmt.Errorf("could not write session file: %w", err)
	}
	s.flushed = len(s.points)
	s.Logger.Debug("session flushed", "path", s.path, "rows", len(s.points)-from)
	return nil
}

// Save rewrites the session file with all points. An empty session is not
// written.
func (s *Session) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		s.Logger.Info("no data points to save", "session", s.start.Format(TimeLayout))
		return nil
	}
	table := stroke.ToTable(s.points)
	table.SetSchemaVersion(migrations.CurrentSchemaVersion)
	if err := rws.Write(s.path, table); err != nil {
		return fmt.Errorf("could not write session file: %w", err)
	}
	s.flushed = len(s.points)
	s.Logger.Info("session saved", "path", s.path)
	return nil
}

func (s *Session) Points() []stroke.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stroke.Point(nil), s.points...)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Flushed returns the number of points already written to disk.
func (s *Session) Flushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedAt != nil
}

func (s *Session) Pauses() []Pause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pause(nil), s.pauses...)
}

func (s *Session) TotalPause() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPause
}

func (s *Session) Start() time.Time {
	return s.start
}

// ID returns the file name of the session.
func (s *Session) ID() string {
	return filepath.Base(s.path)
}

func (s *Session) Path() string {
	return s.path
}

func (s *Session) Dir() string {
	return s.dir
}
