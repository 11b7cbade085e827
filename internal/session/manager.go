package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/clock"
	"gorow/internal/stroke"
)

var (
	ErrSessionActive   = errors.New("session already active")
	ErrNoActiveSession = errors.New("no active session to stop")
)

type DeviceResetError struct {
	Err error
}

func (e *DeviceResetError) Error() string {
	return fmt.Sprintf("device reset failed: %v", e.Err)
}

func (e *DeviceResetError) Unwrap() error {
	return e.Err
}

// DeviceResetter puts the rower into a fresh session before recording
// starts.
type DeviceResetter interface {
	ResetSession() error
}

type ResetFunc func() error

func (f ResetFunc) ResetSession() error {
	return f()
}

// Manager owns the single active session.
type Manager struct {
	mu       sync.Mutex
	active   *Session
	resetter DeviceResetter

	dir    string
	clock  clock.Clock
	Logger hclog.Logger
}

func NewManager(dir string, c clock.Clock, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		dir:    dir,
		clock:  c,
		Logger: logger,
	}
}

// SetResetter sets the device reset invoked on every Start. A nil resetter
// disables it.
func (m *Manager) SetResetter(r DeviceResetter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetter = r
}

// Start resets the device and creates a new active session. It fails
// without side effects if a session is already active.
func (m *Manager) Start() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrSessionActive
	}
	if m.resetter != nil {
		if err := m.resetter.ResetSession(); err != nil {
			return nil, &DeviceResetError{Err: err}
		}
	}
	s, err := New(m.dir, m.freeStart(), m.clock)
	if err != nil {
		return nil, err
	}
	s.Logger = m.Logger
	m.active = s
	m.Logger.Info("session started", "id", s.ID())
	return s, nil
}

// freeStart returns the current time, moved forward a second at a time
// while a session file already exists for it. Ids have one second
// resolution, so a session started in the same second as a saved one
// would otherwise overwrite it.
func (m *Manager) freeStart() time.Time {
	start := m.clock.Now()
	for {
		if _, err := os.Stat(filePath(m.dir, start)); err != nil {
			return start
		}
		start = start.Add(time.Second)
	}
}

// Stop closes any open pause, saves the active session and clears the
// slot. The slot is kept if saving fails.
func (m *Manager) Stop() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.active
	if s == nil {
		return nil, ErrNoActiveSession
	}
	s.Resume()
	if err := s.Save(); err != nil {
		return nil, err
	}
	m.active = nil
	m.Logger.Info("session stopped", "id", s.ID(), "strokes", s.Len())
	return s, nil
}

// Active returns the active session or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Record appends p to the active session, if there is one.
func (m *Manager) Record(p stroke.Point) {
	if s := m.Active(); s != nil {
		s.Add(p)
	}
}

func (m *Manager) Dir() string {
	return m.dir
}
