package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"gorow/internal/clock"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), clock.Fake(start), nil)
}

func TestStartTwiceConflicts(t *testing.T) {
	m := newManager(t)
	first, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("got %v", err)
	}
	if m.Active() != first {
		t.Fatal("active session changed by a failed start")
	}
}

func TestStopWithoutSession(t *testing.T) {
	m := newManager(t)
	if _, err := m.Stop(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("got %v", err)
	}
}

func TestStopSavesAndClears(t *testing.T) {
	m := newManager(t)
	s, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	m.Record(point(100))
	s.Pause()

	stopped, err := m.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if stopped != s || m.Active() != nil {
		t.Fatal("slot not cleared")
	}
	if stopped.Paused() || len(stopped.Pauses()) != 1 {
		t.Fatal("pause not closed on stop")
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatal(err)
	}

	m.Record(point(100))
	if s.Len() != 1 {
		t.Fatal("recorded into a stopped session")
	}
}

func TestDeviceResetFailure(t *testing.T) {
	m := newManager(t)
	boom := errors.New("no answer")
	m.SetResetter(ResetFunc(func() error { return boom }))

	_, err := m.Start()
	var dre *DeviceResetError
	if !errors.As(err, &dre) || !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if errors.Is(err, ErrSessionActive) {
		t.Fatal("reset failure reported as a conflict")
	}
	if m.Active() != nil {
		t.Fatal("session created despite reset failure")
	}
}

func TestDeviceResetCalledOnStart(t *testing.T) {
	m := newManager(t)
	calls := 0
	m.SetResetter(ResetFunc(func() error { calls++; return nil }))
	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("reset called %d times", calls)
	}
}

func TestStartInSameSecondKeepsPreviousSession(t *testing.T) {
	m := newManager(t)
	first, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	m.Record(point(100))
	m.Record(point(110))
	if _, err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	second, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if second.Path() == first.Path() {
		t.Fatalf("second session reuses %s", first.Path())
	}
	if !second.Start().Equal(start.Add(time.Second)) {
		t.Fatalf("second session starts at %v", second.Start())
	}
	m.Record(point(120))
	if err := second.PartialSave(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	if got := readPoints(t, first.Path()); len(got) != 2 {
		t.Fatalf("first session has %d points, want 2", len(got))
	}
	if got := readPoints(t, second.Path()); len(got) != 1 || got[0].Power != 120 {
		t.Fatalf("second session has %+v", got)
	}
}
