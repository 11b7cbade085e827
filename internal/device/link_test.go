package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gorow/internal/clock"
)

// fakePort answers commands through respond and advances the fake clock by
// one poll interval whenever a read finds no data.
type fakePort struct {
	mu      sync.Mutex
	clock   *clock.FakeClock
	in      bytes.Buffer
	written []string
	respond func(cmd string) string
	readErr error
	closed  bool
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.in.Len() == 0 {
		p.clock.Advance(pollInterval)
		return 0, nil
	}
	return p.in.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, string(b))
	if p.respond != nil {
		p.in.WriteString(p.respond(string(b)))
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
}

func rower(cmd string) string {
	switch cmd {
	case "C\n":
		return "C3\n"
	case "R\n":
		return "R\n"
	}
	return ""
}

func newLink(t *testing.T, p *fakePort) (*Link, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p.clock = c
	l := NewLink(Config{Port: "fake", BaudRate: 9600, MaxAttempts: 3, Backoff: time.Second},
		func(string, int) (Port, error) { return p, nil }, c, nil)
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}
	return l, c
}

func TestConnect(t *testing.T) {
	p := &fakePort{respond: rower}
	l, _ := newLink(t, p)
	if l.State() != Handshaking {
		t.Fatalf("state %v", l.State())
	}
	if err := l.Connect(); err != nil {
		t.Fatal(err)
	}
	if l.State() != Connected || l.Version() != "3" {
		t.Fatalf("state %v, version %q", l.State(), l.Version())
	}
}

func TestConnectRetries(t *testing.T) {
	calls := 0
	p := &fakePort{respond: func(cmd string) string {
		calls++
		if calls < 3 {
			return "A5000010001000219022129074409\n"
		}
		return "C1\n"
	}}
	l, _ := newLink(t, p)
	if err := l.Connect(); err != nil {
		t.Fatal(err)
	}
	if len(p.written) != 3 {
		t.Fatalf("sent %d requests", len(p.written))
	}
}

func TestConnectTimeout(t *testing.T) {
	p := &fakePort{}
	l, c := newLink(t, p)
	before := c.Now()
	err := l.Connect()
	var hte *HandshakeTimeoutError
	if !errors.As(err, &hte) || hte.Op != "connect" {
		t.Fatalf("got %v", err)
	}
	if len(p.written) != ConnectAttempts {
		t.Fatalf("sent %d requests", len(p.written))
	}
	if c.Now().Sub(before) < ConnectAttempts*ConnectTimeout {
		t.Fatalf("attempts did not wait for the response timeout")
	}
}

func TestResetSkipsOtherLines(t *testing.T) {
	p := &fakePort{respond: func(cmd string) string {
		if cmd == "R\n" {
			return "A5000010001000219022129074409\nR\n"
		}
		return ""
	}}
	l, _ := newLink(t, p)
	if err := l.ResetSession(); err != nil {
		t.Fatal(err)
	}
}

func TestResetTimeout(t *testing.T) {
	p := &fakePort{}
	l, _ := newLink(t, p)
	err := l.ResetSession()
	var hte *HandshakeTimeoutError
	if !errors.As(err, &hte) || hte.Op != "reset" {
		t.Fatalf("got %v", err)
	}
	if len(p.written) != 1 {
		t.Fatal("reset was retried")
	}
}

func TestReadLine(t *testing.T) {
	p := &fakePort{}
	l, _ := newLink(t, p)

	p.feed("A50000100010002190221290744")
	if _, ok, err := l.ReadLine(time.Second); ok || err != nil {
		t.Fatalf("partial line returned: %v, %v", ok, err)
	}
	p.feed("09\r\n\n  \nC2\n")
	line, ok, err := l.ReadLine(time.Second)
	if err != nil || !ok || line != "A5000010001000219022129074409" {
		t.Fatalf("got %q, %v, %v", line, ok, err)
	}
	line, ok, _ = l.ReadLine(time.Second)
	if !ok || line != "C2" {
		t.Fatalf("blank lines not skipped: %q", line)
	}
}

func TestReadLineTimeout(t *testing.T) {
	p := &fakePort{}
	l, c := newLink(t, p)
	before := c.Now()
	line, ok, err := l.ReadLine(5 * time.Second)
	if ok || err != nil || line != "" {
		t.Fatalf("got %q, %v, %v", line, ok, err)
	}
	if elapsed := c.Now().Sub(before); elapsed < 5*time.Second || elapsed > 6*time.Second {
		t.Fatalf("waited %v", elapsed)
	}
}

func TestReadLineInvalidUTF8(t *testing.T) {
	p := &fakePort{}
	l, _ := newLink(t, p)
	p.feed("C\xff1\n")
	line, ok, _ := l.ReadLine(time.Second)
	if !ok || line != "C1" {
		t.Fatalf("got %q", line)
	}
}

func TestReadLineError(t *testing.T) {
	p := &fakePort{readErr: io.EOF}
	l, _ := newLink(t, p)
	_, _, err := l.ReadLine(time.Second)
	var ce *ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
}

func TestReconnect(t *testing.T) {
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	dials := 0
	var last *fakePort
	dial := func(string, int) (Port, error) {
		dials++
		if dials < 3 {
			return nil, errors.New("no such device")
		}
		last = &fakePort{clock: c, respond: rower}
		return last, nil
	}
	l := NewLink(Config{MaxAttempts: 5, Backoff: 2 * time.Second}, dial, c, nil)

	before := c.Now()
	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dials != 3 || l.State() != Connected {
		t.Fatalf("dials %d, state %v", dials, l.State())
	}
	if c.Now().Sub(before) < 4*time.Second {
		t.Fatal("no backoff between attempts")
	}
	if !strings.HasPrefix(last.written[0], "C") {
		t.Fatal("no handshake after reconnect")
	}
}

func TestReconnectExhausted(t *testing.T) {
	c := clock.Fake(time.Now())
	dials := 0
	dial := func(string, int) (Port, error) {
		dials++
		return nil, errors.New("no such device")
	}
	l := NewLink(Config{MaxAttempts: 3}, dial, c, nil)
	if err := l.Reconnect(context.Background()); !errors.Is(err, ErrReconnectFailed) {
		t.Fatalf("got %v", err)
	}
	if dials != 3 || l.State() != Disconnected {
		t.Fatalf("dials %d, state %v", dials, l.State())
	}
}

func TestReconnectCancelled(t *testing.T) {
	c := clock.Fake(time.Now())
	dials := 0
	dial := func(string, int) (Port, error) {
		dials++
		return nil, errors.New("no such device")
	}
	l := NewLink(Config{MaxAttempts: 3}, dial, c, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Reconnect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if dials != 0 {
		t.Fatalf("dialed %d times after cancellation", dials)
	}
}

func TestReconnectClosesStalePort(t *testing.T) {
	p := &fakePort{respond: rower}
	l, _ := newLink(t, p)
	if err := l.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !p.closed {
		t.Fatal("stale port not closed")
	}
}

func TestReadLineSeveralLinesInOneRead(t *testing.T) {
	p := &fakePort{}
	l, _ := newLink(t, p)

	p.feed("A5000010001000219022129074409\nA5000030001900219022135074409\nR\n")
	for _, want := range []string{
		"A5000010001000219022129074409",
		"A5000030001900219022135074409",
		"R",
	} {
		line, ok, err := l.ReadLine(time.Second)
		if err != nil || !ok || line != want {
			t.Fatalf("got %q, %v, %v, want %q", line, ok, err, want)
		}
	}
}

// streamingPort sends a data frame on every read and never acknowledges
// anything.
type streamingPort struct {
	clock *clock.FakeClock
}

func (p *streamingPort) SetReadTimeout(time.Duration) error { return nil }
func (p *streamingPort) Write(b []byte) (int, error)        { return len(b), nil }
func (p *streamingPort) Close() error                       { return nil }

func (p *streamingPort) Read(b []byte) (int, error) {
	p.clock.Advance(pollInterval)
	return copy(b, "A5000010001000219022129074409\n"), nil
}

func TestResetTimeoutWhileStreaming(t *testing.T) {
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p := &streamingPort{clock: c}
	l := NewLink(Config{Port: "fake"}, func(string, int) (Port, error) { return p, nil }, c, nil)
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}

	before := c.Now()
	err := l.ResetSession()
	var hte *HandshakeTimeoutError
	if !errors.As(err, &hte) || hte.Op != "reset" {
		t.Fatalf("got %v", err)
	}
	if elapsed := c.Now().Sub(before); elapsed > ResetTimeout+pollInterval {
		t.Fatalf("reset waited %v", elapsed)
	}
}

func TestReconnectCancelledDuringHandshake(t *testing.T) {
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var port *fakePort
	dials := 0
	dial := func(string, int) (Port, error) {
		dials++
		port = &fakePort{clock: c, respond: func(string) string {
			cancel()
			return ""
		}}
		return port, nil
	}
	l := NewLink(Config{MaxAttempts: 3}, dial, c, nil)

	if err := l.Reconnect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if dials != 1 || len(port.written) != 1 {
		t.Fatalf("dials %d, requests %d after cancellation", dials, len(port.written))
	}
	if l.State() != Disconnected {
		t.Fatalf("state %v", l.State())
	}
}
