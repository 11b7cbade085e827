package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/clock"
	"gorow/internal/formats/frame"
)

const (
	ConnectAttempts = 20
	ConnectTimeout  = 2 * time.Second
	ConnectDelay    = 100 * time.Millisecond
	ResetSettle     = 500 * time.Millisecond
	ResetTimeout    = 2 * time.Second

	pollInterval = 100 * time.Millisecond
)

var (
	ErrReconnectFailed = errors.New("could not reconnect to device")
	ErrNotOpen         = errors.New("port is not open")
)

type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type HandshakeTimeoutError struct {
	Op       string
	Attempts int
}

func (e *HandshakeTimeoutError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: no answer from device after %d attempts", e.Op, e.Attempts)
	}
	return fmt.Sprintf("%s: no answer from device", e.Op)
}

type State int

const (
	Disconnected State = iota
	Handshaking
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	Port        string
	BaudRate    int
	MaxAttempts int
	Backoff     time.Duration
}

// Link is the line oriented connection to the rower.
type Link struct {
	mu sync.Mutex

	config  Config
	dial    Dialer
	clock   clock.Clock
	logger  hclog.Logger
	port    Port
	buf     []byte
	state   State
	version string
}

func NewLink(config Config, dial Dialer, c clock.Clock, logger hclog.Logger) *Link {
	if dial == nil {
		dial = Dial
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Link{
		config: config,
		dial:   dial,
		clock:  c,
		logger: logger,
	}
}

// Open opens the port. The device is not usable until Connect succeeds.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open()
}

func (l *Link) open() error {
	l.closePort()
	p, err := l.dial(l.config.Port, l.config.BaudRate)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return &ConnectionError{Err: err}
	}
	l.port = p
	l.buf = l.buf[:0]
	l.state = Handshaking
	l.logger.Info("port opened", "port", l.config.Port)
	return nil
}

// Connect performs the connection handshake.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connect(context.Background())
}

func (l *Link) connect(ctx context.Context) error {
	for attempt := 1; attempt <= ConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.write("C\n"); err != nil {
			return err
		}
		l.logger.Debug("sent connection request", "attempt", attempt, "max", ConnectAttempts)

		line, ok, err := l.readLine(ConnectTimeout)
		if err != nil {
			return err
		}
		if ok && strings.HasPrefix(line, string(frame.ConnectAck)) {
			l.version = line[1:]
			l.state = Connected
			l.logger.Info("connected to device", "version", l.version)
			return nil
		}
		l.logger.Debug("unexpected handshake response", "response", line)
		l.clock.Sleep(ConnectDelay)
	}
	return &HandshakeTimeoutError{Op: "connect", Attempts: ConnectAttempts}
}

// ResetSession asks the device to start a new session, which zeroes its
// counters. The acknowledgement must arrive within ResetTimeout of the
// request, however many other lines come first.
func (l *Link) ResetSession() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write("R\n"); err != nil {
		return err
	}
	deadline := l.clock.Now().Add(ResetTimeout)
	l.clock.Sleep(ResetSettle)
	for {
		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			return &HandshakeTimeoutError{Op: "reset", Attempts: 1}
		}
		line, ok, err := l.readLine(remaining)
		if err != nil {
			return err
		}
		if !ok {
			return &HandshakeTimeoutError{Op: "reset", Attempts: 1}
		}
		if strings.HasPrefix(line, string(frame.ResetAck)) {
			l.logger.Info("device session reset")
			return nil
		}
		l.logger.Debug("skipping line while waiting for reset", "line", line)
	}
}

// ReadLine returns the next non-empty line, or false if none arrives
// within timeout.
func (l *Link) ReadLine(timeout time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLine(timeout)
}

func (l *Link) readLine(timeout time.Duration) (string, bool, error) {
	if l.port == nil {
		return "", false, &ConnectionError{Err: ErrNotOpen}
	}

	deadline := l.clock.Now().Add(timeout)
	chunk := make([]byte, 256)
	for {
		for {
			i := bytes.IndexByte(l.buf, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(strings.ToValidUTF8(string(l.buf[:i]), ""))
			l.buf = append(l.buf[:0], l.buf[i+1:]...)
			if line != "" {
				return line, true, nil
			}
		}

		if !l.clock.Now().Before(deadline) {
			return "", false, nil
		}
		n, err := l.port.Read(chunk)
		if n > 0 {
			l.buf = append(l.buf, chunk[:n]...)
		}
		if err != nil {
			return "", false, &ConnectionError{Err: err}
		}
	}
}

func (l *Link) write(s string) error {
	if l.port == nil {
		return &ConnectionError{Err: ErrNotOpen}
	}
	if _, err := l.port.Write([]byte(s)); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// Reconnect drops the current port and tries to open and handshake a new
// one, waiting the configured backoff between failed attempts.
func (l *Link) Reconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closePort()
	l.state = Reconnecting
	for attempt := 1; attempt <= l.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			l.state = Disconnected
			return err
		}
		err := l.open()
		if err == nil {
			err = l.connect(ctx)
		}
		if err == nil {
			l.logger.Info("reconnected", "attempt", attempt)
			return nil
		}
		l.closePort()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.state = Reconnecting
		l.logger.Warn("reconnect attempt failed", "attempt", attempt, "max", l.config.MaxAttempts, "error", err)

		select {
		case <-ctx.Done():
			l.state = Disconnected
			return ctx.Err()
		case <-l.clock.After(l.config.Backoff):
		}
	}
	l.state = Disconnected
	return ErrReconnectFailed
}

func (l *Link) closePort() {
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
	l.state = Disconnected
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.state = Disconnected
	return err
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Version returns the firmware version reported during the last handshake.
func (l *Link) Version() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}
