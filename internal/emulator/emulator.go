package emulator

import (
	"bufio"
	"context"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/formats/frame"
)

// Rower speaks the device protocol: it answers the connect and reset
// commands and, once reset, emits one data frame per stroke.
type Rower struct {
	Version    string
	DeviceType int
	Resistance int
	Interval   time.Duration

	// Every GlitchEvery-th frame is sent truncated. Zero disables glitches.
	GlitchEvery int

	Seed   int64
	Logger hclog.Logger
}

func (r *Rower) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

type writer struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *writer) line(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.w, s+"\n")
	return err
}

// Serve talks to one client until ctx is done, the client goes away or a
// write fails.
func (r *Rower) Serve(ctx context.Context, conn io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	done := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
		done <- sc.Err()
	}()

	out := &writer{w: conn}
	rng := rand.New(rand.NewSource(r.Seed))
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	var state frame.RawReading
	streaming := false
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		case line := <-lines:
			var err error
			switch line {
			case string(frame.ConnectAck):
				err = out.line(string(frame.ConnectAck) + r.Version)
			case string(frame.ResetAck):
				state = r.reset()
				streaming = true
				frames = 0
				err = out.line(string(frame.ResetAck))
			default:
				r.logger().Debug("unknown command", "command", line)
			}
			if err != nil {
				return err
			}
		case <-ticker.C:
			if !streaming {
				continue
			}
			state = r.stroke(state, rng)
			frames++
			data := frame.Encode(state)
			if r.GlitchEvery > 0 && frames%r.GlitchEvery == 0 {
				data = data[:len(data)-3]
			}
			if err := out.line(data); err != nil {
				return err
			}
		}
	}
}

func (r *Rower) reset() frame.RawReading {
	deviceType := r.DeviceType
	return frame.RawReading{
		DeviceType: &deviceType,
		Resistance: r.Resistance,
	}
}

// stroke advances the cumulative counters by one stroke with values in the
// range of a recreational rower.
func (r *Rower) stroke(prev frame.RawReading, rng *rand.Rand) frame.RawReading {
	next := prev
	next.Duration += 2 + rng.Intn(2)
	next.Distance += 8 + rng.Intn(4)
	next.Pace = 110 + rng.Intn(51)
	next.StrokeRate = 18 + rng.Intn(13)
	next.Power = 100 + rng.Intn(201)
	next.CalorieRate = 500 + rng.Intn(401)
	return next
}
