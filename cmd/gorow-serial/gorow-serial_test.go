package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gorow/internal/broadcast"
	"gorow/internal/monitor"
	"gorow/internal/session"
	"gorow/internal/stroke"
)

func point(distance float64, power int) stroke.Point {
	return stroke.Point{Duration: 2, Distance: distance, Pace: 139, StrokeRate: 22, Power: power, CalorieRate: 744, Resistance: 9}
}

func TestPrintLive(t *testing.T) {
	for _, tc := range []struct {
		name    string
		inPlace bool
		prefix  string
	}{
		{"lines", false, "   1 strokes"},
		{"in place", true, "\r   1 strokes"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := broadcast.New()
			sub := b.Subscribe()
			b.Publish(point(9, 120))
			b.Publish(point(10, 140))
			b.Close()

			var out bytes.Buffer
			printLive(&out, sub, tc.inPlace)

			got := out.String()
			if !strings.HasPrefix(got, tc.prefix) {
				t.Errorf("output %q does not start with %q", got, tc.prefix)
			}
			if !strings.Contains(got, "   2 strokes     19.0 m") {
				t.Errorf("running totals missing from %q", got)
			}
			if !strings.HasSuffix(got, "\n") {
				t.Errorf("output %q does not end the line", got)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &monitor.Summary{Path: "sessions/a.rws"})
	if !strings.Contains(out.String(), "No strokes recorded.") {
		t.Errorf("unexpected summary %q", out.String())
	}

	out.Reset()
	start := time.Date(2024, 5, 1, 18, 0, 0, 0, time.Local)
	printSummary(&out, &monitor.Summary{
		Path:       "sessions/a.rws",
		Stats:      stroke.Calculate([]stroke.Point{point(9, 120), point(10, 140)}),
		Pauses:     []session.Pause{{PausedAt: start, ResumedAt: start.Add(3 * time.Second)}},
		TotalPause: 3 * time.Second,
	})
	for _, want := range []string{"Strokes:       2", "Distance:      19.0 m", "Avg power:     130 W (max 140 W)", "Interruptions: 1 (3s)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary %q does not contain %q", out.String(), want)
		}
	}
}
