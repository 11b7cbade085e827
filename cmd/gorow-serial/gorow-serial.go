package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"gorow/internal/broadcast"
	"gorow/internal/clock"
	"gorow/internal/common"
	"gorow/internal/device"
	"gorow/internal/monitor"
	"gorow/internal/session"
	"gorow/internal/settings"
	"gorow/internal/stroke"
)

// liveLine formats one stroke with the running totals of the session.
func liveLine(p stroke.Point, s *stroke.Stats) string {
	return fmt.Sprintf("%4d strokes  %7.1f m  %5.1f s/500m  %3d spm  %4d W  %4d kcal/h",
		s.NumStrokes, s.TotalDistance, float64(p.Pace), p.StrokeRate, p.Power, p.CalorieRate)
}

// printLive writes a line per stroke until sub is closed. On a terminal
// the line is rewritten in place.
func printLive(w io.Writer, sub *broadcast.Subscription, inPlace bool) {
	var live stroke.Accumulator
	for p := range sub.C {
		live.Add(p)
		line := liveLine(p, live.Stats())
		if inPlace {
			fmt.Fprint(w, "\r"+line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
	if inPlace && live.Stats() != nil {
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, summary *monitor.Summary) {
	fmt.Fprintf(w, "Session saved to %s\n", summary.Path)
	st := summary.Stats
	if st == nil {
		fmt.Fprintln(w, "No strokes recorded.")
		return
	}
	fmt.Fprintf(w, "Strokes:       %d\n", st.NumStrokes)
	fmt.Fprintf(w, "Distance:      %.1f m\n", st.TotalDistance)
	fmt.Fprintf(w, "Duration:      %.0f s\n", st.TotalDuration)
	fmt.Fprintf(w, "Avg 500m:      %.1f s\n", st.MeanPace)
	fmt.Fprintf(w, "Avg power:     %.0f W (max %.0f W)\n", st.MeanPower, st.MaxPower)
	fmt.Fprintf(w, "Calories:      %.0f\n", st.TotalCalories)
	if len(summary.Pauses) > 0 {
		fmt.Fprintf(w, "Interruptions: %d (%s)\n", len(summary.Pauses), summary.TotalPause)
	}
}

func main() {
	var opts struct {
		ConfigFile string `short:"c" long:"config" description:"Configuration file path"`
		Port       string `short:"p" long:"port" description:"Serial port or tcp://host:port (overrides configuration)"`
		Quiet      bool   `short:"q" long:"quiet" description:"Do not print a line per stroke"`
	}
	_, err := flags.Parse(&opts)
	if err != nil {
		return
	}

	cfg, err := settings.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not load configuration:", err)
		os.Exit(1)
	}
	if opts.Port != "" {
		cfg.Serial.Port = opts.Port
	}
	logger := cfg.Logger("gorow-serial")

	c := clock.Real()
	link := device.NewLink(device.Config{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		Backoff:     cfg.Backoff(),
	}, nil, c, logger.Named("device"))
	if err := link.Open(); err != nil {
		logger.Error("could not open device", "port", cfg.Serial.Port, "error", err)
		os.Exit(1)
	}
	defer link.Close()
	if err := link.Connect(); err != nil {
		logger.Error("device did not answer", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "version", link.Version())

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		logger.Error("could not create data directory", "error", err)
		os.Exit(1)
	}
	manager := session.NewManager(cfg.Data.Dir, c, logger.Named("session"))
	manager.SetResetter(link)

	mon := monitor.New(monitor.Config{
		ReadTimeout:       cfg.ReadTimeout(),
		FlushInterval:     cfg.FlushInterval(),
		FlushAfterStrokes: cfg.Reconnect.FlushAfterStrokes,
	}, link, manager, c, logger.Named("monitor"))

	if catalog, err := common.OpenCatalog(cfg.CatalogPath()); err != nil {
		logger.Warn("could not open catalog", "error", err)
	} else {
		defer catalog.Close()
		mon.Archiver = catalog
	}

	broadcaster := broadcast.New()
	printed := make(chan struct{})
	if opts.Quiet {
		close(printed)
	} else {
		mon.Publisher = broadcaster
		sub := broadcaster.Subscribe()
		go func() {
			defer close(printed)
			printLive(os.Stdout, sub, term.IsTerminal(int(os.Stdout.Fd())) && !logger.IsDebug())
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("recording, press Ctrl+C to stop")
	summary, err := mon.RunSession(ctx)
	broadcaster.Close()
	<-printed
	if summary == nil {
		logger.Error("could not record session", "error", err)
		os.Exit(1)
	}
	if errors.Is(err, device.ErrReconnectFailed) {
		logger.Warn("device lost, session ended early")
	}
	printSummary(os.Stdout, summary)
}
