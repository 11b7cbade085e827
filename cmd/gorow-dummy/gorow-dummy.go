package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jessevdk/go-flags"

	"gorow/internal/emulator"
)

func handleConnection(ctx context.Context, conn net.Conn, rower emulator.Rower, logger hclog.Logger) {
	defer conn.Close()
	logger = logger.With("client", conn.RemoteAddr().String())
	rower.Logger = logger

	logger.Info("client connected")
	if err := rower.Serve(ctx, conn); err != nil {
		logger.Warn("connection closed", "error", err)
		return
	}
	logger.Info("client disconnected")
}

// serve accepts clients until ctx is done. Every client gets its own
// rower.
func serve(ctx context.Context, l net.Listener, rower emulator.Rower, logger hclog.Logger) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	clients := 0
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("accept failed", "error", err)
			continue
		}
		clients++
		r := rower
		r.Seed += int64(clients)
		go handleConnection(ctx, conn, r, logger)
	}
}

func main() {
	var opts struct {
		Host        string        `short:"H" long:"host" description:"Host to bind on" default:"127.0.0.1"`
		Port        string        `short:"p" long:"port" description:"Port to bind on" default:"2001"`
		Version     string        `short:"v" long:"version" description:"Firmware version reported on connect" default:"3.00"`
		Interval    time.Duration `short:"i" long:"interval" description:"Time between strokes" default:"2s"`
		Resistance  int           `short:"r" long:"resistance" description:"Resistance level" default:"9"`
		GlitchEvery int           `short:"g" long:"glitch" description:"Truncate every Nth frame (0 disables)" default:"0"`
		Seed        int64         `short:"s" long:"seed" description:"Random seed" default:"1"`
		Debug       bool          `short:"d" long:"debug" description:"Log every command"`
	}
	_, err := flags.Parse(&opts)
	if err != nil {
		return
	}

	level := hclog.Info
	if opts.Debug {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "gorow-dummy", Level: level})

	l, err := net.Listen("tcp", opts.Host+":"+opts.Port)
	if err != nil {
		logger.Error("could not listen", "error", err)
		os.Exit(1)
	}
	logger.Info("emulating rower", "address", "tcp://"+l.Addr().String(), "version", opts.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rower := emulator.Rower{
		Version:     opts.Version,
		DeviceType:  1,
		Resistance:  opts.Resistance,
		Interval:    opts.Interval,
		GlitchEvery: opts.GlitchEvery,
		Seed:        opts.Seed,
	}
	serve(ctx, l, rower, logger)
}
