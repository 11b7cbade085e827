package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/jessevdk/go-flags"

	"gorow/internal/broadcast"
	"gorow/internal/clock"
	"gorow/internal/common"
	"gorow/internal/device"
	"gorow/internal/monitor"
	"gorow/internal/notify"
	"gorow/internal/session"
	"gorow/internal/settings"
)

type RequestHandler struct {
	Manager     *session.Manager
	Catalog     *common.Catalog
	Broadcaster *broadcast.Broadcaster
	Recorder    *Recorder
	ConfigPath  string
	Logger      hclog.Logger

	mu       sync.RWMutex
	settings *settings.Settings
}

func (this *RequestHandler) Settings() *settings.Settings {
	this.mu.RLock()
	defer this.mu.RUnlock()
	return this.settings
}

func (this *RequestHandler) setSettings(s *settings.Settings) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.settings = s
}

func NewRouter(rh *RequestHandler) *gin.Engine {
	router := gin.Default()
	router.SetTrustedProxies(nil)

	router.GET("/sessions", rh.GetSessions)
	router.GET("/sessions/active", rh.GetActiveSession)
	router.GET("/sessions/stats", rh.GetAllSessionsStats)
	router.POST("/sessions/start", rh.StartSession)
	router.POST("/sessions/stop", rh.StopSession)

	router.GET("/session/:id", rh.GetSession)
	router.GET("/session/:id/data", rh.GetSessionData)
	router.DELETE("/session/:id", rh.DeleteSession)

	router.GET("/config", rh.GetConfig)
	router.PUT("/config", rh.PutConfig)

	router.GET("/ws/live", rh.LiveStream)

	return router
}

// connectedResetter makes sure the link is up before resetting the device,
// so a rower plugged in after startup can still be used.
func connectedResetter(link *device.Link) session.ResetFunc {
	return func() error {
		if link.State() != device.Connected {
			if err := link.Open(); err != nil {
				return err
			}
			if err := link.Connect(); err != nil {
				return err
			}
		}
		return link.ResetSession()
	}
}

func main() {
	var opts struct {
		ConfigFile string `short:"c" long:"config" description:"Configuration file path"`
		Host       string `short:"H" long:"host" description:"Host to bind on" default:"127.0.0.1"`
		Port       string `short:"p" long:"port" description:"Port to bind on" default:"8080"`
	}
	_, err := flags.Parse(&opts)
	if err != nil {
		return
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "gorow-http"})
	path, err := settings.EnsureConfig(opts.ConfigFile, "")
	if err != nil {
		logger.Warn("using default configuration", "error", err)
		path = opts.ConfigFile
		if path == "" {
			path = settings.DefaultConfigPath
		}
	}
	cfg, err := settings.Load(path)
	if err != nil {
		logger.Error("could not load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel())

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		logger.Error("could not create data directory", "error", err)
		os.Exit(1)
	}

	c := clock.Real()
	link := device.NewLink(device.Config{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		Backoff:     cfg.Backoff(),
	}, nil, c, logger.Named("device"))
	if err := link.Open(); err != nil {
		logger.Warn("device not available, sessions cannot be started until it is", "error", err)
	} else if err := link.Connect(); err != nil {
		logger.Warn("device did not answer", "error", err)
	}
	defer link.Close()

	manager := session.NewManager(cfg.Data.Dir, c, logger.Named("session"))
	manager.SetResetter(connectedResetter(link))

	broadcaster := broadcast.New()
	defer broadcaster.Close()

	mon := monitor.New(monitor.Config{
		ReadTimeout:       cfg.ReadTimeout(),
		FlushInterval:     cfg.FlushInterval(),
		FlushAfterStrokes: cfg.Reconnect.FlushAfterStrokes,
	}, link, manager, c, logger.Named("monitor"))
	mon.Publisher = broadcaster

	catalog, err := common.OpenCatalog(cfg.CatalogPath())
	if err != nil {
		logger.Warn("could not open catalog (session summaries disabled)", "error", err)
	} else {
		defer catalog.Close()
		mon.Archiver = catalog
		if cfg.Notify.Endpoint != "" {
			pusher, err := notify.New(cfg.Notify.Endpoint)
			if err != nil {
				logger.Warn("could not connect to ZMQ server (notifications disabled)", "error", err)
			} else {
				defer pusher.Close()
				catalog.Notifier = pusher
			}
		}
	}

	rh := &RequestHandler{
		Manager:     manager,
		Catalog:     catalog,
		Broadcaster: broadcaster,
		Recorder:    &Recorder{Monitor: mon, Logger: logger.Named("recorder")},
		ConfigPath:  path,
		Logger:      logger.Named("http"),
		settings:    cfg,
	}
	srv := &http.Server{
		Addr:    opts.Host + ":" + opts.Port,
		Handler: NewRouter(rh),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()
	logger.Info("listening", "address", srv.Addr)

	<-ctx.Done()
	if _, err := rh.Recorder.Stop(); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		logger.Error("could not save active session", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
