package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-mdns/discovery"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/config"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-browse"

	defaultShutdownTimeout = 10 * time.Second
)

// transportOpener overrides the multicast socket. Nil opens a real one.
var transportOpener discovery.TransportOpener

// Application holds the browse session and its configuration.
type Application struct {
	config  *config.AppConfig
	session *discovery.Session
	logger  log.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":        appName,
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"service":    cfg.Browse.Service,
		"family":     cfg.Transport.Family,
		"interface":  cfg.Transport.Interface,
		"cache_size": cfg.Cache.Size,
		"filter":     cfg.Filter.File,
	}, "Starting rr-browse")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Browse failed")
	}

	log.Info(nil, "rr-browse stopped gracefully")
}

// buildApplication loads the ignore list and wires a session from cfg.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	ignore, err := discovery.LoadIgnoreList(cfg.Filter.File, cfg.Filter.CacheSize, cfg.Filter.FPRate, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore list: %w", err)
	}

	session, err := discovery.New(discovery.Options{
		CacheSize:          cfg.Cache.Size,
		Opener:             transportOpener,
		Family:             cfg.Transport.Family,
		Interface:          cfg.Transport.Interface,
		Logger:             logger,
		Filter:             ignore,
		QueryInitial:       cfg.Query.Initial,
		QueryMax:           cfg.Query.Max,
		ResolveTimeout:     cfg.Resolve.Timeout,
		ResolveRetries:     resolveRetries(cfg.Resolve.Retries),
		SweepInterval:      cfg.Cache.Sweep,
		PollInterval:       cfg.Transport.Poll,
		DisableAutoResolve: !cfg.Browse.Resolve,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	app := &Application{config: cfg, session: session, logger: logger}
	session.OnServiceFound(app.found)
	session.OnServiceLost(app.lost)
	session.OnServiceUpdated(app.updated)
	return app, nil
}

// resolveRetries maps a configured zero to the session's "no retries" value.
func resolveRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func printerFields(h discovery.ServiceHandle) map[string]any {
	p := discovery.ParsePrinterInfo(h)
	fields := map[string]any{
		"instance": h.Instance,
		"host":     h.Host,
		"port":     h.Port,
		"model":    p.Model,
		"priority": p.Priority,
	}
	if len(h.Addrs) > 0 {
		fields["addrs"] = h.Addrs
	}
	if uri := discovery.PrinterURI(h); uri != "" {
		fields["uri"] = uri
	}
	if p.Note != "" {
		fields["location"] = p.Note
	}
	return fields
}

func (app *Application) found(h discovery.ServiceHandle) {
	app.logger.Info(printerFields(h), "printer found")
}

func (app *Application) lost(h discovery.ServiceHandle) {
	app.logger.Info(map[string]any{"instance": h.Instance, "host": h.Host}, "printer lost")
}

func (app *Application) updated(h discovery.ServiceHandle) {
	app.logger.Debug(printerFields(h), "printer updated")
}

// Run browses until ctx is cancelled or the session reports an error.
func (app *Application) Run(ctx context.Context) error {
	if err := app.session.Start(ctx, app.config.Browse.Service); err != nil {
		return fmt.Errorf("failed to start browse: %w", err)
	}

	log.Info(map[string]any{
		"session": app.session.ID().String(),
		"service": app.session.Service(),
	}, "Browse started")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(nil, "Shutdown initiated")
	case err, ok := <-app.session.Errors():
		if ok && err != nil {
			runErr = fmt.Errorf("browse failed: %w", err)
		}
	}

	stats := app.session.Stats()
	log.Info(map[string]any{
		"found":   stats.Found,
		"queries": stats.Engine.QueriesSent,
		"packets": stats.Engine.PacketsReceived,
	}, "Browse summary")

	done := make(chan error, 1)
	go func() { done <- app.session.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Error during session shutdown")
		}
		return runErr
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
