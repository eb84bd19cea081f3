package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/internal/cache"
	"github.com/carbonloop/edgesentry/internal/config"
	"github.com/carbonloop/edgesentry/internal/engine"
	"github.com/carbonloop/edgesentry/internal/event"
	"github.com/carbonloop/edgesentry/internal/mqtt"
	"github.com/carbonloop/edgesentry/internal/registry"
	"github.com/carbonloop/edgesentry/internal/sensor"
	"github.com/carbonloop/edgesentry/internal/store"
	"github.com/carbonloop/edgesentry/internal/telemetry"
	"github.com/carbonloop/edgesentry/internal/version"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("EdgeSentry node starting", zap.String("version", version.Version))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open the local database.
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "edgesentry.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.CheckVersion(ctx, version.Version); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Shared services.
	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	// Register all modules (compile-time composition). Concrete handles
	// are kept for the adapter wiring below.
	cacheMod := cache.New()
	engineMod := engine.New()
	mqttMod := mqtt.New()
	sensorMod := sensor.New()
	telemetryMod := telemetry.New()

	modules := []plugin.Plugin{cacheMod, engineMod, mqttMod, sensorMod, telemetryMod}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config: cfg.Sub("modules." + name),
			Logger: logger.Named(name),
			Store:  db,
			Bus:    bus,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	// Adapter wiring lives in the composition root so the modules stay
	// decoupled from each other.
	engineMod.SetCache(cacheMod.Store())
	if !reg.IsSkipped("mqtt") {
		engineMod.SetPublisher(mqttMod)
		logger.Info("uplink wired", zap.String("component", "engine"))
	}
	if !reg.IsSkipped("sensor") {
		engineMod.SetSamplingController(sensorMod)
		logger.Info("sampling controller wired", zap.String("component", "engine"))
	}
	telemetryMod.SetReportSource(engineMod)
	telemetryMod.SetHealthSource(&registryHealth{reg: reg})

	// Wire declared bus subscriptions for every active module.
	for _, m := range reg.All() {
		sub, ok := m.(plugin.EventSubscriber)
		if !ok {
			continue
		}
		for _, s := range sub.Subscriptions() {
			bus.Subscribe(s.Topic, s.Handler)
		}
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	logger.Info("EdgeSentry node ready",
		zap.String("metrics", viperCfg.GetString("modules.telemetry.listen")),
	)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	logger.Info("EdgeSentry node stopped")
}

// registryHealth adapts the module registry to telemetry.HealthSource.
// Lives in the composition root to avoid coupling telemetry -> registry.
type registryHealth struct {
	reg *registry.Registry
}

func (h *registryHealth) Health(ctx context.Context) map[string]plugin.HealthStatus {
	out := make(map[string]plugin.HealthStatus)
	for _, m := range h.reg.All() {
		hc, ok := m.(plugin.HealthChecker)
		if !ok {
			continue
		}
		out[m.Info().Name] = hc.Health(ctx)
	}
	return out
}
