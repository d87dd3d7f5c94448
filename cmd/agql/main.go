// agql queries Source Engine A2S, Valve Master Server, and Source RCON
// endpoints, and exposes the results over a REST facade, MQTT telemetry,
// and an interactive CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/alert"
	"github.com/kongor-net/agql/internal/api"
	"github.com/kongor-net/agql/internal/cli"
	"github.com/kongor-net/agql/internal/client"
	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/health"
	"github.com/kongor-net/agql/internal/store"
	"github.com/kongor-net/agql/internal/telemetry"
	"github.com/kongor-net/agql/internal/util"
)

const (
	AppName    = "agql"
	AppVersion = "0.1.0"
	Banner     = `
   __ _  __ _ _ __ | |
  / _' |/ _' | '_ \| |
 | (_| | (_| | | | | |
  \__,_|\__, |_| |_|_|
        |___/   v%s
 Source A2S / Master / RCON / Steam Web API client
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting agql")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logCfg := util.LogConfig{
		Level:      cfg.GetApp().Logging.Level,
		Directory:  cfg.GetApp().Logging.Directory,
		MaxSizeMB:  cfg.GetApp().Logging.MaxSizeMB,
		MaxBackups: cfg.GetApp().Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	engine, err := client.New(client.Config{
		RequestTimeout:     time.Duration(cfg.GetCore().RequestTimeoutMS) * time.Millisecond,
		MasterPacingDelay:  time.Duration(cfg.GetCore().MasterPacingDelayMS) * time.Millisecond,
		PriorityAging:      time.Duration(cfg.GetCore().PriorityAgingMS) * time.Millisecond,
		MaxBulkConcurrency: cfg.GetCore().MaxBulkConcurrency,
		EventBus:           eventBus,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start query engine")
	}

	var auditLog *store.AuditLog
	if path := cfg.GetApp().Store.Path; path != "" {
		auditLog, err = store.Open(path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open audit store, RCON commands will not be logged")
		}
	}

	healthMgr := health.NewManager(cfg, eventBus, engine)

	var mqttHandler *telemetry.Handler
	if cfg.GetApp().MQTT.Enabled {
		mqttHandler, err = telemetry.NewHandler(cfg.GetApp().MQTT, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize mqtt telemetry, disabled")
		}
	}

	var alertNotifier *alert.Notifier
	if cfg.GetApp().Alert.Enabled {
		alertNotifier, err = alert.NewNotifier(cfg.GetApp().Alert)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize webhook alerting, disabled")
		} else {
			alertNotifier.Subscribe(eventBus)
		}
	}

	apiServer := api.NewServer(cfg.GetApp(), eventBus, engine, auditLog, healthMgr)
	cliHandler := cli.NewCLI(engine, eventBus)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.GetApp().API.ListenAddr).Msg("starting rest facade")
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("rest facade stopped with error")
			errCh <- fmt.Errorf("rest facade: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting health manager")
		healthMgr.Start(ctx)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting mqtt telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("mqtt telemetry stopped with error")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive cli")
		cliHandler.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.quit", func(_ context.Context, _ events.Event) error {
		select {
		case quitCh <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-quitCh:
		log.Info().Msg("shutdown requested via cli")
	}

	log.Info().Msg("initiating graceful shutdown")
	cancel()

	eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "main"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out, forcing exit")
	}

	if err := engine.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing query engine")
	}
	if auditLog != nil {
		auditLog.Close()
	}

	eventBus.Stop()
	log.Info().Msg("agql stopped")
}
