// Package main is the entry point for shellcored, the local service
// supervisor and message fabric embedded in the desktop shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shellforge/shellcore/internal/bridge"
	"github.com/shellforge/shellcore/internal/config"
	"github.com/shellforge/shellcore/internal/core"
	"github.com/shellforge/shellcore/internal/fabric"
	"github.com/shellforge/shellcore/internal/health"
	"github.com/shellforge/shellcore/internal/ipcrouter"
	"github.com/shellforge/shellcore/internal/kernel"
	"github.com/shellforge/shellcore/internal/logging"
	"github.com/shellforge/shellcore/internal/metrics"
	"github.com/shellforge/shellcore/internal/process"
	"github.com/shellforge/shellcore/internal/supervisor"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults to the compiled-in deployment)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	wasmPath := flag.String("wasm", "", "path to the personality-language WASM module (bridge disabled if empty)")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shellcored %s\n", version)
		os.Exit(0)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := run(*configPath, *metricsAddr, *wasmPath, log); err != nil {
		log.Fatal().Err(err).Msg("shellcored exited")
	}
}

func run(configPath, metricsAddr, wasmPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	m := metrics.New()

	sup := supervisor.New(process.NewUnixExecutor(), log)
	sup.SetRestartGauge(m.ServiceRestarts)
	sup.SetOutputCapture(func(name string) (io.Writer, io.Writer) {
		svcCfg := cfg.FindService(name)
		if svcCfg == nil {
			return nil, nil
		}
		capture, err := logging.NewCapture(name, cfg, &svcCfg.Logging)
		if err != nil {
			log.Warn().Str("service", name).Err(err).Msg("output capture unavailable, discarding")
			return nil, nil
		}
		return capture.Stdout(), capture.Stderr()
	})

	for _, svc := range cfg.Services {
		if _, err := sup.Register(svc.ToRegistry()); err != nil {
			return fmt.Errorf("registering %s: %w", svc.Name, err)
		}
	}

	store := fabric.NewStore(log)
	defer store.Stop()
	msgFabric := fabric.NewFabric(store)

	monitor := health.NewMonitor(sup.Registry(), log, m.Registry)
	monitor.Start(context.Background())
	defer monitor.Stop()

	router := ipcrouter.New(&http.Client{Timeout: 35 * time.Second}, log)

	var runtimeBridge *bridge.Bridge
	if wasmPath != "" {
		wasmBytes, err := os.ReadFile(wasmPath)
		if err != nil {
			return fmt.Errorf("reading wasm module: %w", err)
		}
		runtimeBridge = bridge.New(wasmBytes, log)
		if err := runtimeBridge.Initialize(); err != nil {
			return fmt.Errorf("initializing bridge: %w", err)
		}
	}

	cmds := core.New(sup, monitor, router, msgFabric, runtimeBridge)
	if runtimeBridge != nil {
		if v, err := cmds.GetParserVersion(); err != nil {
			log.Warn().Err(err).Msg("personality parser version unavailable")
		} else {
			log.Info().Str("parser_version", v).Msg("personality runtime ready")
		}
	}

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: m.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	defer metricsSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.WatchBufferStats(ctx, store)

	if err := sup.StartAll(ctx); err != nil {
		log.Error().Err(err).Msg("one or more services failed to start")
	}

	sigCh := kernel.Default.Signals.Notify(syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer kernel.Default.Signals.Stop(sigCh)

	for sig := range sigCh {
		switch {
		case kernel.Default.Signals.IsReloadSignal(sig):
			log.Info().Msg("reload signal received; restart policy and ports are fixed at startup, nothing to reload")
		case kernel.Default.Signals.IsTermSignal(sig):
			log.Info().Msg("shutting down")
			if err := sup.StopAll(); err != nil {
				log.Error().Err(err).Msg("error stopping services")
			}
			return nil
		}
	}
	return nil
}
