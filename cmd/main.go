package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/remotefs/adapters"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/metrics"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/brettbedarf/remotefs/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Parse command line arguments
	var (
		configPath  string
		verbose     int
		backend     string
		metricsAddr string
		umount      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&backend, "backend", "", "Backend to mount (gdrive, sftp or s3). Overrides the config file.")
	flag.StringVar(&backend, "b", "", "--backend (shorthand)")
	flag.StringVar(&metricsAddr, "metrics", "", "Listen address for the prometheus endpoint, e.g. :9090")
	flag.StringVar(&metricsAddr, "m", "", "--metrics (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 0, "Log verbosity level between 1 (error) and 5 (trace). Defaults to the config file, else 3 (info).")
	flag.IntVar(&verbose, "v", 0, "--verbose (shorthand)")
	flag.Parse()

	override := &config.ConfigOverride{}
	if configPath != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(configPath); err != nil {
			util.InitializeLogger(config.DefaultLogLvl, config.DefaultLogFormat)
			util.GetLogger("main").Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
	}
	if verbose > 0 {
		override.LogLvl = util.Pointer(verbose)
	}
	if backend != "" {
		override.Backend = util.Pointer(backend)
	}
	if metricsAddr != "" {
		override.MetricsAddr = util.Pointer(metricsAddr)
	}
	cfg := config.NewConfig(override)

	util.InitializeLogger(cfg.LogLvl, cfg.LogFormat)
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Str("config", configPath).Str("backend", cfg.Backend).Str("mnt", mnt).Msg("remotefs initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	// Register all built-in backends
	adapters.RegisterBuiltins(adapters.Default)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	session, err := adapters.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to open backend session")
	}
	logger.Info().Str("backend", cfg.Backend).Str("account", session.AccountID()).Msg("Backend session opened")

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsSrv = serveMetrics(cfg.MetricsAddr, reg)
	}

	fs := server.New(cfg, session, m)
	if err := fs.Serve(mnt); err != nil {
		session.Close() // nolint:errcheck
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	<-ctx.Done()
	logger.Info().Msg("Received signal, unmounting filesystem")

	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	logger := util.GetLogger("main.Metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
