// Package app assembles and runs the clipshare server process.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/distsystem/clipshare/internal/core/service"
	"github.com/distsystem/clipshare/internal/infra/buildinfo"
	"github.com/distsystem/clipshare/internal/infra/confloader"
	"github.com/distsystem/clipshare/internal/infra/shutdown"
	"github.com/distsystem/clipshare/internal/infra/tlscert"
	"github.com/distsystem/clipshare/internal/server/config"
	"github.com/distsystem/clipshare/internal/server/discovery"
	"github.com/distsystem/clipshare/internal/server/httpserver"
	"github.com/distsystem/clipshare/internal/server/peerserver"
	"github.com/distsystem/clipshare/internal/storage"
	"github.com/distsystem/clipshare/internal/telemetry/logger"
	"github.com/distsystem/clipshare/internal/telemetry/metric"
)

// Options selects the configuration sources for Run.
type Options struct {
	// ConfigFile is an explicit configuration file. When empty the
	// default file is used if it exists.
	ConfigFile string

	// Flags are dotted-key overrides applied after file and environment.
	Flags map[string]any
}

// LoadConfig resolves the server configuration: defaults, then file,
// environment and flags.
func LoadConfig(opts Options) (*config.ServerConfig, *confloader.Loader, error) {
	cfg := config.Default()

	loaderOpts := []confloader.Option{confloader.WithFlags(opts.Flags)}
	if opts.ConfigFile != "" {
		loaderOpts = append(loaderOpts, confloader.WithConfigFile(opts.ConfigFile))
	} else {
		loaderOpts = append(loaderOpts, confloader.WithOptionalConfigFile(config.DefaultConfigFile()))
	}

	loader := confloader.NewLoader(loaderOpts...)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// Run starts every server component and blocks until ctx ends or the
// process receives SIGINT/SIGTERM, then shuts down in reverse order.
func Run(ctx context.Context, opts Options) error {
	cfg, loader, err := LoadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting clipshare server",
		"version", info.Version,
		"commit", info.Commit,
		"config", loader.FilePath())

	metrics := metric.NewRegistry()
	metric.NewCollector(info.Version, info.Commit, info.GoVersion).Register(metrics)

	shutdownHandler := shutdown.NewHandler(cfg.Shutdown.Timeout, slogLogger)

	// Hooks run in reverse: http, peers, advertiser, watchers, store.
	engine, store, err := initStorage(cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("store", func(context.Context) error {
		return engine.Close()
	})

	peers := peerserver.NewRegistry(slogLogger, metrics)
	broadcaster := peerserver.NewBroadcaster(peers, slogLogger, metrics)
	entrySvc := service.NewEntryService(store, broadcaster, service.WithLogger(slogLogger))

	tlsConfig, err := initTLS(cfg, slogLogger, shutdownHandler)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init tls: %w", err)
	}

	if err := watchConfig(loader, slogLogger, shutdownHandler); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	}

	peerHandler := peerserver.NewHandler(peers, peerserver.Config{
		QueueSize:    cfg.Peers.QueueSize,
		WriteTimeout: cfg.Peers.WriteTimeout,
		PingInterval: cfg.Peers.PingInterval,
	}, slogLogger)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		EntryService: entrySvc,
		Peers:        peers,
		PeerHandler:  peerHandler,
		Metrics:      metrics,
		Version:      info.Version,
		Logger:       slogLogger,
		RateLimit:    cfg.HTTP.RateLimit,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	httpServer := httpserver.New(httpserver.Config{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		Logger:            slogLogger,
	})
	if err := httpServer.Listen(); err != nil {
		shutdownHandler.Shutdown()
		return err
	}

	if cfg.Discovery.Enabled {
		adv, err := discovery.NewAdvertiser(discovery.Config{
			Port:        cfg.Discovery.Port,
			ServicePort: cfg.Server.Port,
			Protocol:    cfg.Server.Protocol(),
			Interval:    cfg.Discovery.Interval,
		}, discovery.WithLogger(slogLogger), discovery.WithMetrics(metrics))
		if err != nil {
			shutdownHandler.Shutdown()
			return fmt.Errorf("init discovery: %w", err)
		}
		if err := adv.Start(ctx); err != nil {
			shutdownHandler.Shutdown()
			return fmt.Errorf("start discovery: %w", err)
		}
		shutdownHandler.OnShutdown("advertiser", adv.Stop)
	}

	shutdownHandler.OnShutdown("peers", func(context.Context) error {
		n := peers.CloseAll("server shutting down")
		slogLogger.Info("peer channels closed", "count", n)
		return nil
	})
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve()
	}()

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case err := <-serveErr:
			if err != nil {
				log.Error("http server error", "error", err)
				cancel(fmt.Errorf("http server: %w", err))
			}
		case <-waitCtx.Done():
		}
	}()

	log.Info("server started, press Ctrl+C to stop", "addr", httpServer.Addr(), "scheme", cfg.Server.Protocol())
	err = shutdownHandler.Wait(waitCtx)

	if cause := context.Cause(waitCtx); cause != nil && !errors.Is(cause, context.Canceled) && ctx.Err() == nil {
		return errors.Join(cause, err)
	}
	if err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initLogger initializes the structured logger and installs it as the
// process default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (*storage.BadgerEngine, *storage.EntryStore, error) {
	kvCfg := storage.DefaultKVConfig(cfg.Server.DBPath)
	kvCfg.Badger.SyncWrites = cfg.Storage.SyncWrites
	kvCfg.Badger.GCInterval = cfg.Storage.GCInterval

	engine, err := storage.NewBadgerEngine(kvCfg, log)
	if err != nil {
		return nil, nil, err
	}
	engine.RegisterMetrics(metrics.Registerer())

	store, err := storage.NewEntryStore(engine, storage.StoreConfig{MaxEntries: cfg.Server.MaxEntries}, log)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	store.RegisterMetrics(metrics.Registerer())

	n, err := store.Count(context.Background())
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	log.Info("entry store opened", "path", cfg.Server.DBPath, "entries", n, "max_entries", store.MaxEntries())
	return engine, store, nil
}

// initTLS ensures a certificate exists and returns a config that follows
// changes to it. Nil means plain HTTP.
func initTLS(cfg *config.ServerConfig, log *slog.Logger, sh *shutdown.Handler) (*tls.Config, error) {
	if !cfg.Server.TLS {
		return nil, nil
	}

	if _, _, err := tlscert.EnsureCert(cfg.Server.CertDir, log, tlscert.Options{}); err != nil {
		return nil, err
	}

	w, err := tlscert.NewWatcher(cfg.Server.CertDir, tlscert.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	sh.OnShutdown("cert watcher", func(context.Context) error {
		w.Stop()
		return nil
	})
	return w.TLSConfig(), nil
}

// watchConfig re-applies log.level when the configuration file changes.
// Other settings take effect on restart.
func watchConfig(loader *confloader.Loader, log *slog.Logger, sh *shutdown.Handler) error {
	path := loader.FilePath()
	if path == "" {
		return nil
	}

	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return err
	}

	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if next.Log.Level == "" || next.Log.Level == logger.Level() {
			return
		}
		if _, err := logger.ParseLevel(next.Log.Level); err != nil {
			log.Warn("invalid log level in reloaded config", "level", next.Log.Level, "error", err)
			return
		}
		logger.SetLevel(next.Log.Level)
		log.Info("log level changed", "level", next.Log.Level)
	})
	w.StartAsync()

	sh.OnShutdown("config watcher", func(context.Context) error {
		return w.Stop()
	})
	return nil
}
