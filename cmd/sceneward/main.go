package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sceneward/sceneward/internal/api"
	"github.com/sceneward/sceneward/internal/api/ratelimit"
	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/database"
	"github.com/sceneward/sceneward/internal/failedsnatch"
	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/logger"
	"github.com/sceneward/sceneward/internal/metrics"
	"github.com/sceneward/sceneward/internal/namecache"
	"github.com/sceneward/sceneward/internal/provider/btn"
	"github.com/sceneward/sceneward/internal/sceneexceptions"
	"github.com/sceneward/sceneward/internal/scheduler"
	"github.com/sceneward/sceneward/internal/scheduler/tasks"
	"github.com/sceneward/sceneward/internal/searchqueue"
	"github.com/sceneward/sceneward/internal/startup"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting sceneward")

	err = run(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("sceneward exited with error")
	} else {
		log.Info().Msg("sceneward stopped")
	}
	_ = log.Close()

	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	dataDir := cfg.Database.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, "sceneward.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("data directory %s is in use by another process", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	dbManager, err := database.NewManager(cfg.Database.Path, cfg.Database.CachePath, log.Logger)
	if err != nil {
		return fmt.Errorf("initialize databases: %w", err)
	}
	defer dbManager.Close()

	log.Info().Msg("running database migrations")
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	historyService := history.NewService(dbManager.Main(), clock, log.Logger)
	tvService := tv.NewService(dbManager.Main(), log.Logger)
	exceptions := sceneexceptions.NewService(dbManager.Cache(), sceneexceptions.Config{
		URL:             cfg.SceneExceptions.URL,
		RefreshInterval: cfg.SceneExceptions.RefreshInterval,
		Timeout:         cfg.SceneExceptions.Timeout,
		RetryBackoff:    cfg.SceneExceptions.RetryBackoff,
	}, clock, log.Logger)

	store, closeStore, err := openNameStore(cfg, dbManager)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := namecache.New(store, exceptions, tvService, log.Logger,
		namecache.WithClock(clock),
		namecache.WithCooldown(cfg.NameCache.Cooldown),
		namecache.WithMetrics(m),
	)
	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("load name cache: %w", err)
	}
	defer func() {
		// the run context is already cancelled by the time this runs
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cache.Save(saveCtx); err != nil {
			log.Error().Err(err).Msg("failed to save name cache")
		}
	}()

	if cfg.SceneExceptions.CustomFile != "" {
		if _, err := exceptions.LoadCustomFile(ctx, cfg.SceneExceptions.CustomFile); err != nil {
			return err
		}
	}

	err = startup.WithRetry(ctx, "scene exceptions refresh", startup.DefaultRetryConfig(), exceptions.RefreshNow, log.Logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("scene exceptions unavailable, continuing with stored exceptions")
	}

	queue := searchqueue.New(m, log.Logger)
	retry := failedsnatch.NewRetryHandler(historyService, tvService, log.Logger)
	go queue.Run(ctx, retry.Handle)

	reconciler := failedsnatch.NewReconciler(historyService, tvService, queue, cfg, clock, m, log.Logger)

	var btnClient *btn.Client
	if cfg.BTN.APIKey != "" {
		btnClient = btn.New(btn.Config{
			APIKey: cfg.BTN.APIKey,
			URL:    cfg.BTN.URL,
		}, tvService, exceptions, cache, clock, log.Logger)
	} else {
		log.Info().Msg("BTN API key not set, provider search disabled")
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := tasks.RegisterFailedSnatchTask(sched, reconciler, &cfg.FailedSnatch); err != nil {
		return fmt.Errorf("register failed snatch task: %w", err)
	}
	if err := tasks.RegisterNameCacheRebuildTask(sched, cache, cfg.Schedule.NameCacheRebuild); err != nil {
		return fmt.Errorf("register name cache task: %w", err)
	}
	if err := tasks.RegisterHistoryCleanupTask(sched, historyService, cfg.Schedule.HistoryTrim); err != nil {
		return fmt.Errorf("register history cleanup task: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown error")
		}
	}()

	limiterStop := make(chan struct{})
	defer close(limiterStop)
	limiter := ratelimit.NewTriggerLimiter(clock)
	limiter.StartCleanup(5*time.Minute, limiterStop)

	server := api.NewServer(api.Deps{
		Reconciler: reconciler,
		NameCache:  cache,
		History:    historyService,
		Scheduler:  sched,
		Metrics:    m,
		BTN:        btnClient,
		Limiter:    limiter,
	}, log.Logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

// openNameStore returns the configured name cache store and its closer.
func openNameStore(cfg *config.Config, dbManager *database.Manager) (namecache.Store, func(), error) {
	if cfg.NameCache.Backend == "bolt" {
		bs, err := namecache.OpenBoltStore(cfg.NameCache.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open name cache store: %w", err)
		}
		return bs, func() { _ = bs.Close() }, nil
	}
	return namecache.NewSQLStore(dbManager.Cache()), func() {}, nil
}
