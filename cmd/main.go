package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"

	"github.com/Dosada05/league-orchestrator/config"
	"github.com/Dosada05/league-orchestrator/db"
	"github.com/Dosada05/league-orchestrator/handlers"
	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
	"github.com/Dosada05/league-orchestrator/routes"
	"github.com/Dosada05/league-orchestrator/services"
	"github.com/Dosada05/league-orchestrator/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:  "league",
		Usage: "tournament league orchestrator",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the reconciliation scheduler",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:   "reconcile",
				Usage:  "run a single reconciliation pass and exit",
				Action: reconcileOnce,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// bootstrap загружает конфигурацию, подключается к базе и применяет миграции.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("provider_mode", cfg.Provider.Mode),
	)

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	if err := db.Migrate(ctx, dbConn, logger); err != nil {
		_ = dbConn.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, logger, dbConn, nil
}

func closeDB(logger *slog.Logger, dbConn *sql.DB) {
	if err := dbConn.Close(); err != nil {
		logger.Error("failed to close database connection", slog.Any("error", err))
		return
	}
	logger.Info("database connection closed")
}

type application struct {
	registry  services.RegistryService
	directory services.DirectoryService
	signup    services.SignupService
	reports   services.ReportService
	standings services.StandingsService
	seasons   services.SeasonService
	reconcile services.ReconcileService
}

func newProvider(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) provider.Provider {
	if cfg.Provider.Mode == config.ProviderModeMemory {
		logger.Warn("using in-memory bracket provider; state is lost on restart")
		return provider.NewMemoryProvider()
	}
	return provider.NewClient(provider.ClientConfig{
		BaseURL:       cfg.Provider.BaseURL,
		Username:      cfg.Provider.Username,
		APIKey:        cfg.Provider.APIKey,
		Timeout:       cfg.Provider.Timeout,
		RatePerSecond: cfg.Provider.RatePerSecond,
		MaxRetries:    cfg.Provider.MaxRetries,
		Logger:        logger,
		Metrics:       m,
	})
}

func newArchiver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.StandingsArchiver, error) {
	if !cfg.Archive.Enabled() {
		logger.Info("standings archive disabled")
		return nil, nil
	}
	uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.Archive.AccountID,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		BucketName:      cfg.Archive.BucketName,
		PublicBaseURL:   cfg.Archive.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init R2 uploader: %w", err)
	}
	logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", cfg.Archive.BucketName))
	return storage.NewStandingsArchiver(uploader, "standings"), nil
}

func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, dbConn *sql.DB, m *metrics.Metrics) (*application, error) {
	prov := newProvider(cfg, logger, m)

	archiver, err := newArchiver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Инициализация репозиториев
	instanceRepo := repositories.NewPostgresInstanceRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	waitlistRepo := repositories.NewPostgresWaitlistRepository(dbConn)
	reportRepo := repositories.NewPostgresReportRepository(dbConn)

	settings := services.LeagueSettings{
		DefaultCapacity: cfg.League.DefaultCapacity,
		DefaultBestOf:   cfg.League.DefaultBestOf,
		GameName:        cfg.League.GameName,
	}
	locks := services.NewInstanceLocks()

	// Инициализация сервисов
	registry := services.NewRegistryService(instanceRepo, participantRepo, reportRepo, prov, services.NewSQLTxRunner(dbConn), locks, settings, logger)
	directory := services.NewDirectoryService(waitlistRepo, participantRepo, instanceRepo, logger)
	standings := services.NewStandingsService(registry, participantRepo, prov, logger)

	app := &application{
		registry:  registry,
		directory: directory,
		signup:    services.NewSignupService(registry, m, logger),
		reports:   services.NewReportService(registry, directory, reportRepo, prov, locks, m, logger),
		standings: standings,
		seasons:   services.NewSeasonService(registry, standings, waitlistRepo, archiver, settings, m, logger),
		reconcile: services.NewReconcileService(reportRepo, registry, prov, locks, m, logger),
	}
	logger.Info("services initialized")
	return app, nil
}

func migrate(c *cli.Context) error {
	_, logger, dbConn, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer closeDB(logger, dbConn)
	logger.Info("migrations applied")
	return nil
}

func reconcileOnce(c *cli.Context) error {
	cfg, logger, dbConn, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer closeDB(logger, dbConn)

	app, err := wire(c.Context, cfg, logger, dbConn, metrics.New())
	if err != nil {
		return err
	}
	summary, err := app.reconcile.RunOnce(c.Context)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	logger.Info("reconciliation pass finished", slog.Any("summary", summary))
	return nil
}

func startReconcileScheduler(cfg *config.Config, logger *slog.Logger, reconcile services.ReconcileService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ReconcileInterval)
			defer cancel()
			summary, err := reconcile.RunOnce(ctx)
			if err != nil {
				logger.Error("scheduler: reconciliation pass failed", slog.Any("error", err))
				return
			}
			logger.Debug("scheduler: reconciliation pass finished", slog.Any("summary", summary))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	logger.Info("reconciliation scheduler started", slog.Duration("interval", cfg.ReconcileInterval))
	return sched, nil
}

func serve(c *cli.Context) error {
	cfg, logger, dbConn, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer closeDB(logger, dbConn)

	m := metrics.New()
	app, err := wire(c.Context, cfg, logger, dbConn, m)
	if err != nil {
		return err
	}

	sched, err := startReconcileScheduler(cfg, logger, app.reconcile)
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()

	// Настройка маршрутизатора
	router := chi.NewRouter()
	routes.SetupRoutes(
		router,
		routes.Options{
			Logger:      logger,
			Metrics:     m.Registry,
			CORSOrigins: cfg.CORSOrigins,
		},
		handlers.NewWaitlistHandler(app.directory),
		handlers.NewSignupHandler(app.signup),
		handlers.NewInstanceHandler(app.registry, app.directory),
		handlers.NewReportHandler(app.reports, app.standings),
		handlers.NewSeasonHandler(app.seasons, app.standings, app.reconcile),
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
	return nil
}
