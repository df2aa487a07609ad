// Package main - точка входа HTTP API движка Attendance Insight.
//
// Сервер обслуживает REST API анализа посещаемости: приём сырых записей,
// импорт из SIS-фида, анализ студента по требованию, отчёты и планы
// вмешательств, сводку риска по когорте и ленту критических алертов.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика (посещаемость, анализ риска, меры)
// - Application: оркестрация use cases (Commands/Queries/Event Handlers)
// - Infrastructure: Postgres, Redis, событийная шина
// - Interface: HTTP handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/edupulse/attendance-insight/config"

	// Application layer
	"github.com/edupulse/attendance-insight/internal/application/command"
	"github.com/edupulse/attendance-insight/internal/application/eventhandler"
	"github.com/edupulse/attendance-insight/internal/application/query"
	"github.com/edupulse/attendance-insight/internal/application/session"

	// Domain layer
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"

	// Infrastructure layer
	"github.com/edupulse/attendance-insight/internal/infrastructure/external/sis"
	"github.com/edupulse/attendance-insight/internal/infrastructure/messaging"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/postgres"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/projections"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/redis"
	"github.com/edupulse/attendance-insight/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/edupulse/attendance-insight/internal/interface/http"
	"github.com/edupulse/attendance-insight/internal/interface/http/handlers"

	// Packages
	"github.com/edupulse/attendance-insight/pkg/circuitbreaker"
	"github.com/edupulse/attendance-insight/pkg/logger"
	"github.com/edupulse/attendance-insight/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	// .env удобен в разработке; в проде переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	slog.SetDefault(log)

	log.Info("starting Attendance Insight API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)
	log.Info("feature flags", "state", cfg.Features.String())

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")

	// При старте контейнеров база может подняться позже сервера
	var dbConn *postgres.Connection
	err = retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		conn, connErr := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if connErr != nil {
			return retry.Retryable(connErr)
		}
		dbConn = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
	} else {
		appliedCount := 0
		for _, m := range status {
			if m.IsApplied {
				appliedCount++
			}
		}
		log.Info("migrations completed", "applied", appliedCount, "total", len(status))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		reportCache analysis.ReportCache
		cohortCache analysis.CohortCache
	)

	redisEnabled := !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureRedisCaching, nil)
	if redisEnabled {
		log.Info("connecting to Redis...")
		redisCache, err = connectRedis(cfg, log)
		if err != nil {
			// Кеш необязателен: отчёты пересчитываются из Postgres
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer func() {
				log.Info("closing Redis connection...")
				if err := redisCache.Close(); err != nil {
					log.Warn("failed to close Redis connection", "error", err)
				}
			}()

			breaker := redis.NewCacheBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("cache circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			})
			reportCache = redis.NewStudentReportCache(redisCache, breaker)
			cohortCache = redis.NewCohortSummaryCache(redisCache, breaker)
			log.Info("Redis connection established")
		}
	} else {
		log.Info("Redis caching disabled", "by_config", cfg.Redis.Disabled)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ СОБЫТИЙНОЙ ШИНЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		if err := eventBus.Close(); err != nil {
			log.Warn("failed to close event bus", "error", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. СЕССИИ АНАЛИЗА И РЕПОЗИТОРИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	sessions := session.NewManager(cfg.Session.TTL, log)
	sessions.StartCleanup(ctx, cfg.Session.TTL/2)

	recordRepo := postgres.NewRecordRepository(dbConn)
	snapshotRepo := postgres.NewSnapshotRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")
	engine := engineConfig(cfg)

	analyzeCmd, err := command.NewAnalyzeStudentHandler(
		recordRepo, sessions, snapshotRepo, ledgerRepo, reportCache, eventBus, log,
		command.AnalyzeStudentHandlerConfig{
			Engine:          engine,
			ReportCacheTTL:  cfg.Engine.ReportCacheTTL,
			DisableAutoSeed: !cfg.Features.IsEnabled(config.FeatureAutoSeeding, nil),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to build analyze handler: %w", err)
	}

	importCmd := command.NewImportRecordsHandler(recordRepo, reportCache, log)
	addActionCmd := command.NewAddActionHandler(sessions, ledgerRepo, log)
	advanceActionCmd := command.NewAdvanceActionHandler(sessions, ledgerRepo, eventBus, log)
	appendNoteCmd := command.NewAppendNoteHandler(sessions, ledgerRepo, log)
	acknowledgeCmd := command.NewAcknowledgeAlertHandler(snapshotRepo, log)

	reportQuery, err := query.NewGetStudentReportHandler(recordRepo, sessions, reportCache, log, engine)
	if err != nil {
		return fmt.Errorf("failed to build report handler: %w", err)
	}
	dailyRatesQuery := query.NewGetDailyRatesHandler(recordRepo, log)
	actionSummaryQuery := query.NewGetActionSummaryHandler(sessions)
	listActionsQuery := query.NewListActionsHandler(sessions, ledgerRepo)
	listAlertsQuery := query.NewListAlertsHandler(snapshotRepo)

	// Сводка по когорте отключаема флагом: без неё маршруты отвечают 501
	var (
		cohortQuery   *query.GetCohortRiskHandler
		overviewQuery *query.GetCohortOverviewHandler
		cohortView    *projections.CohortRiskView
	)
	if cfg.Features.IsEnabled(config.FeatureCohortEndpoint, nil) {
		cohortQuery = query.NewGetCohortRiskHandler(snapshotRepo, cohortCache, log)
		cohortView = projections.NewCohortRiskView()
		overviewQuery = query.NewGetCohortOverviewHandler(cohortView, log)
	} else {
		log.Info("cohort endpoint disabled by feature flag")
	}

	// Ручной sync студента доступен только при настроенном SIS-фиде
	var syncCmd *command.SyncRecordsHandler
	if cfg.SIS.Enabled() && cfg.Features.IsEnabled(config.FeatureSISSync, nil) {
		sisConfig := sis.DefaultClientConfig(cfg.SIS.BaseURL)
		sisConfig.APIKey = cfg.SIS.APIKey
		sisConfig.Timeout = cfg.SIS.Timeout
		sisConfig.MaxRetries = cfg.SIS.MaxRetries
		sisConfig.RetryBaseDelay = cfg.SIS.RetryBaseDelay
		sisConfig.RateLimiter.RequestsPerSecond = cfg.SIS.RequestsPerSecond
		sisConfig.RateLimiter.BurstSize = cfg.SIS.BurstSize
		sisConfig.Logger = log
		sisConfig.Debug = cfg.App.Debug

		syncCmd, err = command.NewSyncRecordsHandler(
			service.NewSISRecordSource(sis.NewClient(sisConfig), log),
			recordRepo, reportCache, eventBus, log,
			command.DefaultSyncRecordsHandlerConfig(),
		)
		if err != nil {
			return fmt.Errorf("failed to build sync handler: %w", err)
		}
	} else {
		log.Info("SIS record sync disabled",
			"feed_configured", cfg.SIS.Enabled(),
			"feature_enabled", cfg.Features.IsEnabled(config.FeatureSISSync, nil),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Features.IsEnabled(config.FeatureCriticalAlerts, nil) {
		alertHandler := eventhandler.NewRiskAlertHandler(
			snapshotRepo, cohortCache, log, eventhandler.DefaultRiskAlertConfig(),
		)
		if err := eventBus.Subscribe(shared.EventRiskLevelCritical, alertHandler.Handle); err != nil {
			return fmt.Errorf("failed to subscribe risk alert handler: %w", err)
		}
		log.Info("event handlers registered", "critical_alerts", true)
	} else {
		log.Info("critical alert handler disabled by feature flag")
	}

	if cohortView != nil {
		projectionUpdater := eventhandler.NewProjectionUpdater(
			cohortView, snapshotRepo, log, eventhandler.DefaultProjectionUpdaterConfig(),
		)
		for _, eventType := range projectionUpdater.EventTypes() {
			if err := eventBus.Subscribe(eventType, projectionUpdater.Handle); err != nil {
				return fmt.Errorf("failed to subscribe projection updater: %w", err)
			}
		}
		// Сидируем проекцию последними снапшотами, чтобы обзор когорты
		// не пустовал до первого анализа. Пустая база — не ошибка старта.
		if err := projectionUpdater.Rebuild(ctx); err != nil {
			log.Warn("failed to seed cohort projection", "error", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxImportBytes = cfg.HTTP.MaxImportBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeys = cfg.HTTP.APIKeys

	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	httpDeps := httpserver.Dependencies{
		GetStudentReportHandler:  reportQuery,
		GetDailyRatesHandler:     dailyRatesQuery,
		GetCohortRiskHandler:     cohortQuery,
		GetCohortOverviewHandler: overviewQuery,
		GetActionSummaryHandler:  actionSummaryQuery,
		ListActionsHandler:       listActionsQuery,
		ListAlertsHandler:        listAlertsQuery,

		AnalyzeStudentHandler:   analyzeCmd,
		ImportRecordsHandler:    importCmd,
		SyncRecordsHandler:      syncCmd,
		AddActionHandler:        addActionCmd,
		AdvanceActionHandler:    advanceActionCmd,
		AppendNoteHandler:       appendNoteCmd,
		AcknowledgeAlertHandler: acknowledgeCmd,

		Logger:        log,
		HealthChecker: healthChecker,
		MetricsSources: []httpserver.MetricsSource{
			{Name: "event_bus", Collect: func() interface{} { return eventBus.Metrics().Snapshot() }},
			{Name: "sessions", Collect: func() interface{} { return sessions.Len() }},
		},
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("Attendance Insight API is running", "address", httpServer.Address())

	// Ожидаем сигнал завершения или ошибку сервера
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	// Шина и база закроются через defer

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// engineConfig собирает доменную конфигурацию анализа из окружения.
// Пороговые дни due-дат остаются дефолтными: их не выносили в env.
func engineConfig(cfg *config.Config) analysis.Config {
	engine := analysis.DefaultConfig()

	engine.Bands.CriticalBelow = cfg.Engine.RiskCriticalBelow
	engine.Bands.HighBelow = cfg.Engine.RiskHighBelow
	engine.Bands.MediumBelow = cfg.Engine.RiskMediumBelow

	engine.Trend.WindowDays = cfg.Engine.TrendWindowDays
	engine.Trend.Deadband = cfg.Engine.TrendDeadband

	engine.Rules.WarningBelowPercent = cfg.Engine.WarningBelowPercent
	engine.Rules.CheckinBelowPercent = cfg.Engine.CheckinBelowPercent
	engine.Rules.AbsenceAlertCount = cfg.Engine.AbsenceAlertCount
	engine.Rules.LateAlertCount = cfg.Engine.LateAlertCount
	engine.Rules.LateEscalationCount = cfg.Engine.LateEscalationCount

	return engine
}

// connectRedis строит конфигурацию Redis из URL или отдельных полей.
func connectRedis(cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()

	if cfg.Redis.URL != "" {
		parsed, err := redis.ConfigFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		redisCfg = parsed
	} else {
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
	}

	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	log.Debug("redis config resolved", "addr", redisCfg.Addr(), "db", redisCfg.DB)
	return redis.NewCache(redisCfg)
}
