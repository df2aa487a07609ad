// Package main - точка входа фоновых процессов (Worker) движка Attendance Insight.
//
// Worker отвечает за периодические задачи:
// - Импорт свежих записей посещаемости из SIS-фида
// - Ночной пересчёт риска по всей когорте
// - Эскалация приоритетов просроченных мер вмешательства
//
// API-сервер отвечает на запросы по требованию; Worker держит записи и
// снапшоты свежими, чтобы кураторы утром видели актуальную картину риска,
// а просроченные меры не залёживались в низком приоритете.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edupulse/attendance-insight/config"

	// Application layer
	"github.com/edupulse/attendance-insight/internal/application/command"
	"github.com/edupulse/attendance-insight/internal/application/eventhandler"
	"github.com/edupulse/attendance-insight/internal/application/saga"
	"github.com/edupulse/attendance-insight/internal/application/session"

	// Domain layer
	"github.com/edupulse/attendance-insight/internal/domain/analysis"
	"github.com/edupulse/attendance-insight/internal/domain/shared"

	// Infrastructure layer
	"github.com/edupulse/attendance-insight/internal/infrastructure/external/sis"
	"github.com/edupulse/attendance-insight/internal/infrastructure/messaging"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/postgres"
	"github.com/edupulse/attendance-insight/internal/infrastructure/persistence/redis"
	"github.com/edupulse/attendance-insight/internal/infrastructure/scheduler"
	"github.com/edupulse/attendance-insight/internal/infrastructure/scheduler/jobs"
	"github.com/edupulse/attendance-insight/internal/infrastructure/service"

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

	log.Info("starting Attendance Insight Worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)
	log.Info("feature flags", "state", cfg.Features.String())

	// Worker без планировщика бесполезен: выходим сразу, а не висим молча
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled (SCHEDULER_ENABLED=false), nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")

	// При старте контейнеров база может подняться позже воркера
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
	// Worker может стартовать раньше API; миграции идемпотентны
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		reportCache analysis.ReportCache
		cohortCache analysis.CohortCache
		coordinator jobs.ScanCoordinator
	)

	redisEnabled := !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureRedisCaching, nil)
	if redisEnabled {
		log.Info("connecting to Redis...")
		redisCache, err = connectRedis(cfg, log)
		if err != nil {
			// Без Redis скан теряет только межинстансовую блокировку и кеш
			log.Warn("failed to connect to Redis, coordination and caching disabled", "error", err)
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
			coordinator = redis.NewScanCoordinator(redisCache)
			log.Info("Redis connection established")
		}
	} else {
		log.Info("Redis disabled", "by_config", cfg.Redis.Disabled)
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
	// 8. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER
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

	// Свип работает по сессиям, которые открыл ночной скан: эскалация
	// идёт по свежей картине риска, а обновлённые приоритеты пишутся в
	// Postgres и видны API при следующей загрузке сессии
	sweepSaga, err := saga.NewEscalationSweepSagaBuilder().
		WithSessions(sessions).
		WithActionRepo(ledgerRepo).
		WithEventBus(eventBus).
		WithLogger(log).
		WithConfig(saga.EscalationSweepConfig{
			MaxEscalationsPerRun: cfg.Scheduler.EscalationMaxPerRun,
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build escalation saga: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	// Критический риск, найденный сканом, оседает алертом — как и в API
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

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		Timezone:      cfg.App.Location,
		EnableMetrics: true,
	})
	sched.OnJobError(func(jobName string, err error) {
		log.Error("scheduled job failed", "job", jobName, "error", err)
	})

	// 10a. Ночной скан когорты (cron, в таймзоне школы)
	if cfg.Features.IsEnabled(config.FeatureCohortScan, nil) {
		cronExpr, err := scheduler.ParseCronExpression(cfg.Scheduler.ScanCron)
		if err != nil {
			return fmt.Errorf("invalid SCAN_CRON %q: %w", cfg.Scheduler.ScanCron, err)
		}

		scanJob := jobs.NewScanCohortJob(
			recordRepo, analyzeCmd, snapshotRepo, cohortCache, coordinator, eventBus, log,
			jobs.ScanCohortConfig{
				LookbackDays:   cfg.Scheduler.LookbackDays,
				Concurrency:    cfg.Scheduler.Concurrency,
				RetryAttempts:  cfg.Scheduler.RetryAttempts,
				MaxFailureRate: cfg.Scheduler.MaxFailureRate,
				Timeout:        cfg.Scheduler.JobTimeout,
			},
		)
		if err := sched.Register(scanJob, cronExpr); err != nil {
			return fmt.Errorf("failed to register scan job: %w", err)
		}
	} else {
		log.Info("cohort scan disabled by feature flag")
	}

	// 10b. Импорт записей из SIS (интервал с джиттером)
	syncJobName := ""
	syncEnabled := cfg.SIS.Enabled() && cfg.Features.IsEnabled(config.FeatureSISSync, nil)
	if syncEnabled {
		sisConfig := sis.DefaultClientConfig(cfg.SIS.BaseURL)
		sisConfig.APIKey = cfg.SIS.APIKey
		sisConfig.Timeout = cfg.SIS.Timeout
		sisConfig.MaxRetries = cfg.SIS.MaxRetries
		sisConfig.RetryBaseDelay = cfg.SIS.RetryBaseDelay
		sisConfig.RateLimiter.RequestsPerSecond = cfg.SIS.RequestsPerSecond
		sisConfig.RateLimiter.BurstSize = cfg.SIS.BurstSize
		sisConfig.Logger = log
		sisConfig.Debug = cfg.App.Debug
		sisClient := sis.NewClient(sisConfig)

		// Порог повторного импорта — полуинтервал: плановый прогон не
		// попадает под собственный троттлинг
		syncHandlerCfg := command.DefaultSyncRecordsHandlerConfig()
		syncHandlerCfg.MinSyncInterval = cfg.Scheduler.SyncInterval / 2
		syncHandlerCfg.Concurrency = cfg.Scheduler.Concurrency

		syncCmd, err := command.NewSyncRecordsHandler(
			service.NewSISRecordSource(sisClient, log),
			recordRepo, reportCache, eventBus, log, syncHandlerCfg,
		)
		if err != nil {
			return fmt.Errorf("failed to build sync handler: %w", err)
		}

		syncJob := jobs.NewSyncRecordsJob(syncCmd, log, jobs.SyncRecordsJobConfig{
			Timeout:        cfg.Scheduler.SyncJobTimeout,
			MaxFailureRate: cfg.Scheduler.SyncMaxFailureRate,
		})
		schedule := scheduler.NewJitteredIntervalSchedule(cfg.Scheduler.SyncInterval, cfg.Scheduler.SyncJitter)
		if err := sched.Register(syncJob, schedule); err != nil {
			return fmt.Errorf("failed to register sync job: %w", err)
		}
		syncJobName = syncJob.Name()
	} else {
		log.Info("SIS record sync disabled",
			"feed_configured", cfg.SIS.Enabled(),
			"feature_enabled", cfg.Features.IsEnabled(config.FeatureSISSync, nil),
		)
	}

	// 10c. Эскалация просроченных мер (интервал)
	escalateJob := jobs.NewEscalateActionsJob(sweepSaga, log, jobs.EscalateActionsConfig{
		Timeout: cfg.Scheduler.EscalationJobTimeout,
	})
	if err := sched.Register(escalateJob, scheduler.NewIntervalSchedule(cfg.Scheduler.EscalationInterval)); err != nil {
		return fmt.Errorf("failed to register escalation job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Свежий деплой не ждёт первого тика интервала: импорт стартует сразу
	if syncJobName != "" {
		go func() {
			if _, err := sched.RunNow(ctx, syncJobName); err != nil {
				log.Warn("initial record sync failed", "error", err)
			}
		}()
	}

	registered := sched.ListJobs()
	jobNames := make([]string, 0, len(registered))
	for _, info := range registered {
		jobNames = append(jobNames, info.Name)
	}
	log.Info("Attendance Insight Worker is running",
		"jobs", jobNames,
		"timezone", cfg.App.Timezone,
	)

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	// Stop дожидается завершения текущих задач; у каждой задачи свой
	// таймаут заметно короче cfg.App.ShutdownTimeout
	stopped := make(chan struct{})
	go func() {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop returned error", "error", err)
		}
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("scheduler did not stop in time, abandoning running jobs")
	}

	// Шина и база закроются через defer

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// engineConfig собирает доменную конфигурацию анализа из окружения.
// Дубликат серверного хелпера: у каждого бинаря свой package main.
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
