package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"progress-ledger/handlers"
	"progress-ledger/middleware"
	"progress-ledger/models"
	"progress-ledger/services"
	"progress-ledger/utils"
	"progress-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", "error", err)
	}

	catalog, err := services.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load achievement catalog", "error", err)
	}
	if err := catalog.Sync(ctx, db); err != nil {
		logger.Fatal("failed to sync achievement catalog", "error", err)
	}
	logger.Info("achievement catalog loaded", "badges", len(catalog.Badges("")), "milestones", len(catalog.Milestones("")))

	var publisher services.Publisher = &services.LogPublisher{Log: logger}
	if cfg.RedisAddr != "" {
		rp, err := services.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			logger.Fatal("failed to connect to redis", "error", err)
		}
		publisher = rp
		logger.Info("publishing events to redis", "channel", cfg.RedisChannel)
	} else {
		logger.Warn("REDIS_ADDR not set, events are only logged")
	}
	defer publisher.Close()

	notifier := workers.NewNotificationWorker(publisher, cfg.NotifyBuffer, logger.With("worker", "notifications"))
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		notifier.Run(notifyCtx)
	}()

	retry := services.RetryPolicy{MaxAttempts: cfg.MaxWriteRetries, BaseDelay: services.DefaultRetryPolicy.BaseDelay}

	ledger := services.NewLedgerService(db)
	ledger.Retry = retry

	evaluator := services.NewAchievementEvaluator(db, catalog, logger.With("component", "evaluator"))
	dispatcher := services.NewDispatcher(db, evaluator, notifier, logger.With("component", "dispatcher"))
	dispatcher.Timeout = cfg.EvaluationTimeout

	recorder := services.NewQuizRecorder(db, dispatcher, logger.With("component", "recorder"))
	recorder.Retry = retry
	recorder.Timeout = cfg.SubmitTimeout
	recorder.AutoCreateUsers = cfg.AutoCreateUsers

	progressionService := services.NewProgressionService(db, ledger)
	badgeService := services.NewBadgeService(db, catalog, evaluator)

	var archiver *services.LedgerArchiver
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", "error", err)
		}
		archiver = services.NewLedgerArchiver(db, store, cfg.R2.Prefix, logger.With("component", "archiver"))
	} else {
		logger.Warn("R2 credentials not set, ledger archive disabled")
	}

	if cfg.UserSyncURL != "" {
		userSync := workers.NewUserSyncWorker(db, cfg.UserSyncURL, cfg.UserSyncPath, cfg.UserSyncToken,
			cfg.UserSyncInterval, logger.With("worker", "user-sync"))
		go userSync.Run(ctx)
	} else if !cfg.AutoCreateUsers {
		logger.Warn("AUTO_CREATE_USERS is off and USER_SYNC_URL is not set, unknown users cannot submit")
	}

	sched, err := services.StartScheduler(ctx, services.ScheduleConfig{
		EvalRetryInterval: cfg.EvalRetryInterval,
		SweepInterval:     cfg.SweepInterval,
		ArchiveInterval:   cfg.ArchiveInterval,
	}, dispatcher, archiver, logger.With("component", "scheduler"))
	if err != nil {
		logger.Fatal("failed to start scheduler", "error", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	app.Use(middleware.RequestLogger(logger.With("component", "http")))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, logger))

	handlers.SetupHealthRoutes(app)
	handlers.SetupProgressionRoutes(app, recorder, progressionService)
	handlers.SetupAchievementRoutes(app, badgeService, dispatcher)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", "error", err)
			stop()
		}
	}()
	logger.Info("server running", "port", cfg.Port, "origins", cfg.AllowedOrigins)

	<-ctx.Done()
	logger.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", "error", err)
	}
	stopNotify()
	<-notifierDone
}
