package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiftoffer_backend/database"
	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/channels"
	"shiftoffer_backend/internal/config"
	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/handlers"
	"shiftoffer_backend/internal/logger"
	"shiftoffer_backend/internal/middleware"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/routes"
	"shiftoffer_backend/internal/services"
	"shiftoffer_backend/internal/storage"
	"shiftoffer_backend/internal/templates"
	"shiftoffer_backend/internal/validator"
	"shiftoffer_backend/internal/workers"
	"shiftoffer_backend/pkg/apperrors"
	"shiftoffer_backend/ws"
)

const shutdownTimeout = 15 * time.Second

// App - собранное приложение со всеми зависимостями
type App struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	bus    *events.Bus
	router *gin.Engine

	services  *services.ServiceContainer
	scheduler *workers.WindowScheduler
	hub       *ws.Hub
	forwarder *events.AMQPForwarder

	retryWorker   *workers.NotificationRetryWorker
	archiveWorker *workers.AuditArchiveWorker
}

// Run - точка входа cmd/web
func Run() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Server.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	if err := a.Serve(ctx); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}

// New подключает хранилища и собирает сервисы
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	apperrors.SetLogger(log.Named("http"), cfg.Server.Env == "development")

	log.Info("Connecting to database...", zap.String("driver", cfg.Database.Driver))
	db, err := database.Open(database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLife:  cfg.Database.ConnMaxLife,
		Debug:        cfg.Server.Env == "development",
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.Driver, log.Named("migrate")); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("Database connected")

	rdb, err := cache.NewClient(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

	a := &App{cfg: cfg, log: log, db: db, redis: rdb}
	if err := a.build(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg, log := a.cfg, a.log
	prefix := cfg.Redis.KeyPrefix

	// --- Репозитории ---
	openShiftRepo := repositories.NewOpenShiftRepository(a.db)
	queueRepo := repositories.NewQueueEntryRepository(a.db)
	userRepo := repositories.NewUserRepository(a.db)
	notificationRepo := repositories.NewNotificationRepository(a.db)
	preferenceRepo := repositories.NewPreferenceRepository(a.db)
	auditRepo := repositories.NewAuditRepository(a.db)

	var engine repositories.QueueEngine
	switch cfg.Queue.Engine {
	case "procedures":
		engine = repositories.NewProcedureQueueEngine(a.db, cfg.Queue.WindowSize)
	default:
		engine = repositories.NewGormQueueEngine(a.db, cfg.Queue.WindowSize, nil)
	}

	// --- Redis ---
	broadcaster := cache.NewBroadcaster(a.redis, prefix)
	presenceStore := cache.NewPresenceStore(a.redis, prefix)
	pendingStore := cache.NewPendingStore(a.redis, prefix)
	locks := cache.NewLockService(a.redis, prefix)
	limiter := cache.NewRateLimiter(a.redis, prefix)
	metricsCache := cache.NewJSONCache(a.redis, prefix, "metrics", cfg.Metrics.CacheTTL)

	// --- Каналы доставки ---
	catalog, err := templates.Load(cfg.Notification.TemplatesFile)
	if err != nil {
		return err
	}
	presenceService := services.NewPresenceService(presenceStore, pendingStore, broadcaster, userRepo, log)
	senders, err := a.buildSenders(presenceService, broadcaster, pendingStore)
	if err != nil {
		return err
	}

	// --- Сервисы ---
	a.bus = events.NewBus(log.Named("events"))
	a.scheduler = workers.NewWindowScheduler(log)

	notificationService := services.NewNotificationService(
		notificationRepo, preferenceRepo, userRepo, queueRepo, catalog, senders,
		services.NotificationConfig{
			MaxRetries:     cfg.Notification.MaxRetries,
			RetryBatchSize: cfg.Notification.RetryBatchSize,
			RetryInterval:  cfg.Notification.RetryInterval,
		},
		log,
	)
	queueService := services.NewQueueService(
		openShiftRepo, queueRepo, userRepo, engine, notificationService, locks, a.scheduler, a.bus,
		services.QueueConfig{
			WindowDuration: cfg.Queue.WindowDuration(),
			MaxQueueSize:   cfg.Queue.MaxQueueSize,
			DefaultExpiry:  cfg.Queue.DefaultExpiry,
			LockTTL:        cfg.Queue.LockTTL,
			LockRetries:    cfg.Queue.LockRetries,
			LockRetryDelay: cfg.Queue.LockRetryDelay,
		},
		log, nil,
	)
	auditService := services.NewAuditService(auditRepo, openShiftRepo, queueRepo, metricsCache, log)

	a.services = &services.ServiceContainer{
		QueueService:        queueService,
		NotificationService: notificationService,
		PresenceService:     presenceService,
		AuditService:        auditService,
		ReportService:       services.NewReportService(queueService, auditService, log),
	}
	a.scheduler.SetHandler(queueService.HandleWindowTimer)

	// --- Подписчики шины ---
	a.bus.Subscribe("audit", 256, auditService.HandleEvent)
	a.bus.Subscribe("notifications", 256, notificationService.HandleEvent)
	if cfg.Events.AMQPURL != "" {
		fwd, err := events.DialAMQPForwarder(cfg.Events.AMQPURL, cfg.Events.Exchange, log.Named("amqp"))
		if err != nil {
			// внешняя шина необязательна
			log.Warn("AMQP forwarding disabled", zap.Error(err))
		} else {
			a.forwarder = fwd
			a.bus.Subscribe("amqp", 1024, fwd.Handle)
			log.Info("AMQP forwarding enabled", zap.String("exchange", cfg.Events.Exchange))
		}
	}

	// --- Воркеры ---
	a.retryWorker = workers.NewNotificationRetryWorker(notificationService, cfg.Notification.RetryInterval, log)
	if cfg.AuditArchive.Enabled {
		sc := cfg.AuditArchive.Storage
		store, err := storage.NewStorage(storage.Config{
			Type:      sc.Type,
			BasePath:  sc.BasePath,
			Bucket:    sc.Bucket,
			Region:    sc.Region,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Endpoint:  sc.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("audit archive storage: %w", err)
		}
		a.archiveWorker = workers.NewAuditArchiveWorker(auditRepo, store, cfg.AuditArchive.Interval, log)
		log.Info("Audit archive enabled", zap.String("storage", sc.Type))
	}

	// --- HTTP ---
	a.hub = ws.NewHub(broadcaster, presenceService, log)
	wsHandler := ws.NewWebSocketHandler(a.hub, userRepo, originsOrNil(cfg.Server.CORSOrigins), log)

	base := handlers.NewBaseHandler(validator.New())
	appHandlers := &handlers.AppHandlers{
		OpenShiftHandler:    handlers.NewOpenShiftHandler(base, queueService, auditService, a.services.ReportService),
		NotificationHandler: handlers.NewNotificationHandler(base, notificationService),
	}
	respondLimit := middleware.RateLimitMiddleware(limiter, "respond_offer",
		cfg.RateLimit.RespondLimit, cfg.RateLimit.RespondWindow, log.Named("ratelimit"))

	a.router = initializeGinRouter(cfg, log)
	routes.RegisterRoutes(a.router, appHandlers, wsHandler, respondLimit)
	return nil
}

func (a *App) buildSenders(presence channels.PresenceChecker, realtime channels.Realtime, pending channels.PendingQueue) ([]channels.Sender, error) {
	cfg, log := a.cfg, a.log

	senders := []channels.Sender{
		channels.NewInAppSender(presence, realtime, pending),
		channels.NewPushSender(channels.PushConfig{
			VAPIDPublicKey:  cfg.Notification.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Notification.VAPIDPrivateKey,
			Subject:         cfg.Notification.VAPIDSubject,
		}),
		channels.NewSMSSender(channels.SMSConfig{
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			FromNumber: cfg.SMS.FromNumber,
		}),
	}

	smtp := &email.SMTPConfig{
		Host:      cfg.Email.SMTPHost,
		Port:      cfg.Email.SMTPPort,
		Username:  cfg.Email.SMTPUsername,
		Password:  cfg.Email.SMTPPassword,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		UseTLS:    cfg.Email.UseTLS,
		Timeout:   cfg.Email.Timeout,
	}
	var provider email.Provider
	switch {
	case smtp.Enabled():
		provider = email.NewGomailProvider(smtp)
	case cfg.Server.Env == "development":
		log.Warn("SMTP is not configured, emails are only logged")
		provider = &logEmailProvider{logger: log.Named("email")}
	}

	key, err := cfg.Notification.PayloadKey()
	if err != nil {
		return nil, err
	}
	var sealer *email.PayloadSealer
	if key != nil {
		if sealer, err = email.NewPayloadSealer(key); err != nil {
			return nil, err
		}
	}
	renderer, err := email.NewTemplateManager()
	if err != nil {
		return nil, err
	}
	if provider != nil && sealer == nil {
		log.Warn("notification.payload_key is not set, email payload is not attached")
	}
	senders = append(senders, channels.NewEmailSender(provider, renderer, sealer))

	for _, s := range senders {
		log.Debug("channel registered", zap.String("channel", string(s.Channel())))
	}
	return senders, nil
}

func initializeGinRouter(cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log.Named("http")))
	router.Use(middleware.CORSMiddleware(originsOrNil(cfg.Server.CORSOrigins)))
	return router
}

// originsOrNil - "*" в конфиге означает любой origin
func originsOrNil(origins []string) []string {
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	return origins
}

// Serve запускает фоновые задачи и HTTP сервер, блокируется до отмены ctx
func (a *App) Serve(ctx context.Context) error {
	if n, err := a.services.QueueService.ResumeOpenShifts(ctx); err != nil {
		a.log.Error("Failed to resume open shifts", zap.Error(err))
	} else if n > 0 {
		a.log.Info("Resumed open shift timers", zap.Int("count", n))
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go a.hub.Run(workerCtx)
	a.retryWorker.Start(workerCtx)
	if a.archiveWorker != nil {
		a.archiveWorker.Start(workerCtx)
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("HTTP shutdown error", zap.Error(err))
	}

	// таймеры окон раньше шины: обработчик таймера публикует события
	cancelWorkers()
	a.scheduler.Stop()
	a.bus.Close()
	a.close()
	return serveErr
}

func (a *App) close() {
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			a.log.Warn("AMQP close error", zap.Error(err))
		}
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warn("Redis close error", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Info("Shutdown complete")
}
