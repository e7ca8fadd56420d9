package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smarttv-backend/internal/alerting"
	"smarttv-backend/internal/audit"
	"smarttv-backend/internal/auth"
	"smarttv-backend/internal/calls"
	"smarttv-backend/internal/config"
	"smarttv-backend/internal/httpapi"
	"smarttv-backend/internal/reconcile"
	"smarttv-backend/internal/reporting"
	"smarttv-backend/internal/rooms"
	"smarttv-backend/internal/scheduler"
	"smarttv-backend/pkg/logger"
	"smarttv-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.Name)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenDB(rootCtx, cfg.DB.Driver, cfg.DSN(), utils.PoolConfig{})
	if err != nil {
		log.Error("database init failed", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	callStore := calls.NewSQLStore(db, calls.Dialect(cfg.DB.Driver))
	auditRepo := audit.NewSQLRepo(db, cfg.DB.Driver)
	if err := callStore.Migrate(rootCtx); err != nil {
		log.Error("calls migrate failed", "err", err)
		os.Exit(1)
	}
	if err := auditRepo.Migrate(rootCtx); err != nil {
		log.Error("audit migrate failed", "err", err)
		os.Exit(1)
	}
	auditSvc := audit.NewService(auditRepo)

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	twilioUser, twilioPass := cfg.TwilioCredentials()
	roomClient, err := rooms.NewTwilioClient(rooms.TwilioOptions{
		BaseURL:        cfg.Twilio.VideoBaseURL,
		Username:       twilioUser,
		Password:       twilioPass,
		AccountSID:     cfg.Twilio.AccountSID,
		RequestTimeout: cfg.Twilio.RequestTimeout,
	})
	if err != nil {
		log.Error("twilio client init failed", "err", err)
		os.Exit(1)
	}

	alerts := alerting.Multi{alerting.LogSink{Log: log.With("component", "alerts")}}
	var discord *alerting.DiscordSink
	if cfg.Alert.DiscordWebhookURL != "" {
		discord = alerting.NewDiscordSink(alerting.DiscordOptions{
			WebhookURL: cfg.Alert.DiscordWebhookURL,
			AppName:    cfg.App.Name,
			Env:        cfg.App.Env,
			Log:        log,
		})
		alerts = append(alerts, discord)
	}

	engine := reconcile.NewEngine(callStore, roomClient, reconcile.Options{
		Thresholds: reconcile.Thresholds{
			EmptyRoomTimeout:         cfg.Sync.EmptyRoomTimeout,
			SingleParticipantTimeout: cfg.Sync.SingleParticipantTimeout,
			MinCallDuration:          cfg.Sync.MinCallDuration,
		},
		MaxConcurrency: cfg.Sync.MaxConcurrency,
		Audit:          auditSvc,
		Alerts:         alerts,
		Log:            log.With("component", "reconcile"),
	})

	var lock scheduler.Locker
	if rdb != nil {
		lock = scheduler.NewRedisLock(rdb, scheduler.DefaultLockKey, cfg.Sync.LockTTL)
	}
	sched := scheduler.New(engine, scheduler.Options{
		Interval: cfg.Sync.Interval,
		Lock:     lock,
		Log:      log.With("component", "scheduler"),
	})
	if cfg.Sync.Enabled {
		if err := sched.Start(context.Background()); err != nil {
			log.Error("scheduler start failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("periodic reconciliation disabled", "env", "SYNC_ENABLED")
	}

	handlers := httpapi.Handlers{
		Sync:    sched,
		Calls:   calls.NewService(callStore),
		Reports: reporting.NewService(callStore),
		Audit:   auditSvc,
		Checks:  readinessChecks(db, rdb, roomClient),

		WebhookAuthToken: cfg.Twilio.AuthToken,
		WebhookURL:       cfg.Twilio.StatusCallbackURL,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, handlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A synchronous trigger blocks for one full pass.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	alerts.Emit(rootCtx, alerting.Event{
		Type:    alerting.EventSystem,
		Level:   alerting.LevelInfo,
		Message: "application started",
		Fields:  map[string]any{"env": cfg.App.Env, "sync_enabled": cfg.Sync.Enabled, "sync_interval": cfg.Sync.Interval.String()},
	})

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Stops the loop (if started) and drains async passes before the DB closes.
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler stop failed", "err", err)
	}

	alerts.Emit(shutdownCtx, alerting.Event{
		Type:    alerting.EventSystem,
		Level:   alerting.LevelWarning,
		Message: "application shutting down",
		Fields:  map[string]any{"env": cfg.App.Env},
	})
	if discord != nil {
		_ = discord.Wait(shutdownCtx)
	}
}

func readinessChecks(db *sql.DB, rdb *redis.Client, rc *rooms.TwilioClient) []httpapi.Check {
	checks := []httpapi.Check{
		{Name: "database", Fn: db.PingContext},
		{Name: "twilio", Fn: rc.HealthCheck},
	}
	if rdb != nil {
		checks = append(checks, httpapi.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}
