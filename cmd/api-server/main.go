package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthlinkr/clinic-booking/internal/api"
	"github.com/healthlinkr/clinic-booking/internal/booking"
	"github.com/healthlinkr/clinic-booking/internal/catalog"
	"github.com/healthlinkr/clinic-booking/internal/config"
	"github.com/healthlinkr/clinic-booking/internal/db"
	"github.com/healthlinkr/clinic-booking/internal/identity"
	redisclient "github.com/healthlinkr/clinic-booking/internal/redis"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	slots := booking.NewSlotStore(pgPool)
	notifications := booking.NewNotificationStore(pgPool)
	cat := catalog.NewStore(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockKeyPrefix, cfg.LockTTL)
	ledger := booking.NewAppointmentLedger(pgPool, slots, notifications, identity.RoleChecker{}, logger)
	bookingSvc := booking.NewBookingService(pgPool, slots, ledger, cat, locker, logger)
	rescheduleSvc := booking.NewRescheduleService(pgPool, slots, ledger, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Booking:       bookingSvc,
		Reschedule:    rescheduleSvc,
		Ledger:        ledger,
		Slots:         slots,
		Notifications: notifications,
		Catalog:       cat,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
		RateLimit:     cfg.RateLimit,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
