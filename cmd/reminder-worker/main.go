package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthlinkr/clinic-booking/internal/booking"
	"github.com/healthlinkr/clinic-booking/internal/config"
	"github.com/healthlinkr/clinic-booking/internal/db"
	"github.com/healthlinkr/clinic-booking/internal/identity"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("reminder-worker starting", "env", cfg.Env, "interval", cfg.WorkerInterval.String(), "lead", cfg.ReminderLead.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	slots := booking.NewSlotStore(pgPool)
	notifications := booking.NewNotificationStore(pgPool)
	ledger := booking.NewAppointmentLedger(pgPool, slots, notifications, identity.RoleChecker{}, logger)
	reminders := booking.NewReminderService(ledger, notifications, logger)

	// Run once at startup
	runOnce(rootCtx, reminders, cfg.ReminderLead, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, reminders, cfg.ReminderLead, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.ReminderService, lead time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.RemindUpcoming(runCtx, lead)
	if err != nil {
		logger.Error("reminder run error", "error", err)
		return
	}
	logger.Info("reminder run complete", "sent", sent, "duration", time.Since(start).String())
}
