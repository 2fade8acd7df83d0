package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vetclinic_backend/internal/appointments"
	"vetclinic_backend/internal/bootstrap"
	apphttp "vetclinic_backend/internal/http"
	"vetclinic_backend/internal/http/router"
	"vetclinic_backend/internal/outbox"
	"vetclinic_backend/internal/records"
	"vetclinic_backend/internal/scheduler"
	"vetclinic_backend/migrations"
	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/db"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/streams"
	"vetclinic_backend/platform/validator"
)

func main() {
	cfg, err := config.Load("clinic")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env).WithService(cfg.ServiceName)
	log.Info("starting clinic api", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pool, err := bootstrap.ConnectDatabase(ctx, cfg, migrations.FS, migrations.Clinic, log)
	if err != nil {
		log.Error("failed to prepare database", "error", err)
		panic("failed to prepare database: " + err.Error())
	}
	defer pool.Close()

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	// Events are written to the outbox inside each use-case transaction and
	// pushed to the stream right after commit. The scheduler retries the rest.
	relay := outbox.NewRelay(outbox.New(pool), streams.NewPublisher(redisClient, cfg.ServiceName), log)

	reminders, closeReminders := initReminderScheduler(cfg, log)
	if closeReminders != nil {
		defer closeReminders()
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	appointmentsModule := appointments.NewModule(pool, relay, reminders, val, log)
	recordsModule := records.NewModule(pool, relay, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: []apphttp.HealthChecker{db.NewPoolAdapter(pool), streams.NewHealth(redisClient)},
		Modules: []apphttp.Module{
			appointmentsModule,
			recordsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := bootstrap.Serve(ctx, srv, log); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("clinic api stopped")
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ReminderScheduler, func()) {
	reminderClient, err := scheduler.NewReminderClient(cfg)
	if err != nil {
		log.Warn("appointment reminders disabled", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}
