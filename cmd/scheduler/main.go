package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vetclinic_backend/internal/appointments/repository"
	"vetclinic_backend/internal/bootstrap"
	"vetclinic_backend/internal/outbox"
	"vetclinic_backend/internal/scheduler"
	"vetclinic_backend/migrations"
	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/streams"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("clinic")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env).WithService(cfg.ServiceName)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	outboxRepo := outbox.New(pool)
	publisher := streams.NewPublisher(redisClient, cfg.ServiceName)

	dispatcher, err := scheduler.NewOutboxDispatcher(cfg, outboxRepo, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	worker, err := scheduler.NewWorker(cfg, outboxRepo, publisher, repository.New(pool), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	_ = g.Wait()

	log.Info("scheduler stopped")
}
