package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vetclinic_backend/internal/bootstrap"
	apphttp "vetclinic_backend/internal/http"
	"vetclinic_backend/internal/http/router"
	"vetclinic_backend/internal/patients"
	"vetclinic_backend/migrations"
	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/db"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/streams"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("patient")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env).WithService(cfg.ServiceName)
	log.Info("starting patient service", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectDatabase(ctx, cfg, migrations.FS, migrations.Patient, log)
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

	patientsModule := patients.NewModule(pool, cfg.ServiceName, log)

	eventRouter := eventbus.NewRouter()
	patientsModule.Subscribe(eventRouter)

	consumer := streams.NewConsumer(redisClient, eventRouter, streams.Options{
		Service:       cfg.ServiceName,
		Policy:        streams.PolicyFromConfig(cfg.GetConsumerPolicy()),
		TopicPolicies: streams.TopicPoliciesFromConfig(cfg.GetTopicPolicies()),
	}, log)
	if err := bootstrap.WithRetry(ctx, log, "consumer group setup", 5, 2*time.Second, func() error {
		return consumer.Setup(ctx)
	}); err != nil {
		log.Error("failed to set up consumer groups", "error", err)
		panic("failed to set up consumer groups: " + err.Error())
	}

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  []apphttp.HealthChecker{db.NewPoolAdapter(pool), streams.NewHealth(redisClient)},
		Modules: []apphttp.Module{patientsModule},
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		return bootstrap.Serve(gctx, srv, log)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("patient service stopped with error", "error", err)
		panic("patient service error: " + err.Error())
	}
	log.Info("patient service stopped")
}
