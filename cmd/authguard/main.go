// Package main is the entry point for the authguard detection service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authguard/internal/alerts"
	"authguard/internal/api"
	"authguard/internal/config"
	"authguard/internal/emitter"
	"authguard/internal/engine"
	"authguard/internal/ingest"
	"authguard/internal/logging"
	"authguard/internal/metrics"
	"authguard/internal/model"
	"authguard/internal/storage"
	"authguard/internal/tenant"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to configuration file (yaml or json)")
	flag.Parse()

	var manager *config.Manager
	var err error
	if *configPath != "" {
		manager, err = config.NewManager(config.ResolvePath(*configPath))
	} else {
		manager = config.NewStaticManager(config.DefaultConfig())
	}
	if err != nil {
		logging.NewLogger("error").Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := store.Init(initCtx); err != nil {
			initCancel()
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		initCancel()
		defer store.Close()
	}

	resolver := tenant.NewResolver(cfg.Tenants, logging.Component(logger, "tenant"))
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	metricsStore := metrics.NewStore(0)
	em := emitter.New(cfg.Emitter.QueueSize, alertsStore, store, logging.Component(logger, "emitter"))

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), metricsStore, resolver, em)

	events := make(chan model.AuthEvent, cfg.Ingest.ChannelBuffer)
	batches := make(chan []model.AuthEvent, 16)

	eng.Start(ctx, batches)
	go ingest.NewBatcher(events, batches, cfg.Ingest.BatchSize, cfg.Ingest.BatchTimeout).Run(ctx)

	parser := ingest.NewParser()
	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartSyslog(ctx, manager, parser, events, ingestLogger)
	ingest.StartREST(ctx, manager, events, ingestLogger)
	ingest.StartKafka(ctx, manager, parser, events, ingestLogger)

	api.Start(ctx, manager, metricsStore, alertsStore, eng, logging.Component(logger, "api"), version)

	if *configPath != "" {
		go manager.Watch(3*time.Second,
			func(updated *config.Config) {
				eng.UpdateConfig(updated)
				logger.Info("configuration reloaded")
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done(),
		)
	}

	logger.Info("authguard started",
		"version", version,
		"threshold", cfg.Detection.Threshold,
		"window", cfg.Detection.Window.String(),
		"default_tenant", cfg.Tenants.Default,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	cancel()
	em.Close(cfg.Emitter.DrainGrace)
}
