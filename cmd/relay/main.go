package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sunil55999/Zorox/internal/admin"
	"github.com/sunil55999/Zorox/internal/config"
	"github.com/sunil55999/Zorox/internal/dispatch"
	"github.com/sunil55999/Zorox/internal/filter"
	"github.com/sunil55999/Zorox/internal/health"
	"github.com/sunil55999/Zorox/internal/imageguard"
	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
	"github.com/sunil55999/Zorox/internal/pipeline"
	"github.com/sunil55999/Zorox/internal/publisher"
	"github.com/sunil55999/Zorox/internal/senderpool"
	"github.com/sunil55999/Zorox/internal/store"
	"github.com/sunil55999/Zorox/internal/telegram"
	"github.com/sunil55999/Zorox/internal/web"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting relay service")

	// 3. Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Open the store
	st, err := store.Open(cfg.DatabaseURL, log.Component("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	// seed the global word block list
	for _, w := range cfg.GlobalBlockedWords {
		if err := st.AddBlockedWord(w, nil); err != nil {
			log.Warn().Err(err).Str("word", w).Msg("seeding blocked word failed")
		}
	}

	// 5. Optional NATS event publishing
	var events pipeline.EventSink
	if cfg.NatsURL != "" {
		pub, err := publisher.New(ctx, cfg.NatsURL, log.Component("publisher"))
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, event publishing disabled")
		} else {
			defer pub.Close()
			events = pub
		}
	}

	// 6. Core components
	pool := senderpool.New(20, 5, log.Component("senderpool"))
	disp := dispatch.New(dispatch.Config{
		Workers:      cfg.MaxWorkers,
		Capacity:     cfg.QueueCapacity,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBase:    cfg.RetryBase,
		RetryCap:     cfg.RetryCap,
		DrainTimeout: cfg.DrainTimeout,
	}, pool, log.Component("dispatch"))
	guard := imageguard.New(st, cfg.SimilarityThreshold, log.Component("imageguard"))
	engine := filter.New(st, log.Component("filter"))
	pipe := pipeline.New(st, engine, guard, disp, events, cfg.MaxConcurrentDownloads, log.Component("pipeline"))

	// 7. Listener account
	tgLog := log.Component("telegram")
	listenerAccount, err := telegram.NewPersistentAccount(cfg.TGApiID, cfg.TGApiHash, cfg.TGSessionStr, st.DB(), tgLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start listener account")
	}
	defer listenerAccount.Stop()

	listener := telegram.NewListener(listenerAccount, pipe, tgLog)
	listener.Attach()

	// 8. Sender accounts from the store
	senderFactory := func(_ context.Context, rec models.Sender) (senderpool.Sender, error) {
		account, err := telegram.NewAccount(cfg.TGApiID, cfg.TGApiHash, rec.Credential, tgLog)
		if err != nil {
			return nil, err
		}
		return telegram.NewSender(rec.ID, account), nil
	}

	senders, err := st.ListSenders(false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list senders")
	}
	for _, rec := range senders {
		live, err := senderFactory(ctx, rec)
		if err != nil {
			log.Error().Err(err).Str("handle", rec.DisplayHandle).Msg("sender account failed, skipped")
			continue
		}
		pool.Register(live, rec.DisplayHandle, rec.Enabled)
	}
	if pool.EligibleCount() == 0 {
		log.Warn().Msg("no eligible senders; replication will queue until one is added")
	}

	// 9. Health monitor, sweeper, metrics
	registry := prometheus.NewRegistry()
	monitor := health.NewMonitor(disp, pool, pipe, registry, log.Component("health"))
	sweeper := health.NewSweeper(st, pool, log.Component("health"))

	// 10. Admin surface with live status feed
	hub := web.NewHub(log.Component("web"))
	svc := admin.NewService(st, pipe, disp, pool, guard, sweeper, monitor, senderFactory, cfg.BackupDir, log.Component("admin"))
	server := admin.NewServer(svc, hub, registry, cfg.AdminToken)

	// 11. Background loops
	go pipe.Run(ctx)
	go monitor.Run(ctx)
	go sweeper.Run(ctx)
	go pool.RunProbes(ctx)
	go func() {
		if err := server.Start(ctx, cfg.HTTPPort); err != nil {
			log.Error().Err(err).Msg("admin server failed")
			cancel()
		}
	}()

	// periodic status broadcast for dashboard clients
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if hub.ClientCount() > 0 {
					hub.Broadcast(web.EventStatus, monitor.Snapshot())
				}
			}
		}
	}()

	// periodic database backups
	go func() {
		ticker := time.NewTicker(cfg.BackupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if path, err := st.Backup(cfg.BackupDir); err != nil {
					log.Warn().Err(err).Msg("scheduled backup failed")
				} else if path != "" {
					log.Info().Str("path", path).Msg("database backed up")
				}
			}
		}
	}()

	log.Info().
		Int("workers", cfg.MaxWorkers).
		Int("queue_capacity", cfg.QueueCapacity).
		Int("http_port", cfg.HTTPPort).
		Msg("relay running")

	// 12. Dispatcher blocks until shutdown, then drains
	disp.Run(ctx)
	log.Info().Msg("relay stopped")
}
