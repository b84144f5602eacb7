package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rwaScope/internal/alert"
	"rwaScope/internal/api"
	"rwaScope/internal/chain"
	"rwaScope/internal/config"
	"rwaScope/internal/indexer"
	"rwaScope/internal/metrics"
	"rwaScope/internal/storage"
	"rwaScope/internal/storage/memory"
	"rwaScope/internal/storage/postgres"
	"rwaScope/internal/storage/rediscache"
	"rwaScope/internal/stream"
	"rwaScope/internal/token"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch configured networks and serve the read API",
		RunE:  runService,
	}

	cmd.Flags().String("pg-dsn", "", "Postgres DSN (empty runs on the in-memory store)")
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runService(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		store = rediscache.New(store, rdb, cfg.Redis.TTL, logger)
		logger.Info("query cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	alertSinks := []alert.Sink{alert.NewLogSink(logger)}
	if cfg.WebhookURL != "" {
		webhook, err := alert.NewWebhookSink(cfg.WebhookURL, cfg.WebhookBody, logger)
		if err != nil {
			return err
		}
		alertSinks = append(alertSinks, webhook)
	}

	var eventSinks []indexer.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := stream.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		eventSinks = append(eventSinks, publisher)
		alertSinks = append(alertSinks, publisher)
		logger.Info("event stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	aggregator := metrics.NewAggregator(store, cfg.GasThreshold)
	evaluator := alert.NewEvaluator(alert.Thresholds{
		MaxComplianceViolations: cfg.Thresholds.MaxViolations,
		MinSuccessRate:          cfg.Thresholds.MinSuccessRate,
		MaxConfirmationTime:     cfg.Thresholds.MaxConfirmationTime,
		MaxReorgCount:           cfg.Thresholds.MaxReorgCount,
		MinGasEfficiency:        cfg.Thresholds.MinGasEfficiency,
	}, store)
	tracker := alert.NewTracker(aggregator, evaluator, cfg.AlertInterval, logger, alertSinks...)
	go tracker.Run(ctx)
	eventSinks = append(eventSinks, tracker)

	decoder, err := token.NewDecoder()
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	topics := decoder.Topics()

	var wg sync.WaitGroup
	started := 0
	for name, network := range cfg.Networks {
		if err := network.Validate(); err != nil {
			logger.Error("network disabled", zap.String("network", name), zap.Error(err))
			continue
		}
		addresses, err := indexer.ParseAddresses(network.Addresses)
		if err != nil {
			logger.Error("network disabled", zap.String("network", name), zap.Error(err))
			continue
		}
		client, err := chain.NewClient(ctx, network.RPCURL)
		if err != nil {
			logger.Error("network disabled", zap.String("network", name), zap.Error(err))
			continue
		}

		ingestor := indexer.NewIngestor(name, decoder, store, logger, eventSinks...)
		detector := indexer.NewReorgDetector(name, network.ReorgDepth, network.ReorgWindow, store, logger)
		watcher := indexer.NewWatcher(indexer.WatchConfig{
			Network:       name,
			Mode:          network.Mode,
			Addresses:     addresses,
			Topic0:        topics,
			StartBlock:    network.StartBlock,
			PollInterval:  network.PollInterval,
			Confirmations: network.Confirmations,
			BatchSize:     network.BatchSize,
			MaxRetries:    network.MaxRetries,
			RetryBackoff:  network.RetryBackoff,
		}, client, store, ingestor, detector, logger)

		confirmer := indexer.NewConfirmer(name, store, client, cfg.ConfirmInterval, logger)

		wg.Add(1)
		go func(name string, client *chain.Client) {
			defer wg.Done()
			defer client.Close()

			var networkWG sync.WaitGroup
			networkWG.Add(2)
			go func() {
				defer networkWG.Done()
				if err := watcher.Run(ctx); err != nil {
					logger.Error("watcher exited", zap.String("network", name), zap.Error(err))
				}
			}()
			go func() {
				defer networkWG.Done()
				confirmer.Run(ctx)
			}()
			networkWG.Wait()
		}(name, client)
		started++
	}
	if started == 0 {
		return fmt.Errorf("no watchable networks configured")
	}

	server := api.NewServer(store, aggregator, cfg.NetworkNames(), logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", zap.Error(err))
		}
	}()

	wg.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.PGDSN == "" {
		logger.Warn("no postgres dsn configured, using the in-memory store")
		return memory.New(cfg.RetainEvents), nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}
