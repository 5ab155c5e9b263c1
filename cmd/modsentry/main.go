// Package main is the entry point for the modsentry moderation daemon.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"modsentry/internal/config"
	"modsentry/internal/dispatcher"
	"modsentry/internal/engine"
	"modsentry/internal/executor"
	"modsentry/internal/kafka"
	"modsentry/internal/metrics"
	"modsentry/internal/queue"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"queue_size", cfg.Queue.Size,
		"workers", cfg.Dispatcher.Workers,
		"redis_enabled", cfg.Storage.Redis.Enabled,
		"clickhouse_enabled", cfg.Storage.ClickHouse.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence. In-memory is the fallback when Redis is off.
	var inner storage.Store
	if cfg.Storage.Redis.Enabled {
		redisStore, err := storage.NewRedisStore(cfg.Storage.Redis)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		inner = redisStore
	} else {
		inner = storage.NewMemoryStore()
	}

	var batchWriter *storage.BatchWriter
	var actionLog *storage.ActionLog
	if cfg.Storage.ClickHouse.Enabled {
		actionLog, err = storage.NewActionLog(cfg.Storage.ClickHouse)
		if err != nil {
			logger.Error("clickhouse connection failed", "error", err)
			os.Exit(1)
		}
		batchWriter = storage.NewBatchWriter(actionLog, cfg.Storage.BatchWriter)
	}

	var producer *kafka.ActionProducer
	if cfg.Kafka.Enabled {
		producer = kafka.NewActionProducer(cfg.Kafka, logger)
	}

	var publisher storage.ActionPublisher
	if producer != nil {
		publisher = producer
	}
	store := storage.NewAuditStore(inner, batchWriter, publisher, logger)

	collector := metrics.NewCollector()

	eng := engine.New(engine.Options{
		Config:   cfg,
		Store:    store,
		Executor: executor.NewLogExecutor(logger),
		Metrics:  collector,
		Logger:   logger,
	})

	buffer := queue.NewRingBuffer(cfg.Queue.Size)
	disp := dispatcher.New(buffer, eng, cfg.Dispatcher, logger)
	disp.Start(ctx)

	var consumer *kafka.EventConsumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewEventConsumer(cfg.Kafka, buffer, schema.NewValidator(), logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
				cancel()
			}
		}()
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka consumer close failed", "error", err)
		}
	}
	disp.Stop()

	if batchWriter != nil {
		batchWriter.Close()
	}
	if actionLog != nil {
		if err := actionLog.Close(); err != nil {
			logger.Error("clickhouse close failed", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka producer close failed", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close failed", "error", err)
	}

	stats := buffer.Stats()
	logger.Info("shutdown complete",
		"events_pushed", stats.Pushed,
		"events_popped", stats.Popped,
		"events_dropped", stats.Dropped,
	)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
