// Command hotpath runs the flash P&L service: it consumes the trades log
// with a dedicated consumer-group identity, maintains per-partition
// in-memory positions, and publishes snapshots to the shared cache.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tradecore/internal/codec"
	"tradecore/internal/dlq"
	"tradecore/internal/hotpath"
	"tradecore/internal/model"
	"tradecore/internal/supervisor"
	"tradecore/pkg/cache"
	"tradecore/pkg/config"
	"tradecore/pkg/eventlog"
	"tradecore/pkg/httpapi"
	"tradecore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	yamlPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "hotpath").Logger()

	cfg, err := config.Load("hotpath", *yamlPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	sup := supervisor.New()
	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, DB: cfg.Cache.DB})
	sup.OnDrain(func(ctx context.Context) error { return redisClient.Close() })
	positionCache := cache.New(redisClient)

	dlqProducer, err := eventlog.NewProducer(eventlog.ProducerConfig{
		Brokers: cfg.EventLog.Brokers, Topic: cfg.EventLog.DLQTopic,
		NumPartitions: cfg.EventLog.NumPartitions, Linger: cfg.EventLog.Linger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("new dlq producer")
	}
	sup.OnDrain(func(ctx context.Context) error { dlqProducer.Close(); return nil })

	dlqWriter := dlq.NewWriter(dlqProducer, "hotpath", codec.EncodeDLQEnvelope, func(envelope *model.DLQEnvelope, err error) {
		log.Error().Err(err).Str("dlq_id", envelope.ID).Msg("dlq publish failed")
	})

	engineFactory := func() *hotpath.Engine {
		return hotpath.NewEngine(hotpath.Config{
			Prices:  positionCache,
			Cache:   positionCache,
			DLQ:     dlqWriter,
			Metrics: metricsReg,
		})
	}

	svc := hotpath.NewService(hotpath.ServiceConfig{
		EngineFactory: engineFactory,
		Metrics:       metricsReg,
		CommitEvery:   500,
		CommitPeriod:  5 * time.Second,
	})

	consumer, err := eventlog.NewConsumer(eventlog.ConsumerConfig{
		Brokers: cfg.EventLog.Brokers,
		Topic:   cfg.EventLog.TradesTopic,
		Group:   cfg.EventLog.ConsumerGroup + "-hotpath",
	}, svc)
	if err != nil {
		log.Fatal().Err(err).Msg("new trades consumer")
	}
	sup.OnDrain(func(ctx context.Context) error { consumer.Close(); return nil })
	svc.SetConsumer(consumer)

	httpServer := httpapi.New(sup, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: httpServer.Router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server")
		}
	}()
	sup.OnDrain(func(ctx context.Context) error { return server.Shutdown(ctx) })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup.MarkReady()
	log.Info().Str("trades_topic", cfg.EventLog.TradesTopic).Msg("hotpath ready")

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("consume loop exited")
		}
	}

	log.Info().Msg("shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sup.Drain(drainCtx); err != nil {
		log.Error().Err(err).Msg("drain")
	}
}
