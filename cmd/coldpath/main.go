// Command coldpath runs the enrichment and durable-persistence service: it
// consumes the trades log with a dedicated consumer-group identity,
// enriches each trade against reference data, and buffers it into the
// relational store in idempotent batches.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tradecore/internal/codec"
	"tradecore/internal/coldpath"
	"tradecore/internal/dlq"
	"tradecore/internal/model"
	"tradecore/internal/refdata"
	"tradecore/internal/supervisor"
	"tradecore/pkg/config"
	"tradecore/pkg/eventlog"
	"tradecore/pkg/httpapi"
	"tradecore/pkg/metrics"
	"tradecore/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	yamlPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "coldpath").Logger()

	cfg, err := config.Load("coldpath", *yamlPath)
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

	tradeStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open trade store")
	}
	sup.OnDrain(func(ctx context.Context) error { return tradeStore.Close() })

	refStore := refdata.NewStore(refdata.FileSource{Path: cfg.RefData.FilePath}, func(err error) {
		log.Error().Err(err).Msg("refdata refresh failed")
	})
	if err := refStore.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("initial refdata load")
	}
	refCtx, refCancel := context.WithCancel(context.Background())
	sup.OnDrain(func(ctx context.Context) error { refCancel(); return nil })
	go refStore.Run(refCtx, cfg.RefData.RefreshInterval)

	dlqProducer, err := eventlog.NewProducer(eventlog.ProducerConfig{
		Brokers: cfg.EventLog.Brokers, Topic: cfg.EventLog.DLQTopic,
		NumPartitions: cfg.EventLog.NumPartitions, Linger: cfg.EventLog.Linger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("new dlq producer")
	}
	sup.OnDrain(func(ctx context.Context) error { dlqProducer.Close(); return nil })

	dlqWriter := dlq.NewWriter(dlqProducer, "coldpath", codec.EncodeDLQEnvelope, func(envelope *model.DLQEnvelope, err error) {
		log.Error().Err(err).Str("dlq_id", envelope.ID).Msg("dlq publish failed")
	})

	consumer, err := eventlog.NewConsumer(eventlog.ConsumerConfig{
		Brokers: cfg.EventLog.Brokers,
		Topic:   cfg.EventLog.TradesTopic,
		Group:   cfg.EventLog.ConsumerGroup + "-coldpath",
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("new trades consumer")
	}
	sup.OnDrain(func(ctx context.Context) error { consumer.Close(); return nil })

	svc := coldpath.NewService(coldpath.ServiceConfig{
		Consumer:     consumer,
		RefData:      refStore,
		Store:        tradeStore,
		DLQ:          dlqWriter,
		Metrics:      metricsReg,
		Limiter:      rate.NewLimiter(rate.Limit(50), 50),
		MaxBatchSize: cfg.Store.BatchMaxSize,
		MaxBatchAge:  cfg.Store.BatchMaxAge,
		CommitEvery:  500,
		CommitPeriod: 5 * time.Second,
	})
	sup.OnDrain(func(ctx context.Context) error { svc.Close(); return nil })

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
	log.Info().Str("trades_topic", cfg.EventLog.TradesTopic).Str("store_path", cfg.Store.Path).Msg("coldpath ready")

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
