// Command ingestion runs the validate -> archive -> encode -> publish
// pipeline: it consumes parsed trade records from the raw-trades topic and
// publishes them onto the durable, partitioned trades log.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"tradecore/internal/codec"
	"tradecore/internal/dlq"
	"tradecore/internal/errtag"
	"tradecore/internal/ingestion"
	"tradecore/internal/model"
	"tradecore/internal/supervisor"
	"tradecore/pkg/archive"
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
		With().Timestamp().Str("service", "ingestion").Logger()

	cfg, err := config.Load("ingestion", *yamlPath)
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

	archiveStore, err := buildArchiveStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build archive store")
	}

	producer, err := eventlog.NewProducer(eventlog.ProducerConfig{
		Brokers:       cfg.EventLog.Brokers,
		Topic:         cfg.EventLog.TradesTopic,
		NumPartitions: cfg.EventLog.NumPartitions,
		Linger:        cfg.EventLog.Linger,
		BatchMaxBytes: cfg.EventLog.BatchMaxBytes,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("new trades producer")
	}
	sup.OnDrain(func(ctx context.Context) error { producer.Close(); return nil })

	dlqProducer, err := eventlog.NewProducer(eventlog.ProducerConfig{
		Brokers:       cfg.EventLog.Brokers,
		Topic:         cfg.EventLog.DLQTopic,
		NumPartitions: cfg.EventLog.NumPartitions,
		Linger:        cfg.EventLog.Linger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("new dlq producer")
	}
	sup.OnDrain(func(ctx context.Context) error { dlqProducer.Close(); return nil })

	dlqWriter := dlq.NewWriter(dlqProducer, "ingestion", codec.EncodeDLQEnvelope, func(envelope *model.DLQEnvelope, err error) {
		log.Error().Err(err).Str("dlq_id", envelope.ID).Msg("dlq publish failed")
	})

	svc := ingestion.New(ingestion.Config{
		Archive:   archiveStore,
		Publisher: producer,
		DLQ:       dlqWriter,
		Metrics:   metricsReg,
	})

	rawConsumer, err := eventlog.NewConsumer(eventlog.ConsumerConfig{
		Brokers: cfg.EventLog.Brokers,
		Topic:   cfg.EventLog.RawTradesTopic,
		Group:   cfg.EventLog.ConsumerGroup + "-ingestion",
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("new raw trades consumer")
	}
	sup.OnDrain(func(ctx context.Context) error { rawConsumer.Close(); return nil })

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
	log.Info().Str("raw_topic", cfg.EventLog.RawTradesTopic).Str("trades_topic", cfg.EventLog.TradesTopic).Msg("ingestion ready")

	go runIntake(ctx, rawConsumer, svc, dlqWriter, metricsReg, log)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sup.Drain(drainCtx); err != nil {
		log.Error().Err(err).Msg("drain")
	}
}

// runIntake polls the raw-trades topic, decodes each record with the same
// wire codec used downstream, and feeds it through the ingestion pipeline.
// Offsets commit every 500 messages or 5s, matching the hot/cold path's own
// discipline, since the raw topic is at-least-once just like the trades log.
func runIntake(ctx context.Context, consumer *eventlog.Consumer, svc *ingestion.Service, dlqWriter *dlq.Writer, reg *metrics.Registry, log zerolog.Logger) {
	const commitEvery = 500
	commitPeriod := 5 * time.Second
	uncommitted := 0
	var pending []eventlog.Record
	lastCommit := time.Now()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := consumer.Commit(ctx, pending); err != nil {
			log.Error().Err(err).Msg("commit offsets")
		}
		pending = nil
		uncommitted = 0
		lastCommit = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		default:
		}

		records, err := consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				flush()
				return
			}
			log.Error().Err(err).Msg("poll raw trades")
			continue
		}

		for _, rec := range records {
			trade, err := codec.DecodeTrade(rec.Value)
			if err != nil {
				wrapped := errtag.Tag(errtag.Deserialization, err)
				dlqWriter.Send(ctx, rec.Topic, rec.Partition, rec.Offset, rec.Key, rec.Value, wrapped, 0, nil)
				if reg != nil {
					reg.DLQMessages.WithLabelValues("ingestion", "DESERIALIZATION").Inc()
				}
			} else {
				_ = svc.Ingest(ctx, trade)
			}
			pending = append(pending, rec)
			uncommitted++
		}

		if uncommitted >= commitEvery || time.Since(lastCommit) >= commitPeriod {
			flush()
		}
	}
}

func buildArchiveStore(cfg *config.Config) (archive.Store, error) {
	switch cfg.Archive.Backend {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Archive.S3Region))
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg)
		return archive.NewS3Store(client, cfg.Archive.S3Bucket), nil
	default:
		return archive.NewLocalStore(cfg.Archive.LocalDir, cfg.Archive.MaxBytes), nil
	}
}
