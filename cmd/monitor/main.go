// Command monitor runs exactly one monitoring cycle and exits. It is meant to
// be triggered externally (cron, systemd timer) after each scrape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/adapter/jsonl"
	kafkaadapter "github.com/couchcryptid/rail-notice-etl/internal/adapter/kafka"
	mongoadapter "github.com/couchcryptid/rail-notice-etl/internal/adapter/mongo"
	"github.com/couchcryptid/rail-notice-etl/internal/classify"
	"github.com/couchcryptid/rail-notice-etl/internal/config"
	"github.com/couchcryptid/rail-notice-etl/internal/extract"
	"github.com/couchcryptid/rail-notice-etl/internal/history"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
	"github.com/couchcryptid/rail-notice-etl/internal/observability"
	"github.com/couchcryptid/rail-notice-etl/internal/pipeline"
	"github.com/couchcryptid/rail-notice-etl/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	metrics := observability.NewMetrics()

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		logger.Error("failed to load lexicon", zap.Error(err))
		return 1
	}
	logger.Info("lexicon loaded", zap.Int("version", lex.Version), zap.String("path", cfg.LexiconPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := newSource(cfg, logger)
	if err != nil {
		logger.Error("failed to open observation source", zap.Error(err))
		return 1
	}
	defer closeSrc()

	pubs, closePubs := newPublishers(ctx, cfg, logger)
	defer closePubs()

	store := storage.NewFileStore(storage.Options{
		Path:        cfg.StorePath,
		BackupDir:   cfg.StoreBackupDir,
		Retain:      cfg.StoreBackupRetain,
		Pretty:      cfg.StorePretty,
		LockTimeout: cfg.StoreLockTimeout,
	}, logger.Named("store"))

	recorder := history.NewManager(
		extract.New(lex, logger.Named("extract")),
		classify.New(lex),
		logger.Named("history"),
	)

	p := pipeline.New(src, store, recorder, logger, metrics, pipeline.Options{
		BatchSize:   cfg.BatchSize,
		AutoRecover: cfg.StoreAutoRecover,
	}, pubs...)

	_, runErr := p.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			logger.Warn("write metrics textfile failed", zap.String("path", cfg.MetricsTextfile), zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("cycle failed", zap.Error(runErr))
		return 1
	}
	return 0
}

func newSource(cfg *config.Config, logger *zap.Logger) (pipeline.Source, func(), error) {
	switch cfg.ObservationSource {
	case config.SourceKafka:
		r := kafkaadapter.NewReader(cfg, logger.Named("kafka"))
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Error("kafka reader close error", zap.Error(err))
			}
		}, nil
	case config.SourceFile:
		s := jsonl.NewSource(cfg.ObservationFile, logger.Named("jsonl"))
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown observation source %q", cfg.ObservationSource)
	}
}

// newPublishers builds the optional sinks. A mirror that cannot connect is
// skipped; the cycle still runs against the document store.
func newPublishers(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]pipeline.Publisher, func()) {
	var (
		pubs    []pipeline.Publisher
		closers []func()
	)

	if cfg.KafkaSinkEnabled {
		w := kafkaadapter.NewWriter(cfg, logger.Named("kafka"))
		pubs = append(pubs, w)
		closers = append(closers, func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", zap.Error(err))
			}
		})
	}

	if cfg.MongoURI != "" {
		m, err := mongoadapter.Connect(ctx, cfg, logger.Named("mongo"))
		if err != nil {
			logger.Warn("mongo mirror disabled", zap.Error(err))
		} else {
			pubs = append(pubs, m)
			closers = append(closers, func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := m.Close(closeCtx); err != nil {
					logger.Error("mongo disconnect error", zap.Error(err))
				}
			})
		}
	}

	return pubs, func() {
		for _, c := range closers {
			c()
		}
	}
}
