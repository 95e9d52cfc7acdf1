package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/corpuskit/harvester/internal/control"
	"github.com/corpuskit/harvester/internal/crawler"
	"github.com/corpuskit/harvester/internal/datalake"
	"github.com/corpuskit/harvester/internal/events"
	"github.com/corpuskit/harvester/internal/indexer"
	"github.com/corpuskit/harvester/internal/ledger"
	"github.com/corpuskit/harvester/internal/metadata"
	"github.com/corpuskit/harvester/pkg/config"
	"github.com/corpuskit/harvester/pkg/health"
	"github.com/corpuskit/harvester/pkg/kafka"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
	"github.com/corpuskit/harvester/pkg/postgres"
	"github.com/corpuskit/harvester/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	target := flag.Int("target", -1, "override the session download target")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *target >= 0 {
		cfg.Harvest.TargetNewDownloads = *target
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting harvester",
		"target", cfg.Harvest.TargetNewDownloads,
		"workers", cfg.Harvest.DownloadWorkers,
		"datalake", cfg.Datalake.Root,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, cleanup, checker, err := buildPipeline(cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown", "error", err)
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		slog.Error("harvest run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("harvest complete: no further progress possible this session")
}

// buildPipeline wires every component. Postgres, Redis, and Kafka are
// optional collaborators: when disabled or unreachable the harvester runs
// with the local representations only.
func buildPipeline(cfg *config.Config) (*control.Orchestrator, func(), *health.Checker, error) {
	m := metrics.New()
	checker := health.NewChecker()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	led, err := ledger.New(cfg.Harvest.ControlDir)
	if err != nil {
		return nil, cleanup, nil, err
	}
	checker.Register("ledger", dirCheck(cfg.Harvest.ControlDir))

	var lakeOpts []datalake.Option
	if cfg.Datalake.RawRoot != "" {
		lakeOpts = append(lakeOpts, datalake.WithRawRoot(cfg.Datalake.RawRoot))
	}
	lake := datalake.New(cfg.Datalake.Root, lakeOpts...)
	checker.Register("datalake", dirCheck(lake.Root()))

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, metadata degrades to audit log", "error", err)
		} else {
			closers = append(closers, func() { _ = pg.Close() })
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := pg.DB.PingContext(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, secondary representations disabled", "error", err)
			rdb = nil
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := rdb.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}
	}

	var emitter *events.Emitter
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		closers = append(closers, func() { _ = producer.Close() })
		emitter = events.NewEmitter(producer, m)
	}

	mergerOpts := []indexer.MergerOption{
		indexer.WithMetrics(m),
		indexer.WithStoreTimeout(cfg.Index.StoreTimeout),
	}
	table, err := indexer.OpenIndexTable(filepath.Join(cfg.Index.DatamartDir, "inverted_index.sqlite"))
	if err != nil {
		slog.Warn("sqlite datamart unavailable", "error", err)
	} else {
		closers = append(closers, func() { _ = table.Close() })
		mergerOpts = append(mergerOpts, indexer.WithIndexTable(table))
	}
	if rdb != nil {
		mergerOpts = append(mergerOpts, indexer.WithRedis(rdb))
	}
	merger, err := indexer.NewMerger(cfg.Index.DatamartDir, mergerOpts...)
	if err != nil {
		return nil, cleanup, nil, err
	}

	metaOpts := []metadata.StoreOption{
		metadata.WithMetrics(m),
		metadata.WithStoreTimeout(cfg.Index.StoreTimeout),
	}
	if pg != nil {
		metaOpts = append(metaOpts, metadata.WithPostgres(pg))
	}
	if rdb != nil {
		metaOpts = append(metaOpts, metadata.WithRedis(rdb))
	}
	meta, err := metadata.NewStore(filepath.Join(cfg.Index.DatamartDir, "metadata.csv"), metaOpts...)
	if err != nil {
		return nil, cleanup, nil, err
	}

	fetcher := crawler.NewFetcher(cfg.Source, m)
	downloader := crawler.NewDownloader(fetcher, lake, led, emitter, m)
	ix := indexer.NewIndexer(lake, merger, meta, emitter, cfg.Index.RemoveStopwords, m)

	orch := control.New(led, ix, downloader,
		crawler.NewRandomSource(cfg.Harvest.MaxCandidateID),
		control.Config{
			TargetNewDownloads: cfg.Harvest.TargetNewDownloads,
			TotalTries:         cfg.Harvest.TotalTries,
			MaxRounds:          cfg.Harvest.MaxRounds,
			DownloadWorkers:    cfg.Harvest.DownloadWorkers,
		}, m)
	return orch, cleanup, checker, nil
}

func dirCheck(dir string) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if _, err := os.Stat(dir); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
