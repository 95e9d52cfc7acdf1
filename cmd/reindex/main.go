// Command reindex runs the control loop with a zero download target: it
// indexes whatever the downloaded ledger says is pending and exits. Useful
// after restoring a datalake or when the index datamarts were rebuilt.
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

	"github.com/joho/godotenv"

	"github.com/corpuskit/harvester/internal/control"
	"github.com/corpuskit/harvester/internal/datalake"
	"github.com/corpuskit/harvester/internal/indexer"
	"github.com/corpuskit/harvester/internal/ledger"
	"github.com/corpuskit/harvester/internal/metadata"
	"github.com/corpuskit/harvester/pkg/config"
	"github.com/corpuskit/harvester/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led, err := ledger.New(cfg.Harvest.ControlDir)
	if err != nil {
		slog.Error("opening ledger", "error", err)
		os.Exit(1)
	}
	lake := datalake.New(cfg.Datalake.Root)

	mergerOpts := []indexer.MergerOption{indexer.WithStoreTimeout(cfg.Index.StoreTimeout)}
	table, err := indexer.OpenIndexTable(filepath.Join(cfg.Index.DatamartDir, "inverted_index.sqlite"))
	if err != nil {
		slog.Warn("sqlite datamart unavailable", "error", err)
	} else {
		defer table.Close()
		mergerOpts = append(mergerOpts, indexer.WithIndexTable(table))
	}
	merger, err := indexer.NewMerger(cfg.Index.DatamartDir, mergerOpts...)
	if err != nil {
		slog.Error("opening index datamart", "error", err)
		os.Exit(1)
	}
	meta, err := metadata.NewStore(filepath.Join(cfg.Index.DatamartDir, "metadata.csv"))
	if err != nil {
		slog.Error("opening metadata store", "error", err)
		os.Exit(1)
	}

	ix := indexer.NewIndexer(lake, merger, meta, nil, cfg.Index.RemoveStopwords, nil)
	orch := control.New(led, ix, nil, nil, control.Config{
		TargetNewDownloads: 0,
		MaxRounds:          1,
	}, nil)

	progressed, err := orch.Tick(ctx)
	if err != nil {
		slog.Error("reindex failed", "error", err)
		os.Exit(1)
	}
	if progressed {
		slog.Info("reindex pass complete")
	} else {
		slog.Info("nothing pending to index")
	}
}
