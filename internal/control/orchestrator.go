// Package control implements the acquisition-and-indexing control loop. Each
// tick consults the control ledger and either indexes the pending backlog or
// spends the session's download budget acquiring new documents. Indexing is
// always preferred: it keeps the downloaded-but-not-searchable backlog at
// zero before any network budget is spent.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corpuskit/harvester/internal/crawler"
	"github.com/corpuskit/harvester/internal/indexer"
	"github.com/corpuskit/harvester/internal/ledger"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
)

// Phase is the orchestrator's current state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIndexing
	PhaseDownloading
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIndexing:
		return "indexing"
	case PhaseDownloading:
		return "downloading"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config bounds one harvesting session.
type Config struct {
	// TargetNewDownloads is how many new documents a download phase aims
	// for. Zero or negative disables downloading.
	TargetNewDownloads int
	// TotalTries caps candidate draws per download phase, bounding the
	// loop when the identifier space is exhausted or persistently failing.
	TotalTries int
	// MaxRounds caps Run's tick loop. Zero or negative means no cap.
	MaxRounds int
	// DownloadWorkers is the download-phase concurrency. Values below 1
	// mean sequential.
	DownloadWorkers int
}

// Orchestrator drives the pipeline components according to the control
// ledger.
type Orchestrator struct {
	ledger     *ledger.Ledger
	indexer    *indexer.Indexer
	downloader *crawler.Downloader
	candidates crawler.Source
	cfg        Config
	metrics    *metrics.Metrics

	phaseMu sync.Mutex
	phase   Phase
}

// New wires an Orchestrator. m may be nil.
func New(led *ledger.Ledger, ix *indexer.Indexer, dl *crawler.Downloader, candidates crawler.Source, cfg Config, m *metrics.Metrics) *Orchestrator {
	if cfg.TotalTries <= 0 {
		cfg.TotalTries = 100000
	}
	if cfg.DownloadWorkers < 1 {
		cfg.DownloadWorkers = 1
	}
	return &Orchestrator{
		ledger:     led,
		indexer:    ix,
		downloader: dl,
		candidates: candidates,
		cfg:        cfg,
		metrics:    m,
		phase:      PhaseIdle,
	}
}

// Phase returns the phase the orchestrator most recently entered.
func (o *Orchestrator) Phase() Phase {
	o.phaseMu.Lock()
	defer o.phaseMu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phaseMu.Lock()
	o.phase = p
	o.phaseMu.Unlock()
	if o.metrics != nil && p != PhaseDone {
		o.metrics.TicksTotal.WithLabelValues(p.String()).Inc()
	}
}

// Tick runs one control-loop iteration and reports whether progress was
// made. With a non-empty pending backlog it indexes every pending document
// and returns true; per-document failures are logged and stay pending, since
// attempting the backlog is itself forward motion. Otherwise it spends the
// session's download budget and returns true only if at least one new
// document was stored. A non-nil error means ledger or index state could not
// be durably recorded; no progress is claimed in that case.
func (o *Orchestrator) Tick(ctx context.Context) (bool, error) {
	log := logger.FromContext(ctx).With("component", "orchestrator")

	downloaded, err := o.ledger.Load(ledger.PhaseDownloaded)
	if err != nil {
		return false, err
	}
	indexed, err := o.ledger.Load(ledger.PhaseIndexed)
	if err != nil {
		return false, err
	}
	if o.metrics != nil {
		o.metrics.LedgerSize.WithLabelValues(string(ledger.PhaseDownloaded)).Set(float64(len(downloaded)))
		o.metrics.LedgerSize.WithLabelValues(string(ledger.PhaseIndexed)).Set(float64(len(indexed)))
	}

	pending := make([]int, 0, len(downloaded))
	for id := range downloaded {
		if _, done := indexed[id]; !done {
			pending = append(pending, id)
		}
	}
	sort.Ints(pending)

	if len(pending) > 0 {
		o.setPhase(PhaseIndexing)
		log.Info("indexing pending documents", "pending", len(pending))
		for _, id := range pending {
			if err := ctx.Err(); err != nil {
				return false, fmt.Errorf("indexing interrupted: %w", err)
			}
			ok, err := o.indexer.IndexDocument(ctx, id)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			if err := o.ledger.Append(ledger.PhaseIndexed, id); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	if o.cfg.TargetNewDownloads <= 0 {
		o.setPhase(PhaseIdle)
		log.Info("nothing to index and no download target this session")
		return false, nil
	}

	o.setPhase(PhaseDownloading)
	n, err := o.downloadPhase(ctx, downloaded, log)
	if err != nil {
		return false, err
	}
	if n == 0 {
		log.Info("no progress: no new downloads succeeded")
	}
	return n > 0, nil
}

// downloadPhase draws candidate identifiers until the session target is
// reached or the draw budget is exhausted. Draws and the shared downloaded
// set are serialized under one mutex; the fetch-extract-persist work runs on
// up to DownloadWorkers goroutines. With more than one worker the session can
// overshoot the target by the number of attempts in flight.
func (o *Orchestrator) downloadPhase(ctx context.Context, downloaded map[int]struct{}, log *slog.Logger) (int, error) {
	var (
		mu           sync.Mutex
		newDownloads int
		tries        int
		inFlight     = make(map[int]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.DownloadWorkers)

	for {
		if gctx.Err() != nil {
			break
		}
		mu.Lock()
		if newDownloads >= o.cfg.TargetNewDownloads || tries >= o.cfg.TotalTries {
			mu.Unlock()
			break
		}
		tries++
		try := tries
		id := o.candidates.Next()
		if id <= 0 {
			mu.Unlock()
			continue
		}
		if _, dup := downloaded[id]; dup {
			mu.Unlock()
			continue
		}
		if _, busy := inFlight[id]; busy {
			mu.Unlock()
			continue
		}
		inFlight[id] = struct{}{}
		mu.Unlock()

		log.Info("attempting download", "doc_id", id, "try", try)
		g.Go(func() error {
			disp, err := o.downloader.Download(gctx, id)
			mu.Lock()
			delete(inFlight, id)
			if err == nil && disp == crawler.DispositionStored {
				downloaded[id] = struct{}{}
				newDownloads++
				log.Info("downloaded new document",
					"doc_id", id,
					"session_downloads", newDownloads,
					"target", o.cfg.TargetNewDownloads,
				)
			}
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return newDownloads, err
	}
	return newDownloads, nil
}

// Run re-invokes Tick until a tick reports no progress, the configured round
// cap is reached, or the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rounds++
		tickCtx := logger.WithTick(ctx, rounds)
		progressed, err := o.Tick(tickCtx)
		if err != nil {
			return fmt.Errorf("tick %d: %w", rounds, err)
		}
		if !progressed {
			break
		}
		if o.cfg.MaxRounds > 0 && rounds >= o.cfg.MaxRounds {
			logger.FromContext(ctx).Info("round cap reached", "rounds", rounds)
			break
		}
	}
	o.setPhase(PhaseDone)
	return nil
}
