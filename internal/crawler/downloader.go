package crawler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/corpuskit/harvester/internal/datalake"
	"github.com/corpuskit/harvester/internal/events"
	"github.com/corpuskit/harvester/internal/ledger"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
)

// Disposition classifies what happened to one download attempt.
type Disposition int

const (
	// DispositionStored means the document was extracted, persisted, and
	// recorded in the downloaded ledger.
	DispositionStored Disposition = iota
	// DispositionNotFound means the repository has no such document.
	DispositionNotFound
	// DispositionUnrecognized means the payload carried no content markers.
	DispositionUnrecognized
	// DispositionTransient means fetching failed after all retries.
	DispositionTransient
)

func (d Disposition) String() string {
	switch d {
	case DispositionStored:
		return "stored"
	case DispositionNotFound:
		return "not_found"
	case DispositionUnrecognized:
		return "unrecognized"
	case DispositionTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Downloader acquires one document end to end: fetch the raw payload, split
// it at the content markers, persist header and body to the datalake, and
// record the identifier in the downloaded ledger.
type Downloader struct {
	fetcher *Fetcher
	lake    *datalake.Store
	ledger  *ledger.Ledger
	emitter *events.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDownloader wires a Downloader. emitter and m may be nil.
func NewDownloader(f *Fetcher, lake *datalake.Store, led *ledger.Ledger, emitter *events.Emitter, m *metrics.Metrics) *Downloader {
	return &Downloader{
		fetcher: f,
		lake:    lake,
		ledger:  led,
		emitter: emitter,
		metrics: m,
		logger:  logger.WithComponent("downloader"),
	}
}

// Download attempts to acquire the document id. Permanent per-document
// conditions (not found, unrecognized format) and transient fetch failures
// are reported through the Disposition and leave the ledger untouched. A
// non-nil error means the datalake or ledger could not be written; that is
// fatal to the calling tick since progress could not be durably recorded.
func (d *Downloader) Download(ctx context.Context, id int) (Disposition, error) {
	res := d.fetcher.Fetch(ctx, id)
	switch res.Outcome {
	case OutcomeNotFound:
		d.logger.Info("document not found at source", "doc_id", id)
		d.countAttempt("not_found")
		return DispositionNotFound, nil
	case OutcomeTransient:
		d.logger.Warn("document fetch failed, skipping this attempt", "doc_id", id, "error", res.Err)
		d.countAttempt("transient")
		return DispositionTransient, nil
	}

	header, body, err := SplitMarkers(res.Body)
	if err != nil {
		if errors.Is(err, ErrUnrecognized) {
			d.logger.Warn("content markers not found", "doc_id", id)
			d.countAttempt("unrecognized")
			return DispositionUnrecognized, nil
		}
		return DispositionUnrecognized, err
	}

	bodyPath, err := d.lake.WriteDocument(id, header, body)
	if err != nil {
		return DispositionTransient, err
	}
	if err := d.lake.ArchiveRaw(id, res.Body); err != nil {
		// The archive copy is a convenience, not part of the contract.
		d.logger.Warn("raw archive write failed", "doc_id", id, "error", err)
	}

	if err := d.ledger.Append(ledger.PhaseDownloaded, id); err != nil {
		return DispositionTransient, err
	}

	d.countAttempt("stored")
	if d.metrics != nil {
		d.metrics.DocsDownloadedTotal.Inc()
	}
	d.emitter.Emit(ctx, events.DocumentEvent{
		Type:     events.TypeDocumentDownloaded,
		DocID:    id,
		BodyPath: bodyPath,
	})
	d.logger.Info("document stored", "doc_id", id, "body_path", bodyPath)
	return DispositionStored, nil
}

func (d *Downloader) countAttempt(outcome string) {
	if d.metrics != nil {
		d.metrics.DownloadAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
