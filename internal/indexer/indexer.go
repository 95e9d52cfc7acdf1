package indexer

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/corpuskit/harvester/internal/datalake"
	"github.com/corpuskit/harvester/internal/events"
	"github.com/corpuskit/harvester/internal/indexer/tokenizer"
	"github.com/corpuskit/harvester/internal/metadata"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
)

// Indexer turns one downloaded document into index postings and a metadata
// record: locate the body blob, tokenize it, merge the resulting batch into
// the cumulative index, and save the extracted metadata.
type Indexer struct {
	lake            *datalake.Store
	merger          *Merger
	meta            *metadata.Store
	emitter         *events.Emitter
	removeStopwords bool
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewIndexer wires an Indexer. meta, emitter, and m may be nil.
func NewIndexer(lake *datalake.Store, merger *Merger, meta *metadata.Store, emitter *events.Emitter, removeStopwords bool, m *metrics.Metrics) *Indexer {
	return &Indexer{
		lake:            lake,
		merger:          merger,
		meta:            meta,
		emitter:         emitter,
		removeStopwords: removeStopwords,
		metrics:         m,
		logger:          logger.WithComponent("indexer"),
	}
}

// IndexDocument indexes the document id. indexed=false with a nil error means
// the body blob is missing or unreadable; the document stays pending and is
// retried on the next tick. A non-nil error means the cumulative index could
// not be persisted, which is fatal to the calling tick.
func (ix *Indexer) IndexDocument(ctx context.Context, id int) (indexed bool, err error) {
	bodyPath, ok := ix.lake.FindBody(id)
	if !ok {
		ix.logger.Warn("body blob not found, leaving document pending", "doc_id", id)
		return false, nil
	}
	body, err := ix.lake.ReadBody(bodyPath)
	if err != nil {
		ix.logger.Warn("body blob unreadable, leaving document pending", "doc_id", id, "error", err)
		return false, nil
	}
	header, err := ix.lake.ReadHeader(bodyPath, id)
	if err != nil {
		ix.logger.Warn("header blob unreadable, extracting nothing", "doc_id", id, "error", err)
		header = ""
	}

	rec := metadata.Extract(id, header, bodyPath)
	if ix.meta != nil {
		if err := ix.meta.Save(ctx, rec); err != nil {
			ix.logger.Warn("metadata save failed", "doc_id", id, "error", err)
		}
	}

	terms := tokenizer.Tokenize(body, ix.removeStopwords)
	batch := make(Batch, len(terms))
	idStr := strconv.Itoa(id)
	for _, term := range terms {
		batch.Add(term, idStr)
	}
	if err := ix.merger.MergeBatch(ctx, batch); err != nil {
		return false, err
	}

	if ix.metrics != nil {
		ix.metrics.DocsIndexedTotal.Inc()
	}
	ix.emitter.Emit(ctx, events.DocumentEvent{
		Type:     events.TypeDocumentIndexed,
		DocID:    id,
		BodyPath: bodyPath,
		Terms:    len(batch),
	})
	ix.logger.Info("document indexed",
		"doc_id", id,
		"title", rec.Title,
		"terms", len(batch),
		"tokens", len(terms),
	)
	return true, nil
}
