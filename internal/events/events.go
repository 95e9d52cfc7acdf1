// Package events defines the pipeline events published after successful
// downloads and index merges, and a nil-safe Kafka emitter for them. Event
// publishing is observational: a failed publish never affects the pipeline.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/corpuskit/harvester/pkg/kafka"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
)

const (
	TypeDocumentDownloaded = "document.downloaded"
	TypeDocumentIndexed    = "document.indexed"
)

// DocumentEvent is the unit published to the document-events topic.
type DocumentEvent struct {
	Type       string    `json:"type"`
	DocID      int       `json:"doc_id"`
	BodyPath   string    `json:"body_path,omitempty"`
	Terms      int       `json:"terms,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter publishes DocumentEvents. A nil Emitter, or one constructed with a
// nil producer, drops events silently.
type Emitter struct {
	producer *kafka.Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEmitter creates an Emitter backed by the given producer. Both arguments
// may be nil.
func NewEmitter(p *kafka.Producer, m *metrics.Metrics) *Emitter {
	return &Emitter{
		producer: p,
		metrics:  m,
		logger:   logger.WithComponent("events"),
	}
}

// Emit publishes ev keyed by document identifier. Failures are logged and
// counted, never returned.
func (e *Emitter) Emit(ctx context.Context, ev DocumentEvent) {
	if e == nil || e.producer == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	err := e.producer.Publish(ctx, kafka.Event{
		Key:   strconv.Itoa(ev.DocID),
		Value: ev,
	})
	if err != nil {
		e.logger.Warn("event publish failed", "type", ev.Type, "doc_id", ev.DocID, "error", err)
		if e.metrics != nil {
			e.metrics.StoreErrorsTotal.WithLabelValues("kafka").Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.EventsPublishedTotal.WithLabelValues(ev.Type).Inc()
	}
}
