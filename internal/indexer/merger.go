// Package indexer maintains the cumulative inverted index across its storage
// representations: an authoritative, human-diffable JSON artifact, a local
// sqlite datamart table, and a Redis set per term. The JSON artifact is
// rewritten in full on every merge; the secondary stores receive additive
// per-term upserts for only the terms touched by the batch.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
	"github.com/corpuskit/harvester/pkg/redis"
	"github.com/corpuskit/harvester/pkg/resilience"
)

// Batch maps terms to the document identifiers contributed by one indexing
// pass. Identifiers are decimal strings to match the serialized form of the
// cumulative artifact.
type Batch map[string]map[string]struct{}

// Add records that id contains term.
func (b Batch) Add(term, id string) {
	ids, ok := b[term]
	if !ok {
		ids = make(map[string]struct{})
		b[term] = ids
	}
	ids[id] = struct{}{}
}

// TermEntry is one row of the serialized cumulative index.
type TermEntry struct {
	Term     string   `json:"term"`
	Postings []string `json:"postings"`
}

const indexFilename = "inverted_index.json"

// Merger folds term batches into the cumulative index. Merge cycles are
// serialized by an internal mutex; concurrent merges of overlapping terms
// would otherwise lose unioned identifiers on the read-modify-write.
type Merger struct {
	path    string
	table   *IndexTable
	rdb     *redis.Client
	timeout time.Duration
	mu      sync.Mutex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// MergerOption customises a Merger.
type MergerOption func(*Merger)

// WithIndexTable attaches the sqlite datamart representation.
func WithIndexTable(t *IndexTable) MergerOption {
	return func(m *Merger) { m.table = t }
}

// WithRedis attaches the Redis set representation.
func WithRedis(c *redis.Client) MergerOption {
	return func(m *Merger) { m.rdb = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(mx *metrics.Metrics) MergerOption {
	return func(m *Merger) { m.metrics = mx }
}

// WithStoreTimeout bounds each secondary store write.
func WithStoreTimeout(d time.Duration) MergerOption {
	return func(m *Merger) { m.timeout = d }
}

// NewMerger creates a Merger whose JSON artifact lives under datamartDir.
func NewMerger(datamartDir string, opts ...MergerOption) (*Merger, error) {
	if err := os.MkdirAll(datamartDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating datamart directory: %w", err)
	}
	m := &Merger{
		path:    filepath.Join(datamartDir, indexFilename),
		timeout: 5 * time.Second,
		logger:  logger.WithComponent("index-merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MergeBatch unions the batch into the cumulative index and persists every
// representation. The JSON artifact is authoritative: a failure to load or
// rewrite it aborts the merge. Secondary store failures are logged and
// counted but never abort the cycle.
func (m *Merger) MergeBatch(ctx context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	cumulative, err := m.loadCumulative()
	if err != nil {
		return err
	}
	for term, ids := range batch {
		acc, ok := cumulative[term]
		if !ok {
			acc = make(map[string]struct{})
			cumulative[term] = acc
		}
		for id := range ids {
			acc[id] = struct{}{}
		}
	}
	if err := m.writeCumulative(cumulative); err != nil {
		return err
	}

	m.upsertSecondaries(ctx, batch)

	if m.metrics != nil {
		m.metrics.MergeDuration.Observe(time.Since(start).Seconds())
		m.metrics.IndexTerms.Set(float64(len(cumulative)))
	}
	m.logger.Info("index merge complete",
		"batch_terms", len(batch),
		"total_terms", len(cumulative),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Snapshot returns the persisted cumulative index in its serialized order.
func (m *Merger) Snapshot() ([]TermEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cumulative, err := m.loadCumulative()
	if err != nil {
		return nil, err
	}
	return toEntries(cumulative), nil
}

// loadCumulative reads the JSON artifact into term -> id set form. A missing
// file is an empty index. Both the current list-of-entries format and the
// legacy map format are accepted; a file that parses as neither is surfaced
// as an error rather than silently clobbered.
func (m *Merger) loadCumulative() (map[string]map[string]struct{}, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("reading cumulative index: %w", err)
	}

	acc := make(map[string]map[string]struct{})
	var entries []TermEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		for _, e := range entries {
			if e.Term == "" {
				continue
			}
			ids, ok := acc[e.Term]
			if !ok {
				ids = make(map[string]struct{})
				acc[e.Term] = ids
			}
			for _, id := range e.Postings {
				ids[id] = struct{}{}
			}
		}
		return acc, nil
	}

	// Legacy format: {"term": ["id", ...], ...}
	var legacy map[string][]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing cumulative index %s: %w", m.path, err)
	}
	for term, ids := range legacy {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		acc[term] = set
	}
	return acc, nil
}

// writeCumulative serializes the full index deterministically and swaps it
// into place with a tmp-file rename so a crash never leaves a torn artifact.
func (m *Merger) writeCumulative(cumulative map[string]map[string]struct{}) error {
	data, err := json.MarshalIndent(toEntries(cumulative), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cumulative index: %w", err)
	}

	tmpPath := m.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing cumulative index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing cumulative index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing cumulative index: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("renaming cumulative index: %w", err)
	}
	return nil
}

func (m *Merger) upsertSecondaries(ctx context.Context, batch Batch) {
	if m.table != nil {
		err := resilience.WithTimeout(ctx, m.timeout, "sqlite-index-upsert", func(ctx context.Context) error {
			return m.table.UpsertBatch(ctx, batch)
		})
		if err != nil {
			m.logger.Warn("sqlite index upsert failed", "error", err)
			if m.metrics != nil {
				m.metrics.StoreErrorsTotal.WithLabelValues("sqlite").Inc()
			}
		}
	}
	if m.rdb != nil {
		err := resilience.WithTimeout(ctx, m.timeout, "redis-index-upsert", func(ctx context.Context) error {
			for term, ids := range batch {
				members := make([]any, 0, len(ids))
				for id := range ids {
					members = append(members, id)
				}
				if err := m.rdb.SAdd(ctx, "index:term:"+term, members...); err != nil {
					return fmt.Errorf("sadd %q: %w", term, err)
				}
			}
			return nil
		})
		if err != nil {
			m.logger.Warn("redis index upsert failed", "error", err)
			if m.metrics != nil {
				m.metrics.StoreErrorsTotal.WithLabelValues("redis").Inc()
			}
		}
	}
}

func toEntries(cumulative map[string]map[string]struct{}) []TermEntry {
	entries := make([]TermEntry, 0, len(cumulative))
	for term, ids := range cumulative {
		postings := make([]string, 0, len(ids))
		for id := range ids {
			postings = append(postings, id)
		}
		SortPostings(postings)
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// SortPostings orders identifiers by length, then lexicographically. This is
// the artifact's stability contract: "7" sorts before "100".
func SortPostings(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}
