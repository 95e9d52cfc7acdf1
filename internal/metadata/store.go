package metadata

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
	"github.com/corpuskit/harvester/pkg/postgres"
	"github.com/corpuskit/harvester/pkg/redis"
	"github.com/corpuskit/harvester/pkg/resilience"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id     BIGINT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	language   TEXT NOT NULL DEFAULT '',
	body_path  TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

var csvHeader = []string{"doc_id", "title", "author", "language", "body_path"}

// Store persists metadata records. The CSV audit log is always written; the
// Postgres and Redis representations are optional collaborators whose
// failures are logged and counted but never surfaced to the caller.
type Store struct {
	pg      *postgres.Client
	rdb     *redis.Client
	csvPath string
	timeout time.Duration
	mu      sync.Mutex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithPostgres attaches the structured store.
func WithPostgres(pg *postgres.Client) StoreOption {
	return func(s *Store) { s.pg = pg }
}

// WithRedis attaches the hash mirror.
func WithRedis(rdb *redis.Client) StoreOption {
	return func(s *Store) { s.rdb = rdb }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithStoreTimeout bounds each remote store write.
func WithStoreTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.timeout = d }
}

// NewStore creates a Store writing its audit log to csvPath. When Postgres is
// attached, the documents table is created if missing.
func NewStore(csvPath string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		csvPath: csvPath,
		timeout: 5 * time.Second,
		logger:  logger.WithComponent("metadata-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	if s.pg != nil {
		if _, err := s.pg.DB.Exec(pgSchema); err != nil {
			return nil, fmt.Errorf("ensuring documents schema: %w", err)
		}
	}
	return s, nil
}

// Save persists rec across every configured representation. The returned
// error covers only the local audit log; remote store failures degrade to
// warnings.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if err := s.appendAudit(rec); err != nil {
		return err
	}
	s.saveRemote(ctx, rec)
	return nil
}

// appendAudit adds one row to the CSV log, writing the header row first when
// the file is new.
func (s *Store) appendAudit(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.csvPath)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening metadata audit log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing audit header: %w", err)
		}
	}
	row := []string{strconv.Itoa(rec.DocID), rec.Title, rec.Author, rec.Language, rec.BodyPath}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing audit row for %d: %w", rec.DocID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing audit log: %w", err)
	}
	return nil
}

func (s *Store) saveRemote(ctx context.Context, rec Record) {
	if s.pg != nil {
		err := resilience.WithTimeout(ctx, s.timeout, "postgres-metadata-upsert", func(ctx context.Context) error {
			return s.pg.InTx(ctx, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO documents (doc_id, title, author, language, body_path, updated_at)
					VALUES ($1, $2, $3, $4, $5, NOW())
					ON CONFLICT (doc_id) DO UPDATE SET
						title = EXCLUDED.title,
						author = EXCLUDED.author,
						language = EXCLUDED.language,
						body_path = EXCLUDED.body_path,
						updated_at = NOW()`,
					rec.DocID, rec.Title, rec.Author, rec.Language, rec.BodyPath,
				)
				return err
			})
		})
		if err != nil {
			s.logger.Warn("postgres metadata upsert failed", "doc_id", rec.DocID, "error", err)
			s.countError("postgres")
		}
	}
	if s.rdb != nil {
		err := resilience.WithTimeout(ctx, s.timeout, "redis-metadata-hset", func(ctx context.Context) error {
			return s.rdb.HSet(ctx, fmt.Sprintf("metadata:%d", rec.DocID),
				"title", rec.Title,
				"author", rec.Author,
				"language", rec.Language,
				"body_path", rec.BodyPath,
			)
		})
		if err != nil {
			s.logger.Warn("redis metadata hset failed", "doc_id", rec.DocID, "error", err)
			s.countError("redis")
		}
	}
}

// Get reads the structured record for id from Postgres. It reports ok=false
// when no store is attached or the document is unknown.
func (s *Store) Get(ctx context.Context, id int) (Record, bool, error) {
	if s.pg == nil {
		return Record{}, false, nil
	}
	var rec Record
	err := s.pg.DB.QueryRowContext(ctx,
		`SELECT doc_id, title, author, language, body_path FROM documents WHERE doc_id = $1`, id,
	).Scan(&rec.DocID, &rec.Title, &rec.Author, &rec.Language, &rec.BodyPath)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("reading metadata for %d: %w", id, err)
	}
	return rec, true, nil
}

func (s *Store) countError(backend string) {
	if s.metrics != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues(backend).Inc()
	}
}
