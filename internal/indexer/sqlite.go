package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS inverted (
	term TEXT PRIMARY KEY,
	postings TEXT NOT NULL
);`

// IndexTable is the sqlite datamart representation of the inverted index:
// one row per term with a JSON-encoded, deterministically sorted postings
// list. Upserts are additive; identifiers already present are never removed.
type IndexTable struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenIndexTable opens (or creates) the sqlite datamart at path.
func OpenIndexTable(path string) (*IndexTable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index datamart: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &IndexTable{db: db}, nil
}

// UpsertBatch unions each term's identifiers into its row inside a single
// transaction.
func (t *IndexTable) UpsertBatch(ctx context.Context, batch Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for term, ids := range batch {
		if err := upsertTerm(ctx, tx, term, ids); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index upsert: %w", err)
	}
	return nil
}

func upsertTerm(ctx context.Context, tx *sql.Tx, term string, ids map[string]struct{}) error {
	combined := make(map[string]struct{}, len(ids))
	for id := range ids {
		combined[id] = struct{}{}
	}

	var existing string
	err := tx.QueryRowContext(ctx, `SELECT postings FROM inverted WHERE term = ?`, term).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// first sighting of the term
	case err != nil:
		return fmt.Errorf("reading postings for %q: %w", term, err)
	default:
		var prior []string
		if err := json.Unmarshal([]byte(existing), &prior); err != nil {
			return fmt.Errorf("parsing postings for %q: %w", term, err)
		}
		for _, id := range prior {
			combined[id] = struct{}{}
		}
	}

	list := make([]string, 0, len(combined))
	for id := range combined {
		list = append(list, id)
	}
	SortPostings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshaling postings for %q: %w", term, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO inverted (term, postings) VALUES (?, ?)`, term, string(data)); err != nil {
		return fmt.Errorf("upserting %q: %w", term, err)
	}
	return nil
}

// Postings returns the stored identifiers for term, or nil when the term is
// unknown.
func (t *IndexTable) Postings(ctx context.Context, term string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var raw string
	err := t.db.QueryRowContext(ctx, `SELECT postings FROM inverted WHERE term = ?`, term).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", term, err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", term, err)
	}
	return ids, nil
}

// Close closes the underlying database.
func (t *IndexTable) Close() error {
	return t.db.Close()
}
