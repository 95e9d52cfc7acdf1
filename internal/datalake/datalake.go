// Package datalake implements the append-only, time-partitioned document
// store. Each document identifier owns two immutable UTF-8 blobs, a header
// and a body, stored under an ingestion-time partition directory
// (YYYYMMDD/HH). Blobs are created once and never mutated.
package datalake

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Store reads and writes document blobs under a root directory.
type Store struct {
	root    string
	rawRoot string
	now     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithRawRoot enables archiving of the unprocessed payload alongside the
// extracted blobs.
func WithRawRoot(dir string) Option {
	return func(s *Store) { s.rawRoot = dir }
}

// WithClock overrides the partition timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store rooted at root.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root: root,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the datalake root directory.
func (s *Store) Root() string {
	return s.root
}

// PathsFor returns the header and body paths for id under the partition
// directory derived from ts.
func (s *Store) PathsFor(id int, ts time.Time) (headerPath, bodyPath string) {
	dir := filepath.Join(s.root, ts.Format("20060102"), ts.Format("15"))
	return filepath.Join(dir, fmt.Sprintf("%d.header.txt", id)),
		filepath.Join(dir, fmt.Sprintf("%d.body.txt", id))
}

// WriteDocument persists the header and body blobs for id under the current
// partition and returns the body path. The body is written before the header
// so a partially written document is detectable by a missing header.
func (s *Store) WriteDocument(id int, header, body string) (string, error) {
	headerPath, bodyPath := s.PathsFor(id, s.now())
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return "", fmt.Errorf("creating partition directory: %w", err)
	}
	if err := os.WriteFile(bodyPath, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing body for %d: %w", id, err)
	}
	if err := os.WriteFile(headerPath, []byte(header), 0o644); err != nil {
		return "", fmt.Errorf("writing header for %d: %w", id, err)
	}
	return bodyPath, nil
}

// ArchiveRaw writes the unprocessed payload for id to the raw archive. It is
// a no-op when no raw root is configured.
func (s *Store) ArchiveRaw(id int, raw string) error {
	if s.rawRoot == "" {
		return nil
	}
	if err := os.MkdirAll(s.rawRoot, 0o755); err != nil {
		return fmt.Errorf("creating raw archive directory: %w", err)
	}
	path := filepath.Join(s.rawRoot, fmt.Sprintf("%d.txt", id))
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return fmt.Errorf("archiving raw payload for %d: %w", id, err)
	}
	return nil
}

// FindBody walks the partition tree for the body blob of id. It returns the
// first match; documents are written at most once so duplicates only arise
// from manual copies, in which case any partition is as good as another.
func (s *Store) FindBody(id int) (string, bool) {
	target := fmt.Sprintf("%d.body.txt", id)
	var found string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && d.Name() == target {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil || found == "" {
		return "", false
	}
	return found, true
}

// ReadBody returns the body blob stored at bodyPath.
func (s *Store) ReadBody(bodyPath string) (string, error) {
	data, err := os.ReadFile(bodyPath)
	if err != nil {
		return "", fmt.Errorf("reading body %s: %w", bodyPath, err)
	}
	return string(data), nil
}

// ReadHeader returns the header blob that sits next to bodyPath. A missing
// header yields an empty string; headers are optional at read time since the
// body alone is indexable.
func (s *Store) ReadHeader(bodyPath string, id int) (string, error) {
	headerPath := filepath.Join(filepath.Dir(bodyPath), fmt.Sprintf("%d.header.txt", id))
	data, err := os.ReadFile(headerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading header %s: %w", headerPath, err)
	}
	return string(data), nil
}
