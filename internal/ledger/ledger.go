// Package ledger implements the durable control ledger: append-only,
// newline-delimited identifier lists recording which documents completed the
// download and index phases. The ledger is the single source of truth for
// duplicate avoidance and resumability.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Phase names one of the two ledger files.
type Phase string

const (
	PhaseDownloaded Phase = "downloaded"
	PhaseIndexed    Phase = "indexed"
)

func (p Phase) filename() string {
	return string(p) + ".txt"
}

// Ledger reads and appends identifier entries under a single control
// directory. Appends are serialized and flushed to disk before returning, so
// a crash loses at most the in-flight entry. The ledger itself does not
// enforce uniqueness; callers are expected to consult Load before appending.
type Ledger struct {
	dir string
	mu  sync.Mutex
}

// New creates a Ledger rooted at dir, creating the directory if needed.
func New(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating control directory: %w", err)
	}
	return &Ledger{dir: dir}, nil
}

// Load reads the ledger file for the given phase into a set. A missing file
// is an empty set. Repeated lines and surrounding whitespace are tolerated
// and deduplicated; lines that do not parse as positive integers are skipped.
func (l *Ledger) Load(phase Phase) (map[int]struct{}, error) {
	f, err := os.Open(filepath.Join(l.dir, phase.filename()))
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]struct{}{}, nil
		}
		return nil, fmt.Errorf("opening %s ledger: %w", phase, err)
	}
	defer f.Close()

	ids := make(map[int]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s ledger: %w", phase, err)
	}
	return ids, nil
}

// Append records an identifier for the given phase. The write is fsynced
// before Append returns.
func (l *Ledger) Append(phase Phase, id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(l.dir, phase.filename()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s ledger for append: %w", phase, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", id); err != nil {
		return fmt.Errorf("appending %d to %s ledger: %w", id, phase, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s ledger: %w", phase, err)
	}
	return nil
}
