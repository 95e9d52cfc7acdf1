package control

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/corpuskit/harvester/internal/crawler"
	"github.com/corpuskit/harvester/internal/datalake"
	"github.com/corpuskit/harvester/internal/indexer"
	"github.com/corpuskit/harvester/internal/ledger"
	"github.com/corpuskit/harvester/pkg/config"
)

// docServer serves marker-wrapped documents for a fixed id set and counts
// requests per path.
type docServer struct {
	mu     sync.Mutex
	bodies map[int]string
	hits   map[string]int
}

func newDocServer(bodies map[int]string) (*docServer, *httptest.Server) {
	ds := &docServer{bodies: bodies, hits: make(map[string]int)}
	srv := httptest.NewServer(ds)
	return ds, srv
}

func (ds *docServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ds.mu.Lock()
	ds.hits[r.URL.Path]++
	ds.mu.Unlock()
	for id, body := range ds.bodies {
		if r.URL.Path == fmt.Sprintf("/%d/pg%d.txt", id, id) {
			fmt.Fprintf(w, "Title: Document %d\nAuthor: Nobody\nLanguage: English\n\n"+
				"*** START OF THE PROJECT GUTENBERG EBOOK DOCUMENT %d ***\n%s\n"+
				"*** END OF THE PROJECT GUTENBERG EBOOK DOCUMENT %d ***\n", id, id, body, id)
			return
		}
	}
	http.NotFound(w, r)
}

func (ds *docServer) hitsFor(id int) int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	n := 0
	for path, c := range ds.hits {
		if path == fmt.Sprintf("/%d/pg%d.txt", id, id) || path == fmt.Sprintf("/%d/pg%d.txt.utf8", id, id) {
			n += c
		}
	}
	return n
}

type pipeline struct {
	orch   *Orchestrator
	led    *ledger.Ledger
	lake   *datalake.Store
	merger *indexer.Merger
	server *docServer
}

func newTestPipeline(t *testing.T, bodies map[int]string, candidates []int, cfg Config) *pipeline {
	t.Helper()
	dir := t.TempDir()

	ds, srv := newDocServer(bodies)
	t.Cleanup(srv.Close)

	led, err := ledger.New(filepath.Join(dir, "control"))
	if err != nil {
		t.Fatal(err)
	}
	lake := datalake.New(filepath.Join(dir, "datalake"))
	merger, err := indexer.NewMerger(filepath.Join(dir, "datamart"))
	if err != nil {
		t.Fatal(err)
	}

	fetcher := crawler.NewFetcher(config.SourceConfig{
		BaseURL:    srv.URL,
		Suffixes:   []string{".txt", ".txt.utf8"},
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}, nil)
	dl := crawler.NewDownloader(fetcher, lake, led, nil, nil)
	ix := indexer.NewIndexer(lake, merger, nil, nil, false, nil)

	orch := New(led, ix, dl, crawler.NewSequenceSource(candidates...), cfg, nil)
	return &pipeline{orch: orch, led: led, lake: lake, merger: merger, server: ds}
}

func TestTickDownloadsThenIndexes(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{7: "whale sea", 100: "whale ship"},
		[]int{7, 100},
		Config{TargetNewDownloads: 2, TotalTries: 10},
	)
	ctx := context.Background()

	progressed, err := p.orch.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !progressed {
		t.Fatal("download tick must report progress")
	}
	if got := p.orch.Phase(); got != PhaseDownloading {
		t.Errorf("phase = %v, want downloading", got)
	}
	downloaded, err := p.led.Load(ledger.PhaseDownloaded)
	if err != nil {
		t.Fatal(err)
	}
	if len(downloaded) != 2 {
		t.Fatalf("downloaded ledger = %v, want ids 7 and 100", downloaded)
	}

	progressed, err = p.orch.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !progressed {
		t.Fatal("indexing tick must report progress")
	}
	if got := p.orch.Phase(); got != PhaseIndexing {
		t.Errorf("phase = %v, want indexing", got)
	}
	indexed, err := p.led.Load(ledger.PhaseIndexed)
	if err != nil {
		t.Fatal(err)
	}
	if len(indexed) != 2 {
		t.Fatalf("indexed ledger = %v, want ids 7 and 100", indexed)
	}

	entries, err := p.merger.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	byTerm := make(map[string][]string, len(entries))
	for _, e := range entries {
		byTerm[e.Term] = e.Postings
	}
	whale, ok := byTerm["whale"]
	if !ok || len(whale) != 2 || whale[0] != "7" || whale[1] != "100" {
		t.Errorf("whale postings = %v, want [7 100]", whale)
	}
	if ship := byTerm["ship"]; len(ship) != 1 || ship[0] != "100" {
		t.Errorf("ship postings = %v, want [100]", ship)
	}
}

func TestTickSkipsAlreadyDownloaded(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{7: "whale"},
		[]int{7},
		Config{TargetNewDownloads: 1, TotalTries: 5},
	)
	ctx := context.Background()

	// download, then index, then one more tick that can only redraw id 7
	for i := 0; i < 2; i++ {
		if _, err := p.orch.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	progressed, err := p.orch.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if progressed {
		t.Error("tick with only known candidates must not report progress")
	}
	if n := p.server.hitsFor(7); n != 1 {
		t.Errorf("id 7 fetched %d times, want exactly once", n)
	}
}

func TestTickMissingBodyStaysPending(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{7: "whale sea"},
		[]int{7},
		Config{TargetNewDownloads: 1, TotalTries: 5},
	)
	ctx := context.Background()

	if _, err := p.orch.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	bodyPath, ok := p.lake.FindBody(7)
	if !ok {
		t.Fatal("body blob not written by the download tick")
	}
	hidden := bodyPath + ".hidden"
	if err := os.Rename(bodyPath, hidden); err != nil {
		t.Fatal(err)
	}

	progressed, err := p.orch.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !progressed {
		t.Error("attempting the pending backlog must count as progress")
	}
	indexed, err := p.led.Load(ledger.PhaseIndexed)
	if err != nil {
		t.Fatal(err)
	}
	if len(indexed) != 0 {
		t.Fatalf("indexed ledger = %v, want empty while the body is missing", indexed)
	}

	if err := os.Rename(hidden, bodyPath); err != nil {
		t.Fatal(err)
	}
	if _, err := p.orch.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	indexed, err = p.led.Load(ledger.PhaseIndexed)
	if err != nil {
		t.Fatal(err)
	}
	if _, done := indexed[7]; !done {
		t.Errorf("indexed ledger = %v, want id 7 once the body is back", indexed)
	}
}

func TestTickNotFoundLeavesNoTrace(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{}, // every candidate 404s
		[]int{55},
		Config{TargetNewDownloads: 1, TotalTries: 3},
	)

	progressed, err := p.orch.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if progressed {
		t.Error("all-404 tick must not report progress")
	}
	downloaded, err := p.led.Load(ledger.PhaseDownloaded)
	if err != nil {
		t.Fatal(err)
	}
	if len(downloaded) != 0 {
		t.Errorf("downloaded ledger = %v, want empty", downloaded)
	}
}

func TestTickIdleWithoutTargetOrBacklog(t *testing.T) {
	p := newTestPipeline(t, map[int]string{}, nil, Config{TargetNewDownloads: 0})

	progressed, err := p.orch.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if progressed {
		t.Error("idle tick must not report progress")
	}
	if got := p.orch.Phase(); got != PhaseIdle {
		t.Errorf("phase = %v, want idle", got)
	}
}

func TestRunDrivesFullCycle(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{7: "whale sea", 100: "whale ship"},
		[]int{7, 100},
		Config{TargetNewDownloads: 2, TotalTries: 10, MaxRounds: 5},
	)

	if err := p.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.orch.Phase(); got != PhaseDone {
		t.Errorf("phase = %v, want done", got)
	}
	indexed, err := p.led.Load(ledger.PhaseIndexed)
	if err != nil {
		t.Fatal(err)
	}
	if len(indexed) != 2 {
		t.Errorf("indexed ledger = %v, want both documents indexed", indexed)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	p := newTestPipeline(t,
		map[int]string{7: "whale"},
		[]int{7},
		Config{TargetNewDownloads: 1, TotalTries: 5},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.orch.Run(ctx); err == nil {
		t.Error("cancelled run must return the context error")
	}
}
