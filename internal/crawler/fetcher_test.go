package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corpuskit/harvester/pkg/config"
)

func testSourceConfig(url string) config.SourceConfig {
	return config.SourceConfig{
		BaseURL:    url,
		Suffixes:   []string{".txt", ".txt.utf8"},
		UserAgent:  "harvester-test",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1342/pg1342.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewFetcher(testSourceConfig(srv.URL), nil)
	res := f.Fetch(context.Background(), 1342)
	if res.Outcome != OutcomeBody {
		t.Fatalf("outcome = %v, want body (err: %v)", res.Outcome, res.Err)
	}
	if res.Body != "payload" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestFetchFallbackSuffix(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/55/pg55.txt.utf8" {
			w.Write([]byte("utf8 payload"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testSourceConfig(srv.URL), nil)
	res := f.Fetch(context.Background(), 55)
	if res.Outcome != OutcomeBody {
		t.Fatalf("outcome = %v, want body", res.Outcome)
	}
	if res.Body != "utf8 payload" {
		t.Errorf("body = %q", res.Body)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected primary then fallback (2 requests), got %d", n)
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(testSourceConfig(srv.URL), nil)
	res := f.Fetch(context.Background(), 55)
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("outcome = %v, want not_found", res.Outcome)
	}
	// one request per suffix, no retries: not-found is permanent
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected 2 requests (one per suffix), got %d", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := NewFetcher(testSourceConfig(srv.URL), nil)
	res := f.Fetch(context.Background(), 7)
	if res.Outcome != OutcomeBody {
		t.Fatalf("outcome = %v, want body after retries (err: %v)", res.Outcome, res.Err)
	}
	if res.Body != "recovered" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestFetchTransientAfterExhaustedRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewFetcher(testSourceConfig(srv.URL), nil)
	res := f.Fetch(context.Background(), 7)
	if res.Outcome != OutcomeTransient {
		t.Fatalf("outcome = %v, want transient", res.Outcome)
	}
	if res.Err == nil {
		t.Error("transient result must carry the last failure")
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}
