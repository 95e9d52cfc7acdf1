package crawler

import (
	"errors"
	"strings"
	"testing"
)

const samplePayload = `Title: Moby Dick
Author: Herman Melville
Language: English

*** START OF THE PROJECT GUTENBERG EBOOK MOBY DICK ***

Call me Ishmael.

*** END OF THE PROJECT GUTENBERG EBOOK MOBY DICK ***

More legalese here.`

func TestSplitMarkersStrict(t *testing.T) {
	header, body, err := SplitMarkers(samplePayload)
	if err != nil {
		t.Fatalf("SplitMarkers: %v", err)
	}
	if !strings.Contains(header, "Author: Herman Melville") {
		t.Errorf("header missing author line: %q", header)
	}
	if strings.Contains(header, "START OF") {
		t.Errorf("header contains the start marker: %q", header)
	}
	if body != "Call me Ishmael." {
		t.Errorf("body = %q, want %q", body, "Call me Ishmael.")
	}
}

func TestSplitMarkersLooseFallback(t *testing.T) {
	raw := "preamble ***START OF PROJECT GUTENBERG WHATEVER*** middle ***END OF PROJECT GUTENBERG WHATEVER*** tail"
	header, body, err := SplitMarkers(raw)
	if err != nil {
		t.Fatalf("SplitMarkers: %v", err)
	}
	if header != "preamble" {
		t.Errorf("header = %q, want %q", header, "preamble")
	}
	if body != "middle" {
		t.Errorf("body = %q, want %q", body, "middle")
	}
}

func TestSplitMarkersEndSearchedAfterStart(t *testing.T) {
	// An end marker placed before the start marker must not terminate the
	// body; only the one after the start counts.
	raw := "*** END OF THE PROJECT GUTENBERG EBOOK X ***\n" +
		"*** START OF THE PROJECT GUTENBERG EBOOK X ***\n" +
		"content\n" +
		"*** END OF THE PROJECT GUTENBERG EBOOK X ***\n"
	_, body, err := SplitMarkers(raw)
	if err != nil {
		t.Fatalf("SplitMarkers: %v", err)
	}
	if body != "content" {
		t.Errorf("body = %q, want %q", body, "content")
	}
}

func TestSplitMarkersMissingStart(t *testing.T) {
	_, _, err := SplitMarkers("no markers at all")
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("err = %v, want ErrUnrecognized", err)
	}
}

func TestSplitMarkersMissingEnd(t *testing.T) {
	raw := "*** START OF THE PROJECT GUTENBERG EBOOK X ***\nbody without end"
	_, _, err := SplitMarkers(raw)
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("err = %v, want ErrUnrecognized", err)
	}
}

func TestSplitMarkersCaseInsensitive(t *testing.T) {
	raw := "header\n*** start of the project gutenberg ebook x ***\nbody\n*** end of the project gutenberg ebook x ***\n"
	_, body, err := SplitMarkers(raw)
	if err != nil {
		t.Fatalf("SplitMarkers: %v", err)
	}
	if body != "body" {
		t.Errorf("body = %q, want %q", body, "body")
	}
}
