package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPrepareFilesIgnoresLockFilesAndVendor(t *testing.T) {
	in := []ChangedFile{
		{Path: "go.sum", DiffText: "..."},
		{Path: "vendor/lib/a.go", DiffText: "..."},
		{Path: "node_modules/x/index.js", DiffText: "..."},
		{Path: "internal/retry/retry.go", DiffText: "+func WithBackoff() {}"},
	}
	out := PrepareFiles(in)
	if len(out) != 1 || out[0].Path != "internal/retry/retry.go" {
		t.Fatalf("expected only the meaningful file to survive, got %+v", out)
	}
}

func TestPrepareFilesTruncatesDiffAndCapsCount(t *testing.T) {
	var in []ChangedFile
	for i := 0; i < MaxFiles+5; i++ {
		in = append(in, ChangedFile{Path: string(rune('a' + i)), DiffText: strings.Repeat("x", MaxDiffChars+100)})
	}
	out := PrepareFiles(in)
	if len(out) != MaxFiles {
		t.Fatalf("expected %d files, got %d", MaxFiles, len(out))
	}
	for _, f := range out {
		if len(f.DiffText) != MaxDiffChars {
			t.Errorf("expected diff truncated to %d chars, got %d", MaxDiffChars, len(f.DiffText))
		}
	}
}

func TestPrepareFilesIgnoresDotfiles(t *testing.T) {
	out := PrepareFiles([]ChangedFile{{Path: ".env", DiffText: "SECRET=1"}})
	if len(out) != 0 {
		t.Errorf("expected dotfiles to be ignored, got %+v", out)
	}
}

func TestHTTPExtractorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
		var in Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(Output{
			Patterns:  []string{"circuit-breaker"},
			CommitSHA: in.CommitSHA,
		})
	}))
	defer srv.Close()

	ext := NewHTTPExtractor(srv.URL, "secret", time.Second)
	out, err := ext.Extract(context.Background(), Input{Repository: "example/service", CommitSHA: "abc123"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(out.Patterns) != 1 || out.Patterns[0] != "circuit-breaker" {
		t.Errorf("Patterns = %v", out.Patterns)
	}
	if out.CommitSHA != "abc123" {
		t.Errorf("CommitSHA = %q", out.CommitSHA)
	}
}

func TestHTTPExtractorSemanticErrorNeverRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ext := NewHTTPExtractor(srv.URL, "", time.Second)
	out, err := ext.Extract(context.Background(), Input{CommitSHA: "abc"})
	if err != nil {
		t.Fatalf("Extract should never return a transport error to the caller, got %v", err)
	}
	if out.Error == "" {
		t.Errorf("expected Output.Error to be populated for a semantic failure")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-2xx response, got %d", calls)
	}
}

func TestHTTPExtractorRetriesOnceOnTransportError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// Simulate a transport failure by closing the connection
			// without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("ResponseWriter does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal(err)
			}
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(Output{Patterns: []string{"retry-worked"}})
	}))
	defer srv.Close()

	ext := NewHTTPExtractor(srv.URL, "", time.Second)
	out, err := ext.Extract(context.Background(), Input{CommitSHA: "abc"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly one retry (2 total calls), got %d", calls)
	}
	if len(out.Patterns) != 1 || out.Patterns[0] != "retry-worked" {
		t.Errorf("expected the retried response to be returned, got %+v", out)
	}
}

func TestFakeExtractorDefaultsCommitSHA(t *testing.T) {
	f := &FakeExtractor{Output: Output{Patterns: []string{"p"}}}
	out, err := f.Extract(context.Background(), Input{CommitSHA: "xyz"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.CommitSHA != "xyz" {
		t.Errorf("CommitSHA = %q, want xyz", out.CommitSHA)
	}
}
