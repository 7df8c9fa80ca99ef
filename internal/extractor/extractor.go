// Package extractor models the opaque external pattern extractor (spec.md
// §4.4, §9): a prompted LLM that turns a commit's diff into a structured
// set of patterns, decisions, and keywords. The interface is one method
// with a fixed JSON contract, which is what makes it trivially fakeable
// in tests and swappable in production without touching any skill.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MaxFiles and MaxDiffChars bound the payload sent to the extractor
// (spec.md §4.4/§5).
const (
	MaxFiles     = 10
	MaxDiffChars = 2000
)

// ChangedFile is one file in an extraction request.
type ChangedFile struct {
	Path     string `json:"path"`
	DiffText string `json:"diff_text"`
}

// Input is the extraction request payload.
type Input struct {
	Repository   string        `json:"repository"`
	CommitSHA    string        `json:"commit_sha"`
	ChangedFiles []ChangedFile `json:"changed_files"`
}

// Component mirrors kb.Component in the extractor's own wire contract, so
// this package has no dependency on internal/kb.
type Component struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Output is the extraction result (spec.md §4.4). Error is set, and every
// field other than CommitSHA and AnalyzedAt left at its zero value, when
// the extractor fails or returns invalid JSON — HTTPExtractor.Extract
// returns such an Output with a nil error instead of an error value.
type Output struct {
	Patterns           []string    `json:"patterns"`
	Decisions          []string    `json:"decisions"`
	ReusableComponents []Component `json:"reusable_components"`
	Dependencies       []string    `json:"dependencies"`
	ProblemDomain      string      `json:"problem_domain"`
	Keywords           []string    `json:"keywords"`
	AnalyzedAt         time.Time   `json:"analyzed_at"`
	CommitSHA          string      `json:"commit_sha"`
	Error              string      `json:"error,omitempty"`
}

// Extractor is the contract every implementation satisfies.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Output, error)
}

// ignoredFilePatterns are filenames that carry no meaningful pattern
// signal: lock files, minified bundles, source maps, compiled caches, VCS
// metadata, OS metadata, and vendor directories (spec.md §4.4).
var ignoredFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)(package-lock\.json|yarn\.lock|pnpm-lock\.yaml|Gemfile\.lock|poetry\.lock|Cargo\.lock|go\.sum)$`),
	regexp.MustCompile(`\.min\.(js|css)$`),
	regexp.MustCompile(`\.map$`),
	regexp.MustCompile(`(^|/)__pycache__/`),
	regexp.MustCompile(`\.pyc$`),
	regexp.MustCompile(`(^|/)\.git/`),
	regexp.MustCompile(`(^|/)(\.DS_Store|Thumbs\.db)$`),
	regexp.MustCompile(`(^|/)vendor/`),
	regexp.MustCompile(`(^|/)node_modules/`),
}

// PrepareFiles filters non-meaningful files, truncates diffs, and caps
// the file count to MaxFiles — the request-shaping step spec.md §4.4
// requires before any call reaches the extractor.
func PrepareFiles(files []ChangedFile) []ChangedFile {
	var kept []ChangedFile
	for _, f := range files {
		if isIgnored(f.Path) {
			continue
		}
		diff := f.DiffText
		if len(diff) > MaxDiffChars {
			diff = diff[:MaxDiffChars]
		}
		kept = append(kept, ChangedFile{Path: f.Path, DiffText: diff})
		if len(kept) == MaxFiles {
			break
		}
	}
	return kept
}

func isIgnored(path string) bool {
	clean := filepath.ToSlash(path)
	for _, re := range ignoredFilePatterns {
		if re.MatchString(clean) {
			return true
		}
	}
	return strings.HasPrefix(clean, ".")
}

// HTTPExtractor calls a remote extraction service over HTTP with a bounded
// timeout. It retries exactly once on a transport error and never retries
// a semantic (non-2xx, well-formed-response) error, per spec.md §4.4.
type HTTPExtractor struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPExtractor builds an extractor client. timeout defaults to 60s.
func NewHTTPExtractor(url, apiKey string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPExtractor{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, in Input) (Output, error) {
	in.ChangedFiles = PrepareFiles(in.ChangedFiles)

	body, err := json.Marshal(in)
	if err != nil {
		return errorOutput(in.CommitSHA, err), nil
	}

	out, err := e.attempt(ctx, body)
	if err != nil && isTransportError(err) {
		out, err = e.attempt(ctx, body) // single retry on transport errors only
	}
	if err != nil {
		return errorOutput(in.CommitSHA, err), nil
	}
	return out, nil
}

func (e *HTTPExtractor) attempt(ctx context.Context, body []byte) (Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Output{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Output{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var out Output
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Output{}, fmt.Errorf("decoding extractor response: %w", err)
	}
	return out, nil
}

func isTransportError(err error) bool {
	// Anything that isn't a well-formed non-2xx response or a decode
	// failure is treated as transport-level and eligible for one retry.
	msg := err.Error()
	return !strings.Contains(msg, "extractor returned status") && !strings.Contains(msg, "decoding extractor response")
}

func errorOutput(commitSHA string, err error) Output {
	return Output{
		CommitSHA:  commitSHA,
		AnalyzedAt: time.Now().UTC(),
		Error:      err.Error(),
	}
}

// FakeExtractor is a test/offline stand-in that returns a fixed Output (or
// a configured error) without making any network call.
type FakeExtractor struct {
	Output Output
	Err    error
}

func (f *FakeExtractor) Extract(_ context.Context, in Input) (Output, error) {
	if f.Err != nil {
		return Output{}, f.Err
	}
	out := f.Output
	if out.CommitSHA == "" {
		out.CommitSHA = in.CommitSHA
	}
	return out, nil
}
