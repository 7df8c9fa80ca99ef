// Package docsource abstracts read access to a tracked repository's
// documentation files and recent commit history — the data the
// documentation-standards skill family (spec.md §4.7 Family E) checks
// against. It is deliberately separate from internal/kb/githubstore:
// that package owns the single knowledge-base file, this package reads
// arbitrary repositories by name.
package docsource

import (
	"context"
	"strings"
	"time"
)

// DocFile is one documentation file found in a repository.
type DocFile struct {
	Path    string
	Content string
}

// CommitFiles is the file-level shape of one commit in the lookback
// window.
type CommitFiles struct {
	SHA       string
	Timestamp time.Time
	Files     []string
}

// Source reads documentation files and recent commit history for a
// named repository.
type Source interface {
	// ListMarkdownFiles returns every tracked .md file in repo.
	ListMarkdownFiles(ctx context.Context, repo string) ([]DocFile, error)

	// RecentCommits returns commits to repo since the given time.
	RecentCommits(ctx context.Context, repo string, since time.Time) ([]CommitFiles, error)
}

// IsDocFile reports whether path looks like a documentation file — used
// to split RecentCommits' file lists into code vs. doc changes.
func IsDocFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".mdx") || strings.Contains(lower, "docs/")
}
