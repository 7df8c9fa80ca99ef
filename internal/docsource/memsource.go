package docsource

import (
	"context"
	"time"
)

// MemSource is an in-memory Source used by tests, keyed by repository
// name.
type MemSource struct {
	Docs    map[string][]DocFile
	Commits map[string][]CommitFiles
}

// NewMemSource builds an empty MemSource.
func NewMemSource() *MemSource {
	return &MemSource{Docs: map[string][]DocFile{}, Commits: map[string][]CommitFiles{}}
}

func (m *MemSource) ListMarkdownFiles(_ context.Context, repo string) ([]DocFile, error) {
	return m.Docs[repo], nil
}

func (m *MemSource) RecentCommits(_ context.Context, repo string, since time.Time) ([]CommitFiles, error) {
	var out []CommitFiles
	for _, c := range m.Commits[repo] {
		if !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}
