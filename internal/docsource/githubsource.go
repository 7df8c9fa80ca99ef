package docsource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubSource implements Source against the real GitHub API, reusing the
// same authenticated-client construction as internal/kb/githubstore.
type GitHubSource struct {
	client *github.Client
}

// NewGitHubSource builds a Source backed by GitHub. An empty token yields
// an unauthenticated client, sufficient for public repositories but
// subject to GitHub's lower unauthenticated rate limit.
func NewGitHubSource(token string) *GitHubSource {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = 30 * time.Second
	}
	return &GitHubSource{client: github.NewClient(httpClient)}
}

func (s *GitHubSource) ListMarkdownFiles(ctx context.Context, repo string) ([]DocFile, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	tree, _, err := s.client.Git.GetTree(ctx, owner, name, "HEAD", true)
	if err != nil {
		return nil, fmt.Errorf("listing tree for %s: %w", repo, err)
	}

	var files []DocFile
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" || !strings.HasSuffix(strings.ToLower(entry.GetPath()), ".md") {
			continue
		}
		fc, _, _, err := s.client.Repositories.GetContents(ctx, owner, name, entry.GetPath(), nil)
		if err != nil {
			continue // a single unreadable file shouldn't fail the whole scan
		}
		content, err := fc.GetContent()
		if err != nil {
			continue
		}
		files = append(files, DocFile{Path: entry.GetPath(), Content: content})
	}
	return files, nil
}

func (s *GitHubSource) RecentCommits(ctx context.Context, repo string, since time.Time) ([]CommitFiles, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	commits, _, err := s.client.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{Since: since})
	if err != nil {
		return nil, fmt.Errorf("listing commits for %s: %w", repo, err)
	}

	out := make([]CommitFiles, 0, len(commits))
	for _, c := range commits {
		full, _, err := s.client.Repositories.GetCommit(ctx, owner, name, c.GetSHA(), nil)
		if err != nil {
			continue
		}
		files := make([]string, 0, len(full.Files))
		for _, f := range full.Files {
			files = append(files, f.GetFilename())
		}
		out = append(out, CommitFiles{
			SHA:       c.GetSHA(),
			Timestamp: c.GetCommit().GetCommitter().GetDate().Time,
			Files:     files,
		})
	}
	return out, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid repository %q: expected \"owner/name\"", repo)
}
