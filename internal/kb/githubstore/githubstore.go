// Package githubstore is the production kb.DocumentStore: the knowledge
// base document lives as a single file in a GitHub repository, and every
// Load/Save is a read/commit against that file's content API. The
// version token is the blob SHA GitHub hands back alongside file
// contents — GitHub rejects an UpdateFile call whose SHA is stale, which
// is exactly the CAS primitive spec.md §9 asks implementations to adopt
// when the backing store supports it.
package githubstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/dev-nexus/devnexus/internal/errs"
	"github.com/dev-nexus/devnexus/internal/kb"
)

// Store implements kb.DocumentStore against a GitHub repository.
type Store struct {
	client *github.Client
	owner  string
	repo   string
	path   string
	branch string
	logger *slog.Logger

	maxRetries int
}

// Config parametrizes the GitHub-backed store.
type Config struct {
	Repo       string // "owner/name"
	Path       string // file path within Repo, e.g. "knowledge_base.json"
	Token      string // credential for the remote repository client
	Branch     string // defaults to the repo's default branch when empty
	MaxRetries int    // defaults to 3
}

// New builds a Store from Config. It mirrors the pack's pattern of
// constructing an authenticated http.Client once and reusing it for
// connection pooling across every call (see the retrying SDK client this
// module descends from).
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	owner, repo, err := splitRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		path = "knowledge_base.json"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = 30 * time.Second
	}

	return &Store{
		client:     github.NewClient(httpClient),
		owner:      owner,
		repo:       repo,
		path:       path,
		branch:     cfg.Branch,
		logger:     logger,
		maxRetries: maxRetries,
	}, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid KNOWLEDGE_BASE_REPO %q: expected \"owner/name\"", repo)
}

// Load fetches the KB file's contents. A 404 from GitHub is translated to
// a non-existent RemoteDocument rather than an error, per spec.md §4.2.
func (s *Store) Load(ctx context.Context) (kb.RemoteDocument, error) {
	var fileContent *github.RepositoryContent
	opts := &github.RepositoryContentGetOptions{Ref: s.branch}

	err := s.withRetry(ctx, "load knowledge base", func() error {
		fc, _, resp, getErr := s.client.Repositories.GetContents(ctx, s.owner, s.repo, s.path, opts)
		if getErr != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil
			}
			return getErr
		}
		fileContent = fc
		return nil
	})
	if err != nil {
		return kb.RemoteDocument{}, fmt.Errorf("loading %s from %s/%s: %w", s.path, s.owner, s.repo, err)
	}
	if fileContent == nil {
		return kb.RemoteDocument{Doc: kb.NewDocument(), Exists: false}, nil
	}

	raw, err := decodeContent(fileContent)
	if err != nil {
		return kb.RemoteDocument{}, fmt.Errorf("decoding %s: %w", s.path, err)
	}

	doc, err := kb.Parse(raw)
	if err != nil {
		return kb.RemoteDocument{}, err
	}

	token := kb.VersionToken("")
	if fileContent.SHA != nil {
		token = kb.VersionToken(*fileContent.SHA)
	}
	return kb.RemoteDocument{Doc: doc, Token: token, Exists: true}, nil
}

func decodeContent(fc *github.RepositoryContent) ([]byte, error) {
	content, err := fc.GetContent()
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// Save commits doc to the KB file. prevToken empty ⇒ CreateFile;
// otherwise UpdateFile with the prior SHA, which GitHub rejects with 409
// if the file has moved since — translated here to errs.Conflict.
func (s *Store) Save(ctx context.Context, doc kb.Document, prevToken kb.VersionToken, commitMessage string) (kb.VersionToken, error) {
	body, err := encodeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("encoding knowledge base document: %w", err)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(commitMessage),
		Content: body,
		Branch:  optionalBranch(s.branch),
	}

	var newSHA string
	err = s.withRetry(ctx, "save knowledge base", func() error {
		var (
			resp    *github.Response
			saveErr error
		)
		if prevToken == "" {
			var rcr *github.RepositoryContentResponse
			rcr, resp, saveErr = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, s.path, opts)
			if saveErr == nil && rcr.Content != nil && rcr.Content.SHA != nil {
				newSHA = *rcr.Content.SHA
			}
		} else {
			opts.SHA = github.Ptr(string(prevToken))
			var rcr *github.RepositoryContentResponse
			rcr, resp, saveErr = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, s.path, opts)
			if saveErr == nil && rcr.Content != nil && rcr.Content.SHA != nil {
				newSHA = *rcr.Content.SHA
			}
		}
		if saveErr != nil && resp != nil && resp.StatusCode == http.StatusConflict {
			return errs.NewConflict()
		}
		return saveErr
	})
	if err != nil {
		var kbErr *errs.Error
		if errors.As(err, &kbErr) {
			return "", kbErr
		}
		return "", fmt.Errorf("saving %s to %s/%s: %w", s.path, s.owner, s.repo, err)
	}

	return kb.VersionToken(newSHA), nil
}

func optionalBranch(branch string) *string {
	if branch == "" {
		return nil
	}
	return github.Ptr(branch)
}

// encodeDocument returns the document's canonical JSON encoding.
// RepositoryContentFileOptions.Content takes raw bytes and base64-encodes
// them itself before sending the request.
func encodeDocument(doc kb.Document) ([]byte, error) {
	return kb.MustMarshal(doc), nil
}

// withRetry retries transport-level failures with exponential backoff, the
// same shape (and retry predicate) as the pack's SDK client retry helper,
// bounded to s.maxRetries retries after the first attempt (s.maxRetries+1
// attempts in all) and never retrying on a detected
// Conflict or a 4xx response.
func (s *Store) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying knowledge base operation", "operation", operation, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
			}
			backoff *= 2
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var kbErr *errs.Error
		if errors.As(err, &kbErr) {
			return err // Conflict and similar are never retried
		}
		if !shouldRetry(err) {
			return fmt.Errorf("%s: %w", operation, err)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", operation, s.maxRetries+1, lastErr)
}

// shouldRetry reports whether err looks like a transient transport
// failure rather than a semantic rejection from GitHub.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode >= 500
	}
	return false
}
