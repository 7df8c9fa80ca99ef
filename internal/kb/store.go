package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dev-nexus/devnexus/internal/errs"
	"github.com/dev-nexus/devnexus/internal/metrics"
)

// VersionToken is an opaque handle a DocumentStore attaches to a Load and
// expects back on Save — an ETag/content-SHA equivalent used to detect a
// concurrent remote write (spec.md §9's "version-token-based detection").
type VersionToken string

// RemoteDocument bundles a loaded Document with the version token it was
// read at, so Save can decide whether to treat the write as a create (no
// prior token) or an update (existing token), and can report a Conflict
// when the remote token has since moved.
type RemoteDocument struct {
	Doc     Document
	Token   VersionToken // empty if the document does not yet exist remotely
	Exists  bool
}

// DocumentStore abstracts the KB's remote backing medium (spec.md §9). The
// production implementation is a version-controlled GitHub file
// (internal/kb/githubstore); tests use the in-memory implementation in
// internal/kb/memstore.
type DocumentStore interface {
	// Load fetches the current document and its version token. A
	// not-found remote file is not an error: Exists is false and Doc is
	// the empty document.
	Load(ctx context.Context) (RemoteDocument, error)

	// Save persists doc, carrying commitMessage as the backing store's
	// commit message. prevToken is the token Load returned; an empty
	// prevToken means "create". Implementations that can detect a
	// concurrent write should return *errs.Error{Kind: errs.Conflict}
	// when prevToken no longer matches the remote state.
	Save(ctx context.Context, doc Document, prevToken VersionToken, commitMessage string) (VersionToken, error)
}

// Store wraps a DocumentStore with the process-local serialization
// described in spec.md §4.2/§5: concurrent Mutate calls are serialized by
// a single mutex; reads never cache and always re-fetch.
type Store struct {
	backing DocumentStore
	logger  *slog.Logger
	mu      sync.Mutex
}

// New wraps backing in the load/modify/save contract.
func New(backing DocumentStore, logger *slog.Logger) *Store {
	return &Store{backing: backing, logger: logger}
}

// Load fetches and migrates the document. It never takes the mutation
// lock — readers may proceed concurrently with a Mutate, each always
// re-fetching from the backing store (no caching, per spec.md §5).
func (s *Store) Load(ctx context.Context) (Document, error) {
	remote, err := s.backing.Load(ctx)
	if err != nil {
		return Document{}, errs.NewRemoteUnavailable(err)
	}
	if !remote.Exists {
		return NewDocument(), nil
	}
	return Upgrade(remote.Doc), nil
}

// MutateFunc transforms the loaded document and returns the new document
// plus an arbitrary result value to hand back to the Mutate caller.
type MutateFunc func(doc Document) (Document, any, error)

// Mutate loads the document, applies fn, and saves the result under the
// process-local lock (spec.md §4.2). A load failure is fatal to the
// operation; a detected remote conflict is surfaced as errs.Conflict so
// the caller may retry. The commitMessage is passed through to the
// backing store untouched.
func (s *Store) Mutate(ctx context.Context, commitMessage string, fn MutateFunc) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remote, err := s.backing.Load(ctx)
	if err != nil {
		return nil, errs.NewRemoteUnavailable(err)
	}

	doc := NewDocument()
	if remote.Exists {
		doc = Upgrade(remote.Doc)
	}

	newDoc, result, err := fn(doc)
	if err != nil {
		return nil, err
	}
	newDoc.LastUpdated = time.Now().UTC()

	token := remote.Token
	if !remote.Exists {
		token = ""
	}

	if _, err := s.backing.Save(ctx, newDoc, token, commitMessage); err != nil {
		var kbErr *errs.Error
		if errs.As(err, &kbErr) {
			return nil, kbErr
		}
		return nil, errs.NewRemoteUnavailable(err)
	}

	metrics.KnowledgeBaseMutationsTotal.Inc()
	s.logger.Info("knowledge base mutated", "commit_message", commitMessage, "repositories", len(newDoc.Repositories))
	return result, nil
}

// MustMarshal returns doc's JSON encoding and panics if marshaling fails.
// memstore.Seed and the githubstore encoder use it.
func MustMarshal(doc Document) []byte {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("kb: marshal document: %v", err))
	}
	return b
}
