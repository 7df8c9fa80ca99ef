// Package memstore is an in-memory kb.DocumentStore used by tests
// (spec.md §9: "a real implementation
// and an in-memory map for tests").
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/dev-nexus/devnexus/internal/errs"
	"github.com/dev-nexus/devnexus/internal/kb"
)

// Store is a trivially concurrent-safe DocumentStore backed by a single
// in-process slot. Its version token is a content hash, giving it the
// same conflict-detection shape as the GitHub-backed store without any
// network dependency.
type Store struct {
	mu     sync.Mutex
	data   []byte // nil means "does not exist"
	token  kb.VersionToken
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Seed preloads the store with doc, as if it had already been written
// once. Useful for tests that want to start from a non-empty KB.
func (s *Store) Seed(doc kb.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := kb.MustMarshal(doc)
	s.data = data
	s.token = hashToken(data)
}

func (s *Store) Load(ctx context.Context) (kb.RemoteDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return kb.RemoteDocument{Doc: kb.NewDocument(), Exists: false}, nil
	}

	doc, err := kb.Parse(s.data)
	if err != nil {
		return kb.RemoteDocument{}, err
	}
	return kb.RemoteDocument{Doc: doc, Token: s.token, Exists: true}, nil
}

func (s *Store) Save(ctx context.Context, doc kb.Document, prevToken kb.VersionToken, commitMessage string) (kb.VersionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data != nil && prevToken != s.token {
		return "", errs.NewConflict()
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	s.data = data
	s.token = hashToken(data)
	return s.token, nil
}

func hashToken(data []byte) kb.VersionToken {
	sum := sha256.Sum256(data)
	return kb.VersionToken(hex.EncodeToString(sum[:]))
}
