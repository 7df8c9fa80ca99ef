package kb

import (
	"encoding/json"
	"fmt"
	"time"
)

// rawDocument lets Upgrade sniff schema_version before committing to a
// concrete repository shape, since a v1 repository's "patterns" field is a
// nested object (LatestPatterns-shaped) rather than the flat list its name
// suggests.
type rawDocument struct {
	SchemaVersion string                     `json:"schema_version"`
	Repositories  map[string]json.RawMessage `json:"repositories"`
	LastUpdated   time.Time                  `json:"last_updated"`
}

// v1Repo mirrors the pre-migration repository shape: a single "patterns"
// section plus a verbatim history.
type v1Repo struct {
	Patterns json.RawMessage `json:"patterns"`
	History  []HistoryEntry  `json:"history"`
}

// ErrUnknownSchemaVersion is returned by Parse when schema_version is
// neither "1.0" nor "2.0".
type ErrUnknownSchemaVersion struct{ Version string }

func (e *ErrUnknownSchemaVersion) Error() string {
	return fmt.Sprintf("unknown knowledge base schema_version: %q", e.Version)
}

// Parse decodes raw bytes into a current-schema Document, migrating a v1
// payload in-memory. It rejects any schema_version other than "1.0"/"2.0".
func Parse(data []byte) (Document, error) {
	if len(data) == 0 {
		return NewDocument(), nil
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parsing knowledge base document: %w", err)
	}

	switch raw.SchemaVersion {
	case "2.0":
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("parsing v2 knowledge base document: %w", err)
		}
		if doc.Repositories == nil {
			doc.Repositories = map[string]RepoRecord{}
		}
		return doc, nil
	case "1.0":
		return upgradeRaw(raw)
	default:
		return Document{}, &ErrUnknownSchemaVersion{Version: raw.SchemaVersion}
	}
}

// upgradeRaw performs the v1→v2 migration described in spec.md §4.2: for
// each repository, the existing "patterns" object becomes latest_patterns,
// the other five sections are initialized empty, and history is preserved
// verbatim.
func upgradeRaw(raw rawDocument) (Document, error) {
	doc := Document{
		SchemaVersion: SchemaVersion2,
		Repositories:  make(map[string]RepoRecord, len(raw.Repositories)),
		LastUpdated:   time.Now().UTC(),
	}

	for repoID, rawRepo := range raw.Repositories {
		var v1 v1Repo
		if err := json.Unmarshal(rawRepo, &v1); err != nil {
			return Document{}, fmt.Errorf("migrating repository %q: %w", repoID, err)
		}

		record := NewRepoRecord()
		if len(v1.Patterns) > 0 {
			var lp LatestPatterns
			if err := json.Unmarshal(v1.Patterns, &lp); err != nil {
				return Document{}, fmt.Errorf("migrating patterns for %q: %w", repoID, err)
			}
			record.LatestPatterns = lp
		}
		if v1.History != nil {
			record.History = v1.History
		}
		doc.Repositories[repoID] = record
	}

	return doc, nil
}

// Upgrade migrates an already-decoded Document. It is idempotent: a
// document whose SchemaVersion is already "2.0" is returned unchanged,
// apart from a nil Repositories map being replaced by an empty one
// (property P1 in spec.md §8). This is the pure-function form Mutate
// callers can apply directly when they already hold a Document rather
// than raw bytes (e.g. in tests).
func Upgrade(doc Document) Document {
	if doc.SchemaVersion == SchemaVersion2 {
		if doc.Repositories == nil {
			doc.Repositories = map[string]RepoRecord{}
		}
		return doc
	}

	out := Document{
		SchemaVersion: SchemaVersion2,
		Repositories:  make(map[string]RepoRecord, len(doc.Repositories)),
		LastUpdated:   time.Now().UTC(),
	}
	for id, rec := range doc.Repositories {
		out.Repositories[id] = rec
	}
	return out
}
