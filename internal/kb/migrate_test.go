package kb

import (
	"encoding/json"
	"testing"
)

func TestParseV2RoundTrips(t *testing.T) {
	doc := NewDocument()
	doc.Repositories["example/service"] = NewRepoRecord()
	data := MustMarshal(doc)

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.SchemaVersion != SchemaVersion2 {
		t.Errorf("SchemaVersion = %q, want %q", parsed.SchemaVersion, SchemaVersion2)
	}
	if _, ok := parsed.Repositories["example/service"]; !ok {
		t.Errorf("expected repository to survive round-trip")
	}
}

func TestParseEmptyBytesReturnsEmptyDocument(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if doc.SchemaVersion != SchemaVersion2 || len(doc.Repositories) != 0 {
		t.Errorf("expected empty current-schema document, got %+v", doc)
	}
}

func TestParseUnknownSchemaVersionRejected(t *testing.T) {
	raw := []byte(`{"schema_version":"3.0","repositories":{}}`)
	_, err := Parse(raw)
	if err == nil {
		t.Fatalf("expected an error for an unknown schema_version")
	}
	var unknown *ErrUnknownSchemaVersion
	if !asUnknownSchemaVersion(err, &unknown) {
		t.Fatalf("expected *ErrUnknownSchemaVersion, got %T: %v", err, err)
	}
}

func asUnknownSchemaVersion(err error, target **ErrUnknownSchemaVersion) bool {
	if e, ok := err.(*ErrUnknownSchemaVersion); ok {
		*target = e
		return true
	}
	return false
}

func TestParseMigratesV1ToV2(t *testing.T) {
	raw := []byte(`{
		"schema_version": "1.0",
		"repositories": {
			"example/service": {
				"patterns": {
					"patterns": ["circuit-breaker"],
					"keywords": ["retry"],
					"problem_domain": "payments"
				},
				"history": [
					{"timestamp": "2026-01-01T00:00:00Z", "commit_sha": "abc123", "patterns": ["circuit-breaker"]}
				]
			}
		}
	}`)

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.SchemaVersion != SchemaVersion2 {
		t.Errorf("SchemaVersion = %q, want %q", doc.SchemaVersion, SchemaVersion2)
	}

	rec, ok := doc.Repositories["example/service"]
	if !ok {
		t.Fatalf("expected migrated repository to be present")
	}
	if len(rec.LatestPatterns.Patterns) != 1 || rec.LatestPatterns.Patterns[0] != "circuit-breaker" {
		t.Errorf("LatestPatterns.Patterns = %v", rec.LatestPatterns.Patterns)
	}
	if rec.LatestPatterns.ProblemDomain != "payments" {
		t.Errorf("ProblemDomain = %q, want payments", rec.LatestPatterns.ProblemDomain)
	}
	if len(rec.History) != 1 || rec.History[0].CommitSHA != "abc123" {
		t.Errorf("history not preserved verbatim: %+v", rec.History)
	}
	// Every other v2 section must be initialized empty-but-non-nil.
	if rec.Testing.TestFrameworks == nil || rec.Security.SecurityPatterns == nil {
		t.Errorf("expected initialized-empty sections after migration, got %+v", rec)
	}
}

// TestUpgradeIsIdempotent exercises property P1 from spec.md §8: applying
// the v1->v2 migration to an already-v2 document is a no-op.
func TestUpgradeIsIdempotent(t *testing.T) {
	doc := NewDocument()
	doc.Repositories["example/service"] = NewRepoRecord()

	once := Upgrade(doc)
	twice := Upgrade(once)

	b1, _ := json.Marshal(once)
	b2, _ := json.Marshal(twice)
	if string(b1) != string(b2) {
		t.Errorf("Upgrade is not idempotent:\nfirst:  %s\nsecond: %s", b1, b2)
	}
}

func TestUpgradeHandlesNilRepositoriesMap(t *testing.T) {
	doc := Document{SchemaVersion: SchemaVersion2}
	got := Upgrade(doc)
	if got.Repositories == nil {
		t.Errorf("expected Upgrade to initialize a nil Repositories map")
	}
}
