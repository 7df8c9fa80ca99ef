package runtimemonitoring

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/kb/memstore"
)

func testStore(t *testing.T, repos map[string]kb.RepoRecord) *kb.Store {
	t.Helper()
	backing := memstore.New()
	doc := kb.NewDocument()
	doc.Repositories = repos
	backing.Seed(doc)
	return kb.New(backing, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddRuntimeIssueRecordsAndReturnsSimilar(t *testing.T) {
	rec := kb.NewRepoRecord()
	rec.RuntimeIssues = []kb.RuntimeIssue{{
		ID: "prior", IssueType: kb.IssueTypeCrash, Severity: kb.IssueSeverityHigh,
		ServiceType: "api", DetectedAt: time.Now().UTC(),
	}}
	store := testStore(t, map[string]kb.RepoRecord{"example/service": rec})

	skill := NewAddRuntimeIssue(store)
	out := skill.Execute(context.Background(), map[string]any{
		"repository":   "example/service",
		"service_type": "api",
		"issue_type":   kb.IssueTypeCrash,
		"severity":     kb.IssueSeverityHigh,
		"log_snippet":  "panic: nil pointer",
	}, auth.Identity{})

	if success, _ := out["success"].(bool); !success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out["issue_id"] == "" {
		t.Errorf("expected a non-empty issue_id")
	}

	doc, _ := store.Load(context.Background())
	issues := doc.Repositories["example/service"].RuntimeIssues
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues after recording, got %d", len(issues))
	}
	if issues[1].Status != kb.IssueStatusOpen {
		t.Errorf("Status = %q, want open", issues[1].Status)
	}
}

func TestQueryKnownIssuesFiltersAndOrdersByRecency(t *testing.T) {
	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC()
	rec := kb.NewRepoRecord()
	rec.RuntimeIssues = []kb.RuntimeIssue{
		{ID: "a", IssueType: kb.IssueTypeCrash, Severity: kb.IssueSeverityHigh, DetectedAt: older},
		{ID: "b", IssueType: kb.IssueTypeCrash, Severity: kb.IssueSeverityHigh, DetectedAt: newer},
		{ID: "c", IssueType: kb.IssueTypePerformance, Severity: kb.IssueSeverityLow, DetectedAt: newer},
	}
	store := testStore(t, map[string]kb.RepoRecord{"svc": rec})

	skill := NewQueryKnownIssues(store)
	out := skill.Execute(context.Background(), map[string]any{"issue_type": kb.IssueTypeCrash}, auth.Identity{})

	count, _ := out["count"].(int)
	if count != 2 {
		t.Fatalf("expected 2 matches, got %d (%+v)", count, out)
	}

	raw, err := json.Marshal(out["issues"])
	if err != nil {
		t.Fatalf("marshal issues: %v", err)
	}
	var issues []struct {
		Issue kb.RuntimeIssue `json:"issue"`
	}
	if err := json.Unmarshal(raw, &issues); err != nil {
		t.Fatalf("unmarshal issues: %v", err)
	}
	if issues[0].Issue.ID != "b" || issues[1].Issue.ID != "a" {
		t.Errorf("expected most recent first (b, a), got %s, %s", issues[0].Issue.ID, issues[1].Issue.ID)
	}
}

func TestGetPatternHealthUnusedPatternIsFullHealth(t *testing.T) {
	store := testStore(t, map[string]kb.RepoRecord{})
	skill := NewGetPatternHealth(store)
	out := skill.Execute(context.Background(), map[string]any{"pattern_name": "nonexistent"}, auth.Identity{})
	if out["health_score"] != 1.0 {
		t.Errorf("health_score = %v, want 1.0", out["health_score"])
	}
}

func TestGetPatternHealthPenalizesLinkedIssues(t *testing.T) {
	now := time.Now().UTC()
	rec := kb.NewRepoRecord()
	rec.LatestPatterns.Patterns = []string{"circuit-breaker"}
	rec.RuntimeIssues = []kb.RuntimeIssue{{ID: "x", PatternReference: "circuit-breaker", DetectedAt: now}}
	store := testStore(t, map[string]kb.RepoRecord{"svc": rec})

	skill := NewGetPatternHealth(store)
	skill.now = func() time.Time { return now }
	out := skill.Execute(context.Background(), map[string]any{"pattern_name": "circuit-breaker"}, auth.Identity{})
	score, ok := out["health_score"].(float64)
	if !ok || score >= 1.0 {
		t.Errorf("expected health_score < 1.0 for a repo with a linked issue, got %v", out["health_score"])
	}
}
