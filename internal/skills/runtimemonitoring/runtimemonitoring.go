// Package runtimemonitoring implements the Runtime Monitoring skill
// family (spec.md §4.7 Family F): add_runtime_issue, query_known_issues,
// and get_pattern_health.
package runtimemonitoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/similarity"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var addRuntimeIssueSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"service_type": {"type": "string"},
		"issue_type": {"type": "string", "enum": ["error", "performance", "crash", "security"]},
		"severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
		"log_snippet": {"type": "string"},
		"root_cause": {"type": "string"},
		"suggested_fix": {"type": "string"},
		"pattern_reference": {"type": "string"},
		"github_issue_url": {"type": "string"},
		"metrics": {"type": "object"}
	},
	"required": ["repository", "service_type", "issue_type", "severity", "log_snippet"]
}`)

// AddRuntimeIssue is the add_runtime_issue skill.
type AddRuntimeIssue struct {
	store *kb.Store
}

// NewAddRuntimeIssue builds the add_runtime_issue skill over store.
func NewAddRuntimeIssue(store *kb.Store) *AddRuntimeIssue { return &AddRuntimeIssue{store: store} }

func (s *AddRuntimeIssue) ID() string                   { return "add_runtime_issue" }
func (s *AddRuntimeIssue) Name() string                 { return "Add Runtime Issue" }
func (s *AddRuntimeIssue) Tags() []string               { return []string{"runtime", "issues"} }
func (s *AddRuntimeIssue) RequiresAuthentication() bool { return true }
func (s *AddRuntimeIssue) InputSchema() json.RawMessage { return addRuntimeIssueSchema }
func (s *AddRuntimeIssue) Description() string {
	return "Records a production-observed issue against a repository and surfaces similar prior issues."
}
func (s *AddRuntimeIssue) Examples() []skill.Example {
	return []skill.Example{{
		Input: map[string]any{
			"repository":   "example/service",
			"service_type": "api",
			"issue_type":   kb.IssueTypeError,
			"severity":     kb.IssueSeverityHigh,
			"log_snippet":  "panic: nil pointer dereference in handler.Serve",
		},
		Description: "Report a production panic.",
	}}
}

func (s *AddRuntimeIssue) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	serviceType, _ := input["service_type"].(string)
	issueType, _ := input["issue_type"].(string)
	severity, _ := input["severity"].(string)
	logSnippet, _ := input["log_snippet"].(string)
	rootCause, _ := input["root_cause"].(string)
	suggestedFix, _ := input["suggested_fix"].(string)
	patternReference, _ := input["pattern_reference"].(string)
	githubIssueURL, _ := input["github_issue_url"].(string)
	metrics, _ := input["metrics"].(map[string]any)

	now := time.Now().UTC()
	issueID := hashID(repository, issueType, logSnippet, now.Format(time.RFC3339Nano))

	candidate := kb.RuntimeIssue{
		ID:          issueID,
		DetectedAt:  now,
		IssueType:   issueType,
		Severity:    severity,
		ServiceType: serviceType,
		Logs:        logSnippet,
	}

	var similarIssues []map[string]any
	result, err := s.store.Mutate(ctx, fmt.Sprintf("add runtime issue: %s/%s", repository, issueType), func(doc kb.Document) (kb.Document, any, error) {
		similarIssues = toSimilarIssuesOutput(similarity.SimilarIssues(doc, candidate))

		rec, ok := doc.Repositories[repository]
		if !ok {
			rec = kb.NewRepoRecord()
		}
		rec.RuntimeIssues = append(rec.RuntimeIssues, kb.RuntimeIssue{
			ID:               issueID,
			DetectedAt:       now,
			IssueType:        issueType,
			Severity:         severity,
			ServiceType:      serviceType,
			Logs:             logSnippet,
			RootCause:        rootCause,
			Fix:              suggestedFix,
			PatternReference: patternReference,
			GitHubIssueURL:   githubIssueURL,
			Status:           kb.IssueStatusOpen,
			Metrics:          metrics,
		})
		doc.Repositories[repository] = rec
		return doc, issueID, nil
	})
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	return map[string]any{"success": true, "issue_id": result, "similar_issues": similarIssues}
}

func toSimilarIssuesOutput(matches []similarity.SimilarIssueMatch) []map[string]any {
	out := make([]map[string]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{"repository": m.RepoID, "issue": m.Issue}
	}
	return out
}

func hashID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

var queryKnownIssuesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"issue_type": {"type": "string", "enum": ["error", "performance", "crash", "security"]},
		"pattern": {"type": "string"},
		"severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
		"repository": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1}
	}
}`)

// QueryKnownIssues is the query_known_issues skill.
type QueryKnownIssues struct {
	store *kb.Store
}

// NewQueryKnownIssues builds the query_known_issues skill over store.
func NewQueryKnownIssues(store *kb.Store) *QueryKnownIssues { return &QueryKnownIssues{store: store} }

func (s *QueryKnownIssues) ID() string                   { return "query_known_issues" }
func (s *QueryKnownIssues) Name() string                 { return "Query Known Issues" }
func (s *QueryKnownIssues) Tags() []string               { return []string{"runtime", "issues"} }
func (s *QueryKnownIssues) RequiresAuthentication() bool { return false }
func (s *QueryKnownIssues) InputSchema() json.RawMessage { return queryKnownIssuesSchema }
func (s *QueryKnownIssues) Description() string {
	return "Finds known runtime issues matching the given filters, ranked by recency."
}
func (s *QueryKnownIssues) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"severity": kb.IssueSeverityCritical},
		Description: "List known critical issues across all tracked repositories.",
	}}
}

func (s *QueryKnownIssues) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	issueType, _ := input["issue_type"].(string)
	pattern, _ := input["pattern"].(string)
	severity, _ := input["severity"].(string)
	repository, _ := input["repository"].(string)
	limit := 10
	if v, ok := input["limit"].(float64); ok {
		limit = int(v)
	}

	type matched struct {
		Repository string         `json:"repository"`
		Issue      kb.RuntimeIssue `json:"issue"`
	}
	var matches []matched
	for repoID, rec := range doc.Repositories {
		if repository != "" && repoID != repository {
			continue
		}
		for _, issue := range rec.RuntimeIssues {
			if issueType != "" && issue.IssueType != issueType {
				continue
			}
			if severity != "" && issue.Severity != severity {
				continue
			}
			if pattern != "" && issue.PatternReference != pattern {
				continue
			}
			matches = append(matches, matched{Repository: repoID, Issue: issue})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Issue.DetectedAt.After(matches[j].Issue.DetectedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return map[string]any{"success": true, "issues": matches, "count": len(matches)}
}

var patternHealthSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern_name": {"type": "string"},
		"time_range_days": {"type": "integer", "minimum": 1}
	},
	"required": ["pattern_name"]
}`)

// GetPatternHealth is the get_pattern_health skill.
type GetPatternHealth struct {
	store *kb.Store
	now   func() time.Time
}

// NewGetPatternHealth builds the get_pattern_health skill over store.
func NewGetPatternHealth(store *kb.Store) *GetPatternHealth {
	return &GetPatternHealth{store: store, now: time.Now}
}

func (s *GetPatternHealth) ID() string                   { return "get_pattern_health" }
func (s *GetPatternHealth) Name() string                 { return "Get Pattern Health" }
func (s *GetPatternHealth) Tags() []string               { return []string{"runtime", "patterns"} }
func (s *GetPatternHealth) RequiresAuthentication() bool { return false }
func (s *GetPatternHealth) InputSchema() json.RawMessage { return patternHealthSchema }
func (s *GetPatternHealth) Description() string {
	return "Computes a pattern's health score from the rate of linked production issues across adopting repositories."
}
func (s *GetPatternHealth) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"pattern_name": "circuit-breaker"},
		Description: "Check the health of the circuit-breaker pattern.",
	}}
}

func (s *GetPatternHealth) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	patternName, _ := input["pattern_name"].(string)
	windowDays := 30
	if v, ok := input["time_range_days"].(float64); ok {
		windowDays = int(v)
	}

	result := similarity.PatternHealth(doc, patternName, windowDays, s.now().UTC())
	return map[string]any{
		"success":           true,
		"pattern":           result.Pattern,
		"total_repos":       result.TotalRepos,
		"repos_with_issues": result.ReposWithIssues,
		"health_score":      result.HealthScore,
		"recommendation":    result.Recommendation,
	}
}
