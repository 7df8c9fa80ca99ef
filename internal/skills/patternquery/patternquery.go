// Package patternquery implements the Pattern Query skill family
// (spec.md §4.7 Family A): query_patterns and get_cross_repo_patterns.
// Both are public, read-only, and operate over whatever document the KB
// store currently holds.
package patternquery

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/similarity"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var queryPatternsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"keywords": {"type": "array", "items": {"type": "string"}},
		"patterns": {"type": "array", "items": {"type": "string"}},
		"problem_domain": {"type": "string"},
		"repository": {"type": "string"},
		"min_matches": {"type": "integer", "minimum": 1},
		"limit": {"type": "integer", "minimum": 1}
	}
}`)

// QueryPatterns is the query_patterns skill.
type QueryPatterns struct {
	store *kb.Store
}

// NewQueryPatterns builds the query_patterns skill over store.
func NewQueryPatterns(store *kb.Store) *QueryPatterns { return &QueryPatterns{store: store} }

func (s *QueryPatterns) ID() string          { return "query_patterns" }
func (s *QueryPatterns) Name() string        { return "Query Patterns" }
func (s *QueryPatterns) Tags() []string      { return []string{"patterns", "query"} }
func (s *QueryPatterns) RequiresAuthentication() bool { return false }
func (s *QueryPatterns) InputSchema() json.RawMessage { return queryPatternsSchema }

func (s *QueryPatterns) Description() string {
	return "Finds repositories whose recorded patterns, keywords, or problem domain match the given criteria."
}

func (s *QueryPatterns) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"keywords": []string{"retry", "backoff"}},
		Description: "Find repos that use retry-with-backoff.",
	}}
}

type patternMatch struct {
	Repository         string   `json:"repository"`
	Patterns            []string `json:"patterns"`
	Keywords             []string `json:"keywords"`
	ReusableComponents []kb.Component `json:"reusable_components"`
	ProblemDomain        string   `json:"problem_domain"`
}

func (s *QueryPatterns) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	reqKeywords := stringSlice(input["keywords"])
	reqPatterns := stringSlice(input["patterns"])
	problemDomain := strings.ToLower(stringValue(input["problem_domain"]))
	repoFilter := stringValue(input["repository"])
	minMatches := intValue(input, "min_matches", 1)
	limit := intValue(input, "limit", 10)

	keywordSet := toSet(reqKeywords)
	patternSet := toSet(reqPatterns)

	type scored struct {
		match patternMatch
		score int
	}
	var candidates []scored
	for repoID, rec := range doc.Repositories {
		if repoFilter != "" && repoID != repoFilter {
			continue
		}
		score := overlap(rec.LatestPatterns.Keywords, keywordSet) + overlap(rec.LatestPatterns.Patterns, patternSet)
		if problemDomain != "" && strings.Contains(strings.ToLower(rec.LatestPatterns.ProblemDomain), problemDomain) {
			score++
		}
		if score < minMatches {
			continue
		}
		candidates = append(candidates, scored{
			match: patternMatch{
				Repository:         repoID,
				Patterns:           rec.LatestPatterns.Patterns,
				Keywords:           rec.LatestPatterns.Keywords,
				ReusableComponents: rec.LatestPatterns.ReusableComponents,
				ProblemDomain:      rec.LatestPatterns.ProblemDomain,
			},
			score: score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].match.Repository < candidates[j].match.Repository
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]patternMatch, len(candidates))
	for i, c := range candidates {
		results[i] = c.match
	}

	return map[string]any{
		"success":  true,
		"patterns": results,
		"count":    len(results),
	}
}

func overlap(have []string, want map[string]struct{}) int {
	if len(want) == 0 {
		return 0
	}
	n := 0
	for _, h := range have {
		if _, ok := want[h]; ok {
			n++
		}
	}
	return n
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

var crossRepoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"min_repos": {"type": "integer", "minimum": 1},
		"pattern_type": {"type": "string"}
	}
}`)

// CrossRepoPatterns is the get_cross_repo_patterns skill.
type CrossRepoPatterns struct {
	store *kb.Store
}

// NewCrossRepoPatterns builds the get_cross_repo_patterns skill over store.
func NewCrossRepoPatterns(store *kb.Store) *CrossRepoPatterns { return &CrossRepoPatterns{store: store} }

func (s *CrossRepoPatterns) ID() string          { return "get_cross_repo_patterns" }
func (s *CrossRepoPatterns) Name() string        { return "Get Cross-Repo Patterns" }
func (s *CrossRepoPatterns) Tags() []string      { return []string{"patterns", "aggregation"} }
func (s *CrossRepoPatterns) RequiresAuthentication() bool { return false }
func (s *CrossRepoPatterns) InputSchema() json.RawMessage { return crossRepoSchema }

func (s *CrossRepoPatterns) Description() string {
	return "Aggregates patterns shared across at least min_repos repositories."
}

func (s *CrossRepoPatterns) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"min_repos": 3},
		Description: "Surface patterns adopted by at least three repositories.",
	}}
}

func (s *CrossRepoPatterns) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	minRepos := intValue(input, "min_repos", 2)
	entries := similarity.CrossRepoPatterns(doc, minRepos)

	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"pattern": e.Pattern, "repos": e.Repos, "repo_count": len(e.Repos)}
	}
	return map[string]any{"success": true, "patterns": out, "count": len(out)}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(input map[string]any, key string, def int) int {
	v, ok := input[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
