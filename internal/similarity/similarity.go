// Package similarity computes pattern affinity between repositories in a
// kb.Document: set-overlap scoring, cross-repo aggregation, and
// pattern-health, as specified in spec.md §4.3. Every function here is a
// pure, allocation-light transform over an already-loaded document — none
// of them touch the network or the backing store.
package similarity

import (
	"sort"
	"strings"
	"time"

	"github.com/dev-nexus/devnexus/internal/kb"
)

// stringSet is a small case-sensitive set helper; membership and
// intersection in this package are always case-sensitive per spec.md §4.3.
type stringSet map[string]struct{}

func newSet(items []string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s stringSet) intersect(other stringSet) []string {
	var out []string
	for k := range s {
		if _, ok := other[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// SimilarRepo is one entry in a SimilarRepos result.
type SimilarRepo struct {
	RepoID             string
	Score              int
	IntersectKeywords  []string
	IntersectPatterns  []string
}

// SimilarRepos finds the top k repositories most similar to target by
// keyword+pattern overlap (spec.md §4.3). Repos scoring 0 are excluded.
// Ties are broken by RepoID ascending.
func SimilarRepos(doc kb.Document, target string, k int) []SimilarRepo {
	targetRec, ok := doc.Repositories[target]
	if !ok {
		return nil
	}
	targetKeywords := newSet(targetRec.LatestPatterns.Keywords)
	targetPatterns := newSet(targetRec.LatestPatterns.Patterns)

	var results []SimilarRepo
	for repoID, rec := range doc.Repositories {
		if repoID == target {
			continue
		}
		kw := newSet(rec.LatestPatterns.Keywords).intersect(targetKeywords)
		pt := newSet(rec.LatestPatterns.Patterns).intersect(targetPatterns)
		score := len(kw) + len(pt)
		if score == 0 {
			continue
		}
		results = append(results, SimilarRepo{
			RepoID:            repoID,
			Score:             score,
			IntersectKeywords: kw,
			IntersectPatterns: pt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RepoID < results[j].RepoID
	})

	if k <= 0 {
		k = 5
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// CrossRepoEntry is one pattern shared across at least minRepos repos.
type CrossRepoEntry struct {
	Pattern string
	Repos   []string
}

// CrossRepoPatterns inverts the repo→patterns map into pattern→repos,
// keeping only patterns used by at least minRepos repositories. Ordered
// by repo-count descending, then pattern ascending (spec.md §4.3).
func CrossRepoPatterns(doc kb.Document, minRepos int) []CrossRepoEntry {
	if minRepos <= 0 {
		minRepos = 2
	}

	byPattern := map[string][]string{}
	for repoID, rec := range doc.Repositories {
		for _, p := range rec.LatestPatterns.Patterns {
			byPattern[p] = append(byPattern[p], repoID)
		}
	}

	var out []CrossRepoEntry
	for pattern, repos := range byPattern {
		if len(repos) < minRepos {
			continue
		}
		sort.Strings(repos)
		out = append(out, CrossRepoEntry{Pattern: pattern, Repos: repos})
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Repos) != len(out[j].Repos) {
			return len(out[i].Repos) > len(out[j].Repos)
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

// PatternHealthResult is the outcome of PatternHealth.
type PatternHealthResult struct {
	Pattern         string
	TotalRepos      int
	ReposWithIssues int
	HealthScore     float64
	Recommendation  string
}

// PatternHealth computes 1 − (repos_with_issues / repos_using_pattern)
// over the last windowDays (spec.md §4.3). A pattern used by zero repos
// has health_score 1.0 (property P7).
func PatternHealth(doc kb.Document, pattern string, windowDays int, now time.Time) PatternHealthResult {
	cutoff := now.AddDate(0, 0, -windowDays)

	total := 0
	withIssues := 0
	for _, rec := range doc.Repositories {
		usesPattern := false
		for _, p := range rec.LatestPatterns.Patterns {
			if p == pattern {
				usesPattern = true
				break
			}
		}
		if !usesPattern {
			continue
		}
		total++

		hasIssue := false
		for _, issue := range rec.RuntimeIssues {
			if issue.PatternReference == pattern && !issue.DetectedAt.Before(cutoff) {
				hasIssue = true
				break
			}
		}
		if hasIssue {
			withIssues++
		}
	}

	score := 1.0
	if total > 0 {
		score = 1.0 - float64(withIssues)/float64(total)
	}

	return PatternHealthResult{
		Pattern:         pattern,
		TotalRepos:      total,
		ReposWithIssues: withIssues,
		HealthScore:     score,
		Recommendation:  recommendation(score),
	}
}

func recommendation(score float64) string {
	switch {
	case score >= 0.7:
		return "Healthy: this pattern has a low rate of linked production issues. Safe to recommend broadly."
	case score >= 0.5:
		return "Caution: a notable share of adopters have hit issues tied to this pattern. Review known issues before reuse."
	default:
		return "At risk: most adopters of this pattern have hit linked production issues. Investigate before recommending further use."
	}
}

// SimilarIssueMatch pairs a prior issue with the repo it belongs to.
type SimilarIssueMatch struct {
	RepoID string
	Issue  kb.RuntimeIssue
}

// MaxSimilarIssues bounds SimilarIssues' return (spec.md §4.3: top 10).
const MaxSimilarIssues = 10

// SimilarIssues ranks prior issues across the KB against a candidate
// issue by: same issue_type, then same severity, then log token overlap,
// then recency (spec.md §4.3). Logs comparison is case-sensitive token
// overlap, consistent with this package's set semantics elsewhere.
func SimilarIssues(doc kb.Document, candidate kb.RuntimeIssue) []SimilarIssueMatch {
	candidateTokens := newSet(tokenize(candidate.Logs))

	type scored struct {
		match SimilarIssueMatch
		sameType     bool
		sameSeverity bool
		overlap      int
	}

	var all []scored
	for repoID, rec := range doc.Repositories {
		for _, issue := range rec.RuntimeIssues {
			overlap := len(newSet(tokenize(issue.Logs)).intersect(candidateTokens))
			all = append(all, scored{
				match:        SimilarIssueMatch{RepoID: repoID, Issue: issue},
				sameType:     issue.IssueType == candidate.IssueType,
				sameSeverity: issue.Severity == candidate.Severity,
				overlap:      overlap,
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.sameType != b.sameType {
			return a.sameType
		}
		if a.sameSeverity != b.sameSeverity {
			return a.sameSeverity
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		return a.match.Issue.DetectedAt.After(b.match.Issue.DetectedAt)
	})

	if len(all) > MaxSimilarIssues {
		all = all[:MaxSimilarIssues]
	}
	out := make([]SimilarIssueMatch, len(all))
	for i, s := range all {
		out[i] = s.match
	}
	return out
}

func tokenize(s string) []string {
	return strings.Fields(s)
}
