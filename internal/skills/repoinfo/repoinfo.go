// Package repoinfo implements the Repository Info skill family
// (spec.md §4.7 Family B): get_repository_list and get_deployment_info.
package repoinfo

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var repositoryListSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"include_metadata": {"type": "boolean"}
	}
}`)

// RepositoryList is the get_repository_list skill.
type RepositoryList struct {
	store *kb.Store
}

// NewRepositoryList builds the get_repository_list skill over store.
func NewRepositoryList(store *kb.Store) *RepositoryList { return &RepositoryList{store: store} }

func (s *RepositoryList) ID() string                    { return "get_repository_list" }
func (s *RepositoryList) Name() string                  { return "Get Repository List" }
func (s *RepositoryList) Tags() []string                { return []string{"repository"} }
func (s *RepositoryList) RequiresAuthentication() bool  { return false }
func (s *RepositoryList) InputSchema() json.RawMessage  { return repositoryListSchema }
func (s *RepositoryList) Description() string {
	return "Lists every repository tracked in the knowledge base."
}
func (s *RepositoryList) Examples() []skill.Example {
	return []skill.Example{{Input: map[string]any{}, Description: "List all tracked repositories."}}
}

func (s *RepositoryList) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	includeMetadata := true
	if v, ok := input["include_metadata"].(bool); ok {
		includeMetadata = v
	}

	names := make([]string, 0, len(doc.Repositories))
	for name := range doc.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	repos := make([]map[string]any, 0, len(names))
	for _, name := range names {
		rec := doc.Repositories[name]
		entry := map[string]any{"name": name}
		if includeMetadata {
			entry["pattern_count"] = len(rec.LatestPatterns.Patterns)
			entry["last_updated"] = rec.LatestPatterns.AnalyzedAt
			entry["problem_domain"] = rec.LatestPatterns.ProblemDomain
		}
		repos = append(repos, entry)
	}

	return map[string]any{"success": true, "repositories": repos, "count": len(repos)}
}

var deploymentInfoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"include_lessons": {"type": "boolean"},
		"include_history": {"type": "boolean"}
	},
	"required": ["repository"]
}`)

// DeploymentInfo is the get_deployment_info skill.
type DeploymentInfo struct {
	store *kb.Store
}

// NewDeploymentInfo builds the get_deployment_info skill over store.
func NewDeploymentInfo(store *kb.Store) *DeploymentInfo { return &DeploymentInfo{store: store} }

func (s *DeploymentInfo) ID() string                   { return "get_deployment_info" }
func (s *DeploymentInfo) Name() string                 { return "Get Deployment Info" }
func (s *DeploymentInfo) Tags() []string               { return []string{"repository", "deployment"} }
func (s *DeploymentInfo) RequiresAuthentication() bool { return false }
func (s *DeploymentInfo) InputSchema() json.RawMessage { return deploymentInfoSchema }
func (s *DeploymentInfo) Description() string {
	return "Returns a repository's deployment section, optionally with lessons learned and recent history."
}
func (s *DeploymentInfo) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"repository": "example/service"},
		Description: "Fetch deployment details for example/service.",
	}}
}

func (s *DeploymentInfo) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	repository, _ := input["repository"].(string)
	rec, ok := doc.Repositories[repository]
	if !ok {
		return map[string]any{"success": false, "error": "repository not tracked"}
	}

	includeLessons := true
	if v, ok := input["include_lessons"].(bool); ok {
		includeLessons = v
	}
	includeHistory := false
	if v, ok := input["include_history"].(bool); ok {
		includeHistory = v
	}

	deployment := rec.Deployment
	if !includeLessons {
		deployment.LessonsLearned = nil
	}

	out := map[string]any{"success": true, "deployment": deployment}
	if includeHistory {
		out["history"] = kb.RecentHistory(rec.History)
	}
	return out
}
