// Package knowledgemgmt implements the Knowledge Management skill family
// (spec.md §4.7 Family C): add_lesson_learned, update_dependency_info, and
// analyze_commit. All three require authentication and mutate the
// knowledge base document. analyze_commit is a supplemented operation:
// spec.md §2's data flow states skill execution "uses C2/C3/C4/C5" and
// the dashboard/CLI "share C2/C3/C4 without going through C8", but no
// family in §4.7 names the skill that drives the extractor inline —
// this closes that gap (see DESIGN.md).
package knowledgemgmt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/extractor"
	"github.com/dev-nexus/devnexus/internal/kb"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var lessonLearnedSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"category": {"type": "string", "enum": ["performance", "security", "reliability", "cost", "observability", "deployment"]},
		"lesson": {"type": "string"},
		"context": {"type": "string"},
		"severity": {"type": "string", "enum": ["info", "warning", "critical"]},
		"recorded_by": {"type": "string"}
	},
	"required": ["repository", "category", "lesson", "context"]
}`)

// AddLessonLearned is the add_lesson_learned skill.
type AddLessonLearned struct {
	store *kb.Store
}

// NewAddLessonLearned builds the add_lesson_learned skill over store.
func NewAddLessonLearned(store *kb.Store) *AddLessonLearned { return &AddLessonLearned{store: store} }

func (s *AddLessonLearned) ID() string                   { return "add_lesson_learned" }
func (s *AddLessonLearned) Name() string                 { return "Add Lesson Learned" }
func (s *AddLessonLearned) Tags() []string               { return []string{"knowledge", "lessons"} }
func (s *AddLessonLearned) RequiresAuthentication() bool { return true }
func (s *AddLessonLearned) InputSchema() json.RawMessage { return lessonLearnedSchema }
func (s *AddLessonLearned) Description() string {
	return "Records an operational lesson learned against a repository."
}
func (s *AddLessonLearned) Examples() []skill.Example {
	return []skill.Example{{
		Input: map[string]any{
			"repository": "example/service",
			"category":   kb.CategoryReliability,
			"lesson":     "Retry storms amplify downstream outages without jitter.",
			"context":    "Incident review, 2026-05-01 outage.",
		},
		Description: "Record a reliability lesson after an incident review.",
	}}
}

func (s *AddLessonLearned) Execute(ctx context.Context, input map[string]any, identity auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	category, _ := input["category"].(string)
	lessonText, _ := input["lesson"].(string)
	context_, _ := input["context"].(string)
	severity, _ := input["severity"].(string)
	if severity == "" {
		severity = kb.SeverityInfo
	}
	recordedBy, _ := input["recorded_by"].(string)
	if recordedBy == "" {
		recordedBy = identity.Subject
	}

	now := time.Now().UTC()
	lessonID := hashID(repository, category, lessonText, now.Format(time.RFC3339))

	result, err := s.store.Mutate(ctx, fmt.Sprintf("add lesson learned: %s/%s", repository, category), func(doc kb.Document) (kb.Document, any, error) {
		rec, ok := doc.Repositories[repository]
		if !ok {
			rec = kb.NewRepoRecord()
		}
		rec.Deployment.LessonsLearned = append(rec.Deployment.LessonsLearned, kb.Lesson{
			Category:   category,
			Lesson:     lessonText,
			Context:    context_,
			Severity:   severity,
			RecordedBy: recordedBy,
			RecordedAt: now,
		})
		doc.Repositories[repository] = rec
		return doc, lessonID, nil
	})
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	return map[string]any{"success": true, "lesson_id": result}
}

// hashID derives a stable identifier from its parts — stable for
// identical inputs recorded within the same second (spec.md's example
// scenario), since the timestamp component is truncated to second
// resolution by the caller.
func hashID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

var updateDependencyInfoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"dependency_info": {
			"type": "object",
			"properties": {
				"consumers": {"type": "array"},
				"derivatives": {"type": "array"},
				"external_dependencies": {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["repository", "dependency_info"]
}`)

// UpdateDependencyInfo is the update_dependency_info skill.
type UpdateDependencyInfo struct {
	store *kb.Store
}

// NewUpdateDependencyInfo builds the update_dependency_info skill over store.
func NewUpdateDependencyInfo(store *kb.Store) *UpdateDependencyInfo {
	return &UpdateDependencyInfo{store: store}
}

func (s *UpdateDependencyInfo) ID() string                   { return "update_dependency_info" }
func (s *UpdateDependencyInfo) Name() string                 { return "Update Dependency Info" }
func (s *UpdateDependencyInfo) Tags() []string               { return []string{"knowledge", "dependencies"} }
func (s *UpdateDependencyInfo) RequiresAuthentication() bool { return true }
func (s *UpdateDependencyInfo) InputSchema() json.RawMessage { return updateDependencyInfoSchema }
func (s *UpdateDependencyInfo) Description() string {
	return "Replaces the provided sub-arrays of a repository's dependency info, leaving the rest untouched."
}
func (s *UpdateDependencyInfo) Examples() []skill.Example {
	return []skill.Example{{
		Input: map[string]any{
			"repository":      "example/service",
			"dependency_info": map[string]any{"external_dependencies": []string{"redis", "postgres"}},
		},
		Description: "Replace just the external dependency list.",
	}}
}

func (s *UpdateDependencyInfo) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	depInput, _ := input["dependency_info"].(map[string]any)

	_, err := s.store.Mutate(ctx, fmt.Sprintf("update dependency info: %s", repository), func(doc kb.Document) (kb.Document, any, error) {
		rec, ok := doc.Repositories[repository]
		if !ok {
			rec = kb.NewRepoRecord()
		}
		if raw, ok := depInput["consumers"]; ok {
			rec.Dependencies.Consumers = decodeEdges(raw)
		}
		if raw, ok := depInput["derivatives"]; ok {
			rec.Dependencies.Derivatives = decodeEdges(raw)
		}
		if raw, ok := depInput["external_dependencies"]; ok {
			rec.Dependencies.ExternalDependencies = decodeStrings(raw)
		}
		doc.Repositories[repository] = rec
		return doc, nil, nil
	})
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	return map[string]any{"success": true}
}

func decodeEdges(raw any) []kb.Edge {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]kb.Edge, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		repo, _ := m["repository"].(string)
		rel, _ := m["relationship"].(string)
		out = append(out, kb.Edge{Repository: repo, Relationship: rel})
	}
	return out
}

func decodeStrings(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
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

var analyzeCommitSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"commit_sha": {"type": "string"},
		"changed_files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"diff_text": {"type": "string"}
				},
				"required": ["path", "diff_text"]
			}
		}
	},
	"required": ["repository", "commit_sha", "changed_files"]
}`)

// AnalyzeCommit is the analyze_commit skill: it shapes a commit's changed
// files into an extractor.Input, calls the extractor (C4), and writes the
// result into the repository's latest_patterns plus an append-only
// history entry (spec.md §3/§4.4).
type AnalyzeCommit struct {
	store     *kb.Store
	extractor extractor.Extractor
}

// NewAnalyzeCommit builds the analyze_commit skill over store and ext.
func NewAnalyzeCommit(store *kb.Store, ext extractor.Extractor) *AnalyzeCommit {
	return &AnalyzeCommit{store: store, extractor: ext}
}

func (s *AnalyzeCommit) ID() string                   { return "analyze_commit" }
func (s *AnalyzeCommit) Name() string                 { return "Analyze Commit" }
func (s *AnalyzeCommit) Tags() []string               { return []string{"knowledge", "extraction"} }
func (s *AnalyzeCommit) RequiresAuthentication() bool { return true }
func (s *AnalyzeCommit) InputSchema() json.RawMessage { return analyzeCommitSchema }
func (s *AnalyzeCommit) Description() string {
	return "Extracts patterns, decisions, and keywords from a commit's diff and records them against the repository."
}
func (s *AnalyzeCommit) Examples() []skill.Example {
	return []skill.Example{{
		Input: map[string]any{
			"repository": "example/service",
			"commit_sha": "abc123",
			"changed_files": []map[string]any{
				{"path": "internal/retry/retry.go", "diff_text": "+func WithBackoff(...) {...}"},
			},
		},
		Description: "Analyze a commit's diff and record any new patterns.",
	}}
}

func (s *AnalyzeCommit) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	commitSHA, _ := input["commit_sha"].(string)

	files := decodeChangedFiles(input["changed_files"])
	out, err := s.extractor.Extract(ctx, extractor.Input{
		Repository:   repository,
		CommitSHA:    commitSHA,
		ChangedFiles: files,
	})
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if out.Error != "" {
		return map[string]any{"success": false, "error": out.Error}
	}

	_, mutateErr := s.store.Mutate(ctx, fmt.Sprintf("analyze commit: %s@%s", repository, commitSHA), func(doc kb.Document) (kb.Document, any, error) {
		rec, ok := doc.Repositories[repository]
		if !ok {
			rec = kb.NewRepoRecord()
		}
		rec.LatestPatterns = kb.LatestPatterns{
			Patterns:           out.Patterns,
			Decisions:          out.Decisions,
			ReusableComponents: toKBComponents(out.ReusableComponents),
			Dependencies:       out.Dependencies,
			ProblemDomain:      out.ProblemDomain,
			Keywords:           out.Keywords,
			AnalyzedAt:         out.AnalyzedAt,
			CommitSHA:          out.CommitSHA,
		}
		rec.History = append(rec.History, kb.HistoryEntry{
			Timestamp: out.AnalyzedAt,
			CommitSHA: out.CommitSHA,
			Patterns:  out.Patterns,
		})
		doc.Repositories[repository] = rec
		return doc, nil, nil
	})
	if mutateErr != nil {
		return map[string]any{"success": false, "error": mutateErr.Error()}
	}

	return map[string]any{
		"success":             true,
		"patterns":            out.Patterns,
		"decisions":           out.Decisions,
		"keywords":            out.Keywords,
		"problem_domain":      out.ProblemDomain,
		"reusable_components": out.ReusableComponents,
	}
}

func decodeChangedFiles(raw any) []extractor.ChangedFile {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]extractor.ChangedFile, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		path, _ := m["path"].(string)
		diff, _ := m["diff_text"].(string)
		out = append(out, extractor.ChangedFile{Path: path, DiffText: diff})
	}
	return out
}

func toKBComponents(components []extractor.Component) []kb.Component {
	out := make([]kb.Component, 0, len(components))
	for _, c := range components {
		out = append(out, kb.Component{Name: c.Name, Description: c.Description, Files: c.Files})
	}
	return out
}
