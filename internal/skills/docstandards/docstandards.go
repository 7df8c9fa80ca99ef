// Package docstandards implements the Documentation Standards skill
// family (spec.md §4.7 Family E): check_documentation_standards and
// validate_documentation_update. Both are public and read-only — they
// inspect a tracked repository's documentation files and recent commit
// history through internal/docsource, never mutating the knowledge base.
package docstandards

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dev-nexus/devnexus/internal/auth"
	"github.com/dev-nexus/devnexus/internal/docsource"
	"github.com/dev-nexus/devnexus/internal/guards"
	"github.com/dev-nexus/devnexus/internal/skill"
)

var checkDocumentationStandardsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"check_all_docs": {"type": "boolean"}
	},
	"required": ["repository"]
}`)

// CheckDocumentationStandards is the check_documentation_standards skill.
type CheckDocumentationStandards struct {
	source docsource.Source
	runner *guards.Runner
}

// NewCheckDocumentationStandards builds the skill over source.
func NewCheckDocumentationStandards(source docsource.Source) *CheckDocumentationStandards {
	return &CheckDocumentationStandards{source: source, runner: guards.NewRunner()}
}

func (s *CheckDocumentationStandards) ID() string   { return "check_documentation_standards" }
func (s *CheckDocumentationStandards) Name() string { return "Check Documentation Standards" }
func (s *CheckDocumentationStandards) Tags() []string {
	return []string{"documentation", "compliance"}
}
func (s *CheckDocumentationStandards) RequiresAuthentication() bool { return false }
func (s *CheckDocumentationStandards) InputSchema() json.RawMessage {
	return checkDocumentationStandardsSchema
}
func (s *CheckDocumentationStandards) Description() string {
	return "Scores a repository's documentation against baseline standards (titles, sections, README usage instructions)."
}
func (s *CheckDocumentationStandards) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"repository": "example/service"},
		Description: "Check baseline documentation compliance for example/service.",
	}}
}

func (s *CheckDocumentationStandards) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	checkAll, _ := input["check_all_docs"].(bool)

	files, err := s.source.ListMarkdownFiles(ctx, repository)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if !checkAll {
		files = onlyTopLevel(files)
	}

	fileResults := make([]map[string]any, 0, len(files))
	totalViolations := 0
	bySeverity := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}
	for _, f := range files {
		subject := &guards.Subject{
			Path:     f.Path,
			Content:  f.Content,
			IsReadme: strings.EqualFold(filepath.Base(f.Path), "README.md"),
		}
		outcome := s.runner.Run(ctx, subject, allChecks())
		violations := outcome.Violations()
		totalViolations += len(violations)
		for k, v := range outcome.CountBySeverity() {
			bySeverity[k] += v
		}
		fileResults = append(fileResults, map[string]any{
			"path":       f.Path,
			"violations": violations,
		})
	}

	score := 1.0
	if len(files) > 0 {
		score = 1.0 - float64(totalViolations)/float64(len(files)*len(allChecks()))
		if score < 0 {
			score = 0
		}
	}

	status := "compliant"
	if score < 1.0 {
		status = "non_compliant"
	}

	var recommendations []string
	if len(files) == 0 {
		recommendations = append(recommendations, "No documentation files found. Add a README.md describing the project.")
	}
	if bySeverity["critical"] > 0 {
		recommendations = append(recommendations, "Resolve critical documentation gaps (empty files) first.")
	}
	if bySeverity["high"] > 0 {
		recommendations = append(recommendations, "Add a top-level heading to every documentation file.")
	}

	return map[string]any{
		"success":          true,
		"status":           status,
		"compliance_score": score,
		"file_results":     fileResults,
		"summary": map[string]any{
			"total_files_checked": len(files),
			"total_violations":    totalViolations,
			"by_severity":         bySeverity,
		},
		"recommendations": recommendations,
	}
}

func onlyTopLevel(files []docsource.DocFile) []docsource.DocFile {
	var out []docsource.DocFile
	for _, f := range files {
		if !strings.Contains(f.Path, "/") {
			out = append(out, f)
		}
	}
	return out
}

var validateDocumentationUpdateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"repository": {"type": "string"},
		"days": {"type": "integer", "minimum": 1}
	},
	"required": ["repository"]
}`)

// ValidateDocumentationUpdate is the validate_documentation_update skill.
type ValidateDocumentationUpdate struct {
	source docsource.Source
	now    func() time.Time
}

// NewValidateDocumentationUpdate builds the skill over source.
func NewValidateDocumentationUpdate(source docsource.Source) *ValidateDocumentationUpdate {
	return &ValidateDocumentationUpdate{source: source, now: time.Now}
}

func (s *ValidateDocumentationUpdate) ID() string   { return "validate_documentation_update" }
func (s *ValidateDocumentationUpdate) Name() string { return "Validate Documentation Update" }
func (s *ValidateDocumentationUpdate) Tags() []string {
	return []string{"documentation", "compliance"}
}
func (s *ValidateDocumentationUpdate) RequiresAuthentication() bool { return false }
func (s *ValidateDocumentationUpdate) InputSchema() json.RawMessage {
	return validateDocumentationUpdateSchema
}
func (s *ValidateDocumentationUpdate) Description() string {
	return "Checks whether recent code changes in a repository were accompanied by documentation updates."
}
func (s *ValidateDocumentationUpdate) Examples() []skill.Example {
	return []skill.Example{{
		Input:       map[string]any{"repository": "example/service", "days": 7},
		Description: "Check the last week of commits for doc/code drift.",
	}}
}

func (s *ValidateDocumentationUpdate) Execute(ctx context.Context, input map[string]any, _ auth.Identity) map[string]any {
	repository, _ := input["repository"].(string)
	days := 7
	if v, ok := input["days"].(float64); ok {
		days = int(v)
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	commits, err := s.source.RecentCommits(ctx, repository, since)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}

	var codeFiles, docFiles []string
	for _, c := range commits {
		for _, f := range c.Files {
			if docsource.IsDocFile(f) {
				docFiles = append(docFiles, f)
			} else {
				codeFiles = append(codeFiles, f)
			}
		}
	}

	var warnings []string
	status := "ok"
	message := "Documentation changes tracked code changes in the lookback window."
	if len(codeFiles) > 0 && len(docFiles) == 0 {
		status = "warning"
		message = fmt.Sprintf("%d code file(s) changed in the last %d day(s) with no accompanying documentation change.", len(codeFiles), days)
		warnings = append(warnings, "No documentation files were touched alongside recent code changes.")
	}

	return map[string]any{
		"success": true,
		"validation": map[string]any{
			"status":  status,
			"message": message,
		},
		"changes": map[string]any{
			"code_files": codeFiles,
			"doc_files":  docFiles,
		},
		"warnings": warnings,
	}
}
