// Package kb implements the Dev-Nexus Knowledge Base: a single versioned
// JSON document, schema migration, and the safe-update contract described
// in spec.md §3/§4.2. The document itself has no persistence logic — that
// lives behind the DocumentStore interface in store.go — so the types here
// are plain, JSON-tagged structs.
package kb

import "time"

// SchemaVersion2 is the only schema version Load ever returns to callers;
// "1.0" documents are migrated in-memory (see migrate.go).
const SchemaVersion2 = "2.0"

// Document is the root of the knowledge base.
type Document struct {
	SchemaVersion string                `json:"schema_version"`
	Repositories  map[string]RepoRecord `json:"repositories"`
	LastUpdated   time.Time             `json:"last_updated"`
}

// NewDocument returns an empty, current-schema document — the value Load
// returns when the remote file does not yet exist.
func NewDocument() Document {
	return Document{
		SchemaVersion: SchemaVersion2,
		Repositories:  map[string]RepoRecord{},
		LastUpdated:   time.Time{},
	}
}

// RepoRecord is the v2 per-repository record (spec.md §3).
type RepoRecord struct {
	LatestPatterns   LatestPatterns    `json:"latest_patterns"`
	Deployment       Deployment        `json:"deployment"`
	Dependencies     DependencyInfo    `json:"dependencies"`
	Testing          Testing           `json:"testing"`
	Security         Security          `json:"security"`
	RuntimeIssues    []RuntimeIssue    `json:"runtime_issues"`
	ProductionMetrics *ProductionMetrics `json:"production_metrics,omitempty"`
	History          []HistoryEntry    `json:"history"`
}

// NewRepoRecord returns a RepoRecord with every section initialized to its
// empty-but-non-nil form; the v1 migration in migrate.go (upgradeRaw)
// starts every repository from this value.
func NewRepoRecord() RepoRecord {
	return RepoRecord{
		LatestPatterns: LatestPatterns{
			Patterns:            []string{},
			Decisions:           []string{},
			ReusableComponents:  []Component{},
			Dependencies:        []string{},
			Keywords:            []string{},
		},
		Deployment: Deployment{
			Scripts:            []string{},
			LessonsLearned:     []Lesson{},
			ReusableComponents: []Component{},
			Infrastructure:     map[string]any{},
		},
		Dependencies: DependencyInfo{
			Consumers:           []Edge{},
			Derivatives:         []Edge{},
			ExternalDependencies: []string{},
		},
		Testing: Testing{
			TestFrameworks: []string{},
			TestPatterns:   []string{},
		},
		Security: Security{
			SecurityPatterns:      []string{},
			AuthenticationMethods: []string{},
			ComplianceStandards:   []string{},
		},
		RuntimeIssues: []RuntimeIssue{},
		History:       []HistoryEntry{},
	}
}

// LatestPatterns is the most recent extraction result for a repository.
type LatestPatterns struct {
	Patterns           []string    `json:"patterns"`
	Decisions          []string    `json:"decisions"`
	ReusableComponents []Component `json:"reusable_components"`
	Dependencies       []string    `json:"dependencies"`
	ProblemDomain      string      `json:"problem_domain"`
	Keywords           []string    `json:"keywords"`
	AnalyzedAt         time.Time   `json:"analyzed_at"`
	CommitSHA          string      `json:"commit_sha"`
}

// Deployment captures operational knowledge about a repository.
type Deployment struct {
	Scripts            []string       `json:"scripts"`
	LessonsLearned     []Lesson       `json:"lessons_learned"`
	ReusableComponents []Component    `json:"reusable_components"`
	CICDPlatform       string         `json:"ci_cd_platform"`
	Infrastructure     map[string]any `json:"infrastructure"`
}

// DependencyInfo captures cross-repository relationships.
type DependencyInfo struct {
	Consumers            []Edge   `json:"consumers"`
	Derivatives          []Edge   `json:"derivatives"`
	ExternalDependencies []string `json:"external_dependencies"`
}

// Testing captures a repository's test posture.
type Testing struct {
	TestFrameworks     []string `json:"test_frameworks"`
	CoveragePercentage float64  `json:"coverage_percentage"` // [0,100]
	TestPatterns       []string `json:"test_patterns"`
}

// Security captures a repository's security posture.
type Security struct {
	SecurityPatterns      []string `json:"security_patterns"`
	AuthenticationMethods []string `json:"authentication_methods"`
	ComplianceStandards   []string `json:"compliance_standards"`
}

// Lesson severity levels (spec.md §3).
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Lesson categories (spec.md §3).
const (
	CategoryPerformance  = "performance"
	CategorySecurity     = "security"
	CategoryReliability  = "reliability"
	CategoryCost         = "cost"
	CategoryObservability = "observability"
	CategoryDeployment   = "deployment"
)

// Lesson is an operational lesson learned recorded against a repository.
type Lesson struct {
	Category    string    `json:"category"`
	Lesson      string    `json:"lesson"`
	Context     string    `json:"context"`
	Severity    string    `json:"severity"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Component is a reusable unit of code surfaced from extraction.
type Component struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Edge is a directed relationship to another repository.
type Edge struct {
	Repository   string `json:"repository"`
	Relationship string `json:"relationship"`
}

// RuntimeIssue types (spec.md §3).
const (
	IssueTypeError       = "error"
	IssueTypePerformance = "performance"
	IssueTypeCrash       = "crash"
	IssueTypeSecurity    = "security"
)

// RuntimeIssue severities (spec.md §3).
const (
	IssueSeverityLow      = "low"
	IssueSeverityMedium   = "medium"
	IssueSeverityHigh     = "high"
	IssueSeverityCritical = "critical"
)

// RuntimeIssue statuses (spec.md §3).
const (
	IssueStatusOpen          = "open"
	IssueStatusInvestigating = "investigating"
	IssueStatusFixed         = "fixed"
	IssueStatusFalsePositive = "false_positive"
)

// RuntimeIssue is a production-observed failure reported against a repository.
type RuntimeIssue struct {
	ID               string         `json:"id"`
	DetectedAt       time.Time      `json:"detected_at"`
	IssueType        string         `json:"issue_type"`
	Severity         string         `json:"severity"`
	ServiceType      string         `json:"service_type"`
	Logs             string         `json:"logs"`
	RootCause        string         `json:"root_cause,omitempty"`
	Fix              string         `json:"fix,omitempty"`
	PatternReference string         `json:"pattern_reference,omitempty"`
	GitHubIssueURL   string         `json:"github_issue_url,omitempty"`
	Status           string         `json:"status"`
	Metrics          map[string]any `json:"metrics,omitempty"`
	ResolutionTime   *float64       `json:"resolution_time,omitempty"` // seconds
}

// ProductionMetrics is the optional per-repository runtime snapshot.
type ProductionMetrics struct {
	ErrorRate     float64   `json:"error_rate"`
	LatencyP50    float64   `json:"latency_p50"`
	LatencyP95    float64   `json:"latency_p95"`
	LatencyP99    float64   `json:"latency_p99"`
	ThroughputRPS float64   `json:"throughput_rps"`
	LastUpdated   time.Time `json:"last_updated"`
}

// HistoryEntry is one append-only snapshot of a repository's patterns.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	CommitSHA string    `json:"commit_sha"`
	Patterns  []string  `json:"patterns"`
}

// MaxHistoryEntries bounds how many history entries a single call returns
// (spec.md §5).
const MaxHistoryEntries = 50

// RecentHistory returns up to MaxHistoryEntries entries, most recent first.
func RecentHistory(history []HistoryEntry) []HistoryEntry {
	n := len(history)
	if n == 0 {
		return nil
	}
	start := 0
	if n > MaxHistoryEntries {
		start = n - MaxHistoryEntries
	}
	out := make([]HistoryEntry, 0, n-start)
	for i := n - 1; i >= start; i-- {
		out = append(out, history[i])
	}
	return out
}
