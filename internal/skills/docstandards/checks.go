package docstandards

import (
	"context"
	"regexp"
	"strings"

	"github.com/dev-nexus/devnexus/internal/guards"
)

var headingRegex = regexp.MustCompile(`(?m)^#{1,3}\s+\S`)

// titleRequired fails when a markdown file has no top-level heading.
var titleRequired = guards.NewCheckFunc("title_required", func(_ context.Context, s *guards.Subject) guards.Result {
	if strings.HasPrefix(strings.TrimSpace(s.Content), "#") {
		return guards.Pass("title_required")
	}
	return guards.Fail("title_required", guards.High,
		s.Path+" has no top-level heading.",
		"Add a single # heading naming the document.",
	)
})

// nonEmptyRequired fails when a markdown file is empty or whitespace-only.
var nonEmptyRequired = guards.NewCheckFunc("non_empty", func(_ context.Context, s *guards.Subject) guards.Result {
	if strings.TrimSpace(s.Content) != "" {
		return guards.Pass("non_empty")
	}
	return guards.Fail("non_empty", guards.Critical,
		s.Path+" is empty.",
		"Remove the file or populate it with real content.",
	)
})

// readmeUsageSection recommends a README document its usage.
var readmeUsageSection = guards.NewCheckFunc("readme_usage_section", func(_ context.Context, s *guards.Subject) guards.Result {
	if !s.IsReadme {
		return guards.Pass("readme_usage_section")
	}
	lower := strings.ToLower(s.Content)
	if strings.Contains(lower, "usage") || strings.Contains(lower, "getting started") || strings.Contains(lower, "installation") {
		return guards.Pass("readme_usage_section")
	}
	return guards.Fail("readme_usage_section", guards.Medium,
		"README has no usage, getting-started, or installation section.",
		"Add a section explaining how to install or run the project.",
	)
})

// sectionHeadingsRequired recommends at least one sub-section beyond the
// title for any document over a trivial length.
var sectionHeadingsRequired = guards.NewCheckFunc("section_headings", func(_ context.Context, s *guards.Subject) guards.Result {
	if len(s.Content) < 200 {
		return guards.Pass("section_headings")
	}
	if len(headingRegex.FindAllString(s.Content, -1)) >= 2 {
		return guards.Pass("section_headings")
	}
	return guards.Fail("section_headings", guards.Low,
		s.Path+" is long but has no sub-section headings.",
		"Break the document into headed sections for scanability.",
	)
})

// allChecks lists the checks check_documentation_standards runs against
// every documentation file.
func allChecks() []guards.Check {
	return []guards.Check{nonEmptyRequired, titleRequired, readmeUsageSection, sectionHeadingsRequired}
}
