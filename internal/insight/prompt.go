package insight

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

const outputSchema = `{
  "score": <integer 0-100, the sum of the category scores>,
  "summary": "<two or three sentences on the site's growth readiness>",
  "categories": [
    {"name": "<category name exactly as listed>", "score": <integer within the category's points>, "feedback": "<specific observations>"}
  ],
  "recommendations": [
    {"priority": "High|Medium|Low", "action": "<concrete change to make>", "impact": "<expected business result>", "effort": "Low|Medium|High"}
  ]
}`

// BuildPrompt renders the deterministic analysis prompt for content.
func BuildPrompt(content analysis.CrawledContent, rubric Rubric) string {
	var sb strings.Builder
	sb.WriteString("You are a conversion and growth consultant reviewing a business website.\n")
	sb.WriteString("Score the website against the rubric below using only the page content provided.\n\n")

	sb.WriteString("## Website\n")
	fmt.Fprintf(&sb, "URL: %s\n", content.URL)
	fmt.Fprintf(&sb, "Title: %s\n", orNone(content.Title))
	fmt.Fprintf(&sb, "Description: %s\n\n", orNone(content.Description))

	fmt.Fprintf(&sb, "## Rubric (%d points total)\n", rubric.Total())
	for i, c := range rubric.Criteria {
		fmt.Fprintf(&sb, "%d. %s (%d points)\n", i+1, c.Name, c.Points)
		for _, check := range c.Checks {
			fmt.Fprintf(&sb, "   - %s\n", check)
		}
	}

	sb.WriteString("\n## Page content\n")
	sb.WriteString(content.Content)
	sb.WriteString("\n\n## Output\n")
	sb.WriteString("Respond with a single JSON object and nothing else, matching this schema:\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n\nInclude one category entry per rubric item, in rubric order. ")
	sb.WriteString("Give between three and six recommendations ordered by priority.\n")
	return sb.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
