package stages

import (
	"fmt"
	"strconv"
	"strings"

	"docpipe/internal/records"
)

// RenderReviewReport renders the review as a markdown document.
func RenderReviewReport(review *records.Review) string {
	var b strings.Builder
	b.WriteString("# Human Review Report\n\n")
	if review == nil {
		b.WriteString("No review available.\n")
		return b.String()
	}

	summary := review.ReviewSummary
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Total records: %d\n", summary.TotalRecords)
	fmt.Fprintf(&b, "- Records with issues: %d\n", summary.RecordsWithIssues)
	fmt.Fprintf(&b, "- Issues found: %d\n", summary.IssuesCount)
	fmt.Fprintf(&b, "- Recommendation: **%s**\n", orNA(review.ReviewRecommendation))

	if len(review.Issues) > 0 {
		b.WriteString("\n## Issues Requiring Attention\n")
		for _, issue := range review.Issues {
			fmt.Fprintf(&b, "\n### %s\n", orDefault(issue.ID, "Unknown"))
			fmt.Fprintf(&b, "- **Type**: %s\n", orNA(issue.Type))
			fmt.Fprintf(&b, "- **Severity**: %s\n", orNA(issue.Severity))
			fmt.Fprintf(&b, "- **Field**: `%s`\n", orNA(issue.Field))
			fmt.Fprintf(&b, "- **Record**: %s / %s\n", orNA(issue.RecordType), orNA(issue.RecordID))
			confidence := "N/A"
			if issue.Confidence != nil {
				confidence = strconv.FormatFloat(*issue.Confidence, 'f', -1, 64)
			}
			fmt.Fprintf(&b, "- **Confidence**: %s\n", confidence)
			fmt.Fprintf(&b, "- **Reason**: %s\n", orNA(issue.Reason))
			fmt.Fprintf(&b, "- **Evidence**: Page %d\n", issue.Evidence.Page)
			if snippet := strings.TrimSpace(issue.Evidence.Snippet); snippet != "" {
				b.WriteString("  ```\n")
				b.WriteString(snippet)
				b.WriteString("\n  ```\n")
			}
			fmt.Fprintf(&b, "- **Suggestion**: %s\n", orNA(issue.Suggestion))
			decision := "NO"
			if issue.DecisionRequired {
				decision = "YES"
			}
			fmt.Fprintf(&b, "- **Decision Required**: %s\n", decision)
		}
	}

	if len(review.AutoFixes) > 0 {
		b.WriteString("\n## Auto-Fix Suggestions\n\n")
		for _, fix := range review.AutoFixes {
			fmt.Fprintf(&b, "- **%s**: `%s`\n", orDefault(fix.IssueID, "Unknown"), orNA(fix.Field))
			fmt.Fprintf(&b, "  - Original: `%v`\n", fix.Original)
			fmt.Fprintf(&b, "  - Suggested: `%v`\n", fix.SuggestedFix)
			fmt.Fprintf(&b, "  - Confidence: %s\n", strconv.FormatFloat(fix.Confidence, 'f', -1, 64))
		}
	}
	return b.String()
}

func orNA(value string) string {
	return orDefault(value, "N/A")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
