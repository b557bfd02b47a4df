package harvest

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders learnings as one markdown document, one section per
// session, in the order given.
func RenderMarkdown(learnings []*Learning) string {
	var sb strings.Builder
	sb.WriteString("# Session Learnings\n")

	for _, l := range learnings {
		sb.WriteString("\n## ")
		sb.WriteString(l.SessionID)
		if l.HarvestedAt != "" {
			fmt.Fprintf(&sb, " (%s)", l.HarvestedAt)
		}
		sb.WriteString("\n\n")

		if l.Summary != "" {
			sb.WriteString(l.Summary)
			sb.WriteString("\n")
		}
		writeList(&sb, "Topics", l.Topics)
		writeList(&sb, "Decisions", l.Decisions)
		writeList(&sb, "Facts", l.FactsLearned)
		writeList(&sb, "Action items", l.ActionItems)
	}
	return sb.String()
}

// RenderSummaryLine renders one learning as a single display line.
func RenderSummaryLine(l *Learning) string {
	summary := l.Summary
	if summary == "" && len(l.Topics) > 0 {
		summary = strings.Join(l.Topics, ", ")
	}
	if len(summary) > 120 {
		summary = summary[:117] + "..."
	}
	return fmt.Sprintf("%s  %s", l.SessionID, summary)
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n**")
	sb.WriteString(heading)
	sb.WriteString("**\n\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}
