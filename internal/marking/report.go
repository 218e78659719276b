package marking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var scoreLine = regexp.MustCompile(`(?m)^\*\*Total score:\*\* (-?\d+)/(-?\d+)[ \t]*$`)

// Title turns a criterion key such as "sentence_structure" into "Sentence Structure".
func Title(key string) string {
	// cases.Caser is stateful, so one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// Render produces the markdown report for a record. Criteria appear in record
// order and every criterion gets a heading, even with empty feedback.
func Render(record Record, genreLabel string, maxScore int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# NAPLAN %s Assessment Report\n\n", genreLabel)
	fmt.Fprintf(&b, "**Total score:** %d/%d\n\n", record.TotalScore, maxScore)

	b.WriteString("## Overall strengths\n\n")
	writeBullets(&b, record.OverallStrengths, "%s")
	b.WriteString("\n## Areas for development\n\n")
	writeBullets(&b, record.OverallWeaknesses, "%s")
	b.WriteString("\n")

	for _, entry := range record.Criteria {
		score := entry.Score
		fmt.Fprintf(&b, "## %s (%d/%d)\n\n", Title(entry.Key), score.Score, score.MaxScore)
		b.WriteString(score.Feedback)
		b.WriteString("\n\n")

		if len(score.Evidence) > 0 {
			b.WriteString("**Evidence:**\n\n")
			writeBullets(&b, score.Evidence, "\"%s\"")
			b.WriteString("\n")
		}
		if len(score.Recommendations) > 0 {
			b.WriteString("**Recommendations:**\n\n")
			writeBullets(&b, score.Recommendations, "%s")
			b.WriteString("\n")
		}
	}

	return b.String()
}

// ParseScoreLine reads the total and maximum back out of a rendered report.
func ParseScoreLine(report string) (total int, maxScore int, ok bool) {
	match := scoreLine.FindStringSubmatch(report)
	if match == nil {
		return 0, 0, false
	}
	total, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, false
	}
	maxScore, err = strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, false
	}
	return total, maxScore, true
}

func writeBullets(b *strings.Builder, items []string, format string) {
	for _, item := range items {
		b.WriteString("- ")
		fmt.Fprintf(b, format, oneLine(item))
		b.WriteString("\n")
	}
}

// oneLine keeps a bullet on a single markdown line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
