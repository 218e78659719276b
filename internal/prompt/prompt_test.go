package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-writing-api/internal/rubric"
)

func loadRubric(t *testing.T, genre string) rubric.Rubric {
	t.Helper()
	provider, err := rubric.NewDefaultProvider("", nil)
	require.NoError(t, err)
	r, err := provider.Load(genre)
	require.NoError(t, err)
	return r
}

func TestBuildEmbedsRubricAndOutputShape(t *testing.T) {
	builder, err := NewBuilder()
	require.NoError(t, err)

	r := loadRubric(t, rubric.GenrePersuasive)
	prompt, err := builder.Build(r, "Homework should be banned because it wastes time.")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(prompt, "# NAPLAN Persuasive Writing Assessment\n"))
	require.Contains(t, prompt, "```\nHomework should be banned because it wastes time.\n```")
	require.Contains(t, prompt, "### Persuasive devices (`persuasive_devices`)\n")
	require.Contains(t, prompt, `"total_score": <number 0-48>`)
	require.Contains(t, prompt, `"paragraphing": { "score": 0, "max_score": 3, "feedback": "...", "evidence": [], "recommendations": [] }`)
	require.Contains(t, prompt, `"audience": { "score": 0, "max_score": 6, "feedback": "...", "evidence": ["quote1"], "recommendations": ["rec1"] },`)
	require.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "}\n  }\n}"))

	last := -1
	for _, key := range r.Keys() {
		idx := strings.Index(prompt, fmt.Sprintf(`"%s": { "score"`, key))
		require.Greater(t, idx, last, key)
		last = idx
	}
}

func TestBuildUsesGenreTotal(t *testing.T) {
	builder, err := NewBuilder()
	require.NoError(t, err)

	prompt, err := builder.Build(loadRubric(t, rubric.GenreNarrative), "Once upon a time.")
	require.NoError(t, err)
	require.Contains(t, prompt, `"total_score": <number 0-47>`)
	require.Contains(t, prompt, "### Character and setting (`character_setting`)\n")
	require.NotContains(t, prompt, "persuasive_devices")
}

func TestBuildTruncatesSubmissionText(t *testing.T) {
	builder, err := NewBuilder()
	require.NoError(t, err)

	text := strings.Repeat("a", MaxTextRunes) + strings.Repeat("b", 500)
	prompt, err := builder.Build(loadRubric(t, rubric.GenreNarrative), text)
	require.NoError(t, err)
	require.Contains(t, prompt, strings.Repeat("a", MaxTextRunes)+"\n```")
	require.NotContains(t, prompt, "b\n```")
	require.NotContains(t, prompt, strings.Repeat("a", MaxTextRunes+1))
}

func TestPlainTextStripsEditorMarkup(t *testing.T) {
	builder, err := NewBuilder()
	require.NoError(t, err)

	content := `<h2>The Storm</h2><p>It was <strong>dark</strong> &amp; cold.</p><p>We ran<br/>home.</p><script>alert(1)</script>`
	require.Equal(t, "The Storm\nIt was dark & cold.\nWe ran\nhome.", builder.PlainText(content))
	require.Equal(t, "plain words", builder.PlainText("  plain words \n"))
}

func TestPlainTextKeepsProseWithAngleBrackets(t *testing.T) {
	builder, err := NewBuilder()
	require.NoError(t, err)

	for _, content := range []string{
		"a<b and c>d",
		"If x < 3 and y > 2 then we win.",
		"Fish & chips <3",
	} {
		require.Equal(t, content, builder.PlainText(content))
	}
	require.Equal(t, "bold move", builder.PlainText("<b>bold</b> move"))
}

func TestSystemInstruction(t *testing.T) {
	require.Contains(t, SystemInstruction("Narrative"), "NAPLAN narrative writing assessor")
	require.Contains(t, SystemInstruction("Persuasive"), "Return only valid JSON")
}
