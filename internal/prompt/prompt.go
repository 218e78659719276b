// Package prompt builds the marking instruction sent to the generation service.
package prompt

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"
	"text/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-writing-api/internal/marking"
	"github.com/noah-isme/gema-writing-api/internal/rubric"
	"github.com/noah-isme/gema-writing-api/internal/utils"
)

// MaxTextRunes bounds the submission text embedded in a prompt.
const MaxTextRunes = 12000

//go:embed prompt.tmpl
var promptTemplate string

var (
	blockBoundary = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>|</h[1-6]>`)
	// editorMarkup matches tags a rich-text editor emits: a closing tag or a
	// void element. A bare "<" in prose such as "a<b and c>d" never matches.
	editorMarkup = regexp.MustCompile(`(?i)</(p|div|span|h[1-6]|ul|ol|li|strong|em|b|i|u|s|a|blockquote|pre|code|sub|sup|table|thead|tbody|tr|td|th|script|style)\s*>|<(br|hr)\s*/?>|<img\s[^<>]*>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

type fieldNames struct {
	TotalScore        string
	OverallStrengths  string
	OverallWeaknesses string
	Criteria          string
	Score             string
	MaxScore          string
	Feedback          string
	Evidence          string
	Recommendations   string
}

var fields = fieldNames{
	TotalScore:        marking.FieldTotalScore,
	OverallStrengths:  marking.FieldOverallStrengths,
	OverallWeaknesses: marking.FieldOverallWeaknesses,
	Criteria:          marking.FieldCriteria,
	Score:             marking.FieldScore,
	MaxScore:          marking.FieldMaxScore,
	Feedback:          marking.FieldFeedback,
	Evidence:          marking.FieldEvidence,
	Recommendations:   marking.FieldRecommendations,
}

type templateData struct {
	Label             string
	Text              string
	MaxTotal          int
	MaxTextRunes      int
	MaxReferenceRunes int
	Criteria          []rubric.Criterion
	Fields            fieldNames
}

// Builder renders marking prompts. It is safe for concurrent use.
type Builder struct {
	tmpl   *template.Template
	policy *bluemonday.Policy
}

// NewBuilder parses the embedded prompt template.
func NewBuilder() (*Builder, error) {
	tmpl, err := template.New("prompt").Funcs(funcMap()).Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Builder{tmpl: tmpl, policy: bluemonday.StrictPolicy()}, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"lower":    strings.ToLower,
		"truncate": utils.TruncateRunes,
	}
}

// Build renders the prompt for a submission. The output shape example lists
// one block per rubric criterion, in rubric order.
func (b *Builder) Build(r rubric.Rubric, text string) (string, error) {
	data := templateData{
		Label:             r.Label,
		Text:              b.PlainText(text),
		MaxTotal:          r.MaxTotal(),
		MaxTextRunes:      MaxTextRunes,
		MaxReferenceRunes: rubric.MaxReferenceRunes,
		Criteria:          r.Criteria,
		Fields:            fields,
	}

	var out strings.Builder
	if err := b.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out.String(), nil
}

// PlainText strips rich-text markup from editor content. Block-level tags
// become line breaks and entities are decoded. Content without editor tags is
// returned trimmed but otherwise untouched.
func (b *Builder) PlainText(content string) string {
	if !editorMarkup.MatchString(content) {
		return strings.TrimSpace(content)
	}

	content = blockBoundary.ReplaceAllString(content, "\n")
	content = html.UnescapeString(b.policy.Sanitize(content))
	return strings.TrimSpace(blankLines.ReplaceAllString(content, "\n\n"))
}

// SystemInstruction returns the system message for a genre label.
func SystemInstruction(label string) string {
	return fmt.Sprintf("You are an expert NAPLAN %s writing assessor. Assess fairly and consistently using the rubric. Return only valid JSON with no extra commentary.", strings.ToLower(label))
}
