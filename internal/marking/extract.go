package marking

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrExtraction indicates no usable JSON could be recovered from a model response.
var ErrExtraction = errors.New("no valid JSON found in response")

// Strategy names the extraction step that produced a Document.
type Strategy string

const (
	StrategyWhole  Strategy = "whole"
	StrategyFenced Strategy = "fenced"
	StrategyBraces Strategy = "braces"
)

// Document is a JSON value recovered from a model response.
type Document struct {
	Raw      json.RawMessage
	Strategy Strategy
}

var (
	fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	braceSpan   = regexp.MustCompile(`\{[\s\S]*\}`)
)

type strategy struct {
	name  Strategy
	parse func(text string) (json.RawMessage, bool)
}

// Cheapest first. The brace span must stay last: it would otherwise win over
// raw JSON that merely carries leading prose.
var strategies = []strategy{
	{name: StrategyWhole, parse: parseWhole},
	{name: StrategyFenced, parse: parseFenced},
	{name: StrategyBraces, parse: parseBraces},
}

// Extract recovers the JSON value embedded in a model response.
func Extract(response string) (Document, error) {
	text := strings.TrimSpace(response)
	for _, s := range strategies {
		if raw, ok := s.parse(text); ok {
			return Document{Raw: raw, Strategy: s.name}, nil
		}
	}
	return Document{}, ErrExtraction
}

func parseWhole(text string) (json.RawMessage, bool) {
	return asJSON(text)
}

func parseFenced(text string) (json.RawMessage, bool) {
	match := fencedBlock.FindStringSubmatch(text)
	if match == nil {
		return nil, false
	}
	return asJSON(strings.TrimSpace(match[1]))
}

func parseBraces(text string) (json.RawMessage, bool) {
	return asJSON(braceSpan.FindString(text))
}

func asJSON(candidate string) (json.RawMessage, bool) {
	if candidate == "" || !gjson.Valid(candidate) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}
