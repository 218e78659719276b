package marking

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Status describes how cleanly a model response mapped onto the canonical record.
type Status string

const (
	// StatusClean means every field was present and well typed.
	StatusClean Status = "clean"
	// StatusPartial means at least one field fell back to its default.
	StatusPartial Status = "partial"
)

// Record is the canonical scoring record for one submission.
type Record struct {
	TotalScore        int
	OverallStrengths  []string
	OverallWeaknesses []string
	Criteria          CriteriaScores
}

// Normalized is the outcome of Normalize. Dropped counts the fields that were
// absent, wrong-typed or unusable and therefore replaced by defaults.
type Normalized struct {
	Record  Record
	Dropped int
}

// Status reports whether the record was built without dropping anything.
func (n Normalized) Status() Status {
	if n.Dropped > 0 {
		return StatusPartial
	}
	return StatusClean
}

// Normalize builds the canonical record from an extracted document. The total
// score is clamped to [0, genreMaxTotal] and each criterion score to
// [0, max_score], so a criterion without a usable max_score scores 0. Repeated
// keys take their last value.
func Normalize(doc Document, genreMaxTotal int) (Normalized, error) {
	root := gjson.ParseBytes(doc.Raw)
	if !root.IsObject() {
		return Normalized{}, fmt.Errorf("%w: top-level value is not an object", ErrExtraction)
	}
	if genreMaxTotal < 0 {
		genreMaxTotal = 0
	}

	n := &normalizer{}
	record := Record{
		TotalScore:        clamp(n.integer(lastField(root, FieldTotalScore)), 0, genreMaxTotal),
		OverallStrengths:  capList(n.strings(lastField(root, FieldOverallStrengths)), MaxOverallItems),
		OverallWeaknesses: capList(n.strings(lastField(root, FieldOverallWeaknesses)), MaxOverallItems),
		Criteria:          n.criteria(lastField(root, FieldCriteria)),
	}

	return Normalized{Record: record, Dropped: n.dropped}, nil
}

type normalizer struct {
	dropped int
}

func (n *normalizer) criteria(value gjson.Result) CriteriaScores {
	out := CriteriaScores{}
	if !value.IsObject() {
		n.dropped++
		return out
	}

	value.ForEach(func(key, entry gjson.Result) bool {
		if !entry.IsObject() {
			n.dropped++
			return true
		}
		score := CriterionScore{
			Score:           n.integer(lastField(entry, FieldScore)),
			MaxScore:        n.integer(lastField(entry, FieldMaxScore)),
			Feedback:        n.text(lastField(entry, FieldFeedback)),
			Evidence:        n.strings(lastField(entry, FieldEvidence)),
			Recommendations: n.strings(lastField(entry, FieldRecommendations)),
		}
		if score.MaxScore < 0 {
			score.MaxScore = 0
		}
		score.Score = clamp(score.Score, 0, score.MaxScore)
		out.Set(key.String(), score)
		return true
	})

	return out
}

func (n *normalizer) integer(value gjson.Result) int {
	switch value.Type {
	case gjson.Number:
		return truncate(value.Float())
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			n.dropped++
			return 0
		}
		return truncate(parsed)
	default:
		n.dropped++
		return 0
	}
}

func (n *normalizer) text(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return value.Str
	case gjson.Number, gjson.True, gjson.False:
		return value.String()
	default:
		n.dropped++
		return ""
	}
}

func (n *normalizer) strings(value gjson.Result) []string {
	out := []string{}
	if !value.IsArray() {
		n.dropped++
		return out
	}

	value.ForEach(func(_, item gjson.Result) bool {
		switch item.Type {
		case gjson.String:
			out = append(out, item.Str)
		case gjson.Number, gjson.True, gjson.False:
			out = append(out, item.String())
		default:
			n.dropped++
		}
		return true
	})

	return out
}

// lastField returns the last member named key, so duplicate keys resolve the
// way a decoder that overwrites on repeat would. gjson's Get keeps the first.
func lastField(object gjson.Result, key string) gjson.Result {
	var found gjson.Result
	object.ForEach(func(name, value gjson.Result) bool {
		if name.Str == key {
			found = value
		}
		return true
	})
	return found
}

func truncate(value float64) int {
	const limit = math.MaxInt32
	switch {
	case value > limit:
		return limit
	case value < -limit:
		return -limit
	default:
		return int(value)
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func capList(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
