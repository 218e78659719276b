// Package marking turns free-form model output into a canonical scoring record
// and renders that record as a markdown report.
package marking

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Field names shared by the prompt's output example and the normalizer.
const (
	FieldTotalScore        = "total_score"
	FieldOverallStrengths  = "overall_strengths"
	FieldOverallWeaknesses = "overall_weaknesses"
	FieldCriteria          = "criteria"
	FieldScore             = "score"
	FieldMaxScore          = "max_score"
	FieldFeedback          = "feedback"
	FieldEvidence          = "evidence"
	FieldRecommendations   = "recommendations"
)

// MaxOverallItems caps the overall strengths and weaknesses lists.
const MaxOverallItems = 10

// CriterionScore is the canonical score for a single rubric criterion.
type CriterionScore struct {
	Score           int      `json:"score"`
	MaxScore        int      `json:"max_score"`
	Feedback        string   `json:"feedback"`
	Evidence        []string `json:"evidence"`
	Recommendations []string `json:"recommendations"`
}

func (c *CriterionScore) ensureLists() {
	if c.Evidence == nil {
		c.Evidence = []string{}
	}
	if c.Recommendations == nil {
		c.Recommendations = []string{}
	}
}

// CriterionEntry pairs a criterion key with its score.
type CriterionEntry struct {
	Key   string
	Score CriterionScore
}

// CriteriaScores maps criterion keys to scores and keeps insertion order.
// It encodes as a JSON object whose keys follow that order.
type CriteriaScores []CriterionEntry

// Set stores score under key, replacing an existing entry in place.
func (c *CriteriaScores) Set(key string, score CriterionScore) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Score = score
			return
		}
	}
	*c = append(*c, CriterionEntry{Key: key, Score: score})
}

// Get returns the score stored under key.
func (c CriteriaScores) Get(key string) (CriterionScore, bool) {
	for _, entry := range c {
		if entry.Key == key {
			return entry.Score, true
		}
	}
	return CriterionScore{}, false
}

// Keys returns the criterion keys in insertion order.
func (c CriteriaScores) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, entry := range c {
		keys = append(keys, entry.Key)
	}
	return keys
}

// MarshalJSON implements json.Marshaler.
func (c CriteriaScores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		score := entry.Score
		score.ensureLists()
		value, err := json.Marshal(score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CriteriaScores) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("criteria scores: invalid json")
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		*c = nil
		return nil
	}
	if !root.IsObject() {
		return errors.New("criteria scores: expected a json object")
	}

	out := CriteriaScores{}
	var decodeErr error
	root.ForEach(func(key, value gjson.Result) bool {
		var score CriterionScore
		if err := json.Unmarshal([]byte(value.Raw), &score); err != nil {
			decodeErr = fmt.Errorf("criteria scores: %s: %w", key.String(), err)
			return false
		}
		score.ensureLists()
		out.Set(key.String(), score)
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}

	*c = out
	return nil
}

// Value implements driver.Valuer.
func (c CriteriaScores) Value() (driver.Value, error) {
	payload, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (c *CriteriaScores) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("criteria scores: unsupported scan type %T", value)
	}
}

// GormDataType stores the column as json rather than jsonb so postgres keeps key order.
func (CriteriaScores) GormDataType() string {
	return "json"
}
