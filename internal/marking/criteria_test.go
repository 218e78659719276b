package marking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCriteriaScoresMarshalKeepsInsertionOrder(t *testing.T) {
	criteria := CriteriaScores{}
	criteria.Set("spelling", CriterionScore{Score: 5, MaxScore: 6, Feedback: "Accurate"})
	criteria.Set("audience", CriterionScore{Score: 4, MaxScore: 6})
	criteria.Set("spelling", CriterionScore{Score: 6, MaxScore: 6, Feedback: "Flawless"})

	payload, err := json.Marshal(criteria)
	require.NoError(t, err)
	require.Equal(t,
		`{"spelling":{"score":6,"max_score":6,"feedback":"Flawless","evidence":[],"recommendations":[]},"audience":{"score":4,"max_score":6,"feedback":"","evidence":[],"recommendations":[]}}`,
		string(payload))
}

func TestCriteriaScoresUnmarshalKeepsDocumentOrder(t *testing.T) {
	var criteria CriteriaScores
	err := json.Unmarshal([]byte(`{"vocabulary":{"score":3,"max_score":5,"feedback":"ok"},"cohesion":{"score":2,"max_score":4,"feedback":"","evidence":["so then"],"recommendations":[]}}`), &criteria)
	require.NoError(t, err)
	require.Equal(t, []string{"vocabulary", "cohesion"}, criteria.Keys())

	vocabulary, ok := criteria.Get("vocabulary")
	require.True(t, ok)
	require.Equal(t, []string{}, vocabulary.Evidence)

	cohesion, ok := criteria.Get("cohesion")
	require.True(t, ok)
	require.Equal(t, []string{"so then"}, cohesion.Evidence)
}

func TestCriteriaScoresScanAndValue(t *testing.T) {
	criteria := CriteriaScores{}
	criteria.Set("ideas", CriterionScore{Score: 4, MaxScore: 5, Feedback: "Imaginative"})

	value, err := criteria.Value()
	require.NoError(t, err)

	var scanned CriteriaScores
	require.NoError(t, scanned.Scan([]byte(value.(string))))
	require.Equal(t, criteria.Keys(), scanned.Keys())

	var fromString CriteriaScores
	require.NoError(t, fromString.Scan(value))
	ideas, _ := fromString.Get("ideas")
	require.Equal(t, "Imaginative", ideas.Feedback)

	require.Error(t, fromString.Scan(42))
	require.Error(t, fromString.UnmarshalJSON([]byte(`[1,2]`)))
}
