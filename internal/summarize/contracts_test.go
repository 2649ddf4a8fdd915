package summarize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateSummary_OptionalsOmittedWhenAbsent(t *testing.T) {
	b, err := json.Marshal(CandidateSummary{
		Role:          "Engineer",
		Summary:       "x",
		Score:         5,
		Justification: "y",
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "experience")
	assert.NotContains(t, m, "contact")
	assert.NotContains(t, m, "skills")

	// The minimal marshalled form satisfies the schema as-is.
	require.NoError(t, ValidateJSONAgainstSchema(BuildSummaryJSONSchema(), b))
}

func TestCandidateSummary_OptionalsKeptWhenSet(t *testing.T) {
	b, err := json.Marshal(CandidateSummary{
		Role:          "Engineer",
		Summary:       "x",
		Score:         5,
		Justification: "y",
		Experience:    &ExperienceStats{TotalYears: 7, Companies: 2, LatestTitle: "Staff Engineer"},
		Contact:       &ContactDetails{Email: "a@example.com"},
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "experience")
	assert.Contains(t, m, "contact")
	require.NoError(t, ValidateJSONAgainstSchema(BuildSummaryJSONSchema(), b))
}
