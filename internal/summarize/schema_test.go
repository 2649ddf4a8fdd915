package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSummaryJSON() []byte {
	return []byte(`{
		"role": "Backend Engineer",
		"summary": "Seven years building payment services.",
		"skills": ["Go", "Postgres"],
		"score": 8,
		"justification": "Strong match for the role."
	}`)
}

func TestValidateJSONAgainstSchema_AcceptsValidDocument(t *testing.T) {
	schema := BuildSummaryJSONSchema()
	require.NoError(t, ValidateJSONAgainstSchema(schema, validSummaryJSON()))
}

func TestValidateJSONAgainstSchema_RejectsMissingRequired(t *testing.T) {
	schema := BuildSummaryJSONSchema()
	err := ValidateJSONAgainstSchema(schema, []byte(`{"role": "Engineer", "summary": "x"}`))
	require.Error(t, err)
}

func TestValidateJSONAgainstSchema_RejectsScoreOutOfRange(t *testing.T) {
	schema := BuildSummaryJSONSchema()
	err := ValidateJSONAgainstSchema(schema, []byte(`{
		"role": "Engineer", "summary": "x", "score": 11, "justification": "y"
	}`))
	require.Error(t, err)
}

func TestValidateJSONAgainstSchema_RejectsUnknownKeys(t *testing.T) {
	schema := BuildSummaryJSONSchema()
	err := ValidateJSONAgainstSchema(schema, []byte(`{
		"role": "Engineer", "summary": "x", "score": 5, "justification": "y",
		"confidence": 0.9
	}`))
	require.Error(t, err)
}

func TestValidateJSONAgainstSchema_RejectsNonObject(t *testing.T) {
	schema := BuildSummaryJSONSchema()
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`"just a string"`)))
}
