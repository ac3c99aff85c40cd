package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

func TestCheckCitationsPresent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		minCount int
		passed   bool
		actual   int
	}{
		{
			name:     "numbered citations meet minimum",
			content:  "The effect was significant [1] and replicated [2].",
			minCount: 2,
			passed:   true,
			actual:   2,
		},
		{
			name:     "below minimum fails",
			content:  "The effect was significant [1].",
			minCount: 3,
			passed:   false,
			actual:   1,
		},
		{
			name:     "author-year citations count",
			content:  "As shown by Smith (2021) and Jones et al. (2019).",
			minCount: 2,
			passed:   true,
			actual:   2,
		},
		{
			name:     "doi counts",
			content:  "See 10.1056/NEJMoa2034577 for the trial report.",
			minCount: 1,
			passed:   true,
			actual:   1,
		},
		{
			name:     "range citation counts once",
			content:  "Multiple trials agree [3-5].",
			minCount: 1,
			passed:   true,
			actual:   1,
		},
		{
			name:     "repeated citation is distinct once",
			content:  "First [1], and again [1].",
			minCount: 2,
			passed:   false,
			actual:   1,
		},
		{
			name:     "no citations",
			content:  "No references here at all.",
			minCount: 1,
			passed:   false,
			actual:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := checkCitationsPresent(tt.content, tt.minCount)
			assert.Equal(t, tt.passed, check.Passed)
			require.NotNil(t, check.Details)
			assert.Equal(t, tt.actual, check.Details.Actual)
			if tt.passed {
				assert.Equal(t, 1.0, check.Score)
			} else {
				assert.Equal(t, 0.0, check.Score)
				assert.NotEmpty(t, check.Reason)
			}
		})
	}
}

func TestCheckKeyPointsCovered(t *testing.T) {
	check := checkKeyPointsCovered(
		"The methods section describes our approach.",
		[]string{"methods", "results", "conclusions"},
	)

	assert.False(t, check.Passed)
	assert.InDelta(t, 1.0/3.0, check.Score, 0.001)
	require.NotNil(t, check.Details)
	assert.Equal(t, []string{"results", "conclusions"}, check.Details.Missing)
	assert.Equal(t, []string{"methods"}, check.Details.Found)
	assert.NotEmpty(t, check.Reason)
}

func TestCheckKeyPointsCovered_CaseInsensitive(t *testing.T) {
	check := checkKeyPointsCovered("We report the Primary Outcome below.", []string{"primary outcome"})
	assert.True(t, check.Passed)
	assert.Equal(t, 1.0, check.Score)
}

func TestCheckKeyPointsCovered_EmptyListPasses(t *testing.T) {
	check := checkKeyPointsCovered("anything", nil)
	assert.True(t, check.Passed)
	assert.Equal(t, 1.0, check.Score)
}

func TestCheckNoQuestionMarks(t *testing.T) {
	clean := checkNoQuestionMarks("All statements are declarative.")
	assert.True(t, clean.Passed)
	assert.Equal(t, 1.0, clean.Score)

	flagged := checkNoQuestionMarks("Is this right? Are we sure?")
	assert.False(t, flagged.Passed)
	assert.Equal(t, models.SeverityWarning, flagged.Severity)
	assert.InDelta(t, 0.8, flagged.Score, 0.001)

	// Score floors at zero regardless of count.
	many := checkNoQuestionMarks("????????????")
	assert.Equal(t, 0.0, many.Score)
}

func TestCheckLengthWithinBounds(t *testing.T) {
	short := checkLengthWithinBounds("only four words here", 10, 50)
	assert.False(t, short.Passed)
	assert.Contains(t, short.Reason, "too short")
	assert.Equal(t, 4, short.Details.Actual)
	assert.Equal(t, 10, short.Details.Expected.Min)

	long := checkLengthWithinBounds("one two three four five six", 1, 3)
	assert.False(t, long.Passed)
	assert.Contains(t, long.Reason, "too long")

	ok := checkLengthWithinBounds("one two three four five", 3, 10)
	assert.True(t, ok.Passed)
	assert.Equal(t, 1.0, ok.Score)
}

func TestCheckNoPlaceholders(t *testing.T) {
	check := checkNoPlaceholders("The study concludes that... [TODO: Add conclusion]")
	assert.False(t, check.Passed)
	assert.Equal(t, models.SeverityError, check.Severity)
	require.NotNil(t, check.Details)
	assert.Contains(t, check.Details.Found, "[TODO: Add conclusion]")
	assert.NotEmpty(t, check.Reason)
}

func TestCheckNoPlaceholders_Sentinels(t *testing.T) {
	tests := []struct {
		content string
		passed  bool
	}{
		{"Enrollment was TBD at submission.", false},
		{"Marked XXX pending review.", false},
		{"Insert value <PATIENT_COUNT> here.", false},
		{"[INSERT TABLE 2]", false},
		{"A finished paragraph with no markers.", true},
		{"Math like x < y and y > z is fine.", true},
	}
	for _, tt := range tests {
		check := checkNoPlaceholders(tt.content)
		assert.Equal(t, tt.passed, check.Passed, "content: %s", tt.content)
	}
}
