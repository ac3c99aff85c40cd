package refine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

func failedCheck(name string, severity models.CheckSeverity) models.QualityCheck {
	return models.QualityCheck{Name: name, Passed: false, Severity: severity, Reason: "failed"}
}

func TestApplicableRules_PriorityOrder(t *testing.T) {
	catalog := NewCatalog()

	rules := catalog.ApplicableRules([]models.QualityCheck{
		failedCheck(models.CheckCitationsPresent, models.SeverityError),
		failedCheck(models.CheckNoPlaceholders, models.SeverityError),
	})

	require.Len(t, rules, 2)
	assert.Equal(t, models.CheckNoPlaceholders, rules[0].CheckName)
	assert.Equal(t, 100, rules[0].Priority)
	assert.Equal(t, models.CheckCitationsPresent, rules[1].CheckName)
	assert.Equal(t, 90, rules[1].Priority)
}

func TestApplicableRules_SkipsInfoAndUnknown(t *testing.T) {
	catalog := NewCatalog()

	rules := catalog.ApplicableRules([]models.QualityCheck{
		failedCheck(models.CheckCitationsPresent, models.SeverityInfo),
		failedCheck("not_a_registered_check", models.SeverityError),
	})

	assert.Empty(t, rules)
}

func TestApplicableRules_WarningsRemediated(t *testing.T) {
	catalog := NewCatalog()

	rules := catalog.ApplicableRules([]models.QualityCheck{
		failedCheck(models.CheckNoQuestionMarks, models.SeverityWarning),
	})

	require.Len(t, rules, 1)
	assert.Equal(t, models.CheckNoQuestionMarks, rules[0].CheckName)
	assert.Equal(t, 1, rules[0].MaxApplications)
}

func TestApplicableRules_LengthFanOut(t *testing.T) {
	catalog := NewCatalog()

	short := models.QualityCheck{
		Name:     models.CheckLengthWithinBounds,
		Passed:   false,
		Severity: models.SeverityError,
		Details: &models.CheckDetails{
			Actual:   50,
			Expected: &models.Bounds{Min: 100, Max: 200},
		},
	}
	rules := catalog.ApplicableRules([]models.QualityCheck{short})
	require.Len(t, rules, 1)
	assert.Equal(t, ruleLengthShort, rules[0].CheckName)

	long := short
	long.Details = &models.CheckDetails{
		Actual:   500,
		Expected: &models.Bounds{Min: 100, Max: 200},
	}
	rules = catalog.ApplicableRules([]models.QualityCheck{long})
	require.Len(t, rules, 1)
	assert.Equal(t, ruleLengthLong, rules[0].CheckName)
}

func TestFormatInstruction_LengthTargetsMidpoint(t *testing.T) {
	catalog := NewCatalog()

	check := models.QualityCheck{
		Name: models.CheckLengthWithinBounds,
		Details: &models.CheckDetails{
			Actual:   50,
			Expected: &models.Bounds{Min: 100, Max: 300},
		},
	}
	rule, ok := catalog.RuleByCheckName(ruleLengthShort)
	require.True(t, ok)

	instruction := catalog.FormatInstruction(rule, check)
	assert.Contains(t, instruction, "Expand to ~200 words")
	assert.Contains(t, instruction, "50")
}

func TestFormatInstruction_CondenseWhenLong(t *testing.T) {
	catalog := NewCatalog()

	check := models.QualityCheck{
		Name: models.CheckLengthWithinBounds,
		Details: &models.CheckDetails{
			Actual:   500,
			Expected: &models.Bounds{Min: 100, Max: 300},
		},
	}
	rule, ok := catalog.RuleByCheckName(ruleLengthLong)
	require.True(t, ok)

	instruction := catalog.FormatInstruction(rule, check)
	assert.Contains(t, instruction, "Condense to ~200 words")
}

func TestFormatInstruction_MissingPoints(t *testing.T) {
	catalog := NewCatalog()

	check := models.QualityCheck{
		Name:    models.CheckKeyPointsCovered,
		Details: &models.CheckDetails{Missing: []string{"results", "conclusions"}},
	}
	rule, ok := catalog.RuleByCheckName(models.CheckKeyPointsCovered)
	require.True(t, ok)

	instruction := catalog.FormatInstruction(rule, check)
	assert.Contains(t, instruction, "results")
	assert.Contains(t, instruction, "conclusions")
}

func TestRuleByCheckName_Unknown(t *testing.T) {
	catalog := NewCatalog()
	_, ok := catalog.RuleByCheckName("nonexistent")
	assert.False(t, ok)
}

func TestNewCatalog_OneRulePerCheckName(t *testing.T) {
	assert.Panics(t, func() {
		newCatalog([]models.RefinementRule{
			{CheckName: "dup"},
			{CheckName: "dup"},
		})
	})
}
