package quality

import (
	"fmt"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Gate runs the check battery implied by a request's quality requirements.
// It holds no mutable state; a single Gate is safe for concurrent use.
type Gate struct{}

// NewGate creates a quality gate.
func NewGate() *Gate {
	return &Gate{}
}

// Validate runs only the checks implied by non-nil requirement fields and
// aggregates the results. The overall verdict is the conjunction over
// error-severity checks; warnings never block. Validate never panics: a
// check that cannot execute reports failed with a descriptive reason.
func (g *Gate) Validate(content string, reqs models.QualityRequirements) models.QualityGateResult {
	result := models.QualityGateResult{Passed: true}

	for _, check := range g.runChecks(content, reqs) {
		result.Checks = append(result.Checks, check)
		if !check.Passed && check.Severity == models.SeverityError {
			result.Passed = false
		}
	}

	return result
}

// ValidateNarrative is a convenience composite for callers that want the
// flat check list without the aggregate verdict.
func (g *Gate) ValidateNarrative(content string, reqs models.QualityRequirements) []models.QualityCheck {
	return g.runChecks(content, reqs)
}

func (g *Gate) runChecks(content string, reqs models.QualityRequirements) []models.QualityCheck {
	var checks []models.QualityCheck

	if reqs.MinCitations != nil {
		checks = append(checks, g.safely(models.CheckCitationsPresent, models.CategoryCitations, func() models.QualityCheck {
			return checkCitationsPresent(content, *reqs.MinCitations)
		}))
	}
	if len(reqs.KeyPoints) > 0 {
		checks = append(checks, g.safely(models.CheckKeyPointsCovered, models.CategoryCoverage, func() models.QualityCheck {
			return checkKeyPointsCovered(content, reqs.KeyPoints)
		}))
	}
	if reqs.MinWords != nil || reqs.MaxWords != nil {
		minWords, maxWords := 0, 0
		if reqs.MinWords != nil {
			minWords = *reqs.MinWords
		}
		if reqs.MaxWords != nil {
			maxWords = *reqs.MaxWords
		}
		checks = append(checks, g.safely(models.CheckLengthWithinBounds, models.CategoryLength, func() models.QualityCheck {
			return checkLengthWithinBounds(content, minWords, maxWords)
		}))
	}
	if reqs.CheckPlaceholders {
		checks = append(checks, g.safely(models.CheckNoPlaceholders, models.CategoryCompleteness, func() models.QualityCheck {
			return checkNoPlaceholders(content)
		}))
	}
	if reqs.CheckQuestionMarks {
		checks = append(checks, g.safely(models.CheckNoQuestionMarks, models.CategoryStyle, func() models.QualityCheck {
			return checkNoQuestionMarks(content)
		}))
	}

	return checks
}

// safely converts a panicking check into a failed error-severity result
// instead of letting it propagate out of the gate.
func (g *Gate) safely(name string, category models.CheckCategory, fn func() models.QualityCheck) (check models.QualityCheck) {
	defer func() {
		if r := recover(); r != nil {
			check = models.QualityCheck{
				Name:     name,
				Category: category,
				Passed:   false,
				Severity: models.SeverityError,
				Score:    0,
				Reason:   fmt.Sprintf("check could not execute: %v", r),
			}
		}
	}()
	return fn()
}
