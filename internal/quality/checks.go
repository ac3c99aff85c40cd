// Package quality implements the stateless quality gate: a battery of
// named, scored validators applied to generated manuscript content.
//
// Supported checks:
//   - citations_present: numbered, author-year, and DOI citation counting
//   - key_points_covered: required-phrase coverage
//   - no_question_marks: unresolved-question heuristic (warning only)
//   - length_within_bounds: word-count bounds
//   - no_placeholders: TODO/TBD/sentinel marker detection
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// ── Citation Patterns ───────────────────────────────────────

var citationPatterns = []*regexp.Regexp{
	// Numbered: [1], [12], [3-5] ranges
	regexp.MustCompile(`\[\d+(?:-\d+)?\]`),
	// Author-year: Smith (2021), Smith et al. (2021)
	regexp.MustCompile(`\b[A-Z][A-Za-z'-]+(?:\s+et\s+al\.?)?\s+\(\d{4}\)`),
	// DOIs
	regexp.MustCompile(`\b10\.\d{4,9}/[-._;()/:A-Za-z0-9]+`),
}

// checkCitationsPresent counts distinct citation-pattern matches. The gate
// is binary: score 1 at or above the minimum, 0 below it.
func checkCitationsPresent(content string, minCount int) models.QualityCheck {
	distinct := make(map[string]struct{})
	for _, re := range citationPatterns {
		for _, m := range re.FindAllString(content, -1) {
			distinct[m] = struct{}{}
		}
	}

	actual := len(distinct)
	check := models.QualityCheck{
		Name:     models.CheckCitationsPresent,
		Category: models.CategoryCitations,
		Severity: models.SeverityError,
		Details: &models.CheckDetails{
			Actual:   actual,
			Expected: &models.Bounds{Min: minCount},
		},
	}

	if actual >= minCount {
		check.Passed = true
		check.Score = 1
		return check
	}

	check.Score = 0
	check.Reason = fmt.Sprintf("found %d citation(s), need at least %d", actual, minCount)
	return check
}

// ── Key Point Coverage ──────────────────────────────────────

// checkKeyPointsCovered verifies each required point (multi-word phrases
// included) appears in the content, case-insensitive. Score is the
// fraction covered. An empty point list always passes.
func checkKeyPointsCovered(content string, keyPoints []string) models.QualityCheck {
	check := models.QualityCheck{
		Name:     models.CheckKeyPointsCovered,
		Category: models.CategoryCoverage,
		Severity: models.SeverityError,
	}

	if len(keyPoints) == 0 {
		check.Passed = true
		check.Score = 1
		return check
	}

	lower := strings.ToLower(content)
	var found, missing []string
	for _, point := range keyPoints {
		if strings.Contains(lower, strings.ToLower(point)) {
			found = append(found, point)
		} else {
			missing = append(missing, point)
		}
	}

	check.Score = float64(len(found)) / float64(len(keyPoints))
	check.Details = &models.CheckDetails{Found: found, Missing: missing}

	if len(missing) == 0 {
		check.Passed = true
		return check
	}

	check.Reason = fmt.Sprintf("%d of %d key point(s) not covered: %s",
		len(missing), len(keyPoints), strings.Join(missing, ", "))
	return check
}

// ── Question Marks ──────────────────────────────────────────

// checkNoQuestionMarks flags unresolved questions in prose that should be
// declarative. Warning severity only — it never blocks the gate. Score
// drops 0.1 per question mark, floored at 0.
func checkNoQuestionMarks(content string) models.QualityCheck {
	count := strings.Count(content, "?")

	check := models.QualityCheck{
		Name:     models.CheckNoQuestionMarks,
		Category: models.CategoryStyle,
		Severity: models.SeverityWarning,
		Details:  &models.CheckDetails{Actual: count},
	}

	score := 1 - 0.1*float64(count)
	if score < 0 {
		score = 0
	}
	check.Score = score

	if count == 0 {
		check.Passed = true
		return check
	}

	check.Reason = fmt.Sprintf("content contains %d question mark(s)", count)
	return check
}

// ── Length Bounds ───────────────────────────────────────────

// checkLengthWithinBounds counts words by whitespace tokenization and
// compares against the configured bounds. Zero bounds are unbounded.
func checkLengthWithinBounds(content string, minWords, maxWords int) models.QualityCheck {
	actual := len(strings.Fields(content))

	check := models.QualityCheck{
		Name:     models.CheckLengthWithinBounds,
		Category: models.CategoryLength,
		Severity: models.SeverityError,
		Details: &models.CheckDetails{
			Actual:   actual,
			Expected: &models.Bounds{Min: minWords, Max: maxWords},
		},
	}

	switch {
	case minWords > 0 && actual < minWords:
		check.Score = float64(actual) / float64(minWords)
		check.Reason = fmt.Sprintf("content too short: %d word(s), minimum %d", actual, minWords)
	case maxWords > 0 && actual > maxWords:
		check.Score = float64(maxWords) / float64(actual)
		check.Reason = fmt.Sprintf("content too long: %d word(s), maximum %d", actual, maxWords)
	default:
		check.Passed = true
		check.Score = 1
	}

	return check
}

// ── Placeholders ────────────────────────────────────────────

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[TODO[^\]]*\]`),
	regexp.MustCompile(`\[INSERT[^\]]*\]`),
	regexp.MustCompile(`\[PLACEHOLDER[^\]]*\]`),
	regexp.MustCompile(`\bTBD\b`),
	regexp.MustCompile(`\bXXX\b`),
	// Angle-bracket sentinel tokens: <PLACEHOLDER>, <PATIENT_COUNT>
	regexp.MustCompile(`<[A-Z][A-Z0-9_]*>`),
}

// checkNoPlaceholders scans for bracketed and sentinel placeholder markers
// left in generated text. Any match fails with error severity. The raw
// matches are safe to report: this runs on generated output, not source
// patient data.
func checkNoPlaceholders(content string) models.QualityCheck {
	var found []string
	for _, re := range placeholderPatterns {
		found = append(found, re.FindAllString(content, -1)...)
	}

	check := models.QualityCheck{
		Name:     models.CheckNoPlaceholders,
		Category: models.CategoryCompleteness,
		Severity: models.SeverityError,
	}

	if len(found) == 0 {
		check.Passed = true
		check.Score = 1
		return check
	}

	check.Score = 0
	check.Reason = fmt.Sprintf("content contains %d placeholder marker(s)", len(found))
	check.Details = &models.CheckDetails{Found: found}
	return check
}
