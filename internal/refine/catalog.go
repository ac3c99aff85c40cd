// Package refine turns failed quality checks into targeted prompt repair.
//
// The catalog is a static, declarative mapping from check name to
// remediation rule; the service orchestrates rule selection, instruction
// formatting, and the escalation signal across the attempt loop. Both are
// pure: all loop state lives in the caller's RefinementContext.
package refine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Catalog is the immutable rule set, constructed once at startup and
// injected wherever rules are needed. Never a package-level mutable
// global — parallel test suites build their own.
type Catalog struct {
	rules []models.RefinementRule
	index map[string]int
}

// Fan-out names for the length check. A single failed length check maps
// to one of two rules depending on which bound was violated.
const (
	ruleLengthShort = models.CheckLengthWithinBounds + "_short"
	ruleLengthLong  = models.CheckLengthWithinBounds + "_long"
)

// NewCatalog builds the default rule catalog. Declaration order is the
// tiebreak for equal priorities.
func NewCatalog() *Catalog {
	return newCatalog([]models.RefinementRule{
		{
			CheckName: models.CheckNoPlaceholders,
			Category:  models.CategoryCompleteness,
			Priority:  100,
			Instruction: func(check models.QualityCheck) string {
				if check.Details != nil && len(check.Details.Found) > 0 {
					return fmt.Sprintf("Replace every placeholder marker (%s) with finished content. Do not leave any TODO, TBD, or bracketed stubs.",
						strings.Join(check.Details.Found, ", "))
				}
				return "Replace every placeholder marker with finished content. Do not leave any TODO, TBD, or bracketed stubs."
			},
		},
		{
			CheckName: models.CheckCitationsPresent,
			Category:  models.CategoryCitations,
			Priority:  90,
			Instruction: func(check models.QualityCheck) string {
				needed, actual := 1, 0
				if check.Details != nil {
					actual = check.Details.Actual
					if check.Details.Expected != nil {
						needed = check.Details.Expected.Min
					}
				}
				return fmt.Sprintf("Include at least %d citation(s) in numbered [n] or Author (Year) format; the draft currently contains %d.",
					needed, actual)
			},
		},
		{
			CheckName: models.CheckKeyPointsCovered,
			Category:  models.CategoryCoverage,
			Priority:  80,
			Instruction: func(check models.QualityCheck) string {
				if check.Details != nil && len(check.Details.Missing) > 0 {
					return fmt.Sprintf("Explicitly address the following required points: %s.",
						strings.Join(check.Details.Missing, "; "))
				}
				return "Explicitly address every required key point."
			},
		},
		{
			CheckName:   ruleLengthShort,
			Category:    models.CategoryLength,
			Priority:    70,
			Instruction: lengthInstruction("Expand"),
		},
		{
			CheckName:   ruleLengthLong,
			Category:    models.CategoryLength,
			Priority:    65,
			Instruction: lengthInstruction("Condense"),
		},
		{
			CheckName:       models.CheckNoQuestionMarks,
			Category:        models.CategoryStyle,
			Priority:        30,
			MaxApplications: 1,
			Instruction: func(check models.QualityCheck) string {
				return "Rewrite interrogative sentences as declarative statements; the draft should not pose questions."
			},
		},
	})
}

func newCatalog(rules []models.RefinementRule) *Catalog {
	c := &Catalog{rules: rules, index: make(map[string]int, len(rules))}
	for i, r := range rules {
		if _, dup := c.index[r.CheckName]; dup {
			panic("refine: duplicate rule for check " + r.CheckName)
		}
		c.index[r.CheckName] = i
	}
	return c
}

// lengthInstruction targets the midpoint of the bounds. With only one
// bound set, the target is that bound.
func lengthInstruction(verb string) func(models.QualityCheck) string {
	return func(check models.QualityCheck) string {
		target, actual := 0, 0
		if check.Details != nil {
			actual = check.Details.Actual
			if b := check.Details.Expected; b != nil {
				switch {
				case b.Min > 0 && b.Max > 0:
					target = (b.Min + b.Max) / 2
				case b.Min > 0:
					target = b.Min
				default:
					target = b.Max
				}
			}
		}
		return fmt.Sprintf("%s to ~%d words (the draft has %d).", verb, target, actual)
	}
}

// RuleByCheckName returns the rule registered for a check name, or false.
func (c *Catalog) RuleByCheckName(name string) (models.RefinementRule, bool) {
	i, ok := c.index[name]
	if !ok {
		return models.RefinementRule{}, false
	}
	return c.rules[i], true
}

// ApplicableRules resolves the rules for a set of failed checks, ordered
// by priority descending with declaration order breaking ties. Info-level
// failures are never remediated; checks with no registered rule are
// skipped.
func (c *Catalog) ApplicableRules(failed []models.QualityCheck) []models.RefinementRule {
	type ranked struct {
		rule  models.RefinementRule
		order int
	}

	seen := make(map[string]struct{})
	var picked []ranked
	for _, check := range failed {
		if check.Passed || check.Severity == models.SeverityInfo {
			continue
		}
		name := c.resolveRuleName(check)
		idx, ok := c.index[name]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		picked = append(picked, ranked{rule: c.rules[idx], order: idx})
	}

	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].rule.Priority != picked[j].rule.Priority {
			return picked[i].rule.Priority > picked[j].rule.Priority
		}
		return picked[i].order < picked[j].order
	})

	rules := make([]models.RefinementRule, len(picked))
	for i, p := range picked {
		rules[i] = p.rule
	}
	return rules
}

// resolveRuleName maps a failed check to its catalog entry, handling the
// length fan-out: the short/long variant is chosen by comparing the actual
// word count against the declared bounds.
func (c *Catalog) resolveRuleName(check models.QualityCheck) string {
	if check.Name != models.CheckLengthWithinBounds {
		return check.Name
	}
	if d := check.Details; d != nil && d.Expected != nil {
		if d.Expected.Min > 0 && d.Actual < d.Expected.Min {
			return ruleLengthShort
		}
		if d.Expected.Max > 0 && d.Actual > d.Expected.Max {
			return ruleLengthLong
		}
	}
	return ruleLengthShort
}

// FormatInstruction renders a rule's template against a specific failure.
func (c *Catalog) FormatInstruction(rule models.RefinementRule, check models.QualityCheck) string {
	if rule.Instruction == nil {
		return ""
	}
	return rule.Instruction(check)
}
