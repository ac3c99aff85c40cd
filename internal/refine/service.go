package refine

import (
	"sort"
	"strings"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultEscalationThreshold is the attempt count at which the service
// starts suggesting a tier bump alongside (or instead of) refinement.
const DefaultEscalationThreshold = 2

const instructionHeader = "REFINEMENT INSTRUCTIONS"

// Service selects applicable rules for a failed gate run, formats their
// instructions into an augmented prompt, and tracks the escalation policy.
// Pure orchestration: the service holds only the catalog and a threshold,
// never per-request state.
type Service struct {
	catalog             *Catalog
	escalationThreshold int
}

// NewService creates a refinement service over the given catalog.
// threshold <= 0 selects DefaultEscalationThreshold.
func NewService(catalog *Catalog, threshold int) *Service {
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return &Service{catalog: catalog, escalationThreshold: threshold}
}

// Recommendation is a dry-run view of what Refine would decide.
type Recommendation struct {
	CanRefine       bool                    `json:"can_refine"`
	ApplicableRules []models.RefinementRule `json:"-"`
	ShouldEscalate  bool                    `json:"should_escalate"`
}

// Refine produces either an augmented prompt or a decision to stop.
//
// The escalation signal is orthogonal to refinement success: a result can
// be refined and still suggest escalating. The summary is always
// populated and identifies the prompt by fingerprint only.
func (s *Service) Refine(originalPrompt string, failed []models.QualityCheck, rctx models.RefinementContext) models.RefinementResult {
	result := models.RefinementResult{
		Summary: s.summarize(originalPrompt, failed, nil),
	}

	if rctx.AttemptCount >= rctx.MaxAttempts {
		result.SkipReason = "Maximum refinement attempts exceeded"
		result.ShouldEscalate = true
		result.SuggestedTier = s.suggestTier(rctx.CurrentTier)
		return result
	}

	rules := s.usableRules(failed, rctx)
	s.applyEscalationPolicy(&result, rctx)

	if len(rules) == 0 {
		// Nothing left to try locally — escalate tier instead of
		// burning attempts.
		result.SkipReason = "No applicable refinement rules remain"
		result.ShouldEscalate = true
		if result.SuggestedTier == "" {
			result.SuggestedTier = s.suggestTier(rctx.CurrentTier)
		}
		return result
	}

	var instructions []string
	for _, rule := range rules {
		check := findCheck(failed, rule)
		instructions = append(instructions, s.catalog.FormatInstruction(rule, check))
	}

	result.Refined = true
	result.AppliedRules = rules
	result.Instructions = instructions
	result.Prompt = buildPrompt(originalPrompt, instructions)
	result.Summary = s.summarize(originalPrompt, failed, rules)

	log.Debug().
		Str("prompt_hash", result.Summary.PromptHash).
		Int("rules", len(rules)).
		Int("attempt", rctx.AttemptCount).
		Bool("escalate", result.ShouldEscalate).
		Msg("Prompt refined")

	return result
}

// CanRefine reports whether Refine would produce an augmented prompt.
func (s *Service) CanRefine(failed []models.QualityCheck, rctx models.RefinementContext) bool {
	if rctx.AttemptCount >= rctx.MaxAttempts {
		return false
	}
	return len(s.usableRules(failed, rctx)) > 0
}

// GetRecommendation previews the refine/escalate decision without
// building a prompt.
func (s *Service) GetRecommendation(failed []models.QualityCheck, rctx models.RefinementContext) Recommendation {
	rules := s.usableRules(failed, rctx)
	rec := Recommendation{
		CanRefine:       rctx.AttemptCount < rctx.MaxAttempts && len(rules) > 0,
		ApplicableRules: rules,
	}
	if rctx.AttemptCount >= rctx.MaxAttempts || len(rules) == 0 {
		rec.ShouldEscalate = true
	}
	if rctx.AttemptCount >= s.escalationThreshold && rctx.CurrentTier != models.TierFrontier {
		rec.ShouldEscalate = true
	}
	return rec
}

// usableRules filters the catalog's applicable rules against the
// application caps recorded in the context. This is the defense against
// infinite oscillation on low-value fixes.
func (s *Service) usableRules(failed []models.QualityCheck, rctx models.RefinementContext) []models.RefinementRule {
	var usable []models.RefinementRule
	for _, rule := range s.catalog.ApplicableRules(failed) {
		if rule.MaxApplications > 0 && rctx.AppliedRules[rule.CheckName] >= rule.MaxApplications {
			continue
		}
		usable = append(usable, rule)
	}
	return usable
}

// applyEscalationPolicy sets the escalation signal whenever the attempt
// count reaches the threshold and a higher tier exists. At frontier there
// is nowhere to go, so no tier is ever suggested even though refinement
// may still proceed.
func (s *Service) applyEscalationPolicy(result *models.RefinementResult, rctx models.RefinementContext) {
	if rctx.AttemptCount < s.escalationThreshold {
		return
	}
	if rctx.CurrentTier == models.TierFrontier {
		return
	}
	result.ShouldEscalate = true
	result.SuggestedTier = s.suggestTier(rctx.CurrentTier)
}

// suggestTier returns the escalation target for a tier, or "" at the
// top. Escalation jumps straight to frontier: once the cheap tier has
// failed repeatedly, an intermediate hop just burns attempts.
func (s *Service) suggestTier(current models.ModelTier) models.ModelTier {
	if current == models.TierFrontier {
		return ""
	}
	return models.TierFrontier
}

// summarize builds the telemetry-safe digest. The prompt appears only as
// its fingerprint.
func (s *Service) summarize(prompt string, failed []models.QualityCheck, applied []models.RefinementRule) models.RefinementSummary {
	categories := make(map[string]struct{})
	count := 0
	for _, c := range failed {
		if c.Passed {
			continue
		}
		count++
		categories[string(c.Category)] = struct{}{}
	}

	var catList []string
	for cat := range categories {
		catList = append(catList, cat)
	}
	sort.Strings(catList)

	var ruleNames []string
	for _, r := range applied {
		ruleNames = append(ruleNames, r.CheckName)
	}

	return models.RefinementSummary{
		PromptHash:       models.PromptFingerprint(prompt),
		FailedCheckCount: count,
		FailedCategories: catList,
		RulesApplied:     ruleNames,
		Timestamp:        time.Now().UTC(),
	}
}

// findCheck locates the failed check a rule was selected for, resolving
// the length fan-out back to its source check.
func findCheck(failed []models.QualityCheck, rule models.RefinementRule) models.QualityCheck {
	target := rule.CheckName
	if target == ruleLengthShort || target == ruleLengthLong {
		target = models.CheckLengthWithinBounds
	}
	for _, c := range failed {
		if c.Name == target {
			return c
		}
	}
	return models.QualityCheck{Name: target}
}

// buildPrompt concatenates the ordered instructions under the refinement
// header, then appends the verbatim original prompt so the model always
// sees the full original intent plus the delta.
func buildPrompt(original string, instructions []string) string {
	var b strings.Builder
	b.WriteString(instructionHeader)
	b.WriteString(":\n")
	for i, inst := range instructions {
		b.WriteString(strings.TrimSpace(inst))
		if i < len(instructions)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\n")
	b.WriteString(original)
	return b.String()
}
