// Package models defines the shared data model for the MedQuill generation
// pipeline: model tiers, invocation requests/responses, the quality-check
// taxonomy, and the refinement types threaded through the attempt loop.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ── Model Tiers ──────────────────────────────────────────────

// ModelTier is a cost/capability class of model. Tiers are totally ordered;
// the ordering defines "next higher tier" for escalation.
type ModelTier string

const (
	// TierNano is reserved. It appears in wire formats for forward
	// compatibility but is excluded from routing and escalation.
	TierNano     ModelTier = "nano"
	TierMini     ModelTier = "mini"
	TierStandard ModelTier = "standard"
	TierFrontier ModelTier = "frontier"
)

// tierRank orders tiers for escalation comparisons. Nano sits below Mini
// so ordering is total, but Next() never routes through it.
var tierRank = map[ModelTier]int{
	TierNano:     0,
	TierMini:     1,
	TierStandard: 2,
	TierFrontier: 3,
}

// Valid returns true if the tier is a known value.
func (t ModelTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Routable returns true if the tier participates in routing decisions.
// Nano is reserved and never routable.
func (t ModelTier) Routable() bool {
	return t.Valid() && t != TierNano
}

// Next returns the next higher tier and true, or ("", false) at the top.
// Escalating from the reserved Nano tier lands on Mini.
func (t ModelTier) Next() (ModelTier, bool) {
	switch t {
	case TierNano:
		return TierMini, true
	case TierMini:
		return TierStandard, true
	case TierStandard:
		return TierFrontier, true
	default:
		return "", false
	}
}

// Above returns true if t is a strictly higher tier than other.
func (t ModelTier) Above(other ModelTier) bool {
	return tierRank[t] > tierRank[other]
}

// ── Governance ───────────────────────────────────────────────

// GovernanceMode is the platform-wide policy regime controlling what the
// PHI gate permits to cross the trust boundary.
type GovernanceMode string

const (
	// GovernanceDemo runs against synthetic data; findings are logged but
	// egress is permitted.
	GovernanceDemo GovernanceMode = "demo"
	// GovernanceIdentified permits identified-data egress only to provider
	// classes approved for it.
	GovernanceIdentified GovernanceMode = "identified"
	// GovernanceProduction never permits identified egress.
	GovernanceProduction GovernanceMode = "production"
)

// Valid returns true if the mode is a known value.
func (m GovernanceMode) Valid() bool {
	switch m {
	case GovernanceDemo, GovernanceIdentified, GovernanceProduction:
		return true
	default:
		return false
	}
}

// GateDirection says which way content is crossing the trust boundary.
type GateDirection string

const (
	// DirectionOutbound is content leaving for an external provider.
	DirectionOutbound GateDirection = "outbound"
	// DirectionInbound is provider output returning to the caller.
	DirectionInbound GateDirection = "inbound"
)

// PhiFinding is the index/confidence-only view of a detected sensitive
// span. The matched substring is never carried — the pipeline must not
// become a second copy of sensitive data.
type PhiFinding struct {
	Type       string  `json:"type"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Confidence float64 `json:"confidence"`
}

// PhiDecision is the gate's allow/block verdict. Only counts and types of
// findings are exposed upstream.
type PhiDecision struct {
	Allowed      bool          `json:"allowed"`
	Direction    GateDirection `json:"direction"`
	Reason       string        `json:"reason,omitempty"`
	FindingCount int           `json:"finding_count"`
	FindingTypes []string      `json:"finding_types,omitempty"`

	// Flagged marks inbound content that passed but carries findings and
	// needs the caller's own redaction step.
	Flagged bool `json:"flagged,omitempty"`
}

// ── Quality Checks ───────────────────────────────────────────

// CheckSeverity classifies how a failed check affects the gate.
type CheckSeverity string

const (
	SeverityInfo    CheckSeverity = "info"
	SeverityWarning CheckSeverity = "warning"
	SeverityError   CheckSeverity = "error"
)

// CheckCategory groups checks for refinement reporting.
type CheckCategory string

const (
	CategoryCitations    CheckCategory = "citations"
	CategoryCoverage     CheckCategory = "coverage"
	CategoryStyle        CheckCategory = "style"
	CategoryLength       CheckCategory = "length"
	CategoryCompleteness CheckCategory = "completeness"
)

// Canonical check names. The refinement catalog is keyed by these.
const (
	CheckCitationsPresent   = "citations_present"
	CheckKeyPointsCovered   = "key_points_covered"
	CheckNoQuestionMarks    = "no_question_marks"
	CheckLengthWithinBounds = "length_within_bounds"
	CheckNoPlaceholders     = "no_placeholders"
)

// QualityRequirements enumerates which checks to run and their parameters.
// Nil fields mean the check is skipped, not failed.
type QualityRequirements struct {
	MinCitations       *int     `json:"min_citations,omitempty"`
	KeyPoints          []string `json:"key_points,omitempty"`
	MinWords           *int     `json:"min_words,omitempty"`
	MaxWords           *int     `json:"max_words,omitempty"`
	CheckPlaceholders  bool     `json:"check_placeholders,omitempty"`
	CheckQuestionMarks bool     `json:"check_question_marks,omitempty"`
}

// Empty returns true when no check is requested at all.
func (r QualityRequirements) Empty() bool {
	return r.MinCitations == nil && len(r.KeyPoints) == 0 &&
		r.MinWords == nil && r.MaxWords == nil &&
		!r.CheckPlaceholders && !r.CheckQuestionMarks
}

// CheckDetails is the structured per-check payload. Only the fields
// relevant to a given check are populated.
type CheckDetails struct {
	Actual   int      `json:"actual,omitempty"`
	Expected *Bounds  `json:"expected,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	Found    []string `json:"found,omitempty"`
}

// Bounds is a min/max pair for length-style checks. Zero means unbounded.
type Bounds struct {
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`
}

// QualityCheck is the result of one validator.
//
// Invariant: Passed == false with SeverityError always carries a non-empty
// Reason.
type QualityCheck struct {
	Name     string        `json:"name"`
	Category CheckCategory `json:"category"`
	Passed   bool          `json:"passed"`
	Severity CheckSeverity `json:"severity"`
	Score    float64       `json:"score"`
	Reason   string        `json:"reason,omitempty"`
	Details  *CheckDetails `json:"details,omitempty"`
}

// QualityGateResult aggregates one validation pass. Passed is the
// conjunction over error-severity checks; warnings never block.
type QualityGateResult struct {
	Passed bool           `json:"passed"`
	Checks []QualityCheck `json:"checks"`
}

// FailedChecks returns the checks that did not pass.
func (r QualityGateResult) FailedChecks() []QualityCheck {
	var failed []QualityCheck
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// ── Refinement ───────────────────────────────────────────────

// RefinementRule maps a failed check to a remediation instruction.
// Exactly one rule exists per check name; lookup is by name, not category.
type RefinementRule struct {
	CheckName string
	Category  CheckCategory
	Priority  int

	// MaxApplications caps how often the rule may be applied across the
	// attempt loop. Zero means unlimited.
	MaxApplications int

	// Instruction renders the remediation text for a specific failure.
	Instruction func(check QualityCheck) string
}

// RefinementContext is threaded by the caller across attempts. The
// refinement service never mutates it in place; callers persist the
// returned copy between loop iterations.
type RefinementContext struct {
	OriginalPrompt   string    `json:"-"`
	TaskType         string    `json:"task_type"`
	CurrentTier      ModelTier `json:"current_tier"`
	AttemptCount     int       `json:"attempt_count"`
	MaxAttempts      int       `json:"max_attempts"`
	PreviousFailures []string  `json:"previous_failures,omitempty"`

	// AppliedRules counts applications per rule name, keeping the
	// refinement service itself stateless.
	AppliedRules map[string]int `json:"applied_rules,omitempty"`
}

// RefinementSummary is the telemetry-safe digest of a refinement decision.
// PromptHash is a 16-char fingerprint; the raw prompt never appears here.
type RefinementSummary struct {
	PromptHash       string    `json:"prompt_hash"`
	FailedCheckCount int       `json:"failed_check_count"`
	FailedCategories []string  `json:"failed_categories"`
	RulesApplied     []string  `json:"rules_applied"`
	Timestamp        time.Time `json:"timestamp"`
}

// RefinementResult is the outcome of one refinement consultation.
type RefinementResult struct {
	Refined        bool              `json:"refined"`
	Prompt         string            `json:"-"`
	AppliedRules   []RefinementRule  `json:"-"`
	Instructions   []string          `json:"instructions,omitempty"`
	ShouldEscalate bool              `json:"should_escalate"`
	SuggestedTier  ModelTier         `json:"suggested_tier,omitempty"`
	SkipReason     string            `json:"skip_reason,omitempty"`
	Summary        RefinementSummary `json:"summary"`
}

// PromptFingerprint returns the fixed-length, non-reversible fingerprint
// used wherever a prompt must be referenced without being logged.
func PromptFingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// ── Invocation ───────────────────────────────────────────────

// OutputFormat is the requested response shape.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// RequestContext carries audit metadata for an invocation.
type RequestContext struct {
	Caller  string `json:"caller,omitempty"`
	Project string `json:"project,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// AIInvocationRequest describes one generation request. Immutable once
// created; the router copies the prompt into its loop state rather than
// rewriting the request.
type AIInvocationRequest struct {
	Prompt       string              `json:"prompt" validate:"required"`
	TaskType     string              `json:"task_type" validate:"required"`
	OutputFormat OutputFormat        `json:"output_format,omitempty" validate:"omitempty,oneof=text json"`
	Requirements QualityRequirements `json:"requirements"`
	TierHint     ModelTier           `json:"tier_hint,omitempty" validate:"omitempty,oneof=nano mini standard frontier"`
	Context      RequestContext      `json:"context"`
}

// TokenUsage is provider-reported token accounting plus estimated cost.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// AIInvocationResponse is the audited result of a routed invocation.
type AIInvocationResponse struct {
	Content           string     `json:"content"`
	Provider          string     `json:"provider"`
	Model             string     `json:"model"`
	Tier              ModelTier  `json:"tier"`
	Usage             TokenUsage `json:"usage"`
	LatencyMs         int64      `json:"latency_ms"`
	Escalated         bool       `json:"escalated"`
	EscalationReason  string     `json:"escalation_reason,omitempty"`
	QualityGatePassed bool       `json:"quality_gate_passed"`
}

// CostSummary accumulates session spend across routed requests.
type CostSummary struct {
	TotalCostUSD float64               `json:"total_cost_usd"`
	TotalTokens  int64                 `json:"total_tokens"`
	ByTier       map[ModelTier]float64 `json:"by_tier"`
	ByModel      map[string]float64    `json:"by_model"`
}

// ── Tier Bindings ────────────────────────────────────────────

// TierBinding maps a tier to a concrete provider/model pairing.
type TierBinding struct {
	Tier      ModelTier `json:"tier"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`

	// Cost per 1K tokens, USD.
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
}

// ── Telemetry Events ─────────────────────────────────────────

// EventType describes what happened in the pipeline.
type EventType string

const (
	EventInvocationDone   EventType = "invocation_done"
	EventInvocationFailed EventType = "invocation_failed"
	EventPhiBlocked       EventType = "phi_blocked"
	EventTierEscalated    EventType = "tier_escalated"
	EventPromptRefined    EventType = "prompt_refined"
)

// PipelineEvent is the fire-and-forget audit payload emitted per notable
// transition. PromptHash stands in for prompt text everywhere.
type PipelineEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	PromptHash string                 `json:"prompt_hash,omitempty"`
	TaskType   string                 `json:"task_type,omitempty"`
	Tier       ModelTier              `json:"tier,omitempty"`
	Attempt    int                    `json:"attempt,omitempty"`
	Caller     string                 `json:"caller,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
