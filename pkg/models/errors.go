package models

import "fmt"

// ── Provider Errors ──────────────────────────────────────────

// ProviderErrorKind classifies provider failures. Classification happens
// in the driver, before the error reaches the router.
type ProviderErrorKind string

const (
	ProviderErrTimeout     ProviderErrorKind = "TIMEOUT"
	ProviderErrRateLimited ProviderErrorKind = "RATE_LIMITED"
	ProviderErrAuth        ProviderErrorKind = "AUTH"
	ProviderErrUnknown     ProviderErrorKind = "UNKNOWN"
)

// ProviderError is a classified failure from a model provider call.
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the router may retry the call at the network
// layer. AUTH failures are never retried.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderErrTimeout, ProviderErrRateLimited:
		return true
	default:
		return false
	}
}

// ── PHI Gate Errors ──────────────────────────────────────────

// PhiBlockedError means outbound content contained disallowed sensitive
// data. Fatal; never retried. Only finding counts and types are carried.
type PhiBlockedError struct {
	Direction    GateDirection
	FindingCount int
	FindingTypes []string
	Mode         GovernanceMode
}

func (e *PhiBlockedError) Error() string {
	return fmt.Sprintf("phi gate blocked %s content: %d finding(s) under %s governance",
		e.Direction, e.FindingCount, e.Mode)
}

// ScannerUnavailableError means the PHI scanning capability could not be
// reached. The gate fails closed, so outbound traffic is blocked.
type ScannerUnavailableError struct {
	Err error
}

func (e *ScannerUnavailableError) Error() string {
	return fmt.Sprintf("PROVIDER_UNAVAILABLE: phi scanner unreachable: %v", e.Err)
}

func (e *ScannerUnavailableError) Unwrap() error { return e.Err }

// ── Exhaustion Errors ────────────────────────────────────────

// QualityExhaustedError means refinement attempts ran out at the current
// tier with no further applicable rule and no escalation path. The last
// generated content and its failing checks are attached so the caller can
// accept, edit, or discard.
type QualityExhaustedError struct {
	Tier         ModelTier
	Attempts     int
	LastResponse *AIInvocationResponse
	FailedChecks []QualityCheck
}

func (e *QualityExhaustedError) Error() string {
	return fmt.Sprintf("quality gate exhausted after %d attempt(s) at tier %s (%d check(s) still failing)",
		e.Attempts, e.Tier, len(e.FailedChecks))
}

// EscalationExhaustedError means the escalation budget was consumed across
// tiers without the gate passing.
type EscalationExhaustedError struct {
	StartTier    ModelTier
	FinalTier    ModelTier
	LastResponse *AIInvocationResponse
	FailedChecks []QualityCheck
}

func (e *EscalationExhaustedError) Error() string {
	return fmt.Sprintf("escalation exhausted from tier %s to %s (%d check(s) still failing)",
		e.StartTier, e.FinalTier, len(e.FailedChecks))
}
