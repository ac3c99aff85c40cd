// Package contracts defines the service interfaces for the MedQuill
// generation pipeline.
//
// These interfaces form the boundary between the pipeline core and its
// collaborators. The core ships concrete implementations (ModelRouter,
// QualityGate, PromptRefinementService, the community PHI scanner); a
// deployment can swap any collaborator — scanner, provider drivers, cache,
// telemetry sink — without touching the decision logic. The Handlers
// struct in api/handlers uses these interfaces, so replacing an
// implementation is a single line change in the wiring code.
package contracts

import (
	"context"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// ── Model Router Service ────────────────────────────────────

// ModelRouterService is the single routed entry point into the pipeline.
type ModelRouterService interface {
	// Route drives the full gated loop for one request: tier selection,
	// PHI gate, provider invoke, quality gate, refine/escalate.
	Route(ctx context.Context, req *models.AIInvocationRequest) (*models.AIInvocationResponse, error)

	// GetCostSummary returns accumulated session spend.
	GetCostSummary() *models.CostSummary

	// HealthCheck pings the bound provider for each routable tier.
	HealthCheck(ctx context.Context) map[string]string
}

// ── Quality Gate Service ────────────────────────────────────

// QualityGateService validates generated content against declared
// requirements. Exposed standalone for callers that want quality gating
// without full tier routing (e.g. the section generator).
type QualityGateService interface {
	Validate(content string, reqs models.QualityRequirements) models.QualityGateResult
}

// ── Refinement Service ──────────────────────────────────────

// RefinementService turns failed quality checks into an augmented prompt
// or a decision to stop and escalate.
type RefinementService interface {
	Refine(originalPrompt string, failed []models.QualityCheck, rctx models.RefinementContext) models.RefinementResult
	CanRefine(failed []models.QualityCheck, rctx models.RefinementContext) bool
}

// ── PHI Scanner ─────────────────────────────────────────────

// PhiScanner is the external PHI-detection capability. Findings expose
// only type, position and confidence — never the matched substring.
type PhiScanner interface {
	Scan(ctx context.Context, text string) ([]models.PhiFinding, error)
	HasPhi(ctx context.Context, text string) (bool, error)
}

// ── Provider Driver ─────────────────────────────────────────

// InvokeRequest is the transport-level request handed to a driver.
type InvokeRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// InvokeResponse is the raw provider result before cost/audit enrichment.
type InvokeResponse struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	LatencyMs    int64
}

// ProviderDriver is the interface for model provider integrations.
// The core ships OpenAI-compatible, Anthropic and Ollama drivers; drivers
// classify their own failures into models.ProviderError kinds before
// returning, so the router never inspects transport details.
type ProviderDriver interface {
	// Kind returns the provider identifier (e.g. "openai", "anthropic").
	Kind() string

	// Invoke sends a completion request to the provider.
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Response Cache ──────────────────────────────────────────

// ResponseCache stores completed responses keyed by a deterministic hash
// of (task type, rendered prompt, tier). Best-effort: failures degrade to
// a cache miss, never abort the request.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*models.AIInvocationResponse, bool)
	Set(ctx context.Context, key string, resp *models.AIInvocationResponse, ttl time.Duration)
}

// ── Telemetry Sink ──────────────────────────────────────────

// TelemetrySink receives pipeline audit events. Emission is
// fire-and-forget: the pipeline never blocks on the sink and tolerates
// sink unavailability silently after one logged warning.
type TelemetrySink interface {
	Emit(event models.PipelineEvent)
}
