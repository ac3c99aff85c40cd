// Package router implements the MedQuill model router: the top-level
// coordinator that selects a model tier for a request, gates content at
// the trust boundary, invokes the bound provider, validates the response
// against the request's quality requirements, and drives the bounded
// refine/escalate loop until success or exhaustion.
//
// Per-request flow: SELECT_TIER → PHI_GATE → INVOKE → QUALITY_GATE →
// {DONE | REFINE_OR_ESCALATE}. Each Route call is independent; the router
// holds no request-scoped state outside its local loop variables, so
// concurrent invocations need no coordination beyond the shared cost
// accounting.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medquill/medquill/pipeline/internal/cache"
	"github.com/medquill/medquill/pipeline/internal/phi"
	"github.com/medquill/medquill/pipeline/internal/quality"
	"github.com/medquill/medquill/pipeline/internal/refine"
	"github.com/medquill/medquill/pipeline/pkg/contracts"
	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Config tunes the routing loop.
type Config struct {
	// DefaultTier is used when a request carries no routable tier hint.
	DefaultTier models.ModelTier

	// MaxAttempts bounds refinement attempts per tier.
	MaxAttempts int

	// MaxEscalations bounds tier bumps per request.
	MaxEscalations int

	// Governance is the active policy regime for the PHI gate.
	Governance models.GovernanceMode

	// ProviderTimeout bounds each individual provider call, distinct from
	// the caller's overall request deadline.
	ProviderTimeout time.Duration

	// ProviderRetries bounds transient-error retries per invoke. These are
	// network retries, not refinement attempts.
	ProviderRetries uint64

	// CacheTTL is how long passed responses stay cached.
	CacheTTL time.Duration
}

// DefaultConfig returns the standard routing parameters.
func DefaultConfig() Config {
	return Config{
		DefaultTier:     models.TierMini,
		MaxAttempts:     3,
		MaxEscalations:  1,
		Governance:      models.GovernanceProduction,
		ProviderTimeout: 60 * time.Second,
		ProviderRetries: 3,
		CacheTTL:        15 * time.Minute,
	}
}

// ModelRouter coordinates the gated invocation loop.
type ModelRouter struct {
	cfg      Config
	bindings map[models.ModelTier]models.TierBinding
	phiGate  *phi.Gate
	quality  *quality.Gate
	refiner  *refine.Service
	cache    contracts.ResponseCache
	sink     contracts.TelemetrySink
	tracer   trace.Tracer

	drvMu   sync.RWMutex
	drivers map[string]contracts.ProviderDriver

	costMu sync.Mutex
	costs  models.CostSummary
}

// New creates a model router. Cache and sink may be nil; both are
// optional collaborators.
func New(cfg Config, bindings map[models.ModelTier]models.TierBinding, phiGate *phi.Gate, qualityGate *quality.Gate, refiner *refine.Service, respCache contracts.ResponseCache, sink contracts.TelemetrySink) *ModelRouter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if !cfg.DefaultTier.Routable() {
		cfg.DefaultTier = models.TierMini
	}
	return &ModelRouter{
		cfg:      cfg,
		bindings: bindings,
		phiGate:  phiGate,
		quality:  qualityGate,
		refiner:  refiner,
		cache:    respCache,
		sink:     sink,
		tracer:   otel.Tracer("medquill/pipeline/router"),
		drivers:  make(map[string]contracts.ProviderDriver),
		costs: models.CostSummary{
			ByTier:  make(map[models.ModelTier]float64),
			ByModel: make(map[string]float64),
		},
	}
}

// RegisterDriver adds or replaces the driver for a provider kind.
func (mr *ModelRouter) RegisterDriver(driver contracts.ProviderDriver) {
	mr.drvMu.Lock()
	defer mr.drvMu.Unlock()
	mr.drivers[driver.Kind()] = driver
	log.Info().Str("kind", driver.Kind()).Msg("Registered provider driver")
}

// GetDriver returns the driver for a provider kind, or nil.
func (mr *ModelRouter) GetDriver(kind string) contracts.ProviderDriver {
	mr.drvMu.RLock()
	defer mr.drvMu.RUnlock()
	return mr.drivers[kind]
}

// ListDrivers returns the registered provider kinds.
func (mr *ModelRouter) ListDrivers() []string {
	mr.drvMu.RLock()
	defer mr.drvMu.RUnlock()
	kinds := make([]string, 0, len(mr.drivers))
	for k := range mr.drivers {
		kinds = append(kinds, k)
	}
	return kinds
}

// ── Routing Loop ────────────────────────────────────────────

// Route drives the full gated loop for one request.
//
// Failure modes: *models.PhiBlockedError (fatal, outbound content
// blocked), *models.ProviderError (transport retries exhausted),
// *models.QualityExhaustedError and *models.EscalationExhaustedError
// (both carry the best-so-far response and its failing checks so the
// caller can accept, edit, or discard).
func (mr *ModelRouter) Route(ctx context.Context, req *models.AIInvocationRequest) (*models.AIInvocationResponse, error) {
	ctx, span := mr.tracer.Start(ctx, "router.Route")
	defer span.End()

	// SELECT_TIER
	startTier := req.TierHint
	if !startTier.Routable() {
		startTier = mr.cfg.DefaultTier
	}
	span.SetAttributes(
		attribute.String("tier.start", string(startTier)),
		attribute.String("task_type", req.TaskType),
	)

	promptHash := models.PromptFingerprint(req.Prompt)
	tier := startTier
	prompt := req.Prompt
	escalations := 0

	rctx := models.RefinementContext{
		OriginalPrompt: req.Prompt,
		TaskType:       req.TaskType,
		CurrentTier:    tier,
		MaxAttempts:    mr.cfg.MaxAttempts,
		AppliedRules:   make(map[string]int),
	}

	var best *models.AIInvocationResponse
	var bestFailed []models.QualityCheck

	for {
		// PHI_GATE — the fully-rendered prompt is evaluated outbound on
		// every iteration; refinement instructions could in principle
		// drag quoted content back in.
		decision, err := mr.phiGate.Evaluate(ctx, prompt, models.DirectionOutbound, mr.cfg.Governance)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			mr.emit(models.PipelineEvent{
				Type:       models.EventPhiBlocked,
				PromptHash: promptHash,
				TaskType:   req.TaskType,
				Tier:       tier,
				Caller:     req.Context.Caller,
				Payload: map[string]interface{}{
					"finding_count": decision.FindingCount,
					"finding_types": decision.FindingTypes,
				},
			})
			return nil, &models.PhiBlockedError{
				Direction:    models.DirectionOutbound,
				FindingCount: decision.FindingCount,
				FindingTypes: decision.FindingTypes,
				Mode:         mr.cfg.Governance,
			}
		}

		// Cache read sits between the gate and the spend.
		cacheKey := cache.Key(req.TaskType, prompt, tier)
		if mr.cache != nil {
			if cached, ok := mr.cache.Get(ctx, cacheKey); ok {
				log.Debug().Str("prompt_hash", promptHash).Str("tier", string(tier)).Msg("Response cache hit")
				return cached, nil
			}
		}

		// INVOKE
		resp, err := mr.invoke(ctx, tier, prompt)
		if err != nil {
			return nil, err
		}
		resp.Tier = tier
		resp.Escalated = tier != startTier
		if resp.Escalated {
			resp.EscalationReason = "quality gate failures at lower tier"
		}

		// Inbound findings never block, but the caller gets a redaction flag.
		if inbound, err := mr.phiGate.Evaluate(ctx, resp.Content, models.DirectionInbound, mr.cfg.Governance); err == nil && inbound.Flagged {
			log.Warn().
				Str("prompt_hash", promptHash).
				Int("findings", inbound.FindingCount).
				Msg("Provider response carries sensitive findings, caller must redact")
		}

		// QUALITY_GATE
		gateResult := mr.quality.Validate(resp.Content, req.Requirements)
		if gateResult.Passed {
			resp.QualityGatePassed = true
			if mr.cache != nil {
				mr.cache.Set(ctx, cacheKey, resp, mr.cfg.CacheTTL)
			}
			mr.trackCost(resp)
			mr.emit(models.PipelineEvent{
				Type:       models.EventInvocationDone,
				PromptHash: promptHash,
				TaskType:   req.TaskType,
				Tier:       tier,
				Attempt:    rctx.AttemptCount,
				Caller:     req.Context.Caller,
				Payload: map[string]interface{}{
					"escalated": resp.Escalated,
					"cost_usd":  resp.Usage.CostUSD,
				},
			})
			span.SetAttributes(
				attribute.Int("attempts", rctx.AttemptCount),
				attribute.Bool("escalated", resp.Escalated),
			)
			return resp, nil
		}

		failed := gateResult.FailedChecks()
		best = resp
		bestFailed = failed
		mr.trackCost(resp)

		// REFINE_OR_ESCALATE
		rctx.CurrentTier = tier
		refinement := mr.refiner.Refine(req.Prompt, failed, rctx)
		mr.emit(models.PipelineEvent{
			Type:       models.EventPromptRefined,
			PromptHash: refinement.Summary.PromptHash,
			TaskType:   req.TaskType,
			Tier:       tier,
			Attempt:    rctx.AttemptCount,
			Caller:     req.Context.Caller,
			Payload: map[string]interface{}{
				"refined":         refinement.Refined,
				"should_escalate": refinement.ShouldEscalate,
				"rules_applied":   refinement.Summary.RulesApplied,
				"failed_checks":   refinement.Summary.FailedCheckCount,
			},
		})

		if refinement.Refined {
			rctx.AttemptCount++
			rctx.PreviousFailures = appendFailureNames(rctx.PreviousFailures, failed)
			for _, rule := range refinement.AppliedRules {
				rctx.AppliedRules[rule.CheckName]++
			}
			prompt = refinement.Prompt
		}

		if refinement.ShouldEscalate && refinement.SuggestedTier != "" && escalations < mr.cfg.MaxEscalations {
			from := tier
			tier = refinement.SuggestedTier
			escalations++
			// A fresh tier gets a fresh refinement budget.
			rctx.AttemptCount = 0
			rctx.CurrentTier = tier
			log.Info().
				Str("prompt_hash", promptHash).
				Str("from", string(from)).
				Str("to", string(tier)).
				Msg("Escalating tier after quality failures")
			mr.emit(models.PipelineEvent{
				Type:       models.EventTierEscalated,
				PromptHash: promptHash,
				TaskType:   req.TaskType,
				Tier:       tier,
				Caller:     req.Context.Caller,
				Payload:    map[string]interface{}{"from": string(from)},
			})
			continue
		}

		if refinement.Refined {
			continue
		}

		// Terminal FAILED: nothing left to refine, nowhere left to go.
		mr.emit(models.PipelineEvent{
			Type:       models.EventInvocationFailed,
			PromptHash: promptHash,
			TaskType:   req.TaskType,
			Tier:       tier,
			Attempt:    rctx.AttemptCount,
			Caller:     req.Context.Caller,
			Payload:    map[string]interface{}{"skip_reason": refinement.SkipReason},
		})
		if refinement.ShouldEscalate && refinement.SuggestedTier != "" {
			// Escalation was the right move but the budget is spent.
			return nil, &models.EscalationExhaustedError{
				StartTier:    startTier,
				FinalTier:    tier,
				LastResponse: best,
				FailedChecks: bestFailed,
			}
		}
		return nil, &models.QualityExhaustedError{
			Tier:         tier,
			Attempts:     rctx.AttemptCount,
			LastResponse: best,
			FailedChecks: bestFailed,
		}
	}
}

// ── Provider Invocation ─────────────────────────────────────

// invoke calls the provider bound to the tier, retrying transient
// failures with jittered exponential backoff. Network retries are bounded
// separately from, and nested inside, the refinement budget. Caller
// cancellation aborts the in-flight call immediately.
func (mr *ModelRouter) invoke(ctx context.Context, tier models.ModelTier, prompt string) (*models.AIInvocationResponse, error) {
	binding, ok := mr.bindings[tier]
	if !ok {
		return nil, fmt.Errorf("no provider binding for tier %s", tier)
	}
	driver := mr.GetDriver(binding.Provider)
	if driver == nil {
		return nil, fmt.Errorf("no driver registered for provider %s", binding.Provider)
	}

	var raw *contracts.InvokeResponse
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, mr.cfg.ProviderTimeout)
		defer cancel()

		var err error
		raw, err = driver.Invoke(callCtx, contracts.InvokeRequest{
			Model:     binding.Model,
			Prompt:    prompt,
			MaxTokens: binding.MaxTokens,
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// Caller cancelled; do not keep retrying on their behalf.
			return backoff.Permanent(ctx.Err())
		}

		var provErr *models.ProviderError
		if errors.As(err, &provErr) && provErr.Retryable() {
			log.Warn().
				Str("provider", binding.Provider).
				Str("kind", string(provErr.Kind)).
				Msg("Transient provider failure, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), mr.cfg.ProviderRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return &models.AIInvocationResponse{
		Content:   raw.Content,
		Provider:  binding.Provider,
		Model:     binding.Model,
		LatencyMs: raw.LatencyMs,
		Usage: models.TokenUsage{
			InputTokens:  raw.InputTokens,
			OutputTokens: raw.OutputTokens,
			CostUSD: float64(raw.InputTokens)/1000*binding.CostPer1KInput +
				float64(raw.OutputTokens)/1000*binding.CostPer1KOutput,
		},
	}, nil
}

// ── Cost Accounting ─────────────────────────────────────────

func (mr *ModelRouter) trackCost(resp *models.AIInvocationResponse) {
	mr.costMu.Lock()
	defer mr.costMu.Unlock()
	mr.costs.TotalCostUSD += resp.Usage.CostUSD
	mr.costs.TotalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens
	mr.costs.ByTier[resp.Tier] += resp.Usage.CostUSD
	mr.costs.ByModel[resp.Model] += resp.Usage.CostUSD
}

// GetCostSummary returns a copy of the accumulated session spend.
func (mr *ModelRouter) GetCostSummary() *models.CostSummary {
	mr.costMu.Lock()
	defer mr.costMu.Unlock()

	summary := models.CostSummary{
		TotalCostUSD: mr.costs.TotalCostUSD,
		TotalTokens:  mr.costs.TotalTokens,
		ByTier:       make(map[models.ModelTier]float64, len(mr.costs.ByTier)),
		ByModel:      make(map[string]float64, len(mr.costs.ByModel)),
	}
	for k, v := range mr.costs.ByTier {
		summary.ByTier[k] = v
	}
	for k, v := range mr.costs.ByModel {
		summary.ByModel[k] = v
	}
	return &summary
}

// ── Health ──────────────────────────────────────────────────

// HealthCheck pings the bound provider for each routable tier.
func (mr *ModelRouter) HealthCheck(ctx context.Context) map[string]string {
	result := make(map[string]string)
	for tier, binding := range mr.bindings {
		if !tier.Routable() {
			continue
		}
		driver := mr.GetDriver(binding.Provider)
		if driver == nil {
			result[string(tier)] = "no driver for provider " + binding.Provider
			continue
		}
		if err := driver.HealthCheck(ctx); err != nil {
			result[string(tier)] = err.Error()
			continue
		}
		result[string(tier)] = "ok"
	}
	return result
}

// ── Helpers ─────────────────────────────────────────────────

func (mr *ModelRouter) emit(event models.PipelineEvent) {
	if mr.sink == nil {
		return
	}
	mr.sink.Emit(event)
}

func appendFailureNames(existing []string, failed []models.QualityCheck) []string {
	for _, c := range failed {
		existing = append(existing, c.Name)
	}
	return existing
}
