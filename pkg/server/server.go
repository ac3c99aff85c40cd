// Package server provides the public entry point for initializing the
// MedQuill pipeline server.
//
// It lives in pkg/ (not internal/) so embedding deployments — the
// workflow orchestrator, batch tooling — can compose the pipeline with
// their own collaborators (scanner, drivers, cache, sink) instead of the
// defaults wired here.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medquill/medquill/pipeline/internal/api"
	"github.com/medquill/medquill/pipeline/internal/api/handlers"
	"github.com/medquill/medquill/pipeline/internal/audit"
	"github.com/medquill/medquill/pipeline/internal/auth"
	"github.com/medquill/medquill/pipeline/internal/cache"
	"github.com/medquill/medquill/pipeline/internal/config"
	"github.com/medquill/medquill/pipeline/internal/events"
	"github.com/medquill/medquill/pipeline/internal/phi"
	"github.com/medquill/medquill/pipeline/internal/quality"
	"github.com/medquill/medquill/pipeline/internal/refine"
	"github.com/medquill/medquill/pipeline/internal/router"
	"github.com/medquill/medquill/pipeline/internal/telemetry"
	"github.com/medquill/medquill/pipeline/pkg/contracts"
	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Server holds the initialized MedQuill pipeline.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Router is the routed pipeline entry point, exposed for embedders.
	Router contracts.ModelRouterService

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes all pipeline components from the environment and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	governance := models.GovernanceMode(cfg.Pipeline.Governance)
	if !governance.Valid() {
		log.Warn().Str("mode", cfg.Pipeline.Governance).Msg("Unknown governance mode, falling back to production")
		governance = models.GovernanceProduction
	}

	// Core components
	qualityGate := quality.NewGate()
	phiGate := phi.NewGate(phi.NewCommunityScanner())
	refiner := refine.NewService(refine.NewCatalog(), cfg.Pipeline.EscalationThreshold)

	// Response cache: Redis when configured, otherwise in-process.
	var respCache contracts.ResponseCache
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable, using in-memory response cache")
			respCache = cache.NewMemoryCache()
		} else {
			log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("✅ Redis response cache connected")
			respCache = rc
		}
	} else {
		respCache = cache.NewMemoryCache()
	}

	// Audit trail sits in the delivery path: record, then log.
	trail := audit.NewTrail(events.LogDelivery{}, cfg.Audit.Capacity, cfg.Audit.Retention)
	sink := events.NewSink(trail, cfg.Telemetry.EventQueue)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go audit.NewJanitor(trail, cfg.Audit.PruneInterval).Run(janitorCtx)

	defaultTier := models.ModelTier(cfg.Pipeline.DefaultTier)
	mr := router.New(router.Config{
		DefaultTier:     defaultTier,
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		MaxEscalations:  cfg.Pipeline.MaxEscalations,
		Governance:      governance,
		ProviderTimeout: cfg.Pipeline.ProviderTimeout,
		ProviderRetries: uint64(cfg.Pipeline.ProviderRetries),
		CacheTTL:        cfg.Cache.TTL,
	}, router.DefaultBindings(), phiGate, qualityGate, refiner, respCache, sink)

	mr.RegisterDriver(router.NewOpenAIDriver(cfg.Providers.OpenAIEndpoint, cfg.Providers.OpenAIAPIKey))
	mr.RegisterDriver(router.NewAnthropicDriver(cfg.Providers.AnthropicEndpoint, cfg.Providers.AnthropicAPIKey))
	mr.RegisterDriver(router.NewOllamaDriver(cfg.Providers.OllamaEndpoint))

	log.Info().
		Str("governance", string(governance)).
		Str("default_tier", string(defaultTier)).
		Int("max_attempts", cfg.Pipeline.MaxAttempts).
		Msg("✅ Model Router initialized")

	guard := auth.NewAPIKeys(cfg.Auth.APIKeys)
	if guard.Enabled() {
		log.Info().Int("keys", len(cfg.Auth.APIKeys)).Msg("🔑 API key guard enabled")
	}

	h := handlers.New(mr, qualityGate, refiner, trail)

	return &Server{
		Handler: api.NewRouter(cfg, h, guard),
		Router:  mr,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			stopJanitor()
			sink.Close()
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		},
	}, nil
}
