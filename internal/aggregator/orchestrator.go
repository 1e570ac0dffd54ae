package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"advisor-quorum/internal/alerting"
	"advisor-quorum/internal/asset"
	"advisor-quorum/internal/budget"
	"advisor-quorum/internal/config"
	"advisor-quorum/internal/provider"
)

// Orchestrator is the public entry point of the two-phase aggregation. It
// sequences normalization, the free-tier broadcast, the escalation decision,
// the premium escalation, and result assembly. All collaborators are injected
// at construction; the notifier and metrics recorder are optional.
type Orchestrator struct {
	cfg      config.TwoPhaseConfig
	registry *provider.Registry
	guard    *budget.Guard
	query    provider.QueryFunc
	phase1   *PhaseOne
	phase2   *PhaseTwo
	policy   EscalationPolicy
	notifier alerting.Notifier
	channels []string
	metrics  MetricsRecorder
	logger   zerolog.Logger
}

// Options bundle the orchestrator's optional collaborators.
type Options struct {
	Notifier alerting.Notifier
	Channels []string
	Metrics  MetricsRecorder
}

// New constructs the aggregation orchestrator.
func New(cfg config.TwoPhaseConfig, registry *provider.Registry, guard *budget.Guard, query provider.QueryFunc, opts Options, logger zerolog.Logger) *Orchestrator {
	validator := provider.NewValidator(logger)
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		guard:    guard,
		query:    query,
		phase1:   NewPhaseOne(validator, opts.Metrics, logger),
		phase2:   NewPhaseTwo(registry, guard, validator, opts.Metrics, logger),
		policy:   NewEscalationPolicy(cfg, logger),
		notifier: opts.Notifier,
		channels: opts.Channels,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Aggregate runs one full two-phase aggregation for an asset. The market data
// is cloned before any read; the caller's map is never touched. Quorum
// failure is returned as a *QuorumError; every other provider-level failure
// is absorbed into the result.
func (o *Orchestrator) Aggregate(ctx context.Context, assetName string, market MarketData, prompt string) (*AggregationResult, error) {
	result := &AggregationResult{
		RunID:    uuid.New().String(),
		Asset:    assetName,
		Settings: o.cfg,
	}

	if !o.cfg.Enabled {
		o.logger.Info().Str("asset", assetName).Msg("two-phase aggregation disabled; nothing queried")
		o.recordOutcome("disabled")
		result.CompletedAt = time.Now().UTC()
		return result, nil
	}

	market = market.Clone()

	assetType, err := asset.Normalize(market["type"], o.logger)
	if err != nil {
		// Invariant violation: only reachable through a logic bug.
		return nil, fmt.Errorf("aggregate %s: %w", assetName, err)
	}
	result.AssetType = assetType

	phase1, err := o.phase1.Broadcast(ctx, prompt, o.registry.FreeProviders(), o.query, o.cfg.Phase1MinQuorum)
	result.Phase1 = phase1
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordQuorumFailure()
		}
		o.recordOutcome("quorum_failed")
		o.notify(ctx, alerting.Notification{
			Kind:      alerting.KindQuorumFailure,
			Asset:     assetName,
			AssetType: string(assetType),
			Detail:    err.Error(),
		})
		return nil, err
	}

	escalation := o.policy.Evaluate(phase1, market)
	result.Escalation = escalation
	if o.metrics != nil {
		for _, trigger := range escalation.Triggers {
			o.metrics.RecordEscalationTrigger(string(trigger))
		}
	}

	result.Phase2 = o.runPhaseTwo(ctx, assetName, assetType, prompt, phase1, escalation)
	result.Performed = true
	result.CompletedAt = time.Now().UTC()

	o.recordOutcome("completed")
	o.logger.Info().
		Str("run_id", result.RunID).
		Str("asset", assetName).
		Str("asset_type", string(assetType)).
		Bool("escalated", escalation.ShouldEscalate).
		Str("skip_reason", string(result.Phase2.SkipReason)).
		Msg("aggregation complete")

	return result, nil
}

func (o *Orchestrator) runPhaseTwo(ctx context.Context, assetName string, assetType asset.Type, prompt string, phase1 Phase1Outcome, escalation EscalationDecision) Phase2Outcome {
	if !escalation.ShouldEscalate {
		return Phase2Outcome{
			Decisions:       map[string]provider.Response{},
			FailedProviders: []string{},
			SkipReason:      SkipThresholdsMet,
		}
	}

	hasBudget, err := o.guard.HasBudget(ctx, o.cfg.MaxPremiumCallsPerDay)
	if err != nil {
		// Unknown spend means unknown cost exposure; skip premium rather
		// than risk blowing the cap.
		o.logger.Error().Err(err).Msg("budget check failed; skipping premium phase")
		hasBudget = false
	}
	if !hasBudget {
		o.notify(ctx, alerting.Notification{
			Kind:      alerting.KindBudgetExhausted,
			Asset:     assetName,
			AssetType: string(assetType),
			Detail:    fmt.Sprintf("daily cap %d reached", o.cfg.MaxPremiumCallsPerDay),
		})
		return Phase2Outcome{
			Decisions:       map[string]provider.Response{},
			FailedProviders: []string{},
			SkipReason:      SkipBudgetExceeded,
		}
	}

	return o.phase2.Escalate(ctx, prompt, assetName, assetType, phase1, escalation, o.query, o.cfg)
}

func (o *Orchestrator) notify(ctx context.Context, note alerting.Notification) {
	if o.notifier == nil {
		return
	}
	note.OccurredAt = time.Now().UTC()
	note.Channels = o.channels
	if err := o.notifier.Notify(ctx, note); err != nil {
		o.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch ops alert")
	}
}

func (o *Orchestrator) recordOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordAggregation(outcome)
	}
}
