package aggregator

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"advisor-quorum/internal/asset"
	"advisor-quorum/internal/budget"
	"advisor-quorum/internal/config"
	"advisor-quorum/internal/provider"
	"advisor-quorum/internal/storage"
)

// PhaseTwo queries the premium tier once escalation is warranted and budget
// allows. Per call it issues at most the primary query plus one of the
// fallback or tiebreak queries, so premium exposure is bounded at two calls.
type PhaseTwo struct {
	registry  *provider.Registry
	guard     *budget.Guard
	validator *provider.Validator
	metrics   MetricsRecorder
	logger    zerolog.Logger
}

// NewPhaseTwo constructs the premium-tier coordinator.
func NewPhaseTwo(registry *provider.Registry, guard *budget.Guard, validator *provider.Validator, metrics MetricsRecorder, logger zerolog.Logger) *PhaseTwo {
	return &PhaseTwo{
		registry:  registry,
		guard:     guard,
		validator: validator,
		metrics:   metrics,
		logger:    logger.With().Str("component", "phase2").Logger(),
	}
}

// Escalate runs the premium protocol: query the asset type's primary; on
// disagreement with the phase-1 majority, additionally query the designated
// tiebreaker; on primary failure, query the same provider as a fallback
// substitute instead. The two branches are mutually exclusive. If both the
// primary and the substitute fail, the outcome carries empty decisions and
// both ids in FailedProviders; the caller gets the phase-1 result alone and
// decides how to proceed.
func (p *PhaseTwo) Escalate(ctx context.Context, prompt, assetName string, assetType asset.Type, phase1 Phase1Outcome, esc EscalationDecision, query provider.QueryFunc, cfg config.TwoPhaseConfig) Phase2Outcome {
	outcome := Phase2Outcome{
		Decisions:       make(map[string]provider.Response, 2),
		FailedProviders: make([]string, 0, 2),
	}

	primary := p.registry.PrimaryFor(assetType)

	resp, err := p.queryPremium(ctx, query, prompt, primary)
	p.recordCall(ctx, primary, primary, "primary", false, assetName, assetType, esc)

	if err != nil {
		outcome.FailedProviders = append(outcome.FailedProviders, primary)
		if !cfg.CodexAsTiebreaker {
			p.logger.Warn().Str("provider", primary).Err(err).Msg("premium primary failed; fallback disabled")
			return outcome
		}

		fallback := p.registry.Fallback()
		p.logger.Warn().Str("provider", primary).Str("fallback", fallback).Err(err).Msg("premium primary failed; querying fallback")

		fbResp, fbErr := p.queryPremium(ctx, query, prompt, fallback)
		p.recordCall(ctx, fallback, primary, "fallback", true, assetName, assetType, esc)
		if fbErr != nil {
			outcome.FailedProviders = append(outcome.FailedProviders, fallback)
			return outcome
		}

		outcome.Decisions[fallback] = fbResp
		outcome.FallbackUsed = true
		return outcome
	}

	outcome.Decisions[primary] = resp
	outcome.PrimaryUsed = primary

	if resp.Action != phase1.Metrics.MajorityAction && cfg.CodexAsTiebreaker {
		tiebreaker := p.registry.Fallback()
		p.logger.Info().
			Str("primary_action", string(resp.Action)).
			Str("majority_action", string(phase1.Metrics.MajorityAction)).
			Str("tiebreaker", tiebreaker).
			Msg("premium primary disagrees with phase-1 majority; querying tiebreaker")

		tbResp, tbErr := p.queryPremium(ctx, query, prompt, tiebreaker)
		p.recordCall(ctx, tiebreaker, primary, "tiebreak", true, assetName, assetType, esc)
		if tbErr != nil {
			outcome.FailedProviders = append(outcome.FailedProviders, tiebreaker)
			return outcome
		}

		outcome.Decisions[tiebreaker] = tbResp
		outcome.TiebreakerUsed = true
	}

	return outcome
}

func (p *PhaseTwo) queryPremium(ctx context.Context, query provider.QueryFunc, prompt, id string) (provider.Response, error) {
	resp, err := query(ctx, id, prompt)
	if err != nil {
		return provider.Response{}, err
	}
	if err := p.validator.Validate(id, resp); err != nil {
		if p.metrics != nil {
			p.metrics.RecordValidationFailure(id)
		}
		return provider.Response{}, err
	}
	resp.ProviderID = id
	return resp, nil
}

// recordCall reports one executed premium attempt to the budget guard,
// tagging it with the triggers and the path taken for auditability. Log
// failures are absorbed: losing an audit entry must not void a decision
// already paid for.
func (p *PhaseTwo) recordCall(ctx context.Context, called, primary, path string, substitute bool, assetName string, assetType asset.Type, esc EscalationDecision) {
	if p.metrics != nil {
		p.metrics.RecordPremiumCall(called, path)
	}

	rec := storage.PremiumCallRecord{
		Asset:                  assetName,
		AssetType:              string(assetType),
		Phase:                  "phase2",
		PrimaryProvider:        primary,
		FallbackOrTiebreakUsed: substitute,
		EscalationReason:       escalationReason(esc, path),
	}
	if err := p.guard.RecordCall(ctx, rec); err != nil {
		p.logger.Error().Err(err).Str("provider", called).Msg("failed to record premium call")
	}
}

func escalationReason(esc EscalationDecision, path string) string {
	parts := make([]string, 0, len(esc.Triggers)+1)
	for _, trigger := range esc.Triggers {
		parts = append(parts, string(trigger))
	}
	parts = append(parts, path)
	return strings.Join(parts, "|")
}
