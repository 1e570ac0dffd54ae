package aggregator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"advisor-quorum/internal/provider"
)

// MetricsRecorder receives counters for outcomes that are otherwise absorbed
// into the aggregation result. Implementations must be safe for concurrent
// use; a nil recorder disables metrics.
type MetricsRecorder interface {
	RecordAggregation(outcome string)
	RecordQuorumFailure()
	RecordValidationFailure(provider string)
	RecordEscalationTrigger(trigger string)
	RecordPremiumCall(provider, path string)
}

// PhaseOne broadcasts a prompt to every free-tier provider concurrently and
// enforces the minimum-quorum contract on the valid responses.
type PhaseOne struct {
	validator *provider.Validator
	metrics   MetricsRecorder
	logger    zerolog.Logger
}

// NewPhaseOne constructs the free-tier coordinator.
func NewPhaseOne(validator *provider.Validator, metrics MetricsRecorder, logger zerolog.Logger) *PhaseOne {
	return &PhaseOne{
		validator: validator,
		metrics:   metrics,
		logger:    logger.With().Str("component", "phase1").Logger(),
	}
}

type queryResult struct {
	resp provider.Response
	err  error
}

// Broadcast fans the prompt out to all providers at once and collects every
// outcome independently; one provider's error or invalid response never
// aborts the batch. Results are captured into per-provider slots so the
// partition and the downstream majority tie-break follow the input order
// deterministically. Returns a *QuorumError when fewer than minQuorum
// providers produce valid responses.
func (p *PhaseOne) Broadcast(ctx context.Context, prompt string, providers []string, query provider.QueryFunc, minQuorum int) (Phase1Outcome, error) {
	slots := make([]queryResult, len(providers))

	var wg sync.WaitGroup
	for i, id := range providers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			resp, err := query(ctx, id, prompt)
			slots[i] = queryResult{resp: resp, err: err}
		}(i, id)
	}
	wg.Wait()

	outcome := Phase1Outcome{
		Decisions:       make(map[string]provider.Response, len(providers)),
		FailedProviders: make([]string, 0),
	}
	ordered := make([]provider.Response, 0, len(providers))

	for i, id := range providers {
		result := slots[i]
		if result.err != nil {
			p.logger.Warn().Str("provider", id).Err(result.err).Msg("free-tier query failed")
			outcome.FailedProviders = append(outcome.FailedProviders, id)
			continue
		}
		if err := p.validator.Validate(id, result.resp); err != nil {
			if p.metrics != nil {
				p.metrics.RecordValidationFailure(id)
			}
			outcome.FailedProviders = append(outcome.FailedProviders, id)
			continue
		}

		resp := result.resp
		resp.ProviderID = id
		outcome.Decisions[id] = resp
		ordered = append(ordered, resp)
	}

	outcome.SucceededCount = len(ordered)
	outcome.QuorumMet = outcome.SucceededCount >= minQuorum
	outcome.Metrics = computeConsensus(ordered)

	p.logger.Info().
		Int("queried", len(providers)).
		Int("succeeded", outcome.SucceededCount).
		Int("failed", len(outcome.FailedProviders)).
		Bool("quorum_met", outcome.QuorumMet).
		Str("majority", string(outcome.Metrics.MajorityAction)).
		Msg("phase 1 broadcast complete")

	if !outcome.QuorumMet {
		succeeded := make([]string, 0, len(ordered))
		for _, resp := range ordered {
			succeeded = append(succeeded, resp.ProviderID)
		}
		return outcome, &QuorumError{
			Required:  minQuorum,
			Succeeded: succeeded,
			Failed:    append([]string(nil), outcome.FailedProviders...),
		}
	}

	return outcome, nil
}
