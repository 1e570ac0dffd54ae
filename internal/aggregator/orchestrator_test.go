package aggregator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"advisor-quorum/internal/budget"
	"advisor-quorum/internal/config"
	"advisor-quorum/internal/provider"
	"advisor-quorum/internal/storage"
)

func testRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	registry, err := provider.NewRegistry(config.ProvidersConfig{
		Free:          freeIDs(),
		CryptoPrimary: "claude-cli",
		MarketPrimary: "gemini-cli",
		Tiebreaker:    "codex-cli",
	})
	require.NoError(t, err)
	return registry
}

func newTestOrchestrator(t *testing.T, cfg config.TwoPhaseConfig, script map[string]scripted) (*Orchestrator, func(id string) int, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	guard := budget.NewGuard(store, 0, zerolog.Nop())
	query, count := scriptedQuery(script)
	orch := New(cfg, testRegistry(t), guard, query, Options{}, zerolog.Nop())
	return orch, count, store
}

func freeScript(actions []provider.Action, confidences []float64) map[string]scripted {
	script := make(map[string]scripted)
	for i, id := range freeIDs() {
		if i < len(actions) {
			script[id] = scripted{resp: provider.Response{Action: actions[i], Confidence: confidences[i]}}
		} else {
			script[id] = scripted{err: errors.New("provider unavailable")}
		}
	}
	return script
}

func TestAggregateConfidentConsensusSkipsPremium(t *testing.T) {
	// Scenario A: 5 of 6 succeed, strong BUY consensus, no stakes.
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{80, 85, 90, 88, 60},
	)
	orch, count, store := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)
	require.True(t, result.Performed)

	require.True(t, result.Phase1.QuorumMet)
	require.Equal(t, 5, result.Phase1.SucceededCount)
	require.Equal(t, provider.Buy, result.Phase1.Metrics.MajorityAction)
	require.InDelta(t, 0.8, result.Phase1.Metrics.Agreement, 1e-9)
	require.InDelta(t, 0.806, result.Escalation.AvgConfidenceRatio, 1e-9)

	require.False(t, result.Escalation.ShouldEscalate)
	require.Equal(t, SkipThresholdsMet, result.Phase2.SkipReason)
	require.Empty(t, result.Phase2.Decisions)

	for _, id := range []string{"claude-cli", "gemini-cli", "codex-cli"} {
		require.Zero(t, count(id), "premium provider %s must not be queried", id)
	}
	calls, err := store.CountCallsOn(context.Background(), result.CompletedAt)
	require.NoError(t, err)
	require.Zero(t, calls)
}

func TestAggregateLowConfidenceEscalates(t *testing.T) {
	// Scenario B: weak confidence escalates to the crypto primary, which
	// agrees with the majority, so no tiebreak follows.
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["claude-cli"] = scripted{resp: provider.Response{Action: provider.Buy, Confidence: 82}}

	orch, count, store := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)

	require.True(t, result.Escalation.ShouldEscalate)
	require.True(t, result.Escalation.Triggered(TriggerLowConfidence))

	require.Equal(t, "claude-cli", result.Phase2.PrimaryUsed)
	require.False(t, result.Phase2.TiebreakerUsed)
	require.False(t, result.Phase2.FallbackUsed)
	require.Equal(t, 1, count("claude-cli"))
	require.Zero(t, count("codex-cli"))

	records, err := store.ListRecentCalls(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "claude-cli", records[0].PrimaryProvider)
	require.False(t, records[0].FallbackOrTiebreakUsed)
	require.Contains(t, records[0].EscalationReason, "LOW_CONFIDENCE")
	require.True(t, strings.HasSuffix(records[0].EscalationReason, "|primary"))
}

func TestAggregateTiebreakOnDisagreement(t *testing.T) {
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["claude-cli"] = scripted{resp: provider.Response{Action: provider.Sell, Confidence: 88}}
	script["codex-cli"] = scripted{resp: provider.Response{Action: provider.Buy, Confidence: 75}}

	orch, count, _ := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)

	require.Equal(t, "claude-cli", result.Phase2.PrimaryUsed)
	require.True(t, result.Phase2.TiebreakerUsed)
	require.False(t, result.Phase2.FallbackUsed)
	require.Len(t, result.Phase2.Decisions, 2)
	require.Equal(t, 1, count("codex-cli"))
}

func TestAggregateBudgetExceededSkipsPremium(t *testing.T) {
	// Scenario D: escalation required but the daily budget is exhausted.
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	cfg := defaultTwoPhase()
	cfg.MaxPremiumCallsPerDay = 0

	orch, count, _ := newTestOrchestrator(t, cfg, script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)

	require.True(t, result.Escalation.ShouldEscalate)
	require.Equal(t, SkipBudgetExceeded, result.Phase2.SkipReason)
	require.Empty(t, result.Phase2.Decisions)
	require.Zero(t, count("claude-cli"))
	require.Zero(t, count("codex-cli"))
}

func TestAggregateFallbackOnPrimaryFailure(t *testing.T) {
	// Scenario E: the primary raises, the designated fallback substitutes.
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["claude-cli"] = scripted{err: errors.New("cli exited 1")}
	script["codex-cli"] = scripted{resp: provider.Response{Action: provider.Buy, Confidence: 70}}

	orch, count, store := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)

	require.True(t, result.Phase2.FallbackUsed)
	require.False(t, result.Phase2.TiebreakerUsed)
	require.Empty(t, result.Phase2.PrimaryUsed)
	require.Equal(t, []string{"claude-cli"}, result.Phase2.FailedProviders)
	require.Equal(t, 1, count("codex-cli"))

	// Both executed attempts are on the log.
	records, err := store.ListRecentCalls(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestAggregateFallbackDisabled(t *testing.T) {
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["claude-cli"] = scripted{err: errors.New("cli exited 1")}

	cfg := defaultTwoPhase()
	cfg.CodexAsTiebreaker = false

	orch, count, _ := newTestOrchestrator(t, cfg, script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)

	require.Empty(t, result.Phase2.Decisions)
	require.Equal(t, []string{"claude-cli"}, result.Phase2.FailedProviders)
	require.Zero(t, count("codex-cli"))
}

func TestAggregateBothPremiumFail(t *testing.T) {
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["claude-cli"] = scripted{err: errors.New("cli exited 1")}
	script["codex-cli"] = scripted{resp: provider.Response{Action: "PUMP", Confidence: 70}} // invalid

	orch, _, _ := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err, "dual premium failure is not an error")

	require.Empty(t, result.Phase2.Decisions)
	require.ElementsMatch(t, []string{"claude-cli", "codex-cli"}, result.Phase2.FailedProviders)
	require.True(t, result.Phase1.QuorumMet, "caller still gets the phase-1 result")
}

func TestAggregateForexRoutesToMarketPrimary(t *testing.T) {
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Sell},
		[]float64{55, 60, 58, 62, 50},
	)
	script["gemini-cli"] = scripted{resp: provider.Response{Action: provider.Buy, Confidence: 90}}

	orch, count, _ := newTestOrchestrator(t, defaultTwoPhase(), script)

	result, err := orch.Aggregate(context.Background(), "EURUSD", MarketData{"type": "fx"}, "analyze EURUSD")
	require.NoError(t, err)
	require.Equal(t, "forex", string(result.AssetType))
	require.Equal(t, "gemini-cli", result.Phase2.PrimaryUsed)
	require.Zero(t, count("claude-cli"))
}

func TestAggregateDisabledQueriesNothing(t *testing.T) {
	cfg := defaultTwoPhase()
	cfg.Enabled = false

	orch, count, _ := newTestOrchestrator(t, cfg, freeScript(nil, nil))

	result, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	require.NoError(t, err)
	require.False(t, result.Performed)

	for _, id := range append(freeIDs(), "claude-cli", "gemini-cli", "codex-cli") {
		require.Zero(t, count(id), "disabled aggregation must query nothing")
	}
}

func TestAggregateQuorumFailureSurfaced(t *testing.T) {
	script := map[string]scripted{
		"f1": {resp: provider.Response{Action: provider.Buy, Confidence: 80}},
	}
	for _, id := range freeIDs()[1:] {
		script[id] = scripted{err: errors.New("ollama down")}
	}

	orch, _, _ := newTestOrchestrator(t, defaultTwoPhase(), script)

	_, err := orch.Aggregate(context.Background(), "BTC", MarketData{"type": "crypto"}, "analyze BTC")
	var quorumErr *QuorumError
	require.ErrorAs(t, err, &quorumErr)
	require.Equal(t, []string{"f1"}, quorumErr.Succeeded)
	require.Len(t, quorumErr.Failed, 5)
}

func TestAggregateDoesNotMutateMarketData(t *testing.T) {
	script := freeScript(
		[]provider.Action{provider.Buy, provider.Buy, provider.Buy, provider.Buy, provider.Buy},
		[]float64{90, 90, 90, 90, 90},
	)
	orch, _, _ := newTestOrchestrator(t, defaultTwoPhase(), script)

	market := MarketData{"position_size": 2.0, "close": 100.0}
	_, err := orch.Aggregate(context.Background(), "BTC", market, "analyze BTC")
	require.NoError(t, err)

	require.Len(t, market, 2, "caller's market data must not gain keys")
	require.NotContains(t, market, "type")
}
