package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"advisor-quorum/internal/asset"
	"advisor-quorum/internal/config"
	"advisor-quorum/internal/provider"
)

// MarketData is the caller-supplied market snapshot. Read for `type` and the
// position-stakes fields; always cloned before use so the caller's map is
// never mutated.
type MarketData map[string]any

// Clone returns a shallow copy of the market data.
func (m MarketData) Clone() MarketData {
	if m == nil {
		return MarketData{}
	}
	out := make(MarketData, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Trigger is one independently sufficient escalation condition.
type Trigger string

const (
	TriggerLowConfidence Trigger = "LOW_CONFIDENCE"
	TriggerLowAgreement  Trigger = "LOW_AGREEMENT"
	TriggerHighStakes    Trigger = "HIGH_STAKES"
)

// SkipReason explains why phase 2 issued no queries.
type SkipReason string

const (
	SkipBudgetExceeded SkipReason = "BUDGET_EXCEEDED"
	SkipThresholdsMet  SkipReason = "THRESHOLDS_MET"
)

// ConsensusMetrics summarises the valid phase-1 responses. Only these
// aggregates are order-independent and authoritative; consumers must not rely
// on map iteration order of the decisions.
type ConsensusMetrics struct {
	MajorityAction provider.Action `json:"majority_action"`
	Agreement      float64         `json:"agreement"`
	AvgConfidence  float64         `json:"avg_confidence"`
}

// Phase1Outcome is the immutable result of the free-tier broadcast.
type Phase1Outcome struct {
	Decisions       map[string]provider.Response `json:"decisions"`
	FailedProviders []string                     `json:"failed_providers"`
	SucceededCount  int                          `json:"succeeded_count"`
	QuorumMet       bool                         `json:"quorum_met"`
	Metrics         ConsensusMetrics             `json:"metrics"`
}

// EscalationDecision is derived deterministically from the phase-1 outcome
// and market data; it carries no side effects.
type EscalationDecision struct {
	ShouldEscalate     bool            `json:"should_escalate"`
	Triggers           []Trigger       `json:"triggers"`
	PositionValue      decimal.Decimal `json:"position_value"`
	AvgConfidenceRatio float64         `json:"avg_confidence_ratio"`
}

// Triggered reports whether a specific trigger fired.
func (d EscalationDecision) Triggered(t Trigger) bool {
	for _, have := range d.Triggers {
		if have == t {
			return true
		}
	}
	return false
}

// Phase2Outcome is the result of the conditional premium escalation. An empty
// outcome with a skip reason is a normal, reportable state, not an error.
type Phase2Outcome struct {
	Decisions       map[string]provider.Response `json:"decisions"`
	FailedProviders []string                     `json:"failed_providers"`
	PrimaryUsed     string                       `json:"primary_used,omitempty"`
	FallbackUsed    bool                         `json:"fallback_used"`
	TiebreakerUsed  bool                         `json:"tiebreaker_used"`
	SkipReason      SkipReason                   `json:"skip_reason,omitempty"`
}

// AggregationResult is the only artifact returned to the caller. It is
// ephemeral; nothing in this subsystem stores it.
type AggregationResult struct {
	RunID       string                `json:"run_id"`
	Asset       string                `json:"asset"`
	AssetType   asset.Type            `json:"asset_type"`
	Performed   bool                  `json:"performed"`
	Phase1      Phase1Outcome         `json:"phase1"`
	Escalation  EscalationDecision    `json:"escalation"`
	Phase2      Phase2Outcome         `json:"phase2"`
	Settings    config.TwoPhaseConfig `json:"settings"`
	CompletedAt time.Time             `json:"completed_at"`
}
