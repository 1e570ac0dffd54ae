package aggregator

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"advisor-quorum/internal/config"
	"advisor-quorum/internal/provider"
)

// computeConsensus derives the authoritative aggregate metrics from the valid
// responses. Majority ties break toward the action seen first in input order;
// the tie-break is deliberate and stable, never random.
func computeConsensus(ordered []provider.Response) ConsensusMetrics {
	if len(ordered) == 0 {
		return ConsensusMetrics{}
	}

	counts := make(map[provider.Action]int, 3)
	firstSeen := make(map[provider.Action]int, 3)
	var confidenceSum float64

	for i, resp := range ordered {
		counts[resp.Action]++
		if _, ok := firstSeen[resp.Action]; !ok {
			firstSeen[resp.Action] = i
		}
		confidenceSum += resp.Confidence
	}

	var majority provider.Action
	majorityCount := -1
	for action, count := range counts {
		if count > majorityCount {
			majority, majorityCount = action, count
			continue
		}
		if count == majorityCount && firstSeen[action] < firstSeen[majority] {
			majority = action
		}
	}

	return ConsensusMetrics{
		MajorityAction: majority,
		Agreement:      float64(majorityCount) / float64(len(ordered)),
		AvgConfidence:  confidenceSum / float64(len(ordered)),
	}
}

// EscalationPolicy decides whether phase 2 is warranted. Pure computation
// over the phase-1 outcome and market data.
type EscalationPolicy struct {
	cfg    config.TwoPhaseConfig
	logger zerolog.Logger
}

// NewEscalationPolicy constructs the policy from the resolved settings.
func NewEscalationPolicy(cfg config.TwoPhaseConfig, logger zerolog.Logger) EscalationPolicy {
	return EscalationPolicy{cfg: cfg, logger: logger.With().Str("component", "escalation_policy").Logger()}
}

// Evaluate checks the three independent triggers: low average confidence, low
// agreement, and high position stakes. Any one of them is sufficient.
func (p EscalationPolicy) Evaluate(phase1 Phase1Outcome, market MarketData) EscalationDecision {
	decision := EscalationDecision{
		Triggers:           make([]Trigger, 0, 3),
		AvgConfidenceRatio: phase1.Metrics.AvgConfidence / 100,
		PositionValue:      positionValue(market),
	}

	if decision.AvgConfidenceRatio < p.cfg.Phase1ConfidenceThreshold {
		decision.Triggers = append(decision.Triggers, TriggerLowConfidence)
	}
	if phase1.Metrics.Agreement < p.cfg.Phase1AgreementThreshold {
		decision.Triggers = append(decision.Triggers, TriggerLowAgreement)
	}
	if p.cfg.RequirePremiumForHighStakes {
		threshold := decimal.NewFromFloat(p.cfg.HighStakesPositionThreshold)
		if decision.PositionValue.GreaterThanOrEqual(threshold) {
			decision.Triggers = append(decision.Triggers, TriggerHighStakes)
		}
	}

	decision.ShouldEscalate = len(decision.Triggers) > 0

	p.logger.Debug().
		Bool("escalate", decision.ShouldEscalate).
		Float64("avg_confidence_ratio", decision.AvgConfidenceRatio).
		Float64("agreement", phase1.Metrics.Agreement).
		Str("position_value", decision.PositionValue.String()).
		Msg("escalation evaluated")

	return decision
}

// positionValue resolves the stakes of the current position: an explicit
// position_value field wins, else |position_size × (close or price)|, else 0.
func positionValue(market MarketData) decimal.Decimal {
	if v, ok := toDecimal(market["position_value"]); ok {
		return v.Abs()
	}

	size, ok := toDecimal(market["position_size"])
	if !ok {
		return decimal.Zero
	}
	price, ok := toDecimal(market["close"])
	if !ok {
		price, ok = toDecimal(market["price"])
	}
	if !ok {
		return decimal.Zero
	}
	return size.Mul(price).Abs()
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch value := v.(type) {
	case decimal.Decimal:
		return value, true
	case float64:
		return decimal.NewFromFloat(value), true
	case float32:
		return decimal.NewFromFloat32(value), true
	case int:
		return decimal.NewFromInt(int64(value)), true
	case int64:
		return decimal.NewFromInt(value), true
	case string:
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, false
		}
		return parsed, true
	default:
		return decimal.Zero, false
	}
}
