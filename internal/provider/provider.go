package provider

import "context"

// Action is a canonical trading recommendation.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Tier classifies a provider identifier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierUnknown Tier = "unknown"
)

// Response is a single provider recommendation. It is validated at the
// aggregation boundary and never mutated afterwards.
type Response struct {
	ProviderID string  `json:"provider_id"`
	Action     Action  `json:"action" validate:"required,oneof=BUY SELL HOLD"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// QueryFunc is the sole integration point to the provider layer. It may block
// for network or subprocess latency and may return any error; timeout policy
// belongs to the implementation, not to the aggregator.
type QueryFunc func(ctx context.Context, providerID, prompt string) (Response, error)
