package provider

import (
	"fmt"

	"advisor-quorum/internal/asset"
	"advisor-quorum/internal/config"
)

// Registry is the static classification of provider identifiers into tiers,
// plus the asset-type routing to premium primaries. It is immutable after
// construction; tiers are configuration, never runtime state.
type Registry struct {
	free       []string
	primaries  map[asset.Type]string
	tiebreaker string
	tiers      map[string]Tier
}

// NewRegistry builds a registry from provider configuration. The tiebreaker
// must be distinct from both primaries so the fallback path never re-queries a
// provider that already failed.
func NewRegistry(cfg config.ProvidersConfig) (*Registry, error) {
	if len(cfg.Free) == 0 {
		return nil, fmt.Errorf("provider registry requires at least one free-tier provider")
	}
	if cfg.CryptoPrimary == "" || cfg.MarketPrimary == "" || cfg.Tiebreaker == "" {
		return nil, fmt.Errorf("provider registry requires crypto_primary, market_primary, and tiebreaker")
	}
	if cfg.Tiebreaker == cfg.CryptoPrimary || cfg.Tiebreaker == cfg.MarketPrimary {
		return nil, fmt.Errorf("tiebreaker %s must be distinct from both primaries", cfg.Tiebreaker)
	}

	r := &Registry{
		free: append([]string(nil), cfg.Free...),
		primaries: map[asset.Type]string{
			asset.Crypto: cfg.CryptoPrimary,
			asset.Forex:  cfg.MarketPrimary,
			asset.Stock:  cfg.MarketPrimary,
		},
		tiebreaker: cfg.Tiebreaker,
		tiers:      make(map[string]Tier, len(cfg.Free)+3),
	}

	for _, id := range cfg.Free {
		r.tiers[id] = TierFree
	}
	r.tiers[cfg.CryptoPrimary] = TierPremium
	r.tiers[cfg.MarketPrimary] = TierPremium
	r.tiers[cfg.Tiebreaker] = TierPremium

	return r, nil
}

// FreeProviders returns the free-tier provider ids in declaration order.
func (r *Registry) FreeProviders() []string {
	return append([]string(nil), r.free...)
}

// TierOf classifies a provider identifier.
func (r *Registry) TierOf(id string) Tier {
	if tier, ok := r.tiers[id]; ok {
		return tier
	}
	return TierUnknown
}

// PrimaryFor resolves the primary premium provider for a canonical asset type.
// Total over the canonical enum: validated input can never miss.
func (r *Registry) PrimaryFor(assetType asset.Type) string {
	if id, ok := r.primaries[assetType]; ok {
		return id
	}
	// Non-canonical input means normalization was skipped upstream.
	return r.primaries[asset.Crypto]
}

// Fallback returns the designated fallback/tiebreak provider id.
func (r *Registry) Fallback() string {
	return r.tiebreaker
}
