package provider

import (
	"testing"

	"advisor-quorum/internal/asset"
	"advisor-quorum/internal/config"
)

func testProvidersConfig() config.ProvidersConfig {
	return config.ProvidersConfig{
		Free:          []string{"ollama-llama3", "ollama-mistral", "ollama-qwen"},
		CryptoPrimary: "claude-cli",
		MarketPrimary: "gemini-cli",
		Tiebreaker:    "codex-cli",
	}
}

func TestRegistryTiers(t *testing.T) {
	r, err := NewRegistry(testProvidersConfig())
	if err != nil {
		t.Fatalf("registry construction failed: %v", err)
	}

	if tier := r.TierOf("ollama-mistral"); tier != TierFree {
		t.Fatalf("ollama-mistral should be free, got %s", tier)
	}
	if tier := r.TierOf("claude-cli"); tier != TierPremium {
		t.Fatalf("claude-cli should be premium, got %s", tier)
	}
	if tier := r.TierOf("codex-cli"); tier != TierPremium {
		t.Fatalf("codex-cli should be premium, got %s", tier)
	}
	if tier := r.TierOf("no-such-provider"); tier != TierUnknown {
		t.Fatalf("unregistered id should be unknown, got %s", tier)
	}
}

func TestRegistryRouting(t *testing.T) {
	r, err := NewRegistry(testProvidersConfig())
	if err != nil {
		t.Fatalf("registry construction failed: %v", err)
	}

	if got := r.PrimaryFor(asset.Crypto); got != "claude-cli" {
		t.Fatalf("crypto primary = %s", got)
	}
	if got := r.PrimaryFor(asset.Forex); got != "gemini-cli" {
		t.Fatalf("forex primary = %s", got)
	}
	if got := r.PrimaryFor(asset.Stock); got != "gemini-cli" {
		t.Fatalf("stock primary = %s", got)
	}

	fb := r.Fallback()
	if fb == r.PrimaryFor(asset.Crypto) || fb == r.PrimaryFor(asset.Stock) {
		t.Fatalf("fallback %s must be distinct from primaries", fb)
	}
}

func TestRegistryRejectsSharedTiebreaker(t *testing.T) {
	cfg := testProvidersConfig()
	cfg.Tiebreaker = cfg.CryptoPrimary
	if _, err := NewRegistry(cfg); err == nil {
		t.Fatal("tiebreaker 与 primary 相同时应报错")
	}
}
