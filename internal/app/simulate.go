package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"advisor-quorum/internal/aggregator"
	"advisor-quorum/internal/provider"
)

// SimulateOptions 描述一次模拟聚合的脚本化输入。
type SimulateOptions struct {
	Asset             string
	AssetType         string
	Actions           []string
	Confidences       []float64
	PremiumAction     string
	PremiumConfidence float64
	FailPrimary       bool
	PositionValue     float64
}

// Simulate 以脚本化的 provider 响应跑一遍完整的两阶段聚合流程，
// 并将 AggregationResult 输出为 JSON。premium 调用照常记账。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Actions) == 0 {
		return errors.New("--actions 不能为空")
	}
	if len(opts.Actions) != len(opts.Confidences) {
		return errors.New("--actions 与 --confidences 数量必须一致")
	}

	free := a.Config.Providers.Free
	if len(opts.Actions) > len(free) {
		return fmt.Errorf("脚本包含 %d 个响应，但只配置了 %d 个免费层 provider", len(opts.Actions), len(free))
	}

	script := make(map[string]provider.Response, len(opts.Actions))
	for i, action := range opts.Actions {
		script[free[i]] = provider.Response{
			Action:     provider.Action(action),
			Confidence: opts.Confidences[i],
		}
	}

	premiumAction := opts.PremiumAction
	if premiumAction == "" {
		premiumAction = string(provider.Hold)
	}

	query := func(_ context.Context, id, _ string) (provider.Response, error) {
		if resp, ok := script[id]; ok {
			return resp, nil
		}
		if a.Config.Providers.Tiebreaker == id {
			return provider.Response{Action: provider.Action(premiumAction), Confidence: opts.PremiumConfidence}, nil
		}
		if id == a.Config.Providers.CryptoPrimary || id == a.Config.Providers.MarketPrimary {
			if opts.FailPrimary {
				return provider.Response{}, errors.New("simulated primary failure")
			}
			return provider.Response{Action: provider.Action(premiumAction), Confidence: opts.PremiumConfidence}, nil
		}
		return provider.Response{}, errors.New("simulated provider outage")
	}

	orch, closer, err := a.NewOrchestrator(ctx, query)
	if err != nil {
		return err
	}
	defer closer()

	market := aggregator.MarketData{"type": opts.AssetType}
	if opts.PositionValue > 0 {
		market["position_value"] = opts.PositionValue
	}

	result, err := orch.Aggregate(ctx, opts.Asset, market, "simulated prompt")
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
