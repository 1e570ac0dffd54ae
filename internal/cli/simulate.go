package cli

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"advisor-quorum/internal/app"
)

var (
	simulateAsset         string
	simulateAssetType     string
	simulateActions       string
	simulateConfidences   string
	simulatePremiumAction string
	simulatePremiumConf   float64
	simulateFailPrimary   bool
	simulatePositionValue float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "模拟一次两阶段聚合并输出结果 JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAsset == "" {
			return errors.New("--asset 不能为空")
		}

		actions := splitCSV(simulateActions)
		confidences, err := parseFloats(simulateConfidences)
		if err != nil {
			return err
		}

		opts := app.SimulateOptions{
			Asset:             simulateAsset,
			AssetType:         simulateAssetType,
			Actions:           actions,
			Confidences:       confidences,
			PremiumAction:     simulatePremiumAction,
			PremiumConfidence: simulatePremiumConf,
			FailPrimary:       simulateFailPrimary,
			PositionValue:     simulatePositionValue,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func parseFloats(raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("--confidences 必须为逗号分隔的数字")
		}
		out = append(out, v)
	}
	return out, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "", "资产名称，例如 BTC")
	simulateCmd.Flags().StringVar(&simulateAssetType, "asset-type", "crypto", "资产类别 (crypto/forex/stock)")
	simulateCmd.Flags().StringVar(&simulateActions, "actions", "", "免费层脚本动作，逗号分隔 (BUY/SELL/HOLD)")
	simulateCmd.Flags().StringVar(&simulateConfidences, "confidences", "", "免费层脚本置信度，逗号分隔 (0-100)")
	simulateCmd.Flags().StringVar(&simulatePremiumAction, "premium-action", "BUY", "付费层脚本动作")
	simulateCmd.Flags().Float64Var(&simulatePremiumConf, "premium-confidence", 90, "付费层脚本置信度")
	simulateCmd.Flags().BoolVar(&simulateFailPrimary, "fail-primary", false, "让 primary provider 失败以演练 fallback 路径")
	simulateCmd.Flags().Float64Var(&simulatePositionValue, "position-value", 0, "持仓价值，用于 HIGH_STAKES 触发")
}
