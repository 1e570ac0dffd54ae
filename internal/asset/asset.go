package asset

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Type is a canonical asset category used for all premium routing.
type Type string

const (
	Crypto Type = "crypto"
	Forex  Type = "forex"
	Stock  Type = "stock"
)

// aliases maps common vendor spellings onto canonical types.
var aliases = map[string]Type{
	"cryptocurrency": Crypto,
	"coin":           Crypto,
	"token":          Crypto,
	"fx":             Forex,
	"currency":       Forex,
	"currency_pair":  Forex,
	"equity":         Stock,
	"equities":       Stock,
	"share":          Stock,
	"shares":         Stock,
	"etf":            Stock,
}

// Valid reports whether t is one of the canonical types.
func Valid(t Type) bool {
	switch t {
	case Crypto, Forex, Stock:
		return true
	}
	return false
}

// Normalize maps an arbitrary market-data `type` value onto a canonical Type.
// Unknown, missing, or non-string values fall back to Crypto: crypto escalation
// routes to a primary that accepts any symbol, so it is the safe default.
// Malformed input never returns an error; the error return fires only if the
// normalized value escapes the canonical set, which indicates a logic bug.
func Normalize(raw any, logger zerolog.Logger) (Type, error) {
	normalized := Crypto

	switch v := raw.(type) {
	case nil:
		logger.Warn().Msg("asset type missing; defaulting to crypto")
	case string:
		cleaned := strings.ToLower(strings.TrimSpace(v))
		if Valid(Type(cleaned)) {
			normalized = Type(cleaned)
			break
		}
		if alias, ok := aliases[cleaned]; ok {
			normalized = alias
			break
		}
		logger.Warn().Str("asset_type", v).Msg("unrecognized asset type; defaulting to crypto")
	case Type:
		if Valid(v) {
			normalized = v
			break
		}
		logger.Warn().Str("asset_type", string(v)).Msg("unrecognized asset type; defaulting to crypto")
	default:
		logger.Warn().Interface("asset_type", raw).Msg("asset type is not a string; defaulting to crypto")
	}

	if !Valid(normalized) {
		return "", fmt.Errorf("asset: normalization produced non-canonical type %q", normalized)
	}
	return normalized, nil
}
