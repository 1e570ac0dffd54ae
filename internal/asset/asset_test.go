package asset

import (
	"testing"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestNormalizeCanonical(t *testing.T) {
	for _, raw := range []string{"crypto", "forex", "stock", " Crypto ", "FOREX"} {
		got, err := Normalize(raw, noopLogger())
		if err != nil {
			t.Fatalf("canonical input %q should not error: %v", raw, err)
		}
		if !Valid(got) {
			t.Fatalf("normalize(%q) returned non-canonical %q", raw, got)
		}
	}
}

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]Type{
		"cryptocurrency": Crypto,
		"fx":             Forex,
		"currency":       Forex,
		"Currency_Pair":  Forex,
		"equities":       Stock,
		"shares":         Stock,
	}
	for raw, want := range cases {
		got, err := Normalize(raw, noopLogger())
		if err != nil {
			t.Fatalf("alias %q errored: %v", raw, err)
		}
		if got != want {
			t.Fatalf("normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeDefaultsToCrypto(t *testing.T) {
	for _, raw := range []any{nil, "bond", 42, []string{"crypto"}, ""} {
		got, err := Normalize(raw, noopLogger())
		if err != nil {
			t.Fatalf("malformed input %#v should not error: %v", raw, err)
		}
		if got != Crypto {
			t.Fatalf("normalize(%#v) = %q, want crypto", raw, got)
		}
	}
}
