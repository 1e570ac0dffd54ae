package storage

import (
	"time"
)

// PremiumCallRecord is one entry in the append-only premium-call log. The
// daily budget count is derived from this log, date-partitioned on CallDate.
type PremiumCallRecord struct {
	ID                     int64
	CalledAt               time.Time
	CallDate               time.Time
	Asset                  string
	AssetType              string
	Phase                  string
	PrimaryProvider        string
	FallbackOrTiebreakUsed bool
	EscalationReason       string
	CreatedAt              time.Time
}

// DailySpend aggregates premium calls for one calendar day (UTC).
type DailySpend struct {
	Day   time.Time
	Calls int64
}
