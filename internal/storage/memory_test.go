package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreDatePartition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	today := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := store.InsertPremiumCall(ctx, PremiumCallRecord{CalledAt: today, Asset: "BTC"}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if _, err := store.InsertPremiumCall(ctx, PremiumCallRecord{CalledAt: yesterday, Asset: "ETH"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	count, err := store.CountCallsOn(ctx, today)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("today count = %d, want 3", count)
	}

	count, err = store.CountCallsOn(ctx, yesterday)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("yesterday count = %d, want 1", count)
	}
}

func TestMemoryStoreRecentAndSpend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := PremiumCallRecord{CalledAt: base.Add(time.Duration(i) * 12 * time.Hour), Asset: "BTC"}
		if _, err := store.InsertPremiumCall(ctx, rec); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	recent, err := store.ListRecentCalls(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent len = %d, want 2", len(recent))
	}
	if recent[0].CalledAt.Before(recent[1].CalledAt) {
		t.Fatal("recent calls should be newest first")
	}

	spend, err := store.CountCallsPerDay(ctx, base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}
	if len(spend) != 2 {
		t.Fatalf("spend days = %d, want 2", len(spend))
	}
	if spend[0].Calls != 2 || spend[1].Calls != 2 {
		t.Fatalf("spend counts = %+v, want 2 per day", spend)
	}

	if err := store.DeleteCallsBefore(ctx, base.Add(24*time.Hour)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	count, err := store.CountCallsOn(ctx, base)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("pruned day count = %d, want 0", count)
	}
}
