package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"advisor-quorum/internal/provider"
)

type scripted struct {
	resp provider.Response
	err  error
}

// scriptedQuery serves canned responses and counts invocations per provider.
func scriptedQuery(script map[string]scripted) (provider.QueryFunc, func(id string) int) {
	var mu sync.Mutex
	calls := make(map[string]int)

	query := func(_ context.Context, id, _ string) (provider.Response, error) {
		mu.Lock()
		calls[id]++
		mu.Unlock()

		entry, ok := script[id]
		if !ok {
			return provider.Response{}, errors.New("unscripted provider " + id)
		}
		return entry.resp, entry.err
	}

	count := func(id string) int {
		mu.Lock()
		defer mu.Unlock()
		return calls[id]
	}
	return query, count
}

func freeIDs() []string {
	return []string{"f1", "f2", "f3", "f4", "f5", "f6"}
}

func newPhaseOne() *PhaseOne {
	return NewPhaseOne(provider.NewValidator(zerolog.Nop()), nil, zerolog.Nop())
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	query, count := scriptedQuery(map[string]scripted{
		"f1": {resp: provider.Response{Action: provider.Buy, Confidence: 80}},
		"f2": {err: errors.New("subprocess crashed")},
		"f3": {resp: provider.Response{Action: "MOON", Confidence: 90}}, // invalid schema
		"f4": {resp: provider.Response{Action: provider.Sell, Confidence: 70}},
		"f5": {resp: provider.Response{Action: provider.Buy, Confidence: 60}},
		"f6": {resp: provider.Response{Action: provider.Hold, Confidence: 50}},
	})

	outcome, err := newPhaseOne().Broadcast(context.Background(), "prompt", freeIDs(), query, 3)
	if err != nil {
		t.Fatalf("quorum of 4 valid should pass: %v", err)
	}

	if outcome.SucceededCount != 4 {
		t.Fatalf("succeeded = %d, want 4", outcome.SucceededCount)
	}
	if len(outcome.FailedProviders) != 2 {
		t.Fatalf("failed = %v, want 2 entries", outcome.FailedProviders)
	}
	if outcome.FailedProviders[0] != "f2" || outcome.FailedProviders[1] != "f3" {
		t.Fatalf("failed providers should follow input order, got %v", outcome.FailedProviders)
	}
	if !outcome.QuorumMet {
		t.Fatal("quorum_met should be true")
	}
	for _, id := range freeIDs() {
		if count(id) != 1 {
			t.Fatalf("provider %s queried %d times, want exactly 1", id, count(id))
		}
	}
	if resp, ok := outcome.Decisions["f4"]; !ok || resp.ProviderID != "f4" {
		t.Fatalf("decision for f4 should carry its provider id, got %+v", resp)
	}
}

func TestBroadcastQuorumFailurePartition(t *testing.T) {
	// Scenario: only 2 of 6 free providers succeed against a quorum of 3.
	query, _ := scriptedQuery(map[string]scripted{
		"f1": {resp: provider.Response{Action: provider.Buy, Confidence: 80}},
		"f2": {err: errors.New("timeout")},
		"f3": {err: errors.New("timeout")},
		"f4": {resp: provider.Response{Action: provider.Buy, Confidence: 75}},
		"f5": {err: errors.New("timeout")},
		"f6": {resp: provider.Response{Action: provider.Buy, Confidence: -5}}, // invalid
	})

	outcome, err := newPhaseOne().Broadcast(context.Background(), "prompt", freeIDs(), query, 3)
	if err == nil {
		t.Fatal("quorum of 3 with 2 valid responses should fail")
	}

	var quorumErr *QuorumError
	if !errors.As(err, &quorumErr) {
		t.Fatalf("error should be a *QuorumError, got %T", err)
	}
	if len(quorumErr.Succeeded) != 2 || len(quorumErr.Failed) != 4 {
		t.Fatalf("partition = %d succeeded / %d failed, want 2/4", len(quorumErr.Succeeded), len(quorumErr.Failed))
	}

	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, quorumErr.Succeeded...), quorumErr.Failed...) {
		if seen[id] {
			t.Fatalf("provider %s appears in both partitions", id)
		}
		seen[id] = true
	}
	for _, id := range freeIDs() {
		if !seen[id] {
			t.Fatalf("provider %s missing from the partition", id)
		}
	}
	if outcome.QuorumMet {
		t.Fatal("quorum_met should be false")
	}
}

func TestBroadcastEmptyProviderList(t *testing.T) {
	query, _ := scriptedQuery(nil)
	_, err := newPhaseOne().Broadcast(context.Background(), "prompt", nil, query, 1)

	var quorumErr *QuorumError
	if !errors.As(err, &quorumErr) {
		t.Fatalf("empty provider list should fail quorum, got %v", err)
	}
}
