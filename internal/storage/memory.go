package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the premium-call log in process memory. Used when
// database.dsn is not configured and by tests; writes are mutex-serialized so
// concurrent aggregations observe read-after-write counts.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []PremiumCallRecord
}

// NewMemoryStore constructs an empty in-memory log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// InsertPremiumCall appends one record to the log.
func (m *MemoryStore) InsertPremiumCall(_ context.Context, rec PremiumCallRecord) (PremiumCallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CalledAt.IsZero() {
		rec.CalledAt = time.Now().UTC()
	}
	if rec.CallDate.IsZero() {
		rec.CallDate = rec.CalledAt.UTC().Truncate(24 * time.Hour)
	}
	rec.ID = m.nextID
	rec.CreatedAt = time.Now().UTC()
	m.nextID++
	m.records = append(m.records, rec)
	return rec, nil
}

// CountCallsOn counts log entries for one calendar day (UTC).
func (m *MemoryStore) CountCallsOn(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	callDate := day.UTC().Truncate(24 * time.Hour)
	var count int64
	for _, rec := range m.records {
		if rec.CallDate.Equal(callDate) {
			count++
		}
	}
	return count, nil
}

// ListRecentCalls lists the most recent log entries, newest first.
func (m *MemoryStore) ListRecentCalls(_ context.Context, limit int) ([]PremiumCallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]PremiumCallRecord(nil), m.records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CalledAt.After(out[j].CalledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountCallsPerDay aggregates calls per calendar day within [from, to).
func (m *MemoryStore) CountCallsPerDay(_ context.Context, from, to time.Time) ([]DailySpend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay := make(map[time.Time]int64)
	for _, rec := range m.records {
		if rec.CallDate.Before(from.UTC()) || !rec.CallDate.Before(to.UTC()) {
			continue
		}
		byDay[rec.CallDate]++
	}

	spend := make([]DailySpend, 0, len(byDay))
	for day, calls := range byDay {
		spend = append(spend, DailySpend{Day: day, Calls: calls})
	}
	sort.Slice(spend, func(i, j int) bool { return spend[i].Day.Before(spend[j].Day) })
	return spend, nil
}

// DeleteCallsBefore prunes historical log entries.
func (m *MemoryStore) DeleteCallsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := olderThan.UTC().Truncate(24 * time.Hour)
	kept := m.records[:0]
	for _, rec := range m.records {
		if !rec.CallDate.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return nil
}

var _ PremiumCallStore = (*MemoryStore)(nil)
