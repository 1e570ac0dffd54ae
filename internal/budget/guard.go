package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"advisor-quorum/internal/storage"
)

// Guard enforces the daily cap on premium-provider invocations. The count's
// source of truth is the date-partitioned premium-call log; the guard itself
// only serializes access to it. Concurrent aggregations share one Guard, so
// the mutex keeps check and record from interleaving in-process, and the
// store's advisory lock (when available) covers concurrent processes.
type Guard struct {
	mu      sync.Mutex
	store   storage.PremiumCallStore
	locker  storage.AdvisoryLocker
	lockKey int64
	logger  zerolog.Logger
	now     func() time.Time
}

// NewGuard constructs a budget guard over a premium-call store.
func NewGuard(store storage.PremiumCallStore, lockKey int64, logger zerolog.Logger) *Guard {
	g := &Guard{
		store:   store,
		lockKey: lockKey,
		logger:  logger.With().Str("component", "budget_guard").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if l, ok := store.(storage.AdvisoryLocker); ok {
		g.locker = l
	}
	return g
}

// WithClock overrides the guard's clock. Test hook.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// HasBudget reports whether another premium call fits under maxPerDay today.
// A non-positive cap disables premium calls entirely.
func (g *Guard) HasBudget(ctx context.Context, maxPerDay int) (bool, error) {
	if maxPerDay <= 0 {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	unlock, err := g.acquireLock(ctx)
	if err != nil {
		return false, err
	}
	if unlock != nil {
		defer unlock()
	}

	count, err := g.store.CountCallsOn(ctx, g.now())
	if err != nil {
		return false, fmt.Errorf("count premium calls: %w", err)
	}

	remaining := int64(maxPerDay) - count
	if remaining <= 0 {
		g.logger.Warn().
			Int64("used", count).
			Int("cap", maxPerDay).
			Msg("daily premium budget exhausted")
		return false, nil
	}

	g.logger.Debug().
		Int64("used", count).
		Int64("remaining", remaining).
		Msg("premium budget available")
	return true, nil
}

// RecordCall appends one entry to the log for a phase-2 attempt that actually
// executed. Exactly one entry per premium invocation.
func (g *Guard) RecordCall(ctx context.Context, rec storage.PremiumCallRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec.CalledAt.IsZero() {
		rec.CalledAt = g.now()
	}

	stored, err := g.store.InsertPremiumCall(ctx, rec)
	if err != nil {
		return fmt.Errorf("record premium call: %w", err)
	}

	g.logger.Info().
		Int64("id", stored.ID).
		Str("asset", stored.Asset).
		Str("provider", stored.PrimaryProvider).
		Bool("fallback_or_tiebreak", stored.FallbackOrTiebreakUsed).
		Str("reason", stored.EscalationReason).
		Msg("premium call recorded")
	return nil
}

func (g *Guard) acquireLock(ctx context.Context) (func(), error) {
	if g.locker == nil || g.lockKey == 0 {
		return nil, nil
	}
	unlock, acquired, err := g.locker.TryAdvisoryLock(ctx, g.lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		// Another process is mid-count; fall back to the plain read rather
		// than blocking the aggregation.
		return nil, nil
	}
	return unlock, nil
}
