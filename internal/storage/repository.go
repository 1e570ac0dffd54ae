package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertPremiumCallSQL = `INSERT INTO premium_calls (
        called_at,
        call_date,
        asset,
        asset_type,
        phase,
        primary_provider,
        fallback_or_tiebreak_used,
        escalation_reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	countCallsOnSQL = `SELECT COUNT(*) FROM premium_calls WHERE call_date = $1;`

	listRecentCallsSQL = `SELECT
        id,
        called_at,
        call_date,
        asset,
        asset_type,
        phase,
        primary_provider,
        fallback_or_tiebreak_used,
        escalation_reason,
        created_at
    FROM premium_calls
    ORDER BY called_at DESC
    LIMIT $1;`

	countCallsPerDaySQL = `SELECT
        call_date,
        COUNT(*)
    FROM premium_calls
    WHERE call_date >= $1
      AND call_date < $2
    GROUP BY call_date
    ORDER BY call_date;`

	deleteCallsBeforeSQL = `DELETE FROM premium_calls WHERE call_date < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PremiumCallStore defines operations over the premium-call log.
type PremiumCallStore interface {
	InsertPremiumCall(ctx context.Context, rec PremiumCallRecord) (PremiumCallRecord, error)
	CountCallsOn(ctx context.Context, day time.Time) (int64, error)
	ListRecentCalls(ctx context.Context, limit int) ([]PremiumCallRecord, error)
	CountCallsPerDay(ctx context.Context, from, to time.Time) ([]DailySpend, error)
	DeleteCallsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers for cross-process serialization.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed premium-call log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPremiumCall appends one record to the premium-call log.
func (s *Store) InsertPremiumCall(ctx context.Context, rec PremiumCallRecord) (PremiumCallRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PremiumCallRecord{}, err
	}

	calledAt := rec.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	callDate := rec.CallDate
	if callDate.IsZero() {
		callDate = calledAt.UTC().Truncate(24 * time.Hour)
	}

	row := pool.QueryRow(ctx, insertPremiumCallSQL,
		calledAt,
		callDate,
		rec.Asset,
		rec.AssetType,
		rec.Phase,
		rec.PrimaryProvider,
		rec.FallbackOrTiebreakUsed,
		rec.EscalationReason,
	)

	stored := rec
	stored.CalledAt = calledAt
	stored.CallDate = callDate
	if scanErr := row.Scan(&stored.ID, &stored.CreatedAt); scanErr != nil {
		return PremiumCallRecord{}, fmt.Errorf("insert premium call: %w", scanErr)
	}
	return stored, nil
}

// CountCallsOn counts log entries for one calendar day (UTC).
func (s *Store) CountCallsOn(ctx context.Context, day time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	callDate := day.UTC().Truncate(24 * time.Hour)
	if scanErr := pool.QueryRow(ctx, countCallsOnSQL, callDate).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count premium calls: %w", scanErr)
	}
	return count, nil
}

// ListRecentCalls lists the most recent log entries, newest first.
func (s *Store) ListRecentCalls(ctx context.Context, limit int) ([]PremiumCallRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentCallsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent premium calls: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PremiumCallRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPremiumCall(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountCallsPerDay aggregates calls per calendar day within [from, to).
func (s *Store) CountCallsPerDay(ctx context.Context, from, to time.Time) ([]DailySpend, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countCallsPerDaySQL, from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("count premium calls per day: %w", queryErr)
	}
	defer rows.Close()

	spend := make([]DailySpend, 0)
	for rows.Next() {
		var entry DailySpend
		if err := rows.Scan(&entry.Day, &entry.Calls); err != nil {
			return nil, err
		}
		spend = append(spend, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return spend, nil
}

// DeleteCallsBefore prunes historical log entries.
func (s *Store) DeleteCallsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	callDate := olderThan.UTC().Truncate(24 * time.Hour)
	if _, execErr := pool.Exec(ctx, deleteCallsBeforeSQL, callDate); execErr != nil {
		return fmt.Errorf("delete premium calls before: %w", execErr)
	}
	return nil
}

func scanPremiumCall(rows pgx.Rows) (PremiumCallRecord, error) {
	var rec PremiumCallRecord
	if err := rows.Scan(
		&rec.ID,
		&rec.CalledAt,
		&rec.CallDate,
		&rec.Asset,
		&rec.AssetType,
		&rec.Phase,
		&rec.PrimaryProvider,
		&rec.FallbackOrTiebreakUsed,
		&rec.EscalationReason,
		&rec.CreatedAt,
	); err != nil {
		return PremiumCallRecord{}, err
	}
	return rec, nil
}

var _ PremiumCallStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
