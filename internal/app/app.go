package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"advisor-quorum/internal/aggregator"
	"advisor-quorum/internal/alerting"
	"advisor-quorum/internal/budget"
	"advisor-quorum/internal/config"
	"advisor-quorum/internal/metrics"
	"advisor-quorum/internal/provider"
	"advisor-quorum/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// NewOrchestrator wires a full aggregation pipeline around the supplied
// provider query callable. When database.dsn is not configured the premium
// budget falls back to an in-memory, per-process log.
func (a *App) NewOrchestrator(ctx context.Context, query provider.QueryFunc) (*aggregator.Orchestrator, func(), error) {
	registry, err := provider.NewRegistry(a.Config.Providers)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var callStore storage.PremiumCallStore
	if store != nil {
		callStore = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; premium budget tracked in memory only")
		callStore = storage.NewMemoryStore()
	}

	guard := budget.NewGuard(callStore, a.Config.Database.AdvisoryLockKey, a.Logger)

	opts := aggregator.Options{
		Notifier: a.newNotifier(),
		Channels: a.Config.Alerting.Channels,
		Metrics:  metrics.New(),
	}

	orch := aggregator.New(a.Config.TwoPhase, registry, guard, query, opts, a.Logger)
	if closeStore == nil {
		closeStore = func() {}
	}
	return orch, closeStore, nil
}

// SpendOptions configure the spend command.
type SpendOptions struct {
	Limit       int
	PruneBefore *time.Time
}

// ExportOptions hold parameters for exporting the daily premium spend.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
