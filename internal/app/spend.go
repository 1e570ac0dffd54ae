package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Spend prints today's premium usage against the cap plus recent call records.
func (a *App) Spend(ctx context.Context, opts SpendOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show premium spend")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.PruneBefore != nil {
		if err := store.DeleteCallsBefore(ctx, *opts.PruneBefore); err != nil {
			return err
		}
		a.Logger.Info().Time("before", *opts.PruneBefore).Msg("pruned premium-call records")
	}

	today, err := store.CountCallsOn(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "today: %d/%d premium calls\n\n", today, a.Config.TwoPhase.MaxPremiumCallsPerDay)

	records, err := store.ListRecentCalls(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no premium calls recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAsset\tType\tPhase\tPrimary\tSubstitute\tReason")

	for _, rec := range records {
		substitute := ""
		if rec.FallbackOrTiebreakUsed {
			substitute = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CalledAt.UTC().Format(time.RFC3339),
			rec.Asset,
			rec.AssetType,
			rec.Phase,
			rec.PrimaryProvider,
			substitute,
			sanitizeInline(rec.EscalationReason),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
