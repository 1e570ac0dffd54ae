package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"advisor-quorum/internal/storage"
)

// Export renders the daily premium spend as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	spend, err := store.CountCallsPerDay(ctx, from, to)
	if err != nil {
		return err
	}
	if len(spend) == 0 {
		a.Logger.Info().Msg("no premium calls found for export window")
		return nil
	}

	downsampled := downsampleSpend(spend, opts.MaxPoints)
	a.Logger.Info().Int("total", len(spend)).Int("exported", len(downsampled)).Msg("exporting premium spend")

	if opts.CSVPath != "" {
		if err := writeSpendCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSpendPNG(opts.PNGPath, downsampled, a.Config.TwoPhase.MaxPremiumCallsPerDay); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSpend(spend []storage.DailySpend, max int) []storage.DailySpend {
	if max <= 0 || len(spend) <= max {
		return spend
	}

	result := make([]storage.DailySpend, 0, max)
	step := float64(len(spend)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(spend) {
			idx = len(spend) - 1
		}
		result = append(result, spend[idx])
	}
	return result
}

func writeSpendCSV(path string, spend []storage.DailySpend) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "premium_calls"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range spend {
		record := []string{
			entry.Day.Format("2006-01-02"),
			strconv.FormatInt(entry.Calls, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSpendPNG(path string, spend []storage.DailySpend, dailyCap int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(spend))
	calls := make([]float64, len(spend))
	capLine := make([]float64, len(spend))

	for i, entry := range spend {
		x[i] = entry.Day
		calls[i] = float64(entry.Calls)
		capLine[i] = float64(dailyCap)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Premium calls / day",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Calls",
				XValues: x,
				YValues: calls,
			},
			chart.TimeSeries{
				Name:    "Daily cap",
				XValues: x,
				YValues: capLine,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
