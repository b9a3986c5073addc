package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show runs one fetch-evaluate cycle and prints the resulting verdicts. The
// store is in-memory, so inspection always polls live data.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	st := a.newStore()
	svc := a.newService(nil, st)

	tick := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	if err := svc.ProcessCycle(ctx, tick); err != nil {
		return err
	}

	verdicts := svc.Verdicts()
	if len(verdicts) == 0 {
		fmt.Fprintln(os.Stdout, "no samples collected; check provider configuration")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tPrice\tDeviation%\tSupply\tHolders\tAnomalous\tObserved (UTC)")

	for _, verdict := range verdicts {
		supply := "-"
		holders := "-"
		if sample, ok := st.Latest(verdict.Asset); ok {
			if sample.Supply != nil {
				supply = formatDecimal(*sample.Supply, 0)
			}
			if sample.Holders != nil {
				holders = fmt.Sprintf("%d", *sample.Holders)
			}
		}

		fmt.Fprintf(
			writer,
			"%s\t$%s\t%s\t%s\t%s\t%t\t%s\n",
			verdict.Asset,
			formatDecimal(verdict.Price, 4),
			formatDecimal(verdict.DeviationPct, 3),
			supply,
			holders,
			verdict.Anomalous,
			verdict.ObservedAt.Format(time.RFC3339),
		)
	}

	writer.Flush()

	if opts.History > 0 {
		return a.showHistory(ctx, opts.History)
	}
	return nil
}

// showHistory prints the most recent historical price points per asset,
// flagged against the hard peg threshold.
func (a *App) showHistory(ctx context.Context, points int) error {
	cg := a.newCoingecko()
	an := a.newAnalyzer(a.newStore())

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\nAsset\tTime (UTC)\tPrice\tAnomalous")

	for _, asset := range a.Config.Assets {
		history, err := cg.FetchHistory(ctx, asset.CoingeckoID, 1)
		if err != nil {
			a.Logger.Warn().Err(err).Str("asset", asset.Symbol).Msg("history fetch failed")
			continue
		}
		if len(history) > points {
			history = history[len(history)-points:]
		}

		prices := make([]decimal.Decimal, len(history))
		for i, point := range history {
			prices[i] = point.Price
		}
		flags := an.EvaluateSeries(asset.Symbol, prices)

		for i, point := range history {
			fmt.Fprintf(
				writer,
				"%s\t%s\t$%s\t%t\n",
				asset.Symbol,
				point.Time.Format(time.RFC3339),
				formatDecimal(point.Price, 4),
				flags[i],
			)
		}
	}

	writer.Flush()
	return nil
}
