package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pegwatch/internal/config"
	"pegwatch/internal/fetcher"
)

// Export renders an asset's historical prices as CSV and/or PNG. History
// comes from the market-data provider rather than the in-memory store, so
// exports work without a long-running service.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	asset, ok := a.Config.AssetBySymbol(opts.Asset)
	if !ok {
		return fmt.Errorf("unknown asset %q", opts.Asset)
	}

	days := opts.Days
	if days <= 0 {
		days = a.Config.Export.HistoryDays
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	cg := a.newCoingecko()
	history, err := cg.FetchHistory(ctx, asset.CoingeckoID, days)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		a.Logger.Info().Str("asset", asset.Symbol).Msg("no history points for export window")
		return nil
	}

	downsampled := downsampleHistory(history, opts.MaxPoints)

	prices := make([]decimal.Decimal, len(downsampled))
	for i, point := range downsampled {
		prices[i] = point.Price
	}
	an := a.newAnalyzer(a.newStore())
	flags := an.EvaluateSeries(asset.Symbol, prices)

	a.Logger.Info().
		Str("asset", asset.Symbol).
		Int("total", len(history)).
		Int("exported", len(downsampled)).
		Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, asset, downsampled, flags); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, asset.Symbol, asset.Peg, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleHistory(points []fetcher.HistoryPoint, max int) []fetcher.HistoryPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]fetcher.HistoryPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, asset config.Asset, points []fetcher.HistoryPoint, flags []bool) error {
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

	header := []string{"ts", "asset", "price_usd", "deviation_pct", "anomalous"}
	if err := writer.Write(header); err != nil {
		return err
	}

	peg := decimal.NewFromFloat(asset.Peg)
	for i, point := range points {
		deviation := decimal.Zero
		if !peg.IsZero() {
			deviation = point.Price.Sub(peg).Div(peg).Mul(decimal.NewFromInt(100))
		}
		record := []string{
			point.Time.Format(time.RFC3339),
			asset.Symbol,
			point.Price.String(),
			deviation.StringFixed(4),
			fmt.Sprintf("%t", flags[i]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path, symbol string, peg float64, points []fetcher.HistoryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	price := make([]float64, len(points))
	pegLine := make([]float64, len(points))
	deviation := make([]float64, len(points))

	for i, point := range points {
		x[i] = point.Time
		price[i] = point.Price.InexactFloat64()
		pegLine[i] = peg
		if peg != 0 {
			deviation[i] = (price[i] - peg) / peg * 100
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("%s Price (USD)", symbol),
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Deviation (%)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Peg",
				XValues: x,
				YValues: pegLine,
				Style: chart.Style{
					StrokeColor:     drawing.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
			chart.TimeSeries{
				Name:    "Deviation %",
				XValues: x,
				YValues: deviation,
				YAxis:   chart.YAxisSecondary,
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

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
