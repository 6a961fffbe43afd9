package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rjcarver/benchfolio/internal/app"
	"github.com/rjcarver/benchfolio/internal/models"
	"github.com/rjcarver/benchfolio/internal/services/valuation"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to TOML config file (default: $BENCHFOLIO_CONFIG, then benchfolio.toml)")
		importPath    = flag.String("import", "", "import a portfolio from a JSON file")
		portfolioName = flag.String("portfolio", "", "portfolio to value")
		benchmarks    = flag.String("benchmarks", "", "comma-separated benchmark tickers (default from config)")
		asOfStr       = flag.String("asof", "", "valuation end date YYYY-MM-DD (default today)")
		outPath       = flag.String("out", "", "write the daily series as JSON to this file (default stdout)")
		chartPath     = flag.String("chart", "", "render the series as a PNG chart to this file")
		holdings      = flag.Bool("holdings", false, "print a holdings snapshot instead of the daily series")
		interval      = flag.String("interval", "daily", "series interval: daily, weekly, or monthly")
		list          = flag.Bool("list", false, "list stored portfolios and exit")
	)
	flag.Parse()

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()

	if *list {
		names, err := a.Storage.PortfolioStorage().ListPortfolios(ctx)
		if err != nil {
			fatal(a, err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *importPath != "" {
		imported, err := app.ImportPortfolioFromFile(ctx, a.Storage.PortfolioStorage(), a.Logger, *importPath)
		if err != nil {
			fatal(a, err)
		}
		fmt.Printf("Imported portfolio %q (%d transactions)\n", imported.Name, len(imported.Transactions))
		if *portfolioName == "" {
			return
		}
	}

	if *portfolioName == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -import, -portfolio, or -list")
		flag.Usage()
		os.Exit(2)
	}

	portfolio, err := a.Storage.PortfolioStorage().GetPortfolio(ctx, *portfolioName)
	if err != nil {
		fatal(a, err)
	}

	asOf, err := parseAsOf(*asOfStr)
	if err != nil {
		fatal(a, err)
	}

	benchmarkList := a.Config.Benchmarks
	if *benchmarks != "" {
		benchmarkList = splitTickers(*benchmarks)
	}

	if *holdings {
		snapshots, err := a.Valuation.HoldingsAsOf(ctx, portfolio, asOf)
		if err != nil {
			fatal(a, err)
		}
		printHoldings(snapshots)
		return
	}

	series, err := a.Valuation.ComputeSeries(ctx, portfolio, benchmarkList, asOf)
	if err != nil {
		fatal(a, err)
	}

	switch strings.ToLower(*interval) {
	case "daily", "":
	case "weekly":
		series.Points = valuation.DownsampleToWeekly(series.Points)
	case "monthly":
		series.Points = valuation.DownsampleToMonthly(series.Points)
	default:
		fatal(a, fmt.Errorf("unknown interval %q", *interval))
	}

	if *chartPath != "" {
		png, err := valuation.RenderSeriesChart(series)
		if err != nil {
			fatal(a, err)
		}
		if err := os.WriteFile(*chartPath, png, 0o644); err != nil {
			fatal(a, err)
		}
		a.Logger.Info().Str("path", *chartPath).Msg("Chart written")
	}

	if err := writeSeries(series, *outPath); err != nil {
		fatal(a, err)
	}

	for _, warning := range series.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	asOf, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -asof date %q: %w", s, err)
	}
	return asOf, nil
}

func splitTickers(s string) []string {
	var tickers []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.ToUpper(strings.TrimSpace(part)); t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

func writeSeries(series *models.DailySeries, path string) error {
	data, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printHoldings(snapshots []valuation.HoldingSnapshot) {
	fmt.Printf("%-8s %14s %14s %8s\n", "TICKER", "SHARES", "VALUE", "WEIGHT")
	for _, h := range snapshots {
		fmt.Printf("%-8s %14s %14s %7s%%\n",
			h.Ticker, h.Shares.String(), h.Value.StringFixed(2), h.WeightPct.StringFixed(2))
	}
}

func fatal(a *app.App, err error) {
	a.Logger.Error().Err(err).Msg("Command failed")
	a.Close()
	os.Exit(1)
}
