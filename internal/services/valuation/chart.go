package valuation

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rjcarver/benchfolio/internal/models"
)

// benchmarkPalette colors benchmark series in a stable order.
var benchmarkPalette = []string{
	"f59e0b", // amber-500
	"10b981", // emerald-500
	"8b5cf6", // violet-500
	"ef4444", // red-500
}

// RenderSeriesChart renders a PNG line chart of the daily series: the real
// portfolio value (blue solid) against each benchmark shadow (dashed).
// Returns raw PNG bytes.
func RenderSeriesChart(series *models.DailySeries) ([]byte, error) {
	if len(series.Points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(series.Points))
	}

	xValues := make([]time.Time, len(series.Points))
	portfolioY := make([]float64, len(series.Points))
	benchY := make(map[string][]float64, len(series.Benchmarks))
	for _, bench := range series.Benchmarks {
		benchY[bench] = make([]float64, len(series.Points))
	}

	for i, p := range series.Points {
		xValues[i] = p.Date
		portfolioY[i] = p.PortfolioValue.InexactFloat64()
		for _, bench := range series.Benchmarks {
			benchY[bench][i] = p.BenchmarkValues[bench].InexactFloat64()
		}
	}

	chartSeries := []chart.Series{
		chart.TimeSeries{
			Name: "Portfolio",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: portfolioY,
		},
	}

	for i, bench := range series.Benchmarks {
		color := benchmarkPalette[i%len(benchmarkPalette)]
		chartSeries = append(chartSeries, chart.TimeSeries{
			Name: bench,
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex(color),
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues,
			YValues: benchY[bench],
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s vs benchmarks", series.PortfolioName),
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		Series: chartSeries,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
