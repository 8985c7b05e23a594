package analytics

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoChartData is returned when there is nothing to plot; callers show a placeholder instead.
var ErrNoChartData = errors.New("no chart data")

const (
	chartWidth  = 900
	chartHeight = 400
)

// paddedRange returns a y-range covering values and zero with a 10% margin.
func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func moneyFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return ""
}

func percentFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f%%", f)
	}
	return ""
}

// RenderPLChart draws monthly P/L as a line. A single month is drawn as a bar.
func RenderPLChart(buckets []MonthlyBucket) ([]byte, error) {
	if len(buckets) == 0 {
		return nil, ErrNoChartData
	}
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.ProfitSum
	}
	if len(buckets) == 1 {
		return renderBars("P/L Over Time", buckets, values, moneyFormatter)
	}

	xValues := make([]float64, len(buckets))
	ticks := make([]chart.Tick, len(buckets))
	for i, b := range buckets {
		xValues[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: b.Label}
	}

	series := chart.ContinuousSeries{
		Name: "P/L",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
			DotColor:    drawing.ColorFromHex("2563eb"),
			DotWidth:    3,
		},
		XValues: xValues,
		YValues: values,
	}

	graph := chart.Chart{
		Title:  "P/L Over Time",
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{Ticks: ticks},
		YAxis: chart.YAxis{
			Range:          paddedRange(values),
			ValueFormatter: moneyFormatter,
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderROIChart draws monthly ROI percentages as bars.
func RenderROIChart(buckets []MonthlyBucket) ([]byte, error) {
	if len(buckets) == 0 {
		return nil, ErrNoChartData
	}
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.ROI
	}
	return renderBars("Monthly ROI (%)", buckets, values, percentFormatter)
}

func renderBars(title string, buckets []MonthlyBucket, values []float64, format chart.ValueFormatter) ([]byte, error) {
	bars := make([]chart.Value, len(buckets))
	for i, b := range buckets {
		color := drawing.ColorFromHex("16a34a")
		if values[i] < 0 {
			color = drawing.ColorFromHex("dc2626")
		}
		bars[i] = chart.Value{
			Label: b.Label,
			Value: values[i],
			Style: chart.Style{FillColor: color, StrokeColor: color},
		}
	}

	graph := chart.BarChart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		BarWidth:     40,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range:          paddedRange(values),
			ValueFormatter: format,
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
