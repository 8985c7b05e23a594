// Command analyze_trades prints dashboard metrics for a trade ledger file
// without a database. It reads a JSON array or an .xlsx workbook.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"trade-dashboard/internal/admin"
	"trade-dashboard/internal/analytics"

	"github.com/joho/godotenv"
)

type clientStats struct {
	Name   string
	Trades int
	Wins   int
	Losses int
	PL     float64
}

func main() {
	// Baseline defaults come from the same variables the server reads
	godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns its exit code: 2 for usage errors,
// 1 for failures reading input or writing charts.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze_trades", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "Ledger file (.json or .xlsx)")
	source := fs.String("source", string(analytics.SourceLedger), "Field layout: ledger, consolidated or manual")
	capital := fs.Float64("capital", envFloat("DASHBOARD_ADMIN_CAPITAL", 2000), "Capital for the total ROI")
	baseline := fs.Float64("baseline", envFloat("DASHBOARD_ROI_BASELINE", 2000), "Capital each monthly ROI bar is measured against")
	client := fs.String("client", "", "Only trades whose client name contains this text")
	start := fs.String("start", "", "First day to include (YYYY-MM-DD)")
	end := fs.String("end", "", "Last day to include (YYYY-MM-DD)")
	chartDir := fs.String("charts", "", "Write pl.png and roi.png into this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		fs.Usage()
		return 2
	}

	src := analytics.Source(*source)
	switch src {
	case analytics.SourceLedger, analytics.SourceConsolidated, analytics.SourceManual:
	default:
		fmt.Fprintf(stderr, "Error: unknown source %q\n", *source)
		return 2
	}

	rng, err := parseRange(*start, *end)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	rows, err := readLedger(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", *file, err)
		return 1
	}

	trades := analytics.Normalize(src, rows)
	result := analytics.Filter{Range: rng, ClientName: *client}.Apply(trades, time.Now())

	summary := analytics.Summarize(trades, *capital)
	stats := analytics.Stats(trades)
	pl := analytics.MonthlyPL(trades)
	roi := analytics.MonthlyROI(trades, *baseline)

	rule := strings.Repeat("=", 80)

	fmt.Fprintln(stdout, rule)
	fmt.Fprintf(stdout, "TRADE LEDGER ANALYSIS: %s\n", filepath.Base(*file))
	fmt.Fprintln(stdout, rule)

	undated := 0
	for _, t := range trades {
		if !t.HasDate() {
			undated++
		}
	}

	fmt.Fprintf(stdout, "\nRecords:        %d (%d without a usable date)\n", summary.TotalTrades, undated)
	fmt.Fprintf(stdout, "Total P/L:      %+.2f\n", summary.TotalPL)
	fmt.Fprintf(stdout, "Total invested: %.2f\n", summary.TotalInvested)
	fmt.Fprintf(stdout, "Total ROI:      %.2f%%\n", summary.TotalROI)

	fmt.Fprintln(stdout, "\n"+rule)
	fmt.Fprintln(stdout, "MONTHLY PERFORMANCE")
	fmt.Fprintln(stdout, rule)

	if len(pl) == 0 {
		fmt.Fprintln(stdout, "   No dated trades")
	} else {
		fmt.Fprintln(stdout, "┌──────────┬────────┬──────────────┬──────────┐")
		fmt.Fprintln(stdout, "│ Month    │ Trades │ P/L          │ ROI      │")
		fmt.Fprintln(stdout, "├──────────┼────────┼──────────────┼──────────┤")
		for i, b := range pl {
			fmt.Fprintf(stdout, "│ %-8s │ %6d │ %+12.2f │ %7.2f%% │\n", b.Label, b.Trades, b.ProfitSum, roi[i].ROI)
		}
		fmt.Fprintln(stdout, "└──────────┴────────┴──────────────┴──────────┘")
	}

	fmt.Fprintln(stdout, "\n"+rule)
	fmt.Fprintln(stdout, "WIN / LOSS")
	fmt.Fprintln(stdout, rule)

	fmt.Fprintf(stdout, "   Wins: %d | Losses: %d | Break-even: %d | Win rate: %.1f%%\n",
		stats.WinCount, stats.LossCount, stats.BreakEvenCount, stats.WinRate)
	fmt.Fprintf(stdout, "   Largest win: %+.2f | Largest loss: %+.2f | Avg per trade: %+.2f\n",
		stats.LargestWin, stats.LargestLoss, stats.AvgProfit)
	if stats.BestMonthLabel != "" {
		fmt.Fprintf(stdout, "   Monthly mean: %+.2f | Std dev: %.2f | Best: %s | Worst: %s\n",
			stats.MonthlyMean, stats.MonthlyStdDev, stats.BestMonthLabel, stats.WorstMonthLabel)
	}

	if src == analytics.SourceConsolidated {
		printClients(stdout, trades, rule)
	}

	fmt.Fprintln(stdout, "\n"+rule)
	fmt.Fprintln(stdout, "FILTERED HISTORY")
	fmt.Fprintln(stdout, rule)

	fmt.Fprintf(stdout, "   %d records, subtotal %+.2f\n", result.Count, result.Subtotal)
	for _, t := range result.Trades {
		fmt.Fprintf(stdout, "   %-10s %-14s %-4s %10.2f %+12.2f %s\n",
			t.DateString(), truncate(t.Segment, 14), t.TradeType, t.Quantity, t.Profit, t.ClientName)
	}

	if *chartDir != "" {
		if err := writeCharts(stdout, *chartDir, pl, roi); err != nil {
			fmt.Fprintf(stderr, "Error writing charts: %v\n", err)
			return 1
		}
	}
	return 0
}

func printClients(w io.Writer, trades []analytics.TradeRecord, rule string) {
	byClient := make(map[string]*clientStats)
	for _, t := range trades {
		name := t.ClientName
		if name == "" {
			name = "(unnamed)"
		}
		s, ok := byClient[name]
		if !ok {
			s = &clientStats{Name: name}
			byClient[name] = s
		}
		s.Trades++
		s.PL += t.Profit
		if t.Profit > 0 {
			s.Wins++
		} else if t.Profit < 0 {
			s.Losses++
		}
	}

	sorted := make([]*clientStats, 0, len(byClient))
	for _, s := range byClient {
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PL > sorted[j].PL
	})

	fmt.Fprintln(w, "\n" + rule)
	fmt.Fprintln(w, "PERFORMANCE BY CLIENT")
	fmt.Fprintln(w, rule)

	fmt.Fprintln(w, "┌──────────────────────┬────────┬─────────┬─────────┬──────────────┐")
	fmt.Fprintln(w, "│ Client               │ Trades │ Winners │ Losers  │ P/L          │")
	fmt.Fprintln(w, "├──────────────────────┼────────┼─────────┼─────────┼──────────────┤")
	for _, s := range sorted {
		fmt.Fprintf(w, "│ %-20s │ %6d │ %7d │ %7d │ %+12.2f │\n",
			truncate(s.Name, 20), s.Trades, s.Wins, s.Losses, analytics.Round2(s.PL))
	}
	fmt.Fprintln(w, "└──────────────────────┴────────┴─────────┴─────────┴──────────────┘")
}

func readLedger(path string) ([]analytics.RawTrade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return admin.ReadSheet(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var rows []analytics.RawTrade
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("expected a JSON array of trade objects: %w", err)
	}
	return rows, nil
}

func parseRange(start, end string) (analytics.DateRange, error) {
	var rng analytics.DateRange
	if start != "" {
		d, err := time.Parse(analytics.DateLayout, start)
		if err != nil {
			return rng, fmt.Errorf("invalid --start %q", start)
		}
		rng.Start = &d
	}
	if end != "" {
		d, err := time.Parse(analytics.DateLayout, end)
		if err != nil {
			return rng, fmt.Errorf("invalid --end %q", end)
		}
		rng.End = &d
	}
	return rng, nil
}

func writeCharts(w io.Writer, dir string, pl, roi []analytics.MonthlyBucket) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	charts := []struct {
		name   string
		render func([]analytics.MonthlyBucket) ([]byte, error)
		data   []analytics.MonthlyBucket
	}{
		{"pl.png", analytics.RenderPLChart, pl},
		{"roi.png", analytics.RenderROIChart, roi},
	}
	for _, c := range charts {
		png, err := c.render(c.data)
		if errors.Is(err, analytics.ErrNoChartData) {
			fmt.Fprintf(w, "\nSkipped %s: no dated trades\n", c.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		out := filepath.Join(dir, c.name)
		if err := os.WriteFile(out, png, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nWrote %s\n", out)
	}
	return nil
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
