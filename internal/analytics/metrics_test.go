package analytics

import (
	"math"
	"testing"
	"time"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func trade(date string, profit float64) TradeRecord {
	return TradeRecord{Date: day(date), RawDate: date, Profit: profit}
}

// ============================================================================
// TEST: Headline metrics
// ============================================================================

func TestSummarize_ThreeTradeScenario(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-01-05", 100),
		trade("2025-02-10", -50),
		trade("2025-02-20", 25),
	}

	got := Summarize(trades, 2000)

	if got.TotalPL != 75.00 {
		t.Errorf("Expected TotalPL 75.00, got %.2f", got.TotalPL)
	}
	if got.TotalROI != 3.75 {
		t.Errorf("Expected TotalROI 3.75, got %.2f", got.TotalROI)
	}
	if got.TotalInvested != 2000 {
		t.Errorf("Expected TotalInvested 2000, got %.2f", got.TotalInvested)
	}
	if got.TotalTrades != 3 {
		t.Errorf("Expected 3 trades, got %d", got.TotalTrades)
	}
}

func TestSummarize_EmptySetZeroCapital(t *testing.T) {
	got := Summarize(nil, 0)

	if got != (MetricsSummary{}) {
		t.Errorf("Expected zero summary, got %+v", got)
	}
	if b := MonthlyPL(nil); len(b) != 0 {
		t.Errorf("Expected no buckets, got %d", len(b))
	}
}

func TestSummarize_NonPositiveCapitalGivesZeroROI(t *testing.T) {
	trades := []TradeRecord{trade("2025-03-01", 500), trade("2025-03-02", -120)}

	for _, capital := range []float64{0, -1, -2000} {
		got := Summarize(trades, capital)
		if got.TotalROI != 0 {
			t.Errorf("capital %.0f: expected ROI 0, got %.2f", capital, got.TotalROI)
		}
		if math.IsNaN(got.TotalROI) || math.IsInf(got.TotalROI, 0) {
			t.Errorf("capital %.0f: ROI must be finite", capital)
		}
		if got.TotalPL != 380 {
			t.Errorf("capital %.0f: expected PL 380, got %.2f", capital, got.TotalPL)
		}
	}
}

func TestSummarize_RoundsOnlyAtBoundary(t *testing.T) {
	// 0.004 * 3 rounds to 0.01 only when summed before rounding.
	trades := []TradeRecord{
		{Profit: 0.004},
		{Profit: 0.004},
		{Profit: 0.004},
	}

	got := Summarize(trades, 1)
	if got.TotalPL != 0.01 {
		t.Errorf("Expected TotalPL 0.01, got %v", got.TotalPL)
	}
	if !floatEquals(SumProfit(trades), 0.012, 1e-12) {
		t.Errorf("Expected raw sum 0.012, got %v", SumProfit(trades))
	}
	if got.TotalROI != 1.2 {
		t.Errorf("Expected TotalROI 1.2, got %v", got.TotalROI)
	}
}

func TestSummarize_CountsUndatedRecords(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-01-01", 10),
		{RawDate: "not a date", Profit: 5},
	}

	got := Summarize(trades, 100)
	if got.TotalTrades != 2 {
		t.Errorf("Expected 2 trades, got %d", got.TotalTrades)
	}
	if got.TotalPL != 15 {
		t.Errorf("Expected PL 15, got %.2f", got.TotalPL)
	}
}

func TestSummarize_Idempotent(t *testing.T) {
	trades := []TradeRecord{trade("2024-06-01", 12.345), trade("2024-07-01", -3.21)}

	first := Summarize(trades, 1500)
	second := Summarize(trades, 1500)
	if first != second {
		t.Errorf("Expected identical output, got %+v and %+v", first, second)
	}
	if trades[0].Profit != 12.345 {
		t.Error("input must not be modified")
	}
}

func TestSummarize_InvestedRounded(t *testing.T) {
	got := Summarize(nil, 1234.5678)
	if got.TotalInvested != 1234.57 {
		t.Errorf("Expected 1234.57, got %v", got.TotalInvested)
	}
}

// ============================================================================
// TEST: Missing profit flows through as zero
// ============================================================================

func TestSummarize_MissingProfitNormalizedToZero(t *testing.T) {
	raws := []RawTrade{
		{"date": "2025-01-05", "profit": 100.0},
		{"date": "2025-01-06", "symbol": "NIFTY"},
	}

	trades := Normalize(SourceLedger, raws)
	if trades[1].Profit != 0 {
		t.Fatalf("Expected profit 0, got %v", trades[1].Profit)
	}

	got := Summarize(trades, 2000)
	if got.TotalTrades != 2 {
		t.Errorf("Expected 2 trades, got %d", got.TotalTrades)
	}
	if got.TotalPL != 100 {
		t.Errorf("Expected PL 100, got %.2f", got.TotalPL)
	}
}
