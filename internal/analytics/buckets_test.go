package analytics

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMonthlyPL_ScenarioBuckets(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-01-05", 100),
		trade("2025-02-10", -50),
		trade("2025-02-20", 25),
	}

	got := MonthlyPL(trades)
	if len(got) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(got))
	}

	tests := []struct {
		label string
		sum   float64
		count int
	}{
		{"Jan 2025", 100.00, 1},
		{"Feb 2025", -25.00, 2},
	}
	for i, tt := range tests {
		if got[i].Label != tt.label {
			t.Errorf("bucket %d: expected label %s, got %s", i, tt.label, got[i].Label)
		}
		if got[i].ProfitSum != tt.sum {
			t.Errorf("bucket %d: expected sum %.2f, got %.2f", i, tt.sum, got[i].ProfitSum)
		}
		if got[i].Trades != tt.count {
			t.Errorf("bucket %d: expected %d trades, got %d", i, tt.count, got[i].Trades)
		}
	}
}

func TestMonthlyPL_CalendarOrderNotLexical(t *testing.T) {
	tests := []struct {
		name   string
		trades []TradeRecord
		want   []string
	}{
		{
			name:   "year boundary, reversed insertion",
			trades: []TradeRecord{trade("2025-01-10", 1), trade("2024-12-15", 1)},
			want:   []string{"Dec 2024", "Jan 2025"},
		},
		{
			name:   "lexical sort would put Feb 2024 after Apr 2025",
			trades: []TradeRecord{trade("2025-04-01", 1), trade("2024-02-01", 1), trade("2025-01-01", 1)},
			want:   []string{"Feb 2024", "Jan 2025", "Apr 2025"},
		},
		{
			name:   "same month different days merge",
			trades: []TradeRecord{trade("2025-03-31", 1), trade("2025-03-01", 2)},
			want:   []string{"Mar 2025"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyPL(tt.trades)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d buckets, got %d", len(tt.want), len(got))
			}
			for i, label := range tt.want {
				if got[i].Label != label {
					t.Errorf("position %d: expected %s, got %s", i, label, got[i].Label)
				}
			}
		})
	}
}

func TestMonthlyPL_SkipsUndatedRecords(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-05-02", 40),
		{RawDate: "31/31/2025", Profit: 1000},
		{Profit: 7},
	}

	got := MonthlyPL(trades)
	if len(got) != 1 {
		t.Fatalf("Expected 1 bucket, got %d", len(got))
	}
	if got[0].ProfitSum != 40 {
		t.Errorf("Expected 40, got %.2f", got[0].ProfitSum)
	}
}

func TestMonthlyPL_RoundsEachBucket(t *testing.T) {
	trades := []TradeRecord{trade("2025-01-01", 10.005), trade("2025-01-02", 0.001)}

	got := MonthlyPL(trades)
	if !floatEquals(got[0].ProfitSum, 10.01, 1e-9) {
		t.Errorf("Expected 10.01, got %v", got[0].ProfitSum)
	}
}

// ============================================================================
// TEST: ROI per month against an explicit baseline
// ============================================================================

func TestMonthlyROI_Baseline(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-01-05", 100),
		trade("2025-02-10", -50),
		trade("2025-02-20", 25),
	}

	tests := []struct {
		name     string
		baseline float64
		want     []float64
	}{
		{"baseline 2000", 2000, []float64{5, -1.25}},
		{"baseline 400", 400, []float64{25, -6.25}},
		{"zero baseline", 0, []float64{0, 0}},
		{"negative baseline", -10, []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyROI(trades, tt.baseline)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d buckets, got %d", len(tt.want), len(got))
			}
			for i, w := range tt.want {
				if !floatEquals(got[i].ROI, w, 1e-9) {
					t.Errorf("bucket %s: expected ROI %.2f, got %.2f", got[i].Label, w, got[i].ROI)
				}
			}
		})
	}
}

func TestMonthlyBucket_JSONKeepsZeroROI(t *testing.T) {
	trades := []TradeRecord{
		trade("2025-01-05", 40),
		trade("2025-01-09", -40),
		trade("2025-02-10", 20),
	}

	data, err := json.Marshal(MonthlyROI(trades, 2000))
	if err != nil {
		t.Fatalf("marshal ROI series: %v", err)
	}
	var series []map[string]any
	if err := json.Unmarshal(data, &series); err != nil {
		t.Fatalf("unmarshal ROI series: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(series))
	}
	roi, ok := series[0]["roi"]
	if !ok {
		t.Fatalf("Jan 2025 bucket lost its roi key: %s", data)
	}
	if roi != 0.0 {
		t.Errorf("Expected roi 0, got %v", roi)
	}
	if series[1]["roi"] != 1.0 {
		t.Errorf("Expected roi 1, got %v", series[1]["roi"])
	}

	data, err = json.Marshal(MonthlyPL(trades))
	if err != nil {
		t.Fatalf("marshal P/L series: %v", err)
	}
	if strings.Contains(string(data), `"roi"`) {
		t.Errorf("P/L series should not carry roi: %s", data)
	}
	if !strings.Contains(string(data), `"label":"Jan 2025"`) {
		t.Errorf("Expected bucket label in %s", data)
	}
}

func TestMonthLabel(t *testing.T) {
	if got := MonthLabel(2024, time.September); got != "Sep 2024" {
		t.Errorf("Expected Sep 2024, got %s", got)
	}
}
