// Package analytics turns trade ledgers into dashboard metrics.
// Everything here is pure: no I/O, no shared state, and inputs are never mutated.
package analytics

import (
	"encoding/json"
	"math"
	"time"
)

// RawTrade is an untyped record as it arrives from a ledger file,
// a spreadsheet row or a form submission.
type RawTrade map[string]any

// Source identifies which field layout a raw record uses.
type Source string

const (
	// SourceLedger is a per-client trade ledger (date, symbol, entry, exit, profit).
	SourceLedger Source = "ledger"
	// SourceConsolidated is the admin-wide ledger that also names the client.
	SourceConsolidated Source = "consolidated"
	// SourceManual is an admin manual-entry submission.
	SourceManual Source = "manual"
)

// Trade direction
const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// DateLayout is the calendar-day format used on the wire and in storage.
const DateLayout = "2006-01-02"

// TradeRecord is one closed trade after normalization.
type TradeRecord struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Date       time.Time `json:"-"`
	RawDate    string    `json:"raw_date,omitempty"`
	Segment    string    `json:"segment"`
	TradeType  string    `json:"trade_type,omitempty"`
	Quantity   float64   `json:"quantity"`
	EntryPrice *float64  `json:"entry_price,omitempty"`
	ExitPrice  *float64  `json:"exit_price,omitempty"`
	Profit     float64   `json:"profit"`
	ClientName string    `json:"client_name,omitempty"`
}

// HasDate reports whether the record carries a usable calendar date.
func (t TradeRecord) HasDate() bool {
	return !t.Date.IsZero()
}

// DateString returns the trade date as YYYY-MM-DD, or the raw text when unparseable.
func (t TradeRecord) DateString() string {
	if t.HasDate() {
		return t.Date.Format(DateLayout)
	}
	return t.RawDate
}

// MarshalJSON adds the calendar date as "date".
func (t TradeRecord) MarshalJSON() ([]byte, error) {
	type plain TradeRecord
	return json.Marshal(struct {
		Date string `json:"date"`
		plain
	}{t.DateString(), plain(t)})
}

// MetricsSummary is the headline block of the dashboard.
type MetricsSummary struct {
	TotalPL       float64 `json:"total_pl"`
	TotalROI      float64 `json:"total_roi"`
	TotalInvested float64 `json:"total_invested"`
	TotalTrades   int     `json:"total_trades"`
}

// MonthlyBucket aggregates the trades of one calendar month.
type MonthlyBucket struct {
	Label     string     `json:"label"`
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	ProfitSum float64    `json:"profit_sum"`
	ROI       float64    `json:"-"`
	HasROI    bool       `json:"-"`
	Trades    int        `json:"trades"`
}

// MarshalJSON writes "roi" for buckets of an ROI series, zero included,
// and leaves it out of plain P/L buckets.
func (b MonthlyBucket) MarshalJSON() ([]byte, error) {
	type plain MonthlyBucket
	if !b.HasROI {
		return json.Marshal(plain(b))
	}
	return json.Marshal(struct {
		plain
		ROI float64 `json:"roi"`
	}{plain(b), b.ROI})
}

// PerformanceStats holds win/loss and dispersion figures for a trade set.
type PerformanceStats struct {
	WinCount        int     `json:"win_count"`
	LossCount       int     `json:"loss_count"`
	BreakEvenCount  int     `json:"break_even_count"`
	WinRate         float64 `json:"win_rate"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	AvgProfit       float64 `json:"avg_profit"`
	MonthlyMean     float64 `json:"monthly_mean"`
	MonthlyStdDev   float64 `json:"monthly_std_dev"`
	BestMonthLabel  string  `json:"best_month,omitempty"`
	WorstMonthLabel string  `json:"worst_month,omitempty"`
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round2 is the exported form of the display rounding used across the dashboard.
func Round2(v float64) float64 {
	return round2(v)
}
