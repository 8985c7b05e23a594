package analytics

// SumProfit returns the exact, unrounded profit sum of a trade set.
func SumProfit(trades []TradeRecord) float64 {
	var total float64
	for _, t := range trades {
		total += t.Profit
	}
	return total
}

// Summarize computes the headline metrics for a trade set against a capital baseline.
// Every record counts regardless of date. Rounding is applied to the outputs only.
func Summarize(trades []TradeRecord, capital float64) MetricsSummary {
	total := SumProfit(trades)

	summary := MetricsSummary{
		TotalPL:       round2(total),
		TotalInvested: round2(capital),
		TotalTrades:   len(trades),
	}
	if capital > 0 {
		summary.TotalROI = round2(total / capital * 100)
	}
	return summary
}
