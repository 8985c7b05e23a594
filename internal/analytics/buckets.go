package analytics

import (
	"sort"
	"time"
)

type monthKey struct {
	year  int
	month time.Month
}

func (k monthKey) before(o monthKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

type monthAgg struct {
	sum    float64
	trades int
}

// groupByMonth sums profit per calendar month. Records without a usable date are skipped.
func groupByMonth(trades []TradeRecord) ([]monthKey, map[monthKey]*monthAgg) {
	groups := make(map[monthKey]*monthAgg)
	for _, t := range trades {
		if !t.HasDate() {
			continue
		}
		k := monthKey{year: t.Date.Year(), month: t.Date.Month()}
		agg, ok := groups[k]
		if !ok {
			agg = &monthAgg{}
			groups[k] = agg
		}
		agg.sum += t.Profit
		agg.trades++
	}

	keys := make([]monthKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })
	return keys, groups
}

// MonthLabel formats a month as "Jan 2025".
func MonthLabel(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}

// MonthlyPL buckets profit by calendar month in ascending (year, month) order.
func MonthlyPL(trades []TradeRecord) []MonthlyBucket {
	keys, groups := groupByMonth(trades)
	buckets := make([]MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		agg := groups[k]
		buckets = append(buckets, MonthlyBucket{
			Label:     MonthLabel(k.year, k.month),
			Year:      k.year,
			Month:     k.month,
			ProfitSum: round2(agg.sum),
			Trades:    agg.trades,
		})
	}
	return buckets
}

// MonthlyROI is MonthlyPL with each month's profit expressed as a percentage of baseline.
// A baseline of zero or less yields ROI 0 for every month.
func MonthlyROI(trades []TradeRecord, baseline float64) []MonthlyBucket {
	keys, groups := groupByMonth(trades)
	buckets := make([]MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		agg := groups[k]
		b := MonthlyBucket{
			Label:     MonthLabel(k.year, k.month),
			Year:      k.year,
			Month:     k.month,
			ProfitSum: round2(agg.sum),
			HasROI:    true,
			Trades:    agg.trades,
		}
		if baseline > 0 {
			b.ROI = round2(agg.sum / baseline * 100)
		}
		buckets = append(buckets, b)
	}
	return buckets
}
