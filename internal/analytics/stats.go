package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Stats computes win/loss figures over trades and the dispersion of their monthly P/L.
// Break-even trades count toward neither wins nor losses.
func Stats(trades []TradeRecord) PerformanceStats {
	var s PerformanceStats
	if len(trades) == 0 {
		return s
	}

	for _, t := range trades {
		switch {
		case t.Profit > 0:
			s.WinCount++
			if t.Profit > s.LargestWin {
				s.LargestWin = t.Profit
			}
		case t.Profit < 0:
			s.LossCount++
			if t.Profit < s.LargestLoss {
				s.LargestLoss = t.Profit
			}
		default:
			s.BreakEvenCount++
		}
	}

	decided := s.WinCount + s.LossCount
	if decided > 0 {
		s.WinRate = round2(float64(s.WinCount) / float64(decided) * 100)
	}
	s.AvgProfit = round2(SumProfit(trades) / float64(len(trades)))
	s.LargestWin = round2(s.LargestWin)
	s.LargestLoss = round2(s.LargestLoss)

	months := MonthlyPL(trades)
	if len(months) == 0 {
		return s
	}

	sums := make([]float64, len(months))
	best, worst := 0, 0
	for i, m := range months {
		sums[i] = m.ProfitSum
		if m.ProfitSum > months[best].ProfitSum {
			best = i
		}
		if m.ProfitSum < months[worst].ProfitSum {
			worst = i
		}
	}
	s.MonthlyMean = round2(stat.Mean(sums, nil))
	if len(sums) > 1 {
		if sd := stat.StdDev(sums, nil); !math.IsNaN(sd) {
			s.MonthlyStdDev = round2(sd)
		}
	}
	s.BestMonthLabel = months[best].Label
	s.WorstMonthLabel = months[worst].Label
	return s
}
