package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func filterFixture() []TradeRecord {
	return []TradeRecord{
		{Date: day("2025-01-05"), Profit: 100, ClientName: "Asha Rao"},
		{Date: day("2025-02-10"), Profit: -50, ClientName: "Vikram Shah"},
		{Date: day("2025-02-20"), Profit: 25, ClientName: "asha mehta"},
		{RawDate: "bad", Profit: 8, ClientName: "Asha Rao"},
	}
}

func TestFilter_UnboundedAllMatchesTotal(t *testing.T) {
	trades := filterFixture()

	got := Filter{DefaultView: ViewAll}.Apply(trades, time.Now())

	assert.Equal(t, len(trades), got.Count)
	assert.Equal(t, Summarize(trades, 0).TotalPL, got.Subtotal)
}

func TestFilter_InclusiveBounds(t *testing.T) {
	trades := filterFixture()
	now := day("2025-06-01")

	tests := []struct {
		name     string
		rng      DateRange
		count    int
		subtotal float64
	}{
		{"exact single day", DateRange{Start: ptr(day("2025-02-10")), End: ptr(day("2025-02-10"))}, 1, -50},
		{"both ends inclusive", DateRange{Start: ptr(day("2025-01-05")), End: ptr(day("2025-02-20"))}, 3, 75},
		{"open end", DateRange{Start: ptr(day("2025-02-01"))}, 2, -25},
		{"open start", DateRange{End: ptr(day("2025-01-31"))}, 1, 100},
		{"no trades in range", DateRange{Start: ptr(day("2024-01-01")), End: ptr(day("2024-12-31"))}, 0, 0},
		{"time of day ignored", DateRange{
			Start: ptr(time.Date(2025, 2, 20, 23, 59, 0, 0, time.UTC)),
			End:   ptr(time.Date(2025, 2, 20, 0, 1, 0, 0, time.UTC)),
		}, 1, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter{Range: tt.rng}.Apply(trades, now)
			assert.Equal(t, tt.count, got.Count)
			assert.Equal(t, tt.subtotal, got.Subtotal)
			assert.NotNil(t, got.Trades)
		})
	}
}

func TestFilter_UndatedExcludedWhenBounded(t *testing.T) {
	got := Filter{Range: DateRange{Start: ptr(day("2000-01-01"))}}.Apply(filterFixture(), time.Now())
	for _, tr := range got.Trades {
		assert.True(t, tr.HasDate())
	}
	assert.Equal(t, 3, got.Count)
}

func TestFilter_ClientNameCaseInsensitiveSubstring(t *testing.T) {
	got := Filter{ClientName: "  ASHA "}.Apply(filterFixture(), time.Now())

	require.Equal(t, 3, got.Count)
	assert.Equal(t, "Asha Rao", got.Trades[0].ClientName)
	assert.Equal(t, "asha mehta", got.Trades[1].ClientName)
	assert.Equal(t, 133.0, got.Subtotal)
}

func TestFilter_PreservesOrder(t *testing.T) {
	trades := []TradeRecord{
		{Date: day("2025-03-01"), Profit: 3},
		{Date: day("2025-01-01"), Profit: 1},
		{Date: day("2025-02-01"), Profit: 2},
	}

	got := Filter{}.Apply(trades, time.Now())
	require.Len(t, got.Trades, 3)
	assert.Equal(t, 3.0, got.Trades[0].Profit)
	assert.Equal(t, 1.0, got.Trades[1].Profit)
	assert.Equal(t, 2.0, got.Trades[2].Profit)
}

func TestFilter_TodayViews(t *testing.T) {
	now := time.Date(2025, 2, 10, 16, 45, 0, 0, time.UTC)
	trades := filterFixture()

	t.Run("default view today", func(t *testing.T) {
		got := Filter{DefaultView: ViewToday}.Apply(trades, now)
		assert.Equal(t, 1, got.Count)
		assert.Equal(t, -50.0, got.Subtotal)
	})

	t.Run("explicit range wins over today default", func(t *testing.T) {
		got := Filter{DefaultView: ViewToday, Range: DateRange{Start: ptr(day("2025-01-01"))}}.Apply(trades, now)
		assert.Equal(t, 3, got.Count)
	})

	t.Run("today quick filter overrides range", func(t *testing.T) {
		got := Filter{Today: true, Range: DateRange{Start: ptr(day("2025-01-01"))}}.Apply(trades, now)
		assert.Equal(t, 1, got.Count)
	})
}

func TestFilter_MonthViews(t *testing.T) {
	now := time.Date(2025, 2, 10, 16, 45, 0, 0, time.UTC)
	trades := append(filterFixture(), TradeRecord{Date: day("2025-03-01"), Profit: 7})

	t.Run("month quick filter keeps the current calendar month", func(t *testing.T) {
		got := Filter{Month: true}.Apply(trades, now)
		require.Equal(t, 2, got.Count)
		assert.Equal(t, -50.0, got.Trades[0].Profit)
		assert.Equal(t, 25.0, got.Trades[1].Profit)
		assert.Equal(t, -25.0, got.Subtotal)
	})

	t.Run("default view month", func(t *testing.T) {
		got := Filter{DefaultView: ViewMonth}.Apply(trades, now)
		assert.Equal(t, 2, got.Count)
	})

	t.Run("month quick filter overrides range and today default", func(t *testing.T) {
		got := Filter{Month: true, DefaultView: ViewToday, Range: DateRange{End: ptr(day("2025-01-31"))}}.Apply(trades, now)
		assert.Equal(t, 2, got.Count)
	})

	t.Run("today wins over month", func(t *testing.T) {
		got := Filter{Today: true, Month: true}.Apply(trades, now)
		assert.Equal(t, 1, got.Count)
	})

	t.Run("last day of a short month is included", func(t *testing.T) {
		end := time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)
		got := Filter{Month: true}.Apply(append(trades, TradeRecord{Date: day("2025-02-28"), Profit: 1}), end)
		assert.Equal(t, 3, got.Count)
	})
}

func TestParseDefaultView(t *testing.T) {
	v, err := ParseDefaultView("TODAY")
	require.NoError(t, err)
	assert.Equal(t, ViewToday, v)

	v, err = ParseDefaultView("")
	require.NoError(t, err)
	assert.Equal(t, ViewAll, v)

	v, err = ParseDefaultView("month")
	require.NoError(t, err)
	assert.Equal(t, ViewMonth, v)

	_, err = ParseDefaultView("week")
	assert.Error(t, err)
}
