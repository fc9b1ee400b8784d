package analytics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trade-journal/internal/models"
)

func trade(id, open, closed string, side models.Side, pnl float64) models.TradeDetails {
	return models.TradeDetails{
		TradeID:   id,
		OpenDate:  open,
		CloseDate: closed,
		Symbol:    "ES",
		Side:      side,
		Entry:     100,
		Exit:      101,
		Qty:       1,
		PnL:       pnl,
	}
}

func utcEngine() *Engine {
	return NewEngine(WithLocation(time.UTC))
}

func TestDailyBucketExample(t *testing.T) {
	agg := utcEngine().Aggregate([]models.TradeDetails{
		trade("a", "2024-03-05T09:30:00Z", "2024-03-05T10:30:00Z", models.SideBuy, 120.50),
		trade("b", "2024-03-05T11:00:00Z", "2024-03-05T13:00:00Z", models.SideSell, -40.00),
	})

	b, ok := agg.Daily["2024-03-05"]
	require.True(t, ok)
	assert.Equal(t, "2024-03-05", b.Date)
	assert.Equal(t, 2, b.TotalTrades)
	assert.InDelta(t, 80.50, b.TotalPnL, 1e-9)
	assert.Equal(t, 1, b.ProfitTrades)
	assert.Equal(t, 1, b.LossTrades)
	assert.Equal(t, 120.50, b.MaxProfit)
	assert.Equal(t, -40.00, b.MaxLoss)
	assert.Equal(t, 1, b.BuyTrades)
	assert.Equal(t, 1, b.SellTrades)
	assert.InDelta(t, 3.0, b.TotalDuration, 1e-9)
	assert.InDelta(t, 40.25, b.AveragePnL, 1e-9)
	assert.InDelta(t, 1.5, b.AverageDuration, 1e-9)

	assert.Equal(t, 2, agg.Weekly["2024-03-04"].TotalTrades)
	assert.Equal(t, 2, agg.Monthly["2024-03"].TotalTrades)
	assert.Zero(t, agg.Skipped)
}

func TestBadDateIsSkipped(t *testing.T) {
	good := trade("a", "2024-03-05T09:30:00Z", "2024-03-05T10:30:00Z", models.SideBuy, 10)
	bad := trade("b", "2024-03-05T09:30:00Z", "not-a-date", models.SideBuy, 999)
	badOpen := trade("c", "yesterday", "2024-03-05T10:30:00Z", models.SideSell, -999)

	agg := utcEngine().Aggregate([]models.TradeDetails{good, bad, badOpen})

	assert.Equal(t, 2, agg.Skipped)
	for _, buckets := range []map[string]models.AggregatedData{agg.Daily, agg.Weekly, agg.Monthly} {
		require.Len(t, buckets, 1)
		for _, b := range buckets {
			assert.Equal(t, 1, b.TotalTrades)
			assert.Equal(t, 10.0, b.TotalPnL)
			assert.Equal(t, 10.0, b.MaxProfit)
		}
	}
}

func TestWeeklyBucketsStartOnMonday(t *testing.T) {
	sunday := trade("a", "2024-03-10T09:00:00Z", "2024-03-10T10:00:00Z", models.SideBuy, 5)
	monday := trade("b", "2024-03-11T09:00:00Z", "2024-03-11T10:00:00Z", models.SideBuy, 7)

	agg := utcEngine().Aggregate([]models.TradeDetails{sunday, monday})

	require.Len(t, agg.Weekly, 2)
	assert.Equal(t, 5.0, agg.Weekly["2024-03-04"].TotalPnL)
	assert.Equal(t, 7.0, agg.Weekly["2024-03-11"].TotalPnL)
	assert.Len(t, agg.Monthly, 1)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-04", "2024-03-04"}, // Monday
		{"2024-03-06", "2024-03-04"},
		{"2024-03-10", "2024-03-04"}, // Sunday
		{"2024-03-01", "2024-02-26"}, // crosses month
		{"2025-01-01", "2024-12-30"}, // crosses year
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := time.Parse(DayLayout, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, WeekStart(d.Add(15*time.Hour)).Format(DayLayout))
		})
	}
}

func TestBucketsFollowEngineLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}

	// 02:00 UTC on the 6th is still the 5th in New York
	d := trade("a", "2024-03-06T01:00:00Z", "2024-03-06T02:00:00Z", models.SideBuy, 1)

	assert.Contains(t, utcEngine().Aggregate([]models.TradeDetails{d}).Daily, "2024-03-06")
	assert.Contains(t, NewEngine(WithLocation(ny)).Aggregate([]models.TradeDetails{d}).Daily, "2024-03-05")
}

func TestDateOnlyAndZonelessDates(t *testing.T) {
	agg := utcEngine().Aggregate([]models.TradeDetails{
		trade("a", "2024-03-05", "2024-03-06", models.SideBuy, 1),
		trade("b", "2024-03-05T09:30", "2024-03-05T10:00", models.Side("SELL"), -1),
	})

	assert.Zero(t, agg.Skipped)
	assert.Equal(t, 24.0, agg.Daily["2024-03-06"].TotalDuration)
	assert.Equal(t, 1, agg.Daily["2024-03-05"].SellTrades)
}

func TestMaxProfitAndLossSeededFromFirstTrade(t *testing.T) {
	agg := utcEngine().Aggregate([]models.TradeDetails{
		trade("a", "2024-03-05T09:00:00Z", "2024-03-05T10:00:00Z", models.SideBuy, -5),
		trade("b", "2024-03-05T09:00:00Z", "2024-03-05T11:00:00Z", models.SideBuy, -2),
	})

	b := agg.Daily["2024-03-05"]
	assert.Equal(t, -2.0, b.MaxProfit)
	assert.Equal(t, -5.0, b.MaxLoss)
	assert.Equal(t, 0, b.ProfitTrades)
	assert.Equal(t, 2, b.LossTrades)
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate(nil)
	assert.NotNil(t, agg.Daily)
	assert.Empty(t, agg.Daily)
	assert.Empty(t, agg.Weekly)
	assert.Empty(t, agg.Monthly)
}

func TestParseTimeframe(t *testing.T) {
	tf, ok := ParseTimeframe("weekly")
	assert.True(t, ok)
	assert.Equal(t, Weekly, tf)

	_, ok = ParseTimeframe("hourly")
	assert.False(t, ok)

	agg := Aggregation{Daily: map[string]models.AggregatedData{"d": {}}, Monthly: map[string]models.AggregatedData{}}
	assert.Len(t, agg.Buckets(Daily), 1)
	assert.Empty(t, agg.Buckets(Monthly))
}

func TestMemoReusesResultForSameVersion(t *testing.T) {
	memo := NewMemo(utcEngine())
	loads := 0
	load := func() []models.TradeDetails {
		loads++
		return []models.TradeDetails{trade("a", "2024-03-05", "2024-03-05", models.SideBuy, 1)}
	}

	first := memo.Get(1, load)
	second := memo.Get(1, load)
	assert.Equal(t, 1, loads)
	assert.Equal(t, first, second)

	memo.Get(2, load)
	assert.Equal(t, 2, loads)

	memo.Invalidate()
	memo.Get(2, load)
	assert.Equal(t, 3, loads)
}

func tableRows() map[string]models.AggregatedData {
	return map[string]models.AggregatedData{
		"2024-03-01": {Date: "2024-03-01", TotalPnL: 50, TotalTrades: 2},
		"2024-03-02": {Date: "2024-03-02", TotalPnL: -20, TotalTrades: 1},
		"2024-03-03": {Date: "2024-03-03", TotalPnL: 150, TotalTrades: 4},
		"2024-04-01": {Date: "2024-04-01", TotalPnL: 5, TotalTrades: 1},
	}
}

func dates(rows []models.AggregatedData) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Date
	}
	return out
}

func TestTable(t *testing.T) {
	tests := []struct {
		name  string
		query TableQuery
		want  []string
		pages int
	}{
		{
			name:  "key order by default",
			query: TableQuery{},
			want:  []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-04-01"},
			pages: 1,
		},
		{
			name:  "filter by date substring",
			query: TableQuery{Filters: map[Column]string{ColDate: "2024-03"}},
			want:  []string{"2024-03-01", "2024-03-02", "2024-03-03"},
			pages: 1,
		},
		{
			name:  "filter by number text",
			query: TableQuery{Filters: map[Column]string{ColTotalPnL: "-"}},
			want:  []string{"2024-03-02"},
			pages: 1,
		},
		{
			name:  "sort descending by pnl",
			query: TableQuery{SortBy: ColTotalPnL, Desc: true},
			want:  []string{"2024-03-03", "2024-03-01", "2024-04-01", "2024-03-02"},
			pages: 1,
		},
		{
			name:  "second page",
			query: TableQuery{SortBy: ColTotalTrades, Page: 2, PageSize: 3},
			want:  []string{"2024-03-03"},
			pages: 2,
		},
		{
			name:  "page past the end is clamped",
			query: TableQuery{Page: 9, PageSize: 2},
			want:  []string{"2024-03-03", "2024-04-01"},
			pages: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Table(tableRows(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dates(page.Rows))
			assert.Equal(t, tt.pages, page.TotalPages)
		})
	}
}

func TestTableUnknownColumn(t *testing.T) {
	_, err := Table(tableRows(), TableQuery{SortBy: "nope"})
	assert.Error(t, err)

	_, err = Table(tableRows(), TableQuery{Filters: map[Column]string{"nope": "x"}})
	assert.Error(t, err)
}

func TestTableEmpty(t *testing.T) {
	page, err := Table(nil, TableQuery{PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
}

func TestSummarize(t *testing.T) {
	s := utcEngine().Summarize([]models.TradeDetails{
		trade("a", "2024-03-05T09:00:00Z", "2024-03-05T09:30:00Z", models.SideBuy, 100),
		trade("b", "2024-03-05T09:00:00Z", "2024-03-05T10:30:00Z", models.SideSell, -50),
		trade("c", "2024-03-05T09:00:00Z", "not-a-date", models.SideBuy, 0),
		trade("d", "2024-03-05T09:00:00Z", "2024-03-05T09:00:00Z", models.SideBuy, 50),
	})

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.BreakEven)
	assert.Equal(t, 0.5, s.WinRate)
	assert.Equal(t, 100.0, s.TotalPnL)
	assert.Equal(t, 150.0, s.GrossProfit)
	assert.Equal(t, -50.0, s.GrossLoss)
	assert.Equal(t, 3.0, s.ProfitFactor)
	assert.Equal(t, 75.0, s.AverageWin)
	assert.Equal(t, -50.0, s.AverageLoss)
	assert.Equal(t, 25.0, s.Expectancy)
	assert.Equal(t, 40.0, s.AverageHoldingMinutes) // (30 + 90 + 0) / 3
	assert.Equal(t, 100.0, s.LargestWin)
	assert.Equal(t, -50.0, s.LargestLoss)
	assert.InDelta(t, 64.5497, s.PnLStdDev, 1e-3)
}

func TestSummarizeNoLosses(t *testing.T) {
	s := utcEngine().Summarize([]models.TradeDetails{
		trade("a", "2024-03-05", "2024-03-05", models.SideBuy, 20),
	})
	assert.Equal(t, 20.0, s.ProfitFactor)
	assert.Zero(t, s.PnLStdDev)

	assert.Equal(t, Summary{}, utcEngine().Summarize(nil))
}

func TestCumulativePnL(t *testing.T) {
	points := utcEngine().CumulativePnL([]models.TradeDetails{
		trade("late", "2024-03-07", "2024-03-07", models.SideBuy, 5),
		trade("bad", "??", "2024-03-07", models.SideBuy, 100),
		trade("early", "2024-03-05", "2024-03-05", models.SideBuy, -2),
	})

	require.Len(t, points, 3)
	assert.Equal(t, "early", points[0].TradeID)
	assert.Equal(t, -2.0, points[0].Cumulative)
	assert.Equal(t, "late", points[1].TradeID)
	assert.Equal(t, 3.0, points[1].Cumulative)
	assert.Equal(t, "bad", points[2].TradeID)
	assert.Equal(t, 103.0, points[2].Cumulative)
	assert.Equal(t, 3, points[2].Index)
}

func counts(bs []Bracket) []int {
	out := make([]int, len(bs))
	for i, b := range bs {
		out[i] = b.Count
	}
	return out
}

func TestPnLDistribution(t *testing.T) {
	var ds []models.TradeDetails
	for i, pnl := range []float64{-500, -100, -60, -25, -0.01, 0, 24.99, 25, 99, 100, 1e6} {
		ds = append(ds, trade(string(rune('a'+i)), "2024-03-05", "2024-03-05", models.SideBuy, pnl))
	}

	got := utcEngine().PnLDistribution(ds)
	assert.Equal(t, []int{1, 2, 0, 2, 2, 1, 1, 2}, counts(got))
	assert.Equal(t, 0, PnLBrackets[0].Count)
}

func TestDurationDistribution(t *testing.T) {
	ds := []models.TradeDetails{
		trade("a", "2024-03-05T09:00:00Z", "2024-03-05T09:10:00Z", models.SideBuy, 1),
		trade("b", "2024-03-05T09:00:00Z", "2024-03-05T09:15:00Z", models.SideBuy, 1),
		trade("c", "2024-03-05T09:00:00Z", "2024-03-05T11:00:00Z", models.SideBuy, 1),
		trade("d", "2024-03-05T09:00:00Z", "2024-03-06T09:00:00Z", models.SideBuy, 1),
		trade("e", "2024-03-05T09:00:00Z", "2024-03-05T08:00:00Z", models.SideBuy, 1),
		trade("f", "2024-03-05T09:00:00Z", "bad", models.SideBuy, 1),
	}

	got := utcEngine().DurationDistribution(ds)
	assert.Equal(t, []int{1, 1, 0, 0, 1, 1}, counts(got))
}

func TestDistributionsEncodeAsJSON(t *testing.T) {
	ds := []models.TradeDetails{
		trade("a", "2024-03-05T09:00:00Z", "2024-03-05T09:10:00Z", models.SideBuy, -500),
		trade("b", "2024-03-05T09:00:00Z", "2024-03-06T09:00:00Z", models.SideSell, 1e6),
	}
	e := utcEngine()

	for name, got := range map[string][]Bracket{
		"pnl":      e.PnLDistribution(ds),
		"duration": e.DurationDistribution(ds),
	} {
		data, err := json.Marshal(got)
		require.NoError(t, err, name)

		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded), name)
		require.Len(t, decoded, len(got), name)
		first, last := decoded[0], decoded[len(decoded)-1]
		assert.Equal(t, got[0].Label, first["label"], name)
		assert.EqualValues(t, 1, last["count"], name)
		assert.NotContains(t, last, "max", name)
	}
}

func TestWinRateBySetup(t *testing.T) {
	mk := func(setup string, pnl float64) models.Trade {
		tr := models.NewTrade(trade("x", "2024-03-05", "2024-03-05", models.SideBuy, pnl))
		tr.Analysis.SetupType = setup
		return tr
	}

	got := WinRateBySetup([]models.Trade{
		mk("breakout", 10), mk("breakout", -5), mk("breakout", 3),
		mk("", 1),
		mk("reversal", -1),
	})

	assert.Equal(t, []SetupStats{
		{Setup: "Unknown", TradeCount: 1, Wins: 1, WinRate: 100},
		{Setup: "breakout", TradeCount: 3, Wins: 2, WinRate: 66.67},
		{Setup: "reversal", TradeCount: 1, Wins: 0, WinRate: 0},
	}, got)
}

func TestMonthlyOverview(t *testing.T) {
	got := utcEngine().MonthlyOverview([]models.TradeDetails{
		trade("a", "2024-01-15", "2024-01-15", models.SideBuy, 10),
		trade("b", "2024-01-20", "2024-02-01", models.SideBuy, 5),
		trade("c", "2024-12-31", "2025-01-01", models.SideBuy, -3),
		trade("d", "2023-12-31", "2024-01-01", models.SideBuy, 99),
		trade("e", "bad", "2024-01-01", models.SideBuy, 99),
	}, 2024)

	require.Len(t, got, 12)
	assert.Equal(t, MonthTotal{Month: "Jan", Number: 1, Total: 15, Trades: 2}, got[0])
	assert.Equal(t, MonthTotal{Month: "Feb", Number: 2}, got[1])
	assert.Equal(t, MonthTotal{Month: "Dec", Number: 12, Total: -3, Trades: 1}, got[11])
}

func TestCalendar(t *testing.T) {
	e := utcEngine()
	agg := e.Aggregate([]models.TradeDetails{
		trade("a", "2024-02-29", "2024-02-29", models.SideBuy, 1000), // previous month, same grid row
		trade("b", "2024-03-01", "2024-03-01", models.SideBuy, 10),
		trade("c", "2024-03-01", "2024-03-01", models.SideSell, -4),
		trade("d", "2024-03-31", "2024-03-31", models.SideBuy, 0),
	})

	cal, err := e.Calendar(agg, 2024, time.March)
	require.NoError(t, err)

	// March 2024 starts on a Friday and ends on a Sunday
	require.Len(t, cal.Weeks, 5)
	assert.Equal(t, "2024-02-26", cal.Weeks[0].Start)
	assert.Equal(t, "2024-03-25", cal.Weeks[4].Start)

	first := cal.Weeks[0]
	require.Len(t, first.Days, 7)
	assert.False(t, first.Days[3].InMonth)
	assert.Nil(t, first.Days[3].Bucket)
	assert.True(t, first.Days[4].InMonth)
	require.NotNil(t, first.Days[4].Bucket)
	assert.Equal(t, 2, first.Days[4].Bucket.TotalTrades)
	assert.Equal(t, 6.0, first.PnL)
	assert.Equal(t, 2, first.Trades)

	assert.Equal(t, MonthStats{
		TotalPnL:        6,
		TotalTrades:     3,
		PositiveTrades:  1,
		NegativeTrades:  1,
		BreakEvenTrades: 1,
	}, cal.Stats)

	_, err = e.Calendar(agg, 2024, 13)
	assert.Error(t, err)
}

func TestExportXLSX(t *testing.T) {
	agg := utcEngine().Aggregate([]models.TradeDetails{
		trade("a", "2024-03-05T09:30:00Z", "2024-03-05T10:30:00Z", models.SideBuy, 120.5),
		trade("b", "2024-03-06T09:30:00Z", "2024-03-06T10:30:00Z", models.SideSell, -40),
	})

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, agg))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Daily", "Weekly", "Monthly"}, f.GetSheetList())

	rows, err := f.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "date", rows[0][0])
	assert.Equal(t, "totalPnl", rows[0][1])
	assert.Equal(t, "2024-03-05", rows[1][0])
	assert.Equal(t, "120.5", rows[1][1])
	assert.Equal(t, "2024-03-06", rows[2][0])

	rows, err = f.GetRows("Monthly")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03", rows[1][0])
	assert.Equal(t, "2", rows[1][2])
}
