package analytics

import (
	"fmt"
	"time"

	"trade-journal/internal/models"
)

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date    string                 `json:"date"`
	Day     int                    `json:"day"`
	InMonth bool                   `json:"inMonth"`
	Bucket  *models.AggregatedData `json:"bucket,omitempty"`
}

// CalendarWeek is one Monday-start row with its totals over in-month days.
type CalendarWeek struct {
	Start  string        `json:"start"`
	Days   []CalendarDay `json:"days"`
	PnL    float64       `json:"pnl"`
	Trades int           `json:"trades"`
}

// MonthStats totals a calendar month.
type MonthStats struct {
	TotalPnL        float64 `json:"totalPnl"`
	TotalTrades     int     `json:"totalTrades"`
	PositiveTrades  int     `json:"positiveTrades"`
	NegativeTrades  int     `json:"negativeTrades"`
	BreakEvenTrades int     `json:"breakEvenTrades"`
}

// Calendar is a month laid out in Monday-start weeks.
type Calendar struct {
	Year  int            `json:"year"`
	Month time.Month     `json:"month"`
	Weeks []CalendarWeek `json:"weeks"`
	Stats MonthStats     `json:"stats"`
}

// Calendar lays out one month using the daily buckets of agg. Leading and
// trailing days from adjacent months fill out the first and last week but
// do not count toward any totals.
func (e *Engine) Calendar(agg Aggregation, year int, month time.Month) (Calendar, error) {
	if month < time.January || month > time.December {
		return Calendar{}, fmt.Errorf("invalid month %d", month)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, e.loc)
	last := first.AddDate(0, 1, -1)
	cal := Calendar{Year: year, Month: month}

	for ws := WeekStart(first); !ws.After(last); ws = ws.AddDate(0, 0, 7) {
		week := CalendarWeek{Start: ws.Format(DayLayout), Days: make([]CalendarDay, 0, 7)}

		for i := 0; i < 7; i++ {
			day := ws.AddDate(0, 0, i)
			key := day.Format(DayLayout)
			cell := CalendarDay{
				Date:    key,
				Day:     day.Day(),
				InMonth: day.Month() == month,
			}

			if cell.InMonth {
				if b, ok := agg.Daily[key]; ok {
					b := b
					cell.Bucket = &b
					week.PnL += b.TotalPnL
					week.Trades += b.TotalTrades

					cal.Stats.TotalPnL += b.TotalPnL
					cal.Stats.TotalTrades += b.TotalTrades
					cal.Stats.PositiveTrades += b.ProfitTrades
					cal.Stats.NegativeTrades += b.LossTrades
					cal.Stats.BreakEvenTrades += b.TotalTrades - b.ProfitTrades - b.LossTrades
				}
			}
			week.Days = append(week.Days, cell)
		}

		cal.Weeks = append(cal.Weeks, week)
	}

	return cal, nil
}
