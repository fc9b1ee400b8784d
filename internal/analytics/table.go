package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"trade-journal/internal/models"
)

// Column names a sortable, filterable AggregatedData field.
type Column string

const (
	ColDate            Column = "date"
	ColTotalPnL        Column = "totalPnl"
	ColTotalTrades     Column = "totalTrades"
	ColProfitTrades    Column = "profitTrades"
	ColLossTrades      Column = "lossTrades"
	ColMaxProfit       Column = "maxProfit"
	ColMaxLoss         Column = "maxLoss"
	ColBuyTrades       Column = "buyTrades"
	ColSellTrades      Column = "sellTrades"
	ColAveragePnL      Column = "averagePnl"
	ColAverageDuration Column = "averageDuration"
)

// Columns lists every column in display order.
var Columns = []Column{
	ColDate, ColTotalPnL, ColTotalTrades, ColProfitTrades, ColLossTrades,
	ColMaxProfit, ColMaxLoss, ColBuyTrades, ColSellTrades, ColAveragePnL, ColAverageDuration,
}

// TableQuery filters, sorts, and pages bucket rows.
type TableQuery struct {
	// Filters maps a column to a case-insensitive substring its text must contain.
	Filters  map[Column]string
	SortBy   Column
	Desc     bool
	Page     int // 1-based; 0 means 1
	PageSize int // 0 means all rows
}

// TablePage is one page of rows.
type TablePage struct {
	Rows       []models.AggregatedData `json:"rows"`
	Page       int                     `json:"page"`
	TotalPages int                     `json:"totalPages"`
	TotalRows  int                     `json:"totalRows"`
}

// Value returns a column's value for a row.
func (c Column) Value(row models.AggregatedData) (float64, string, error) {
	switch c {
	case ColDate:
		return 0, row.Date, nil
	case ColTotalPnL:
		return row.TotalPnL, "", nil
	case ColTotalTrades:
		return float64(row.TotalTrades), "", nil
	case ColProfitTrades:
		return float64(row.ProfitTrades), "", nil
	case ColLossTrades:
		return float64(row.LossTrades), "", nil
	case ColMaxProfit:
		return row.MaxProfit, "", nil
	case ColMaxLoss:
		return row.MaxLoss, "", nil
	case ColBuyTrades:
		return float64(row.BuyTrades), "", nil
	case ColSellTrades:
		return float64(row.SellTrades), "", nil
	case ColAveragePnL:
		return row.AveragePnL, "", nil
	case ColAverageDuration:
		return row.AverageDuration, "", nil
	}
	return 0, "", fmt.Errorf("unknown column %q", c)
}

func (c Column) text(row models.AggregatedData) string {
	n, s, _ := c.Value(row)
	if c == ColDate {
		return s
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Table applies a query to rows. Rows start in key order; an empty SortBy
// keeps that order.
func Table(buckets map[string]models.AggregatedData, q TableQuery) (TablePage, error) {
	rows := Sorted(buckets)

	for col, needle := range q.Filters {
		if needle == "" {
			continue
		}
		if _, _, err := col.Value(models.AggregatedData{}); err != nil {
			return TablePage{}, err
		}
		needle = strings.ToLower(needle)
		kept := rows[:0]
		for _, r := range rows {
			if strings.Contains(strings.ToLower(col.text(r)), needle) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if q.SortBy != "" {
		if _, _, err := q.SortBy.Value(models.AggregatedData{}); err != nil {
			return TablePage{}, err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if q.Desc {
				a, b = b, a
			}
			if q.SortBy == ColDate {
				return a.Date < b.Date
			}
			an, _, _ := q.SortBy.Value(a)
			bn, _, _ := q.SortBy.Value(b)
			return an < bn
		})
	}

	page := TablePage{TotalRows: len(rows), Page: 1, TotalPages: 1}
	if q.PageSize <= 0 {
		page.Rows = rows
		return page, nil
	}

	page.TotalPages = (len(rows) + q.PageSize - 1) / q.PageSize
	if page.TotalPages == 0 {
		page.TotalPages = 1
	}
	page.Page = q.Page
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Page > page.TotalPages {
		page.Page = page.TotalPages
	}

	start := (page.Page - 1) * q.PageSize
	end := start + q.PageSize
	if end > len(rows) {
		end = len(rows)
	}
	page.Rows = rows[start:end]
	return page, nil
}
