package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"trade-journal/internal/models"
)

// Summary holds headline statistics over a set of trades.
type Summary struct {
	TotalTrades           int     `json:"totalTrades"`
	Wins                  int     `json:"wins"`
	Losses                int     `json:"losses"`
	BreakEven             int     `json:"breakEven"`
	WinRate               float64 `json:"winRate"` // 0..1
	TotalPnL              float64 `json:"totalPnl"`
	GrossProfit           float64 `json:"grossProfit"`
	GrossLoss             float64 `json:"grossLoss"` // negative or zero
	ProfitFactor          float64 `json:"profitFactor"`
	AverageWin            float64 `json:"averageWin"`
	AverageLoss           float64 `json:"averageLoss"`
	Expectancy            float64 `json:"expectancy"`
	AverageHoldingMinutes float64 `json:"averageHoldingMinutes"`
	PnLStdDev             float64 `json:"pnlStdDev"`
	LargestWin            float64 `json:"largestWin"`
	LargestLoss           float64 `json:"largestLoss"`
}

// Summarize computes headline statistics. Holding time only counts trades
// whose dates parse and whose close is not before the open.
func (e *Engine) Summarize(details []models.TradeDetails) Summary {
	var s Summary
	if len(details) == 0 {
		return s
	}

	pnls := make([]float64, 0, len(details))
	var holdTotal float64
	var holdCount int

	for _, d := range canonical(details) {
		s.TotalTrades++
		s.TotalPnL += d.PnL
		pnls = append(pnls, d.PnL)

		switch {
		case d.PnL > 0:
			s.Wins++
			s.GrossProfit += d.PnL
			if d.PnL > s.LargestWin {
				s.LargestWin = d.PnL
			}
		case d.PnL < 0:
			s.Losses++
			s.GrossLoss += d.PnL
			if d.PnL < s.LargestLoss {
				s.LargestLoss = d.PnL
			}
		default:
			s.BreakEven++
		}

		open, err1 := d.Open(e.loc)
		closed, err2 := d.Close(e.loc)
		if err1 == nil && err2 == nil && !closed.Before(open) {
			holdTotal += closed.Sub(open).Minutes()
			holdCount++
		}
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss / float64(s.Losses)
	}
	if s.GrossLoss < 0 {
		s.ProfitFactor = s.GrossProfit / math.Abs(s.GrossLoss)
	} else {
		s.ProfitFactor = s.GrossProfit
	}
	s.Expectancy = s.TotalPnL / float64(s.TotalTrades)
	if holdCount > 0 {
		s.AverageHoldingMinutes = holdTotal / float64(holdCount)
	}
	if len(pnls) > 1 {
		s.PnLStdDev = stat.StdDev(pnls, nil)
	}

	return s
}

// canonical returns details ordered by trade id, then pnl, so sums do not
// depend on input order.
func canonical(details []models.TradeDetails) []models.TradeDetails {
	out := make([]models.TradeDetails, len(details))
	copy(out, details)
	sortDetails(out)
	return out
}
