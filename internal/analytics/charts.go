package analytics

import (
	"math"
	"sort"
	"time"

	"trade-journal/internal/models"
)

// unknownSetup labels trades without a setup type.
const unknownSetup = "Unknown"

func sortDetails(ds []models.TradeDetails) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].TradeID != ds[j].TradeID {
			return ds[i].TradeID < ds[j].TradeID
		}
		return ds[i].PnL < ds[j].PnL
	})
}

// CumulativePoint is one step of the running P&L curve.
type CumulativePoint struct {
	Index      int     `json:"index"`
	TradeID    string  `json:"tradeId"`
	OpenDate   string  `json:"openDate"`
	PnL        float64 `json:"pnl"`
	Cumulative float64 `json:"cumulativePnl"`
}

// CumulativePnL orders trades by open date and accumulates P&L. Trades
// whose open date does not parse go last, in input order.
func (e *Engine) CumulativePnL(details []models.TradeDetails) []CumulativePoint {
	type item struct {
		d    models.TradeDetails
		open time.Time
		ok   bool
	}

	items := make([]item, len(details))
	for i, d := range details {
		open, err := d.Open(e.loc)
		items[i] = item{d: d, open: open, ok: err == nil}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		return a.open.Before(b.open)
	})

	out := make([]CumulativePoint, len(items))
	var running float64
	for i, it := range items {
		running += it.d.PnL
		out[i] = CumulativePoint{
			Index:      i + 1,
			TradeID:    it.d.TradeID,
			OpenDate:   it.d.OpenDate,
			PnL:        it.d.PnL,
			Cumulative: running,
		}
	}
	return out
}

// Bracket is one histogram bin, covering [Min, Max). The open-ended bins
// use infinite bounds, so only the label and count are encoded.
type Bracket struct {
	Label string  `json:"label"`
	Min   float64 `json:"-"`
	Max   float64 `json:"-"`
	Count int     `json:"count"`
}

// PnLBrackets are the P&L histogram bins.
var PnLBrackets = []Bracket{
	{Label: "< -100", Min: math.Inf(-1), Max: -100},
	{Label: "-100 to -50", Min: -100, Max: -50},
	{Label: "-50 to -25", Min: -50, Max: -25},
	{Label: "-25 to 0", Min: -25, Max: 0},
	{Label: "0 to 25", Min: 0, Max: 25},
	{Label: "25 to 50", Min: 25, Max: 50},
	{Label: "50 to 100", Min: 50, Max: 100},
	{Label: "> 100", Min: 100, Max: math.Inf(1)},
}

// DurationBrackets are the holding time histogram bins, in minutes.
var DurationBrackets = []Bracket{
	{Label: "0-15", Min: 0, Max: 15},
	{Label: "15-30", Min: 15, Max: 30},
	{Label: "30-60", Min: 30, Max: 60},
	{Label: "60-120", Min: 60, Max: 120},
	{Label: "120-240", Min: 120, Max: 240},
	{Label: "> 240", Min: 240, Max: math.Inf(1)},
}

func histogram(template []Bracket, values []float64) []Bracket {
	out := make([]Bracket, len(template))
	copy(out, template)
	for _, v := range values {
		for i := range out {
			if v >= out[i].Min && v < out[i].Max {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// PnLDistribution counts trades per P&L bracket. Each trade lands in
// exactly one bracket.
func (e *Engine) PnLDistribution(details []models.TradeDetails) []Bracket {
	values := make([]float64, len(details))
	for i, d := range details {
		values[i] = d.PnL
	}
	return histogram(PnLBrackets, values)
}

// DurationDistribution counts trades per holding time bracket. Trades with
// unparseable dates or a close before the open are left out.
func (e *Engine) DurationDistribution(details []models.TradeDetails) []Bracket {
	values := make([]float64, 0, len(details))
	for _, d := range details {
		open, err1 := d.Open(e.loc)
		closed, err2 := d.Close(e.loc)
		if err1 != nil || err2 != nil || closed.Before(open) {
			continue
		}
		values = append(values, closed.Sub(open).Minutes())
	}
	return histogram(DurationBrackets, values)
}

// SetupStats is the win rate of one setup type.
type SetupStats struct {
	Setup      string  `json:"setup"`
	TradeCount int     `json:"tradeCount"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"winRate"` // percent, 2 decimals
}

// WinRateBySetup groups trades by Analysis.SetupType and computes each
// group's win rate. Results are ordered by setup name.
func WinRateBySetup(trades []models.Trade) []SetupStats {
	groups := make(map[string]*SetupStats)
	for _, t := range trades {
		setup := t.Analysis.SetupType
		if setup == "" {
			setup = unknownSetup
		}
		g, ok := groups[setup]
		if !ok {
			g = &SetupStats{Setup: setup}
			groups[setup] = g
		}
		g.TradeCount++
		if t.Trade.PnL > 0 {
			g.Wins++
		}
	}

	out := make([]SetupStats, 0, len(groups))
	for _, g := range groups {
		g.WinRate = math.Round(float64(g.Wins)/float64(g.TradeCount)*10000) / 100
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Setup < out[j].Setup })
	return out
}

// MonthTotal is the P&L of trades opened in one calendar month.
type MonthTotal struct {
	Month  string  `json:"month"` // Jan..Dec
	Number int     `json:"number"`
	Total  float64 `json:"total"`
	Trades int     `json:"trades"`
}

// MonthlyOverview totals P&L by open-date month for one year. Always
// returns twelve entries, January first.
func (e *Engine) MonthlyOverview(details []models.TradeDetails, year int) []MonthTotal {
	out := make([]MonthTotal, 12)
	for i := range out {
		out[i] = MonthTotal{Month: time.Month(i + 1).String()[:3], Number: i + 1}
	}

	for _, d := range canonical(details) {
		open, err := d.Open(e.loc)
		if err != nil {
			continue
		}
		open = open.In(e.loc)
		if open.Year() != year {
			continue
		}
		m := &out[open.Month()-1]
		m.Total += d.PnL
		m.Trades++
	}
	return out
}
