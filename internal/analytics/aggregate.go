// Package analytics derives daily, weekly, and monthly performance buckets
// and dashboard statistics from a list of trades.
package analytics

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// Bucket key layouts.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Timeframe selects one of the three bucket maps.
type Timeframe string

const (
	Daily   Timeframe = "daily"
	Weekly  Timeframe = "weekly"
	Monthly Timeframe = "monthly"
)

// ParseTimeframe validates a timeframe name.
func ParseTimeframe(s string) (Timeframe, bool) {
	switch Timeframe(s) {
	case Daily, Weekly, Monthly:
		return Timeframe(s), true
	}
	return "", false
}

// Aggregation is the result of one aggregation pass. Maps are keyed by
// bucket date: daily "2006-01-02", weekly the Monday "2006-01-02", monthly
// "2006-01".
type Aggregation struct {
	Daily   map[string]models.AggregatedData `json:"daily"`
	Weekly  map[string]models.AggregatedData `json:"weekly"`
	Monthly map[string]models.AggregatedData `json:"monthly"`

	// Skipped counts trades left out because a date did not parse.
	Skipped int `json:"skipped"`
}

// Buckets returns the map for a timeframe.
func (a Aggregation) Buckets(tf Timeframe) map[string]models.AggregatedData {
	switch tf {
	case Weekly:
		return a.Weekly
	case Monthly:
		return a.Monthly
	}
	return a.Daily
}

// Engine aggregates trades. It keeps no state between calls.
type Engine struct {
	loc *time.Location
	log zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone used to read zone-less dates and to cut
// bucket boundaries. The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the logger for skipped-trade diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger.With().Str("component", "analytics").Logger()
	}
}

// NewEngine creates an aggregation engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{loc: time.Local, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the engine's zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Aggregate is NewEngine().Aggregate.
func Aggregate(details []models.TradeDetails) Aggregation {
	return NewEngine().Aggregate(details)
}

// parsed is a trade whose dates are known to be valid.
type parsed struct {
	d     models.TradeDetails
	open  time.Time
	close time.Time
}

// Aggregate buckets every trade with parseable dates by its close date.
// Trades are accumulated in a canonical order so that the result does not
// depend on input order, down to the last bit of the float sums.
func (e *Engine) Aggregate(details []models.TradeDetails) Aggregation {
	agg := Aggregation{
		Daily:   make(map[string]models.AggregatedData),
		Weekly:  make(map[string]models.AggregatedData),
		Monthly: make(map[string]models.AggregatedData),
	}

	trades := e.parseAll(details, &agg.Skipped)

	for _, p := range trades {
		duration := p.close.Sub(p.open).Hours()
		c := p.close.In(e.loc)

		accumulate(agg.Daily, c.Format(DayLayout), p.d, duration)
		accumulate(agg.Weekly, WeekStart(c).Format(DayLayout), p.d, duration)
		accumulate(agg.Monthly, c.Format(MonthLayout), p.d, duration)
	}

	finalize(agg.Daily)
	finalize(agg.Weekly)
	finalize(agg.Monthly)

	if agg.Skipped > 0 {
		e.log.Debug().Int("skipped", agg.Skipped).Int("total", len(details)).Msg("Trades with unparseable dates left out of aggregation")
	}

	return agg
}

// parseAll parses dates and returns trades in canonical order:
// close instant, open instant, trade id, pnl.
func (e *Engine) parseAll(details []models.TradeDetails, skipped *int) []parsed {
	out := make([]parsed, 0, len(details))
	for _, d := range details {
		open, err := d.Open(e.loc)
		if err != nil {
			e.logSkip(jerrors.NewDateParseError(d.TradeID, "openDate", d.OpenDate))
			*skipped++
			continue
		}
		closed, err := d.Close(e.loc)
		if err != nil {
			e.logSkip(jerrors.NewDateParseError(d.TradeID, "closeDate", d.CloseDate))
			*skipped++
			continue
		}
		out = append(out, parsed{d: d, open: open, close: closed})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.close.Equal(b.close) {
			return a.close.Before(b.close)
		}
		if !a.open.Equal(b.open) {
			return a.open.Before(b.open)
		}
		if a.d.TradeID != b.d.TradeID {
			return a.d.TradeID < b.d.TradeID
		}
		return a.d.PnL < b.d.PnL
	})
	return out
}

func (e *Engine) logSkip(err error) {
	e.log.Trace().Err(err).Msg("Skipping trade")
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

func accumulate(buckets map[string]models.AggregatedData, key string, d models.TradeDetails, duration float64) {
	b, ok := buckets[key]
	if !ok {
		b = models.AggregatedData{
			Date:      key,
			MaxProfit: d.PnL,
			MaxLoss:   d.PnL,
		}
	}

	b.TotalTrades++
	b.TotalPnL += d.PnL
	if d.PnL > 0 {
		b.ProfitTrades++
	}
	if d.PnL < 0 {
		b.LossTrades++
	}
	if d.PnL > b.MaxProfit {
		b.MaxProfit = d.PnL
	}
	if d.PnL < b.MaxLoss {
		b.MaxLoss = d.PnL
	}
	if d.Side.Is(models.SideBuy) {
		b.BuyTrades++
	}
	if d.Side.Is(models.SideSell) {
		b.SellTrades++
	}
	b.TotalDuration += duration

	buckets[key] = b
}

func finalize(buckets map[string]models.AggregatedData) {
	for key, b := range buckets {
		if b.TotalTrades > 0 {
			b.AveragePnL = b.TotalPnL / float64(b.TotalTrades)
			b.AverageDuration = b.TotalDuration / float64(b.TotalTrades)
		}
		buckets[key] = b
	}
}

// Sorted returns the buckets ordered by key.
func Sorted(buckets map[string]models.AggregatedData) []models.AggregatedData {
	out := make([]models.AggregatedData, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
