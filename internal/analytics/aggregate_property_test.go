package analytics

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"trade-journal/internal/models"
)

// tradeSeed is the raw material for one generated trade.
type tradeSeed struct {
	OpenMinute int   // minutes after the base instant
	HoldMinute int   // minutes between open and close
	PnLCents   int64 // pnl in cents
	Buy        bool
	BadDate    bool
}

var seedBase = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func seedGen(badDates bool) gopter.Gen {
	bad := gen.Const(false)
	if badDates {
		bad = gen.Weighted([]gen.WeightedGen{
			{Weight: 9, Gen: gen.Const(false)},
			{Weight: 1, Gen: gen.Const(true)},
		})
	}
	return gen.Struct(reflect.TypeOf(tradeSeed{}), map[string]gopter.Gen{
		"OpenMinute": gen.IntRange(0, 2*365*24*60),
		"HoldMinute": gen.IntRange(0, 3*24*60),
		"PnLCents":   gen.Int64Range(-500000, 500000),
		"Buy":        gen.Bool(),
		"BadDate":    bad,
	})
}

func seedsToDetails(seeds []tradeSeed) []models.TradeDetails {
	out := make([]models.TradeDetails, len(seeds))
	for i, s := range seeds {
		open := seedBase.Add(time.Duration(s.OpenMinute) * time.Minute)
		closed := open.Add(time.Duration(s.HoldMinute) * time.Minute)
		side := models.SideSell
		if s.Buy {
			side = models.SideBuy
		}
		d := models.TradeDetails{
			TradeID:   fmt.Sprintf("t%03d", i),
			OpenDate:  open.Format(time.RFC3339),
			CloseDate: closed.Format(time.RFC3339),
			Symbol:    "ES",
			Side:      side,
			Entry:     100,
			Exit:      101,
			Qty:       1,
			PnL:       float64(s.PnLCents) / 100,
		}
		if s.BadDate {
			d.CloseDate = "not-a-date"
		}
		out[i] = d
	}
	return out
}

func countParseable(seeds []tradeSeed) int {
	n := 0
	for _, s := range seeds {
		if !s.BadDate {
			n++
		}
	}
	return n
}

func sumTrades(buckets map[string]models.AggregatedData) int {
	n := 0
	for _, b := range buckets {
		n += b.TotalTrades
	}
	return n
}

func sumPnL(buckets map[string]models.AggregatedData) float64 {
	var s float64
	for _, b := range Sorted(buckets) {
		s += b.TotalPnL
	}
	return s
}

// Property: every trade with parseable dates lands in exactly one bucket
// per timeframe, and the rest are counted as skipped.
func TestProperty_AggregationPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	engine := NewEngine(WithLocation(time.UTC))

	properties.Property("bucket counts partition the parseable trades", prop.ForAll(
		func(seeds []tradeSeed) bool {
			agg := engine.Aggregate(seedsToDetails(seeds))
			want := countParseable(seeds)
			return sumTrades(agg.Daily) == want &&
				sumTrades(agg.Weekly) == want &&
				sumTrades(agg.Monthly) == want &&
				agg.Skipped == len(seeds)-want
		},
		gen.SliceOf(seedGen(true)),
	))

	properties.TestingRun(t)
}

// Property: total pnl agrees across granularities and with the input.
func TestProperty_AggregationConsistentAcrossTimeframes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	engine := NewEngine(WithLocation(time.UTC))

	properties.Property("daily, weekly, and monthly pnl sums match the input", prop.ForAll(
		func(seeds []tradeSeed) bool {
			details := seedsToDetails(seeds)
			agg := engine.Aggregate(details)

			var want float64
			for i, d := range details {
				if !seeds[i].BadDate {
					want += d.PnL
				}
			}

			const eps = 1e-6
			return math.Abs(sumPnL(agg.Daily)-want) < eps &&
				math.Abs(sumPnL(agg.Weekly)-want) < eps &&
				math.Abs(sumPnL(agg.Monthly)-want) < eps
		},
		gen.SliceOf(seedGen(true)),
	))

	properties.TestingRun(t)
}

// Property: aggregation is a pure function of the trade multiset. Running
// it again, or on any permutation of the input, gives identical buckets.
func TestProperty_AggregationDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	engine := NewEngine(WithLocation(time.UTC))

	properties.Property("same trades give bit-identical aggregations", prop.ForAll(
		func(seeds []tradeSeed, shuffle int64) bool {
			details := seedsToDetails(seeds)
			first := engine.Aggregate(details)
			second := engine.Aggregate(details)

			permuted := make([]models.TradeDetails, len(details))
			copy(permuted, details)
			rand.New(rand.NewSource(shuffle)).Shuffle(len(permuted), func(i, j int) {
				permuted[i], permuted[j] = permuted[j], permuted[i]
			})
			third := engine.Aggregate(permuted)

			return reflect.DeepEqual(first, second) && reflect.DeepEqual(first, third)
		},
		gen.SliceOf(seedGen(true)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Property: a trade's daily key is inside its weekly bucket, which starts
// on a Monday, and inside its monthly bucket.
func TestProperty_BucketKeysNest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	engine := NewEngine(WithLocation(time.UTC))

	properties.Property("day falls in its Monday week and its month", prop.ForAll(
		func(seed tradeSeed) bool {
			agg := engine.Aggregate(seedsToDetails([]tradeSeed{seed}))
			if len(agg.Daily) != 1 || len(agg.Weekly) != 1 || len(agg.Monthly) != 1 {
				return false
			}
			day, _ := time.Parse(DayLayout, Sorted(agg.Daily)[0].Date)
			week, _ := time.Parse(DayLayout, Sorted(agg.Weekly)[0].Date)
			month := Sorted(agg.Monthly)[0].Date

			return week.Weekday() == time.Monday &&
				!day.Before(week) && day.Sub(week) < 7*24*time.Hour &&
				day.Format(MonthLayout) == month
		},
		seedGen(false),
	))

	properties.TestingRun(t)
}
