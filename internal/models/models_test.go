package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSideIsCaseInsensitive(t *testing.T) {
	assert.True(t, Side("BUY").Is(SideBuy))
	assert.True(t, Side(" Sell ").Is(SideSell))
	assert.False(t, Side("buy").Is(SideSell))
	assert.True(t, Side("Buy").Valid())
	assert.False(t, Side("short").Valid())
	assert.False(t, Side("").Valid())
}

func TestStatusIsKnown(t *testing.T) {
	assert.True(t, StatusTakeProfit.IsKnown())
	assert.True(t, Status("SL").IsKnown())
	assert.True(t, StatusBreakEven.IsKnown())
	assert.False(t, Status("scratch").IsKnown())
}

func TestNewTradeMirrorsID(t *testing.T) {
	tr := NewTrade(TradeDetails{TradeID: "t1", Symbol: "NQ"})
	assert.Equal(t, "t1", tr.TradeID)
	assert.Equal(t, "t1", tr.Trade.TradeID)
	assert.NotNil(t, tr.Images)
	assert.NotNil(t, tr.Analysis.Mistakes)

	tr = tr.WithID("doc-9")
	assert.Equal(t, "doc-9", tr.TradeID)
	assert.Equal(t, "doc-9", tr.Trade.TradeID)
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, loc)},
		{"2024-03-05T14:30", time.Date(2024, 3, 5, 14, 30, 0, 0, loc)},
		{"2024-03-05T14:30:15", time.Date(2024, 3, 5, 14, 30, 15, 0, loc)},
		{"2024-03-05 14:30:15", time.Date(2024, 3, 5, 14, 30, 15, 0, loc)},
		{"2024-03-05T14:30:15Z", time.Date(2024, 3, 5, 14, 30, 15, 0, time.UTC)},
		{"2024-03-05T14:30:15.250+01:00", time.Date(2024, 3, 5, 13, 30, 15, 250000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	for _, bad := range []string{"", "not-a-date", "05/03/2024", "2024-13-01"} {
		_, err := ParseDate(bad, loc)
		assert.Error(t, err, bad)
	}
}

func TestDetailsOpenClose(t *testing.T) {
	d := TradeDetails{OpenDate: "2024-03-05T09:30:00Z", CloseDate: "2024-03-05T11:00:00Z"}
	open, err := d.Open(time.UTC)
	require.NoError(t, err)
	closed, err := d.Close(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, closed.Sub(open))
}
