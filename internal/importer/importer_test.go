package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/config"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
	"trade-journal/pkg/utils"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

const sampleResponse = `[
	{"tradeId":"x","OpenDate":"2024-03-05T09:30:00Z","CloseDate":"2024-03-05T10:30:00Z",
	 "Symbol":"ES","Side":"BUY","Entry":5000,"Exit":5012,"Qty":2,"P&L":"$1,200.50","Status":"Win"},
	{"tradeId":"y","OpenDate":"2024-03-06","CloseDate":"2024-03-06",
	 "Symbol":"NQ","Side":"Sell","Entry":18000,"Exit":18010,"Qty":1,"P&L":"-40.00","Status":"Loss"}
]`

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{
		WithRetry(utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}),
		WithLocation(time.UTC),
	}, opts...)
	return NewClient(
		config.ImporterConfig{URL: url, Rate: 100, Burst: 10, Timeout: 5 * time.Second},
		config.ImporterCredentials{APIKey: "secret-key-123456"},
		zerolog.Nop(),
		opts...,
	)
}

func TestParseTextSendsJSONAndConverts(t *testing.T) {
	var gotBody map[string]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	m := metrics.New()
	details, err := newTestClient(srv.URL, WithMetrics(m)).ParseText(context.Background(), "BUY 2 ES @ 5000")
	require.NoError(t, err)

	assert.Equal(t, "BUY 2 ES @ 5000", gotBody["text"])
	assert.Equal(t, "Bearer secret-key-123456", gotAuth)

	require.Len(t, details, 2)
	first := details[0]
	assert.NotEqual(t, "x", first.TradeID)
	assert.Len(t, first.TradeID, 36)
	assert.Equal(t, "2024-03-05", first.OpenDate)
	assert.Equal(t, "2024-03-05", first.CloseDate)
	assert.Equal(t, models.Side("buy"), first.Side)
	assert.Equal(t, 1200.50, first.PnL)
	assert.Equal(t, models.StatusTakeProfit, first.Status)
	assert.Equal(t, 2.0, first.Qty)

	second := details[1]
	assert.Equal(t, models.Side("sell"), second.Side)
	assert.Equal(t, -40.0, second.PnL)
	assert.Equal(t, models.StatusStopLoss, second.Status)
	assert.NotEqual(t, first.TradeID, second.TradeID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportRequests.WithLabelValues("text", "fulfilled")))
}

func TestParseImageSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, pngBytes, data)
		assert.Equal(t, "my_chart.png", hdr.Filename)
		io.WriteString(w, "[]")
	}))
	defer srv.Close()

	details, err := newTestClient(srv.URL).ParseImage(context.Background(), "my chart.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestParseImageRejectsNonImage(t *testing.T) {
	_, err := newTestClient("http://unused").ParseImage(context.Background(), "notes.txt", strings.NewReader("hello"))
	var verr *jerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseTextRequiresText(t *testing.T) {
	_, err := newTestClient("http://unused").ParseText(context.Background(), "   ")
	var verr *jerrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	details, err := newTestClient(srv.URL).ParseText(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, details, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreFinal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad input token=abcdefghijkl", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := metrics.New()
	_, err := newTestClient(srv.URL, WithMetrics(m)).ParseText(context.Background(), "text")

	var ie *jerrors.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.ErrorIs(t, err, jerrors.ErrImportFailed)
	assert.NotContains(t, err.Error(), "abcdefghijkl")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportRequests.WithLabelValues("text", "rejected")))
}

func TestMalformedResponseIsFinal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `{"not":"an array"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ParseText(context.Background(), "text")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnconfiguredClient(t *testing.T) {
	c := newTestClient("")
	assert.False(t, c.Configured())

	_, err := c.ParseText(context.Background(), "text")
	assert.ErrorIs(t, err, jerrors.ErrImportFailed)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).ParseText(ctx, "text")
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		row     ImportedTrade
		pnl     float64
		status  models.Status
		wantErr bool
	}{
		{"currency symbol", ImportedTrade{OpenDate: "2024-03-05", CloseDate: "2024-03-05", PnL: "$1,234.50", Status: "win"}, 1234.5, models.StatusTakeProfit, false},
		{"negative with suffix", ImportedTrade{OpenDate: "2024-03-05", CloseDate: "2024-03-05", PnL: "-12 USD", Status: "WIN"}, -12, models.StatusTakeProfit, false},
		{"loss status", ImportedTrade{OpenDate: "2024-03-05", CloseDate: "2024-03-05", PnL: "3", Status: "even"}, 3, models.StatusStopLoss, false},
		{"bad pnl", ImportedTrade{OpenDate: "2024-03-05", CloseDate: "2024-03-05", PnL: "n/a"}, 0, "", true},
		{"bad date", ImportedTrade{OpenDate: "someday", CloseDate: "2024-03-05", PnL: "1"}, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Convert(tt.row, time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pnl, d.PnL)
			assert.Equal(t, tt.status, d.Status)
		})
	}
}

func TestConvertReducesToUTCDay(t *testing.T) {
	d, err := Convert(ImportedTrade{
		OpenDate:  "2024-03-05T23:30:00-05:00",
		CloseDate: "2024-03-05T23:45:00-05:00",
		PnL:       "1",
	}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-06", d.OpenDate)
	assert.Equal(t, "2024-03-06", d.CloseDate)
}

func TestCSVRoundTrip(t *testing.T) {
	in := []models.TradeDetails{
		{TradeID: "t1", OpenDate: "2024-03-05", CloseDate: "2024-03-05", Symbol: "ES", Side: models.SideBuy, Entry: 5000, Exit: 5010.25, Qty: 1, PnL: 10.25, Status: models.StatusTakeProfit},
		{TradeID: "t2", OpenDate: "2024-03-06T09:30:00Z", CloseDate: "", Symbol: "NQ", Side: models.SideSell, Entry: 18000, Exit: 0, Qty: 2, PnL: 0, Status: ""},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "tradeId,openDate,closeDate,symbol,side,entry,exit,qty,pnl,status"))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadCSVAnyColumnOrder(t *testing.T) {
	out, err := ReadCSV(strings.NewReader("symbol,pnl,tradeId,side,qty\nES,-4.5,a1,Buy,3\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a1", out[0].TradeID)
	assert.Equal(t, -4.5, out[0].PnL)
	assert.Equal(t, models.Side("Buy"), out[0].Side)
}

func TestValidate(t *testing.T) {
	good := models.TradeDetails{TradeID: "t1", Symbol: "ES", Side: "buy", Qty: 1, OpenDate: "2024-03-05", CloseDate: "2024-03-05"}
	bad := good
	bad.TradeID = "t2"
	bad.Qty = 0

	assert.NoError(t, Validate(nil, []models.TradeDetails{good}))

	err := Validate(nil, []models.TradeDetails{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 (t2)")
}

func TestReadCSVAssignsMissingIDs(t *testing.T) {
	out, err := ReadCSV(strings.NewReader("tradeId,symbol\n,ES\nkeep,NQ\n"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0].TradeID, 36)
	assert.Equal(t, "keep", out[1].TradeID)
}

type auditSink struct{ strings.Builder }

func (a *auditSink) Close() error { return nil }

func TestGuarded(t *testing.T) {
	sink := &auditSink{}
	audit := security.NewAuditLoggerWithWriter(sink)
	parse := func(context.Context) ([]models.TradeDetails, error) {
		return []models.TradeDetails{{TradeID: "a"}, {TradeID: "b"}}, nil
	}

	got, err := Guarded(context.Background(), nil, audit, "u1", parse)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, sink.String(), `"event_type":"TRADES_PARSED"`)

	calls := 0
	_, err = Guarded(context.Background(), security.NewAccessController(true, audit), audit, "u1",
		func(context.Context) ([]models.TradeDetails, error) {
			calls++
			return nil, nil
		})
	var roe *security.ReadOnlyError
	assert.ErrorAs(t, err, &roe)
	assert.Zero(t, calls)
}

func TestBreakerPausesFailingService(t *testing.T) {
	var calls, healthy int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if atomic.LoadInt32(&healthy) == 0 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		io.WriteString(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL,
		WithRetry(utils.RetryConfig{MaxAttempts: 1}),
		WithBreaker(2, 50*time.Millisecond),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ParseText(ctx, "text")
		require.Error(t, err)
	}
	assert.Equal(t, breakerOpen, c.breaker.current())

	_, err := c.ParseText(ctx, "text")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker sends nothing")

	atomic.StoreInt32(&healthy, 1)
	time.Sleep(60 * time.Millisecond)

	details, err := c.ParseText(ctx, "text")
	require.NoError(t, err)
	assert.Len(t, details, 2)
	assert.Equal(t, breakerClosed, c.breaker.current())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithBreaker(1, time.Minute))
	for i := 0; i < 3; i++ {
		_, err := c.ParseText(context.Background(), "text")
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
	}
	assert.Equal(t, breakerClosed, c.breaker.current())
}

func TestBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	b := newBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.allow())
	b.failure()
	assert.ErrorIs(t, b.allow(), ErrServiceUnavailable)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.allow())
	assert.ErrorIs(t, b.allow(), ErrServiceUnavailable, "second caller waits for the probe")

	b.failure()
	assert.Equal(t, breakerOpen, b.current())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.allow())
	b.success()
	assert.Equal(t, breakerClosed, b.current())
	assert.NoError(t, b.allow())
}
