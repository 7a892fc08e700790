package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const klineBody = `[
	[1699999980000,"64000.10","64020.00","63990.00","64010.50","12.345",1700000039999,"790000.12",240,"6.0","384000.0","0"],
	[1700000040000,"64010.50","64050.00","64000.00","64040.00","8.200",1700000099999,"525000.00",180,"4.1","262000.0","0"]
]`

func TestRESTClient_Klines(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		gotQuery.Store(r.URL.Query().Encode())
		w.Write([]byte(klineBody))
	}))
	defer srv.Close()

	r := newRESTClient(srv.URL)
	candles, err := r.klines(context.Background(), "BTCUSDT", "1m", 500, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	c := candles[0]
	if c.Symbol != "BTCUSDT" || c.Provider != ProviderName || c.Interval != "1m" {
		t.Errorf("candle header wrong: %+v", c)
	}
	if c.OpenTime.UnixMilli() != 1699999980000 {
		t.Errorf("open time = %d", c.OpenTime.UnixMilli())
	}
	if !c.High.Equal(decimal.RequireFromString("64020.00")) {
		t.Errorf("high = %s", c.High)
	}
	if !c.QuoteVolume.Equal(decimal.RequireFromString("790000.12")) {
		t.Errorf("quote volume = %s", c.QuoteVolume)
	}
	if c.TradeCount != 240 {
		t.Errorf("trade count = %d", c.TradeCount)
	}
	if !c.Closed {
		t.Error("historical candle should be closed")
	}

	q := gotQuery.Load().(string)
	if q != "interval=1m&limit=500&symbol=BTCUSDT" {
		t.Errorf("query = %q", q)
	}
}

func TestRESTClient_RangeQuery(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(klineBody))
	}))
	defer srv.Close()

	r := newRESTClient(srv.URL)
	start := time.UnixMilli(1699999980000).UTC()
	end := time.UnixMilli(1700000099999).UTC()
	if _, err := r.klines(context.Background(), "BTCUSDT", "1m", 0, start, end); err != nil {
		t.Fatalf("klines: %v", err)
	}

	q := gotQuery.Load().(url.Values)
	if q.Get("startTime") != "1699999980000" || q.Get("endTime") != "1700000099999" {
		t.Errorf("range params wrong: %v", q)
	}
	// Zero/oversized limit clamps to the exchange maximum.
	if q.Get("limit") != "1000" {
		t.Errorf("limit = %q, want 1000", q.Get("limit"))
	}
}

func TestRESTClient_RetriesEmptyResponse(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(klineBody))
	}))
	defer srv.Close()

	r := newRESTClient(srv.URL)
	r.retryDelay = 5 * time.Millisecond

	candles, err := r.klines(context.Background(), "BTCUSDT", "1m", 500, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles after retry, got %d", len(candles))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestRESTClient_StatusError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	r := newRESTClient(srv.URL)
	r.retryDelay = 5 * time.Millisecond

	_, err := r.klines(context.Background(), "NOPEUSDT", "1m", 500, time.Time{}, time.Time{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Errorf("status = %d", se.Code)
	}
	// Initial attempt plus two retries.
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRESTClient_ContextCancelStopsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := newRESTClient(srv.URL)
	r.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.klines(ctx, "BTCUSDT", "1m", 500, time.Time{}, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
