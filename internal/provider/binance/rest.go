package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

const (
	// maxKlineLimit is the exchange-side cap on rows per kline request.
	maxKlineLimit = 1000

	// backfillLimit is the history depth refetched after a reconnect.
	backfillLimit = 500

	restTimeout    = 15 * time.Second
	restRetries    = 2
	restRetryDelay = 2 * time.Second
)

// restClient fetches historical klines. Failed or empty fetches are retried
// restRetries times with restRetryDelay between attempts.
type restClient struct {
	http       *resty.Client
	retryDelay time.Duration
}

func newRESTClient(baseURL string) *restClient {
	return &restClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(restTimeout),
		retryDelay: restRetryDelay,
	}
}

// klines fetches up to limit closed candles for symbol/interval. Zero start
// and end mean "most recent"; otherwise they bound the open-time range.
func (r *restClient) klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]model.Candle, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}
	if !start.IsZero() {
		params["startTime"] = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		params["endTime"] = strconv.FormatInt(end.UnixMilli(), 10)
	}

	var lastErr error
	for attempt := 0; attempt <= restRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[binance] kline fetch %s %s retry %d: %v", symbol, interval, attempt, lastErr)
			timer := time.NewTimer(r.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := r.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/api/v3/klines")
		if err != nil {
			lastErr = fmt.Errorf("binance: kline request: %w", err)
			continue
		}
		if resp.StatusCode() != 200 {
			lastErr = &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
			continue
		}

		candles, err := parseKlineRows(resp.Body(), symbol, interval)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candles) == 0 {
			lastErr = ErrEmptyResponse
			continue
		}
		return candles, nil
	}
	return nil, lastErr
}

// klineRow is one REST kline entry:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...]
type klineRow []json.RawMessage

func parseKlineRows(body []byte, symbol, interval string) ([]model.Candle, error) {
	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &ParseError{Stream: "klines", Err: err}
	}

	now := time.Now()
	out := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 9 {
			return nil, &ParseError{Stream: "klines", Err: fmt.Errorf("row %d: %d fields", i, len(row))}
		}
		c := model.Candle{Symbol: symbol, Provider: ProviderName, Interval: interval}

		var err error
		var openMs, closeMs int64
		if err = json.Unmarshal(row[0], &openMs); err == nil {
			if err = json.Unmarshal(row[6], &closeMs); err == nil {
				err = json.Unmarshal(row[8], &c.TradeCount)
			}
		}
		if err != nil {
			return nil, &ParseError{Stream: "klines", Err: fmt.Errorf("row %d: %w", i, err)}
		}
		c.OpenTime = msTime(openMs)
		c.CloseTime = msTime(closeMs)
		c.Closed = c.CloseTime.Before(now)

		fields := []struct {
			raw json.RawMessage
			dst *decimal.Decimal
		}{
			{row[1], &c.Open},
			{row[2], &c.High},
			{row[3], &c.Low},
			{row[4], &c.Close},
			{row[5], &c.Volume},
			{row[7], &c.QuoteVolume},
		}
		for _, f := range fields {
			var s string
			if err := json.Unmarshal(f.raw, &s); err != nil {
				return nil, &ParseError{Stream: "klines", Err: fmt.Errorf("row %d: %w", i, err)}
			}
			v, err := dec(s)
			if err != nil {
				return nil, &ParseError{Stream: "klines", Err: fmt.Errorf("row %d: %w", i, err)}
			}
			*f.dst = v
		}
		out = append(out, c)
	}
	return out, nil
}
