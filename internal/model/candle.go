package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV bar for a (provider, symbol, interval) triple.
// All prices and volumes are decimals to avoid floating-point drift.
type Candle struct {
	Symbol      string          `json:"symbol"`
	Provider    string          `json:"provider"`
	Interval    string          `json:"interval"` // e.g. "1m", "5m", "1h"
	OpenTime    time.Time       `json:"openTime"`
	CloseTime   time.Time       `json:"closeTime"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`      // base-asset volume
	QuoteVolume decimal.Decimal `json:"quoteVolume"` // quote-asset volume
	TradeCount  int64           `json:"tradeCount"`
	Closed      bool            `json:"closed"` // false while the bar is still forming
}

// Key returns the history-store key for this candle: "provider:symbol:interval".
func (c *Candle) Key() string {
	return c.Provider + ":" + c.Symbol + ":" + c.Interval
}

// Validate checks the candle's structural invariants.
func (c *Candle) Validate() error {
	if !c.OpenTime.Before(c.CloseTime) {
		return ErrCandleTimes
	}
	lo := decimal.Min(c.Open, c.Close)
	hi := decimal.Max(c.Open, c.Close)
	if c.Low.GreaterThan(lo) || c.High.LessThan(hi) {
		return ErrCandleRange
	}
	return nil
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

var (
	ErrCandleTimes = errors.New("candle: openTime must precede closeTime")
	ErrCandleRange = errors.New("candle: low/high must bound open and close")
)
