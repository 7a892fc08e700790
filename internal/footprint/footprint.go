// Package footprint accumulates per-bar order-flow volume into price buckets.
// For each (symbol, interval) it keeps a bounded window of recent bars; each
// bar maps rounded price levels to buy/sell volume split by aggressor side.
package footprint

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Bucket holds the accumulated order flow at one price level of one bar.
type Bucket struct {
	Price      decimal.Decimal `json:"price"`
	BuyVolume  decimal.Decimal `json:"buyVolume"`
	SellVolume decimal.Decimal `json:"sellVolume"`
	TradeCount int64           `json:"tradeCount"`
}

// Delta returns buyVolume − sellVolume.
func (b *Bucket) Delta() decimal.Decimal {
	return b.BuyVolume.Sub(b.SellVolume)
}

// Bar is the footprint of a single interval bucket.
type Bar struct {
	OpenTime time.Time
	Buckets  map[string]*Bucket // keyed by canonical price string
}

// barSeries holds the recent bars for one (symbol, interval).
type barSeries struct {
	bars  map[int64]*Bar // keyed by bar open-time (unix seconds)
	order []int64        // insertion order for FIFO retention
}

// Aggregator builds footprints from the trade stream.
// Single writer (the ingress dispatch goroutine); concurrent readers.
type Aggregator struct {
	mu       sync.RWMutex
	series   map[string]*barSeries // key = "symbol:interval"
	interval map[string]time.Duration
	maxBars  int
}

// New creates an Aggregator retaining maxBars recent bars per key.
func New(maxBars int) *Aggregator {
	if maxBars <= 0 {
		maxBars = 60
	}
	return &Aggregator{
		series:   make(map[string]*barSeries, 16),
		interval: make(map[string]time.Duration, 8),
		maxBars:  maxBars,
	}
}

// OnTrade folds one trade into the footprint for every tracked interval.
func (a *Aggregator) OnTrade(trade *model.Trade, intervals []string) {
	for _, iv := range intervals {
		step, err := model.IntervalDuration(iv)
		if err != nil {
			continue
		}
		a.apply(trade, iv, step)
	}
}

func (a *Aggregator) apply(trade *model.Trade, interval string, step time.Duration) {
	barOpen := model.FloorToInterval(trade.Timestamp, step)
	price := RoundToTick(trade.Price)
	key := trade.Symbol + ":" + interval

	a.mu.Lock()
	defer a.mu.Unlock()

	ser, ok := a.series[key]
	if !ok {
		ser = &barSeries{bars: make(map[int64]*Bar, a.maxBars)}
		a.series[key] = ser
	}

	unix := barOpen.Unix()
	bar, ok := ser.bars[unix]
	if !ok {
		bar = &Bar{OpenTime: barOpen, Buckets: make(map[string]*Bucket, 32)}
		ser.bars[unix] = bar
		ser.order = append(ser.order, unix)

		// FIFO retention
		for len(ser.order) > a.maxBars {
			delete(ser.bars, ser.order[0])
			ser.order = ser.order[1:]
		}
	}

	pk := price.String()
	bucket, ok := bar.Buckets[pk]
	if !ok {
		bucket = &Bucket{Price: price}
		bar.Buckets[pk] = bucket
	}

	if trade.AggressiveBuy() {
		bucket.BuyVolume = bucket.BuyVolume.Add(trade.Quantity)
	} else {
		bucket.SellVolume = bucket.SellVolume.Add(trade.Quantity)
	}
	bucket.TradeCount++
}

// Bar returns a copy of the footprint for one bar, or nil if absent.
func (a *Aggregator) Bar(symbol, interval string, barOpen time.Time) *Bar {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ser, ok := a.series[symbol+":"+interval]
	if !ok {
		return nil
	}
	bar, ok := ser.bars[barOpen.UTC().Unix()]
	if !ok {
		return nil
	}
	cp := &Bar{OpenTime: bar.OpenTime, Buckets: make(map[string]*Bucket, len(bar.Buckets))}
	for k, v := range bar.Buckets {
		b := *v
		cp.Buckets[k] = &b
	}
	return cp
}

// Buckets returns the bar's buckets sorted by ascending price, or nil.
func (a *Aggregator) Buckets(symbol, interval string, barOpen time.Time) []Bucket {
	bar := a.Bar(symbol, interval, barOpen)
	if bar == nil {
		return nil
	}
	out := make([]Bucket, 0, len(bar.Buckets))
	for _, b := range bar.Buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// PointOfControl returns the bucket with the highest total volume in a bar.
func (a *Aggregator) PointOfControl(symbol, interval string, barOpen time.Time) (Bucket, bool) {
	buckets := a.Buckets(symbol, interval, barOpen)
	if len(buckets) == 0 {
		return Bucket{}, false
	}
	best := buckets[0]
	bestVol := best.BuyVolume.Add(best.SellVolume)
	for _, b := range buckets[1:] {
		vol := b.BuyVolume.Add(b.SellVolume)
		if vol.GreaterThan(bestVol) {
			best, bestVol = b, vol
		}
	}
	return best, true
}

// tick size by decade of price: ≥10000 → 10, ≥1000 → 1, ... else 0.0001.
var tickSteps = []struct {
	floor decimal.Decimal
	tick  decimal.Decimal
}{
	{decimal.NewFromInt(10000), decimal.NewFromInt(10)},
	{decimal.NewFromInt(1000), decimal.NewFromInt(1)},
	{decimal.NewFromInt(100), decimal.RequireFromString("0.1")},
	{decimal.NewFromInt(10), decimal.RequireFromString("0.01")},
	{decimal.NewFromInt(1), decimal.RequireFromString("0.001")},
}

var minTick = decimal.RequireFromString("0.0001")

// TickSize picks the footprint price grid for a given price level.
func TickSize(price decimal.Decimal) decimal.Decimal {
	for _, s := range tickSteps {
		if price.GreaterThanOrEqual(s.floor) {
			return s.tick
		}
	}
	return minTick
}

// RoundToTick floors the price onto its tick grid.
func RoundToTick(price decimal.Decimal) decimal.Decimal {
	tick := TickSize(price)
	return price.Div(tick).Floor().Mul(tick)
}
