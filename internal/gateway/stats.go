package gateway

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// symbolStats accumulates per-symbol market activity seen by the hub.
type symbolStats struct {
	TradeCount int64           `json:"tradeCount"`
	BuyVolume  decimal.Decimal `json:"buyVolume"`  // aggressive buys
	SellVolume decimal.Decimal `json:"sellVolume"` // aggressive sells
	LastPrice  decimal.Decimal `json:"lastPrice"`
	LastSpread decimal.Decimal `json:"lastSpread"`
}

// Stats tracks a hub's delivery counters. All methods are safe for
// concurrent use.
type Stats struct {
	mu            sync.Mutex
	started       time.Time
	framesSent    uint64
	bytesSent     uint64
	slowRemoved   uint64
	sessionsEver  uint64
	sessionsOpen  int
	lastFrameTime time.Time
	bySymbol      map[string]uint64
	market        map[string]*symbolStats
}

func NewStats() *Stats {
	return &Stats{
		started:  time.Now().UTC(),
		bySymbol: make(map[string]uint64, 16),
		market:   make(map[string]*symbolStats, 16),
	}
}

// Observe folds one market-data event into the per-symbol counters.
func (st *Stats) Observe(ev model.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sym, ok := st.market[ev.Symbol]
	if !ok {
		sym = &symbolStats{}
		st.market[ev.Symbol] = sym
	}

	switch ev.Type {
	case model.DataTypeTrade, model.DataTypeAggTrade:
		if ev.Trade == nil {
			return
		}
		sym.TradeCount++
		sym.LastPrice = ev.Trade.Price
		if ev.Trade.AggressiveBuy() {
			sym.BuyVolume = sym.BuyVolume.Add(ev.Trade.Quantity)
		} else {
			sym.SellVolume = sym.SellVolume.Add(ev.Trade.Quantity)
		}
	case model.DataTypeBookTicker:
		if ev.BookTicker == nil {
			return
		}
		sym.LastSpread = ev.BookTicker.Spread()
	case model.DataTypeKline:
		if ev.Candle == nil {
			return
		}
		sym.LastPrice = ev.Candle.Close
	}
}

func (st *Stats) sent(symbol string, n int) {
	st.mu.Lock()
	st.framesSent++
	st.bytesSent += uint64(n)
	st.bySymbol[symbol]++
	st.lastFrameTime = time.Now().UTC()
	st.mu.Unlock()
}

func (st *Stats) droppedSlow() {
	st.mu.Lock()
	st.slowRemoved++
	st.mu.Unlock()
}

func (st *Stats) sessionOpened() {
	st.mu.Lock()
	st.sessionsEver++
	st.sessionsOpen++
	st.mu.Unlock()
}

func (st *Stats) sessionClosed() {
	st.mu.Lock()
	st.sessionsOpen--
	st.mu.Unlock()
}

// Snapshot returns a JSON-friendly view of the counters.
func (st *Stats) Snapshot() map[string]any {
	st.mu.Lock()
	defer st.mu.Unlock()

	bySymbol := make(map[string]uint64, len(st.bySymbol))
	for sym, n := range st.bySymbol {
		bySymbol[sym] = n
	}
	market := make(map[string]symbolStats, len(st.market))
	for sym, s := range st.market {
		market[sym] = *s
	}
	snap := map[string]any{
		"uptimeSeconds":       int64(time.Since(st.started).Seconds()),
		"symbols":             market,
		"framesSent":          st.framesSent,
		"bytesSent":           st.bytesSent,
		"slowSessionsRemoved": st.slowRemoved,
		"sessionsTotal":       st.sessionsEver,
		"sessionsOpen":        st.sessionsOpen,
		"framesBySymbol":      bySymbol,
	}
	if !st.lastFrameTime.IsZero() {
		snap["lastFrameTime"] = st.lastFrameTime.Format(time.RFC3339Nano)
	}
	return snap
}
