package bot

import (
	"log"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// SMACrossover trades the crossover of a fast and a slow simple moving
// average of closed-candle closes.
//
// Buy when the fast SMA crosses above the slow (golden cross), sell when
// it crosses below (death cross). It only reacts to closed candles of its
// configured provider, symbol and interval.
type SMACrossover struct {
	name     string
	provider string
	symbol   string
	interval string
	qty      decimal.Decimal

	fastPeriod int
	slowPeriod int
	fastBuf    []decimal.Decimal
	slowBuf    []decimal.Decimal
	fastIdx    int
	slowIdx    int
	fastSum    decimal.Decimal
	slowSum    decimal.Decimal
	count      int

	prevFast decimal.Decimal
	prevSlow decimal.Decimal
	ready    bool
}

// NewSMACrossover creates the strategy. fastPeriod < slowPeriod
// (e.g. 9 and 21); qty is the order size per signal.
func NewSMACrossover(provider, symbol, interval string, fastPeriod, slowPeriod int, qty decimal.Decimal) *SMACrossover {
	if fastPeriod >= slowPeriod {
		log.Printf("[bot] sma_crossover: fast period %d >= slow %d, swapping", fastPeriod, slowPeriod)
		fastPeriod, slowPeriod = slowPeriod, fastPeriod
	}
	return &SMACrossover{
		name:       "sma_crossover",
		provider:   provider,
		symbol:     symbol,
		interval:   interval,
		qty:        qty,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		fastBuf:    make([]decimal.Decimal, fastPeriod),
		slowBuf:    make([]decimal.Decimal, slowPeriod),
	}
}

func (s *SMACrossover) Name() string { return s.name }

func (s *SMACrossover) Analyze(ev model.Event) []model.Order {
	if ev.Type != model.DataTypeKline || ev.Candle == nil || !ev.Candle.Closed {
		return nil
	}
	c := ev.Candle
	if c.Provider != s.provider || c.Symbol != s.symbol || c.Interval != s.interval {
		return nil
	}

	price := c.Close
	s.count++

	s.fastSum = s.fastSum.Sub(s.fastBuf[s.fastIdx]).Add(price)
	s.fastBuf[s.fastIdx] = price
	s.fastIdx = (s.fastIdx + 1) % s.fastPeriod

	s.slowSum = s.slowSum.Sub(s.slowBuf[s.slowIdx]).Add(price)
	s.slowBuf[s.slowIdx] = price
	s.slowIdx = (s.slowIdx + 1) % s.slowPeriod

	if s.count < s.slowPeriod {
		return nil
	}

	fast := s.fastSum.Div(decimal.NewFromInt(int64(s.fastPeriod)))
	slow := s.slowSum.Div(decimal.NewFromInt(int64(s.slowPeriod)))

	prevFast, prevSlow, ready := s.prevFast, s.prevSlow, s.ready
	s.prevFast, s.prevSlow, s.ready = fast, slow, true
	if !ready {
		return nil
	}

	if prevFast.LessThanOrEqual(prevSlow) && fast.GreaterThan(slow) {
		return []model.Order{s.order(c, model.OrderSideBuy, "SMA golden cross (fast > slow)")}
	}
	if prevFast.GreaterThanOrEqual(prevSlow) && fast.LessThan(slow) {
		return []model.Order{s.order(c, model.OrderSideSell, "SMA death cross (fast < slow)")}
	}
	return nil
}

func (s *SMACrossover) order(c *model.Candle, side model.OrderSide, reason string) model.Order {
	return model.Order{
		Symbol:   c.Symbol,
		Provider: c.Provider,
		Side:     side,
		Quantity: s.qty,
		Reason:   reason,
	}
}
