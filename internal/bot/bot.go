// Package bot turns normalized market-data events into simulated orders.
//
// Strategies analyze each event and emit candidate orders; every candidate
// passes through the risk manager before it reaches the account. In
// analysis-only mode accepted orders are logged but never executed.
package bot

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Strategy analyzes events and emits zero or more candidate orders.
// Analyze is never called concurrently for the same strategy.
type Strategy interface {
	Name() string
	Analyze(ev model.Event) []model.Order
}

// OrderSink receives every order decision: filled, rejected, or (in
// analysis-only mode) accepted-but-not-executed.
type OrderSink func(o *model.Order)

// Bot routes events through its strategies, risk-checks each candidate
// order, and executes accepted ones against the account.
type Bot struct {
	mu         sync.Mutex
	strategies []Strategy
	risk       *RiskManager
	account    Account
	sink       OrderSink

	enabled      bool
	analysisOnly bool
	marks        map[string]decimal.Decimal
}

// New creates a bot. sink may be nil.
func New(risk *RiskManager, account Account, analysisOnly bool, sink OrderSink) *Bot {
	return &Bot{
		risk:         risk,
		account:      account,
		sink:         sink,
		enabled:      true,
		analysisOnly: analysisOnly,
		marks:        make(map[string]decimal.Decimal, 8),
	}
}

// Register adds a strategy. Not safe to call after events start flowing.
func (b *Bot) Register(s Strategy) {
	b.strategies = append(b.strategies, s)
	log.Printf("[bot] registered strategy %s", s.Name())
}

// SetEnabled toggles event processing.
func (b *Bot) SetEnabled(on bool) {
	b.mu.Lock()
	b.enabled = on
	b.mu.Unlock()
}

// OnEvent feeds one normalized event through every strategy. Events are
// processed under a single lock so strategy state never sees concurrent
// mutation.
func (b *Bot) OnEvent(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return
	}
	b.observeMark(ev)

	for _, s := range b.strategies {
		for _, o := range s.Analyze(ev) {
			o := o
			b.handleOrder(s.Name(), &o)
		}
	}
}

// observeMark keeps the latest traded price per symbol current.
func (b *Bot) observeMark(ev model.Event) {
	switch {
	case ev.Type == model.DataTypeKline && ev.Candle != nil:
		b.marks[ev.Symbol] = ev.Candle.Close
	case (ev.Type == model.DataTypeTrade || ev.Type == model.DataTypeAggTrade) && ev.Trade != nil:
		b.marks[ev.Symbol] = ev.Trade.Price
	default:
		return
	}
	b.account.MarkPrice(ev.Symbol, b.marks[ev.Symbol])
}

func (b *Bot) handleOrder(strategyName string, o *model.Order) {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.Strategy = strategyName

	mark := b.marks[o.Symbol]
	if mark.IsZero() {
		mark = o.Price
	}

	if ok, reason := b.risk.Check(o.Symbol, string(o.Side), o.Quantity, mark, b.account); !ok {
		o.Status = model.OrderStatusRejected
		o.Reason = reason
		log.Printf("[bot] rejected %s %s qty=%s: %s", o.Side, o.Symbol, o.Quantity, reason)
		b.emit(o)
		return
	}

	if b.analysisOnly {
		o.Status = model.OrderStatusNew
		log.Printf("[bot] analysis-only: would %s %s qty=%s (%s)", o.Side, o.Symbol, o.Quantity, o.Reason)
		b.emit(o)
		return
	}

	before := b.account.RealizedPnL()
	fill, err := b.account.Execute(o, mark)
	if err != nil {
		o.Status = model.OrderStatusRejected
		o.Reason = err.Error()
		log.Printf("[bot] execution failed for %s %s: %v", o.Side, o.Symbol, err)
		b.emit(o)
		return
	}
	b.risk.RecordPnL(b.account.RealizedPnL().Sub(before))

	o.Status = model.OrderStatusFilled
	o.Price = fill.FillPrice
	b.emit(o)
}

func (b *Bot) emit(o *model.Order) {
	if b.sink != nil {
		b.sink(o)
	}
}
