package bot

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketflow/internal/model"
)

// Account executes accepted orders against a balance and position book.
type Account interface {
	// Execute fills the order at mark (adjusted for simulated slippage)
	// and returns the fill.
	Execute(o *model.Order, mark decimal.Decimal) (*model.Fill, error)

	// MarkPrice feeds the latest traded price for unrealized PnL.
	MarkPrice(symbol string, price decimal.Decimal)

	Position(symbol string) (model.Position, bool)
	Positions() []model.Position
	Balance() decimal.Decimal
	Equity() decimal.Decimal
	RealizedPnL() decimal.Decimal
}

var bps = decimal.NewFromInt(10000)

// SimAccount is an in-memory paper account. Fills are immediate at the
// mark price plus configured slippage; positions use weighted-average
// cost basis.
type SimAccount struct {
	mu          sync.RWMutex
	balance     decimal.Decimal
	slippageBps decimal.Decimal
	positions   map[string]*model.Position
	fills       []model.Fill
	realized    decimal.Decimal
}

// NewSimAccount creates a paper account with the given starting balance.
// slippageBps is simulated slippage in basis points (5 = 0.05%).
func NewSimAccount(balance decimal.Decimal, slippageBps int64) *SimAccount {
	return &SimAccount{
		balance:     balance,
		slippageBps: decimal.NewFromInt(slippageBps),
		positions:   make(map[string]*model.Position),
		fills:       make([]model.Fill, 0, 256),
	}
}

func (a *SimAccount) Execute(o *model.Order, mark decimal.Decimal) (*model.Fill, error) {
	if mark.IsZero() {
		return nil, fmt.Errorf("no mark price for %s", o.Symbol)
	}
	if !o.Quantity.IsPositive() {
		return nil, fmt.Errorf("non-positive quantity %s", o.Quantity)
	}

	// Slippage works against the taker on both sides.
	fillPrice := mark
	if a.slippageBps.IsPositive() {
		slip := mark.Mul(a.slippageBps).Div(bps)
		if o.Side == model.OrderSideBuy {
			fillPrice = fillPrice.Add(slip)
		} else {
			fillPrice = fillPrice.Sub(slip)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.positions[o.Symbol]
	if !ok {
		pos = &model.Position{Symbol: o.Symbol, Provider: o.Provider}
		a.positions[o.Symbol] = pos
	}

	signed := o.Quantity
	if o.Side == model.OrderSideSell {
		signed = signed.Neg()
	}

	realized := a.apply(pos, signed, fillPrice)
	pos.LastPrice = fillPrice
	a.realized = a.realized.Add(realized)
	a.balance = a.balance.Add(realized)
	if pos.Quantity.IsZero() {
		delete(a.positions, o.Symbol)
	}

	fill := model.Fill{
		OrderID:   o.OrderID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		FillPrice: fillPrice,
		FillQty:   o.Quantity,
		FilledAt:  time.Now().UTC(),
	}
	a.fills = append(a.fills, fill)

	log.Printf("[account] %s %s qty=%s price=%s realized=%s balance=%s",
		o.Side, o.Symbol, o.Quantity, fillPrice, realized, a.balance)
	return &fill, nil
}

// apply folds a signed fill into the position and returns the realized PnL.
// Caller holds the lock.
func (a *SimAccount) apply(pos *model.Position, qty, price decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero

	switch {
	case pos.Quantity.IsZero():
		pos.Quantity = qty
		pos.AvgPrice = price

	case pos.Quantity.Sign() == qty.Sign():
		// Adding to the position: weighted-average entry.
		totalCost := pos.AvgPrice.Mul(pos.Quantity.Abs()).Add(price.Mul(qty.Abs()))
		pos.Quantity = pos.Quantity.Add(qty)
		pos.AvgPrice = totalCost.Div(pos.Quantity.Abs())

	default:
		// Reducing, closing, or flipping.
		closeQty := decimal.Min(pos.Quantity.Abs(), qty.Abs())
		diff := price.Sub(pos.AvgPrice)
		if pos.Quantity.Sign() < 0 {
			diff = diff.Neg()
		}
		realized = diff.Mul(closeQty)
		pos.Quantity = pos.Quantity.Add(qty)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		if pos.Quantity.Sign() == qty.Sign() && !pos.Quantity.IsZero() {
			// Flipped through flat: the remainder opens at the fill price.
			pos.AvgPrice = price
		}
		if pos.Quantity.IsZero() {
			pos.AvgPrice = decimal.Zero
		}
	}
	return realized
}

func (a *SimAccount) MarkPrice(symbol string, price decimal.Decimal) {
	a.mu.Lock()
	if pos, ok := a.positions[symbol]; ok {
		pos.LastPrice = price
	}
	a.mu.Unlock()
}

func (a *SimAccount) Position(symbol string) (model.Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pos, ok := a.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

func (a *SimAccount) Positions() []model.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out
}

func (a *SimAccount) Balance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

// Equity is balance plus unrealized PnL across open positions.
func (a *SimAccount) Equity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	eq := a.balance
	for _, p := range a.positions {
		eq = eq.Add(p.UnrealizedPnL())
	}
	return eq
}

func (a *SimAccount) RealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realized
}

// Fills returns a snapshot of the fill journal.
func (a *SimAccount) Fills() []model.Fill {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cp := make([]model.Fill, len(a.fills))
	copy(cp, a.fills)
	return cp
}
