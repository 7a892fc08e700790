package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one resting level of an order book side.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot is a point-in-time view of the book for a symbol.
// Bids are ordered by descending price, asks by ascending price.
type OrderBookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Provider  string       `json:"provider"`
	UpdateID  int64        `json:"updateId"`
	Timestamp time.Time    `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid, or a zero level if the side is empty.
func (ob *OrderBookSnapshot) BestBid() PriceLevel {
	if len(ob.Bids) == 0 {
		return PriceLevel{}
	}
	return ob.Bids[0]
}

// BestAsk returns the lowest ask, or a zero level if the side is empty.
func (ob *OrderBookSnapshot) BestAsk() PriceLevel {
	if len(ob.Asks) == 0 {
		return PriceLevel{}
	}
	return ob.Asks[0]
}

// Spread returns bestAsk − bestBid, or zero when either side is empty.
func (ob *OrderBookSnapshot) Spread() decimal.Decimal {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return decimal.Zero
	}
	return ob.Asks[0].Price.Sub(ob.Bids[0].Price)
}

// MidPrice returns (bestBid + bestAsk) / 2, or zero when either side is empty.
func (ob *OrderBookSnapshot) MidPrice() decimal.Decimal {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return decimal.Zero
	}
	return ob.Bids[0].Price.Add(ob.Asks[0].Price).Div(decimal.NewFromInt(2))
}

// CumulativeVolume sums resting quantity over the top depth levels of one side.
func CumulativeVolume(levels []PriceLevel, depth int) decimal.Decimal {
	if depth > len(levels) {
		depth = len(levels)
	}
	total := decimal.Zero
	for i := 0; i < depth; i++ {
		total = total.Add(levels[i].Quantity)
	}
	return total
}
