package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single print (or a compressed aggregate print) on a symbol.
// For aggregate trades FirstID/LastID carry the compressed id range; for
// individual trades both are zero.
type Trade struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	Provider     string          `json:"provider"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	QuoteQty     decimal.Decimal `json:"quoteQty"`
	Timestamp    time.Time       `json:"timestamp"`
	BuyerIsMaker bool            `json:"buyerIsMaker"`
	FirstID      int64           `json:"firstId,omitempty"`
	LastID       int64           `json:"lastId,omitempty"`
}

// AggressiveBuy reports whether the aggressor side was the buyer.
func (t *Trade) AggressiveBuy() bool {
	return !t.BuyerIsMaker
}

// BookTicker carries the best bid and best ask for a symbol.
type BookTicker struct {
	Symbol   string          `json:"symbol"`
	Provider string          `json:"provider"`
	UpdateID int64           `json:"updateId"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

// Spread returns ask − bid.
func (b *BookTicker) Spread() decimal.Decimal {
	return b.AskPrice.Sub(b.BidPrice)
}
