package model

import "github.com/shopspring/decimal"

// Position represents an aggregated simulated position on one symbol.
type Position struct {
	Symbol      string          `json:"symbol"`
	Provider    string          `json:"provider"`
	Quantity    decimal.Decimal `json:"quantity"` // positive = long, negative = short
	AvgPrice    decimal.Decimal `json:"avgPrice"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
}

// UnrealizedPnL computes (lastPrice − avgPrice) · quantity.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.LastPrice.Sub(p.AvgPrice).Mul(p.Quantity)
}

// Exposure returns |quantity| · lastPrice, the notional at risk.
func (p *Position) Exposure() decimal.Decimal {
	return p.Quantity.Abs().Mul(p.LastPrice)
}
