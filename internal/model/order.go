package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks the simulated order lifecycle.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Order is a candidate or executed simulated order produced by the bot.
type Order struct {
	OrderID   string          `json:"orderId"`
	Strategy  string          `json:"strategy"`
	Symbol    string          `json:"symbol"`
	Provider  string          `json:"provider"`
	Side      OrderSide       `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // zero = market
	Status    OrderStatus     `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Fill records a simulated execution of an order.
type Fill struct {
	OrderID   string          `json:"orderId"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	FillPrice decimal.Decimal `json:"fillPrice"`
	FillQty   decimal.Decimal `json:"fillQty"`
	FilledAt  time.Time       `json:"filledAt"`
}
