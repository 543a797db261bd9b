// Package models holds the data model shared across the store, reservation,
// engine, and transport layers: users, per-symbol asset positions, orders,
// and trades. All monetary and quantity fields are scale-8 decimals; see
// internal/money.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the side of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of an order, persisted as the integer
// codes 1=OPEN, 2=FILLED, 3=CANCELLED.
type OrderStatus int

const (
	StatusOpen      OrderStatus = 1
	StatusFilled    OrderStatus = 2
	StatusCancelled OrderStatus = 3
)

// String renders the wire-format status text used in JSON responses.
func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// User holds a cash balance. Balance is unlocked cash; it never goes
// negative.
type User struct {
	ID      int64
	Name    string
	Email   string
	Balance decimal.Decimal
}

// Asset is a user's inventory of a symbol. Amount is total held;
// LockedAmount is reserved by open sell orders.
type Asset struct {
	UserID       int64
	Symbol       string
	Amount       decimal.Decimal
	LockedAmount decimal.Decimal
}

// Available returns the unlocked portion of the asset.
func (a *Asset) Available() decimal.Decimal {
	return a.Amount.Sub(a.LockedAmount)
}

// Order is a resting or historical limit order.
type Order struct {
	ID           int64
	UserID       int64
	Symbol       string
	Side         OrderSide
	Price        decimal.Decimal
	Amount       decimal.Decimal
	FilledAmount decimal.Decimal
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining returns the unfilled portion of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

// Trade is an immutable record of one execution between two orders.
type Trade struct {
	ID          int64
	BuyOrderID  int64
	SellOrderID int64
	BuyerID     int64
	SellerID    int64
	Symbol      string
	Price       decimal.Decimal
	Amount      decimal.Decimal
	ExecutedAt  time.Time
}

// Total returns price*amount for the trade.
func (t *Trade) Total() decimal.Decimal {
	return t.Price.Mul(t.Amount)
}
