package notify

import (
	"strings"
	"time"

	"spotx/internal/models"
)

// tradeWire is the order.matched push payload sent to both sides of a trade.
type tradeWire struct {
	ID          int64     `json:"id"`
	BuyOrderID  int64     `json:"buy_order_id"`
	SellOrderID int64     `json:"sell_order_id"`
	BuyerID     int64     `json:"buyer_id"`
	SellerID    int64     `json:"seller_id"`
	Symbol      string    `json:"symbol"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	Total       string    `json:"total"`
	ExecutedAt  time.Time `json:"executed_at"`
}

func toTradeWire(t models.Trade) tradeWire {
	return tradeWire{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		Symbol:      t.Symbol,
		Price:       t.Price.StringFixed(8),
		Amount:      t.Amount.StringFixed(8),
		Total:       t.Total().StringFixed(8),
		ExecutedAt:  t.ExecutedAt,
	}
}

// orderWire is the order.status.updated push payload sent on a terminal
// order transition.
type orderWire struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Price           string    `json:"price"`
	Amount          string    `json:"amount"`
	FilledAmount    string    `json:"filled_amount"`
	RemainingAmount string    `json:"remaining_amount"`
	Status          int       `json:"status"`
	StatusText      string    `json:"status_text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toOrderWire(o models.Order) orderWire {
	return orderWire{
		ID:              o.ID,
		UserID:          o.UserID,
		Symbol:          o.Symbol,
		Side:            strings.ToLower(string(o.Side)),
		Price:           o.Price.StringFixed(8),
		Amount:          o.Amount.StringFixed(8),
		FilledAmount:    o.FilledAmount.StringFixed(8),
		RemainingAmount: o.Remaining().StringFixed(8),
		Status:          int(o.Status),
		StatusText:      o.Status.String(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
