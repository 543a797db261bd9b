// Package events defines the typed events the matching engine produces and
// the staging discipline used to publish them: events are collected during
// a transaction and only handed to the engine's Publisher after that
// transaction commits, so a rolled-back match never notifies anyone.
package events

import (
	"github.com/google/uuid"

	"spotx/internal/models"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindOrderMatched       Kind = "order.matched"
	KindOrderStatusUpdated Kind = "order.status.updated"
)

// OrderMatched is routed to both the buyer and the seller of a trade.
type OrderMatched struct {
	ID       string
	Trade    models.Trade
	BuyerID  int64
	SellerID int64
}

// Recipients returns the user ids this event must be delivered to.
func (e OrderMatched) Recipients() []int64 { return []int64{e.BuyerID, e.SellerID} }

// Kind implements Event.
func (e OrderMatched) Kind() Kind { return KindOrderMatched }

// OrderStatusUpdated is routed to the order's owner. Emitted on every
// terminal transition (FILLED or CANCELLED); not emitted for partial fills.
type OrderStatusUpdated struct {
	ID    string
	Order models.Order
}

// Recipients returns the user ids this event must be delivered to.
func (e OrderStatusUpdated) Recipients() []int64 { return []int64{e.Order.UserID} }

// Kind implements Event.
func (e OrderStatusUpdated) Kind() Kind { return KindOrderStatusUpdated }

// Event is anything that can be staged during a transaction and routed to
// recipients after commit.
type Event interface {
	Kind() Kind
	Recipients() []int64
}

// NewOrderMatched builds an OrderMatched event with a fresh event id.
func NewOrderMatched(trade models.Trade) OrderMatched {
	return OrderMatched{
		ID:       uuid.NewString(),
		Trade:    trade,
		BuyerID:  trade.BuyerID,
		SellerID: trade.SellerID,
	}
}

// NewOrderStatusUpdated builds an OrderStatusUpdated event with a fresh
// event id.
func NewOrderStatusUpdated(order models.Order) OrderStatusUpdated {
	return OrderStatusUpdated{ID: uuid.NewString(), Order: order}
}

// Staging accumulates events produced inside a single transaction. Call
// Drain after the transaction commits and publish the result; discard it
// on rollback.
type Staging struct {
	events []Event
}

// Add appends an event to the staging buffer.
func (s *Staging) Add(e Event) { s.events = append(s.events, e) }

// Drain returns and clears the staged events.
func (s *Staging) Drain() []Event {
	out := s.events
	s.events = nil
	return out
}
