package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"spotx/internal/models"
	"spotx/internal/money"
)

// Fill is one execution produced by Plan: the counter order's state after
// the fill, the amount and price traded, and the settlement arithmetic for
// that slice.
type Fill struct {
	Counter models.Order // counter order's post-fill state (copy)
	Amount  decimal.Decimal
	Price   decimal.Decimal
	Delta   SettlementDelta
}

// BuyOrderID and SellOrderID identify which side of the fill is the buy
// and sell order, independent of which one was the taker.
func (f Fill) BuyOrderID(taker *models.Order) int64 {
	if taker.Side == models.Buy {
		return taker.ID
	}
	return f.Counter.ID
}

// SellOrderID is the complement of BuyOrderID.
func (f Fill) SellOrderID(taker *models.Order) int64 {
	if taker.Side == models.Sell {
		return taker.ID
	}
	return f.Counter.ID
}

// MatchPlan is the result of walking a taker order through the book: the
// taker's post-match state and the ordered list of fills against resting
// counter-orders. Nothing here has been persisted or applied to the live
// book yet — see Engine.Submit for that.
type MatchPlan struct {
	Taker models.Order
	Fills []Fill
}

// Plan drives taker through candidates (already price/self-trade filtered
// and in price-time priority order, see OrderBook.Candidates) and computes
// the resulting fills using price-time priority: match_amount is the
// smaller of the two remaining amounts, match_price is always the
// candidate's (maker's) resting price.
func Plan(taker *models.Order, candidates []*models.Order, now time.Time) *MatchPlan {
	plan := &MatchPlan{Taker: *taker}
	remaining := plan.Taker.Remaining()

	for _, c := range candidates {
		if remaining.IsZero() {
			break
		}
		counterRemaining := c.Remaining()
		if counterRemaining.IsZero() {
			continue
		}

		amount := money.Min(remaining, counterRemaining)
		price := c.Price

		var buyPrice decimal.Decimal
		if plan.Taker.Side == models.Buy {
			buyPrice = plan.Taker.Price
		} else {
			buyPrice = c.Price
		}
		delta := ComputeSettlement(buyPrice, price, amount)

		counter := *c
		counter.FilledAmount = money.Add(counter.FilledAmount, amount)
		counter.UpdatedAt = now
		if counter.Remaining().IsZero() {
			counter.Status = models.StatusFilled
		}

		plan.Fills = append(plan.Fills, Fill{Counter: counter, Amount: amount, Price: price, Delta: delta})

		remaining = money.Sub(remaining, amount)
		plan.Taker.FilledAmount = money.Add(plan.Taker.FilledAmount, amount)
	}

	plan.Taker.UpdatedAt = now
	if plan.Taker.Remaining().IsZero() {
		plan.Taker.Status = models.StatusFilled
	}
	return plan
}
