package engine

import (
	"github.com/shopspring/decimal"

	"spotx/internal/money"
)

// SettlementDelta is the pure arithmetic result of executing one match at
// a given price and amount, independent of any store write. Computing it
// separately from the store-writing settle() lets the money math be unit
// tested without a database.
//
// The buyer was already debited reservedPrice*matchAmount*1.015 at order
// submission, so settlement never debits a second time. It instead refunds
// the difference between what was reserved for this slice (at the order's
// own limit price) and what was actually spent (at the maker's, possibly
// cheaper, price).
type SettlementDelta struct {
	Amount       decimal.Decimal
	Total        decimal.Decimal // matchPrice * matchAmount
	Commission   decimal.Decimal // 1.5% of Total
	BuyerRefund  decimal.Decimal // reserved-for-slice minus executed-for-slice, credited to buyer
	SellerCredit decimal.Decimal // Total, credited to seller (no commission)
}

// ComputeSettlement computes the settlement deltas for one match.
// reservedPrice is the buy order's own limit price (what was reserved at
// submission); matchPrice is the maker's resting price (what actually
// executes, per price-time priority's "taker pays maker's price" rule).
func ComputeSettlement(reservedPrice, matchPrice, matchAmount decimal.Decimal) SettlementDelta {
	total := money.Notional(matchPrice, matchAmount)
	commission := money.Commission(total)
	executed := money.Add(total, commission)
	reserved := money.WithCommission(money.Notional(reservedPrice, matchAmount))

	return SettlementDelta{
		Amount:       matchAmount,
		Total:        total,
		Commission:   commission,
		BuyerRefund:  money.Sub(reserved, executed),
		SellerCredit: total,
	}
}
