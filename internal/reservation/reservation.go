// Package reservation implements the debit/lock-on-submit,
// refund-on-cancel discipline: buy orders reserve cash up front, sell
// orders lock inventory up front, and cancelling an unfilled order is the
// exact inverse.
package reservation

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"spotx/internal/models"
	"spotx/internal/money"
	"spotx/internal/store"
)

// ErrInsufficientBalance is returned when a buyer's unlocked balance can't
// cover the order's notional plus commission.
var ErrInsufficientBalance = errors.New("reservation: insufficient balance")

// ErrInsufficientAsset is returned when a seller's available (unlocked)
// asset amount can't cover the order amount.
var ErrInsufficientAsset = errors.New("reservation: insufficient asset")

// ErrAssetNotFound is returned when a sell order is placed against a
// symbol the user holds no asset row for.
var ErrAssetNotFound = errors.New("reservation: asset not found")

// Reserve debits cash (buy) or locks inventory (sell) for a new order. It
// must run inside the same transaction that persists the order.
func Reserve(tx *sql.Tx, s *store.Store, userID int64, symbol string, side models.OrderSide, price, amount decimal.Decimal) error {
	if side == models.Buy {
		return reserveBuy(tx, s, userID, price, amount)
	}
	return reserveSell(tx, s, userID, symbol, amount)
}

func reserveBuy(tx *sql.Tx, s *store.Store, userID int64, price, amount decimal.Decimal) error {
	user, err := s.LockUser(tx, userID)
	if err != nil {
		return err
	}
	required := money.WithCommission(money.Notional(price, amount))
	if money.Cmp(user.Balance, required) < 0 {
		return ErrInsufficientBalance
	}
	return s.UpdateUserBalance(tx, userID, money.Sub(user.Balance, required))
}

func reserveSell(tx *sql.Tx, s *store.Store, userID int64, symbol string, amount decimal.Decimal) error {
	asset, err := s.LockAsset(tx, userID, symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAssetNotFound
		}
		return err
	}
	if money.Cmp(asset.Available(), amount) < 0 {
		return ErrInsufficientAsset
	}
	asset.LockedAmount = money.Add(asset.LockedAmount, amount)
	return s.UpdateAsset(tx, asset)
}

// Refund reverses a reservation for the unfilled remainder of a cancelled
// order. A missing asset row on a sell-cancel is tolerated silently — the
// balance was never reserved anywhere else.
func Refund(tx *sql.Tx, s *store.Store, order *models.Order) error {
	remaining := order.Remaining()
	if remaining.IsZero() {
		return nil
	}
	if order.Side == models.Buy {
		return refundBuy(tx, s, order.UserID, order.Price, remaining)
	}
	return refundSell(tx, s, order.UserID, order.Symbol, remaining)
}

func refundBuy(tx *sql.Tx, s *store.Store, userID int64, price, remaining decimal.Decimal) error {
	user, err := s.LockUser(tx, userID)
	if err != nil {
		return err
	}
	credit := money.WithCommission(money.Notional(price, remaining))
	return s.UpdateUserBalance(tx, userID, money.Add(user.Balance, credit))
}

func refundSell(tx *sql.Tx, s *store.Store, userID int64, symbol string, remaining decimal.Decimal) error {
	asset, err := s.LockAsset(tx, userID, symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	asset.LockedAmount = money.Sub(asset.LockedAmount, remaining)
	return s.UpdateAsset(tx, asset)
}
