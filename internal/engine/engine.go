// Package engine is the order lifecycle API and matching engine: it drives
// a submitted order through reservation, persistence, and price-time
// priority matching against the resting book, all inside one transaction.
package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"spotx/internal/events"
	"spotx/internal/models"
	"spotx/internal/money"
	"spotx/internal/reservation"
	"spotx/internal/store"
)

const maxSymbolLength = 10

// Publisher hands staged events to the notification transport after a
// transaction has committed. *notify.Dispatcher satisfies this.
type Publisher interface {
	Publish(evts ...events.Event)
}

// Recorder receives engine telemetry. *metrics.Collector satisfies this;
// a nil Recorder disables instrumentation entirely.
type Recorder interface {
	RecordSubmit(symbol, side string, trades int, volume float64, latency time.Duration)
	RecordCancel(symbol string)
	RecordReservationFailure(reason string)
}

// Engine is the order lifecycle API and matching engine over the
// user/asset/reservation/fee model of spot-exchange orders.
type Engine struct {
	store     *store.Store
	publisher Publisher
	recorder  Recorder

	orderBooks    map[string]*OrderBook
	symbolMutexes map[string]*sync.Mutex
	booksMu       sync.RWMutex
}

// New constructs an Engine over an already-connected store. recorder may
// be nil.
func New(s *store.Store, publisher Publisher, recorder Recorder) *Engine {
	return &Engine{
		store:         s,
		publisher:     publisher,
		recorder:      recorder,
		orderBooks:    make(map[string]*OrderBook),
		symbolMutexes: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) record(f func(Recorder)) {
	if e.recorder != nil {
		f(e.recorder)
	}
}

func (e *Engine) symbolMutex(symbol string) *sync.Mutex {
	e.booksMu.RLock()
	m, ok := e.symbolMutexes[symbol]
	e.booksMu.RUnlock()
	if ok {
		return m
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if m, ok = e.symbolMutexes[symbol]; ok {
		return m
	}
	m = &sync.Mutex{}
	e.symbolMutexes[symbol] = m
	return m
}

func (e *Engine) orderBook(symbol string) *OrderBook {
	e.booksMu.RLock()
	ob, ok := e.orderBooks[symbol]
	e.booksMu.RUnlock()
	if ok {
		return ob
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if ob, ok = e.orderBooks[symbol]; ok {
		return ob
	}
	ob = NewOrderBook(symbol)
	e.orderBooks[symbol] = ob
	return ob
}

// LoadOpenOrders restores in-memory order books from the store at startup.
func (e *Engine) LoadOpenOrders(symbols []string) error {
	loaded := 0
	for _, symbol := range symbols {
		orders, err := e.store.ListOpenOrders(symbol)
		if err != nil {
			return fmt.Errorf("load open orders for %s: %w", symbol, err)
		}
		book := e.orderBook(symbol)
		for _, o := range orders {
			book.AddOrder(o)
			loaded++
		}
	}
	log.Info().Int("count", loaded).Msg("engine: loaded open orders")
	return nil
}

// SubmitRequest is the validated input to Submit.
type SubmitRequest struct {
	UserID int64
	Symbol string
	Side   models.OrderSide
	Price  decimal.Decimal
	Amount decimal.Decimal
}

func validate(req SubmitRequest) error {
	if len(req.Symbol) == 0 || len(req.Symbol) > maxSymbolLength {
		return fmt.Errorf("%w: symbol must be 1-%d characters", ErrValidation, maxSymbolLength)
	}
	if req.Side != models.Buy && req.Side != models.Sell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if !money.IsPositive(req.Price) {
		return fmt.Errorf("%w: price must be > 0", ErrValidation)
	}
	if !money.IsPositive(req.Amount) {
		return fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	return nil
}

// maxConflictRetries bounds how many times Submit/Cancel retry a
// transaction that failed on a MySQL deadlock or lock-wait-timeout before
// giving up and surfacing ErrStoreConflict.
const maxConflictRetries = 3

// Submit reserves funds/inventory, persists the order as OPEN, matches it
// against the resting book, and returns the order's post-match state.
func (e *Engine) Submit(req SubmitRequest) (*models.Order, []*models.Trade, error) {
	if err := validate(req); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	mu := e.symbolMutex(req.Symbol)
	mu.Lock()
	defer mu.Unlock()

	var order *models.Order
	var trades []*models.Trade
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		order, trades, err = e.submitOnce(req)
		if err == nil || !store.IsRetryable(err) {
			break
		}
	}
	if err != nil && store.IsRetryable(err) {
		err = ErrStoreConflict
	}

	if err != nil {
		if reason := reservationFailureReason(err); reason != "" {
			e.record(func(r Recorder) { r.RecordReservationFailure(reason) })
		}
		return nil, nil, err
	}

	volume := 0.0
	for _, t := range trades {
		f, _ := t.Amount.Float64()
		volume += f
	}
	e.record(func(r Recorder) {
		r.RecordSubmit(req.Symbol, string(req.Side), len(trades), volume, time.Since(start))
	})
	return order, trades, nil
}

func (e *Engine) submitOnce(req SubmitRequest) (*models.Order, []*models.Trade, error) {
	tx, err := e.store.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := reservation.Reserve(tx, e.store, req.UserID, req.Symbol, req.Side, req.Price, req.Amount); err != nil {
		tx.Rollback()
		return nil, nil, mapReservationErr(err)
	}

	now := time.Now()
	order := &models.Order{
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Amount:    req.Amount,
		Status:    models.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertOrder(tx, order); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	book := e.orderBook(req.Symbol)
	candidates := book.Candidates(order)
	plan := Plan(order, candidates, now)

	var staged events.Staging
	trades := make([]*models.Trade, 0, len(plan.Fills))
	for _, fill := range plan.Fills {
		trade, err := e.settle(tx, order, &fill, &staged)
		if err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		trades = append(trades, trade)
	}

	finalOrder := plan.Taker
	if err := e.store.UpdateOrder(tx, &finalOrder); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if finalOrder.Status == models.StatusFilled {
		staged.Add(events.NewOrderStatusUpdated(finalOrder))
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Reflect the match outcome in the in-memory book now that it is durable.
	for _, fill := range plan.Fills {
		counter := fill.Counter
		if counter.Status == models.StatusFilled {
			book.RemoveOrder(counter.ID, counter.Side, counter.Price)
			continue
		}
		book.mutex.Lock()
		levels := book.Asks
		if counter.Side == models.Buy {
			levels = book.Bids
		}
		if pl := levels[counter.Price.String()]; pl != nil {
			for i, o := range pl.Orders {
				if o.ID == counter.ID {
					pl.Orders[i] = &counter
				}
			}
		}
		book.mutex.Unlock()
	}
	if finalOrder.Status == models.StatusOpen {
		book.AddOrder(&finalOrder)
	}

	e.publish(staged.Drain())

	return &finalOrder, trades, nil
}

// settle applies one fill's settlement inside tx: locks and updates the
// buyer/seller asset rows, credits the buyer's refund (only when positive)
// and the seller's proceeds, updates the counter order, inserts the trade,
// and stages its events.
func (e *Engine) settle(tx *sql.Tx, taker *models.Order, fill *Fill, staged *events.Staging) (*models.Trade, error) {
	var buyOrder, sellOrder *models.Order
	if taker.Side == models.Buy {
		buyOrder, sellOrder = taker, &fill.Counter
	} else {
		buyOrder, sellOrder = &fill.Counter, taker
	}

	buyerAsset, err := e.store.LockOrCreateAsset(tx, buyOrder.UserID, taker.Symbol)
	if err != nil {
		return nil, fmt.Errorf("lock buyer asset: %w", err)
	}
	sellerAsset, err := e.store.LockAsset(tx, sellOrder.UserID, taker.Symbol)
	if err != nil {
		return nil, fmt.Errorf("lock seller asset: %w", err)
	}

	buyerAsset.Amount = money.Add(buyerAsset.Amount, fill.Amount)
	if err := e.store.UpdateAsset(tx, buyerAsset); err != nil {
		return nil, err
	}

	sellerAsset.LockedAmount = money.Sub(sellerAsset.LockedAmount, fill.Amount)
	sellerAsset.Amount = money.Sub(sellerAsset.Amount, fill.Amount)
	if err := e.store.UpdateAsset(tx, sellerAsset); err != nil {
		return nil, err
	}

	if money.IsPositive(fill.Delta.BuyerRefund) {
		buyer, err := e.store.LockUser(tx, buyOrder.UserID)
		if err != nil {
			return nil, fmt.Errorf("lock buyer: %w", err)
		}
		if err := e.store.UpdateUserBalance(tx, buyer.ID, money.Add(buyer.Balance, fill.Delta.BuyerRefund)); err != nil {
			return nil, err
		}
	}

	seller, err := e.store.LockUser(tx, sellOrder.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock seller: %w", err)
	}
	if err := e.store.UpdateUserBalance(tx, seller.ID, money.Add(seller.Balance, fill.Delta.SellerCredit)); err != nil {
		return nil, err
	}

	counter := fill.Counter
	if err := e.store.UpdateOrder(tx, &counter); err != nil {
		return nil, err
	}
	if counter.Status == models.StatusFilled {
		staged.Add(events.NewOrderStatusUpdated(counter))
	}

	trade := &models.Trade{
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		BuyerID:     buyOrder.UserID,
		SellerID:    sellOrder.UserID,
		Symbol:      taker.Symbol,
		Price:       fill.Price,
		Amount:      fill.Amount,
		ExecutedAt:  counter.UpdatedAt,
	}
	if err := e.store.InsertTrade(tx, trade); err != nil {
		return nil, err
	}
	staged.Add(events.NewOrderMatched(*trade))

	return trade, nil
}

// Cancel verifies ownership, refunds the unfilled reservation, and
// transitions the order to CANCELLED.
func (e *Engine) Cancel(userID, orderID int64) (*models.Order, error) {
	existing, err := e.store.GetOrder(orderID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrNotFound
	}

	mu := e.symbolMutex(existing.Symbol)
	mu.Lock()
	defer mu.Unlock()

	var order *models.Order
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		order, err = e.cancelOnce(userID, orderID)
		if err == nil || !store.IsRetryable(err) {
			return order, err
		}
	}
	return nil, ErrStoreConflict
}

func (e *Engine) cancelOnce(userID, orderID int64) (*models.Order, error) {
	tx, err := e.store.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	order, err := e.store.LockOrder(tx, orderID)
	if err != nil {
		tx.Rollback()
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if order.Status != models.StatusOpen {
		tx.Rollback()
		return nil, ErrCannotCancel
	}

	if err := reservation.Refund(tx, e.store, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	order.Status = models.StatusCancelled
	order.UpdatedAt = time.Now()
	if err := e.store.UpdateOrder(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	e.orderBook(order.Symbol).RemoveOrder(order.ID, order.Side, order.Price)
	e.publish([]events.Event{events.NewOrderStatusUpdated(*order)})
	e.record(func(r Recorder) { r.RecordCancel(order.Symbol) })

	return order, nil
}

// List returns a user's orders, newest first.
func (e *Engine) List(userID int64) ([]*models.Order, error) {
	return e.store.ListOrdersByUser(userID)
}

// Book returns all OPEN orders for a symbol in book priority order:
// buys by (price DESC, created_at ASC), sells by (price ASC, created_at ASC).
func (e *Engine) Book(symbol string) (buys, sells []*models.Order) {
	ob := e.orderBook(symbol)
	bidLevels, askLevels := ob.TopLevels(0)
	for _, lvl := range bidLevels {
		buys = append(buys, lvl.Orders...)
	}
	for _, lvl := range askLevels {
		sells = append(sells, lvl.Orders...)
	}
	return buys, sells
}

func (e *Engine) publish(evts []events.Event) {
	if len(evts) == 0 || e.publisher == nil {
		return
	}
	e.publisher.Publish(evts...)
}

func mapReservationErr(err error) error {
	switch err {
	case reservation.ErrInsufficientBalance:
		return ErrInsufficientBalance
	case reservation.ErrInsufficientAsset:
		return ErrInsufficientAsset
	case reservation.ErrAssetNotFound:
		return ErrAssetNotFound
	default:
		return err
	}
}

func reservationFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientAsset):
		return "insufficient_asset"
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	default:
		return ""
	}
}
