package engine

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"spotx/internal/models"
)

// PriceLevel is a FIFO queue of resting orders at a single price, holding
// full ledger orders rather than bare price/quantity pairs.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*models.Order
}

// Add appends an order to the end of the price level (FIFO = time
// priority at equal price).
func (pl *PriceLevel) Add(order *models.Order) {
	pl.Orders = append(pl.Orders, order)
}

// Remove deletes an order by id, preserving FIFO order for the rest.
func (pl *PriceLevel) Remove(orderID int64) bool {
	for i, o := range pl.Orders {
		if o.ID == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty reports whether the price level has no orders.
func (pl *PriceLevel) IsEmpty() bool { return len(pl.Orders) == 0 }

// TotalQuantity sums remaining amounts at this price level.
func (pl *PriceLevel) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, o := range pl.Orders {
		total = total.Add(o.Remaining())
	}
	return total
}

// OrderBook is the in-memory, price-time-priority view of a single
// symbol's resting OPEN orders. It is a cache: authoritative state lives
// in the store, and the book is rebuilt from it on startup (see
// Engine.LoadOpenOrders). Within a symbol, all mutation is serialized by
// the Engine's per-symbol mutex, so the book's own mutex only needs to
// protect concurrent reads (e.g. GET /orders) against that single writer.
type OrderBook struct {
	Symbol string

	Bids map[string]*PriceLevel // indexed by price.String()
	Asks map[string]*PriceLevel

	bidPrices []decimal.Decimal // cached, sorted descending
	askPrices []decimal.Decimal // cached, sorted ascending

	mutex sync.RWMutex
}

// NewOrderBook constructs an empty OrderBook for symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		Bids:   make(map[string]*PriceLevel),
		Asks:   make(map[string]*PriceLevel),
	}
}

// AddOrder inserts an OPEN order into the book.
func (ob *OrderBook) AddOrder(order *models.Order) {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	priceKey := order.Price.String()
	if order.Side == models.Buy {
		if ob.Bids[priceKey] == nil {
			ob.Bids[priceKey] = &PriceLevel{Price: order.Price}
		}
		ob.Bids[priceKey].Add(order)
		ob.refreshBidPrices()
		return
	}

	if ob.Asks[priceKey] == nil {
		ob.Asks[priceKey] = &PriceLevel{Price: order.Price}
	}
	ob.Asks[priceKey].Add(order)
	ob.refreshAskPrices()
}

// RemoveOrder deletes an order by id, side, and price.
func (ob *OrderBook) RemoveOrder(orderID int64, side models.OrderSide, price decimal.Decimal) bool {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	priceKey := price.String()
	if side == models.Buy {
		if pl := ob.Bids[priceKey]; pl != nil && pl.Remove(orderID) {
			if pl.IsEmpty() {
				delete(ob.Bids, priceKey)
				ob.refreshBidPrices()
			}
			return true
		}
		return false
	}

	if pl := ob.Asks[priceKey]; pl != nil && pl.Remove(orderID) {
		if pl.IsEmpty() {
			delete(ob.Asks, priceKey)
			ob.refreshAskPrices()
		}
		return true
	}
	return false
}

// Candidates returns the eligible resting counter-orders for taker, in
// price-time priority order, excluding taker's own orders (self-trade
// filter). A buy taker sees asks priced <= its price, cheapest first; a
// sell taker sees bids priced >= its price, richest first. Ties in price
// fall back to created_at, then id.
func (ob *OrderBook) Candidates(taker *models.Order) []*models.Order {
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()

	var levels map[string]*PriceLevel
	var prices []decimal.Decimal
	if taker.Side == models.Buy {
		levels, prices = ob.Asks, ob.askPrices
	} else {
		levels, prices = ob.Bids, ob.bidPrices
	}

	var out []*models.Order
	for _, price := range prices {
		if taker.Side == models.Buy && price.GreaterThan(taker.Price) {
			break
		}
		if taker.Side == models.Sell && price.LessThan(taker.Price) {
			break
		}
		pl := levels[price.String()]
		if pl == nil {
			continue
		}
		for _, o := range pl.Orders {
			if o.UserID == taker.UserID {
				continue
			}
			out = append(out, o)
		}
	}
	return out
}

// TopLevels returns up to depth aggregated price levels for each side, in
// book priority order, for GET /orders responses. A depth <= 0 returns
// every level.
func (ob *OrderBook) TopLevels(depth int) (bids, asks []PriceLevel) {
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()

	bids = collectLevels(ob.Bids, ob.bidPrices, depth)
	asks = collectLevels(ob.Asks, ob.askPrices, depth)
	return bids, asks
}

func collectLevels(levels map[string]*PriceLevel, prices []decimal.Decimal, depth int) []PriceLevel {
	n := depth
	if n <= 0 || n > len(prices) {
		n = len(prices)
	}
	out := make([]PriceLevel, 0, n)
	for i := 0; i < n; i++ {
		if pl := levels[prices[i].String()]; pl != nil && !pl.IsEmpty() {
			out = append(out, PriceLevel{Price: prices[i], Orders: pl.Orders})
		}
	}
	return out
}

func (ob *OrderBook) refreshBidPrices() {
	ob.bidPrices = ob.bidPrices[:0]
	for _, pl := range ob.Bids {
		if !pl.IsEmpty() {
			ob.bidPrices = append(ob.bidPrices, pl.Price)
		}
	}
	sort.Slice(ob.bidPrices, func(i, j int) bool {
		return ob.bidPrices[i].GreaterThan(ob.bidPrices[j])
	})
}

func (ob *OrderBook) refreshAskPrices() {
	ob.askPrices = ob.askPrices[:0]
	for _, pl := range ob.Asks {
		if !pl.IsEmpty() {
			ob.askPrices = append(ob.askPrices, pl.Price)
		}
	}
	sort.Slice(ob.askPrices, func(i, j int) bool {
		return ob.askPrices[i].LessThan(ob.askPrices[j])
	})
}
