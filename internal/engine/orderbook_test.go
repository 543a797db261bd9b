package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotx/internal/models"
)

func TestOrderBook_CandidatesSortedByPriceThenTime(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("BTCUSD")
	book.AddOrder(newOrder(1, 10, "BTCUSD", models.Sell, "50000", "1", now.Add(-3*time.Minute)))
	book.AddOrder(newOrder(2, 11, "BTCUSD", models.Sell, "49000", "1", now.Add(-2*time.Minute)))
	book.AddOrder(newOrder(3, 12, "BTCUSD", models.Sell, "49000", "1", now.Add(-1*time.Minute)))

	taker := newOrder(4, 99, "BTCUSD", models.Buy, "51000", "3", now)
	candidates := book.Candidates(taker)

	require.Len(t, candidates, 3)
	assert.Equal(t, int64(2), candidates[0].ID) // cheapest, earliest
	assert.Equal(t, int64(3), candidates[1].ID) // cheapest, later
	assert.Equal(t, int64(1), candidates[2].ID) // priciest
}

func TestOrderBook_RemoveOrder(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("BTCUSD")
	o := newOrder(1, 10, "BTCUSD", models.Buy, "50000", "1", now)
	book.AddOrder(o)

	assert.True(t, book.RemoveOrder(1, models.Buy, o.Price))
	assert.False(t, book.RemoveOrder(1, models.Buy, o.Price))

	bids, _ := book.TopLevels(10)
	assert.Empty(t, bids)
}

func TestOrderBook_TopLevels(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("ETHUSD")
	book.AddOrder(newOrder(1, 1, "ETHUSD", models.Buy, "3000", "1", now))
	book.AddOrder(newOrder(2, 2, "ETHUSD", models.Buy, "3100", "1", now))
	book.AddOrder(newOrder(3, 3, "ETHUSD", models.Sell, "3200", "1", now))

	bids, asks := book.TopLevels(10)
	require.Len(t, bids, 2)
	require.Len(t, asks, 1)
	assert.True(t, bids[0].Price.Equal(mustDecimal(t, "3100"))) // highest bid first
}
