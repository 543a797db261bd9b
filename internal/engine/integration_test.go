package engine

import (
	"database/sql"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotx/internal/metrics"
	"spotx/internal/models"
	"spotx/internal/money"
	"spotx/internal/store"
)

// newTestEngine connects to DB_DSN, cleans up any leftover fixture rows,
// and returns an Engine with a fresh, isolated metrics registry.
func newTestEngine(t *testing.T) (*Engine, *store.Store, *sql.DB) {
	t.Helper()
	if os.Getenv("DB_DSN") == "" {
		t.Skip("DB_DSN environment variable not set, skipping integration test")
	}

	db, err := store.Connect()
	require.NoError(t, err, "failed to connect to test database")

	cleanupFixtures(t, db)

	st, err := store.New(db)
	require.NoError(t, err)

	collector := metrics.NewCollector(prometheus.NewRegistry())
	eng := New(st, nil, collector)
	require.NoError(t, eng.LoadOpenOrders([]string{"BTCUSD"}))

	return eng, st, db
}

func cleanupFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		"DELETE FROM trades WHERE symbol = 'BTCUSD'",
		"DELETE FROM orders WHERE symbol = 'BTCUSD'",
		"DELETE FROM assets WHERE symbol = 'BTCUSD'",
		"DELETE FROM users WHERE email LIKE 'engine-itest-%'",
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Logf("warning: cleanup failed (%s): %v", stmt, err)
		}
	}
}

func seedUser(t *testing.T, st *store.Store, db *sql.DB, email string, balance string) int64 {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "itest", email, decimal.RequireFromString(balance))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return user.ID
}

func seedAsset(t *testing.T, db *sql.DB, userID int64, symbol, amount string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES (?, ?, ?, 0)", userID, symbol, amount)
	require.NoError(t, err)
}

// TestSubmit_MatchesRestingOrderAndSettles walks a full submit-then-match
// round trip through the real store: a resting sell fills a crossing buy,
// balances and assets update, and the trade is persisted.
func TestSubmit_MatchesRestingOrderAndSettles(t *testing.T) {
	eng, st, db := newTestEngine(t)
	defer db.Close()

	seller := seedUser(t, st, db, "engine-itest-seller@example.com", "0")
	seedAsset(t, db, seller, "BTCUSD", "2")
	buyer := seedUser(t, st, db, "engine-itest-buyer@example.com", "100000")

	_, _, err := eng.Submit(SubmitRequest{
		UserID: seller,
		Symbol: "BTCUSD",
		Side:   models.Sell,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	order, trades, err := eng.Submit(SubmitRequest{
		UserID: buyer,
		Symbol: "BTCUSD",
		Side:   models.Buy,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.StatusFilled, order.Status)

	buyerAssets, err := st.ListAssets(buyer)
	require.NoError(t, err)
	require.Len(t, buyerAssets, 1)
	assert.True(t, buyerAssets[0].Amount.Equal(decimal.RequireFromString("1")))

	buyerUser, err := st.GetUser(buyer)
	require.NoError(t, err)
	expectedBalance := decimal.RequireFromString("100000").Sub(money.WithCommission(decimal.RequireFromString("50000")))
	assert.True(t, buyerUser.Balance.Equal(expectedBalance))
}

// TestCancel_RefundsUnfilledRemainder submits an order that never matches
// and verifies cancelling it returns the full reservation.
func TestCancel_RefundsUnfilledRemainder(t *testing.T) {
	eng, st, db := newTestEngine(t)
	defer db.Close()

	buyer := seedUser(t, st, db, "engine-itest-cancel@example.com", "100000")

	order, _, err := eng.Submit(SubmitRequest{
		UserID: buyer,
		Symbol: "BTCUSD",
		Side:   models.Buy,
		Price:  decimal.RequireFromString("40000"),
		Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	reserved, err := st.GetUser(buyer)
	require.NoError(t, err)
	assert.True(t, reserved.Balance.LessThan(decimal.RequireFromString("100000")))

	cancelled, err := eng.Cancel(buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	refunded, err := st.GetUser(buyer)
	require.NoError(t, err)
	assert.True(t, refunded.Balance.Equal(decimal.RequireFromString("100000")))

	_, err = eng.Cancel(buyer, order.ID)
	assert.ErrorIs(t, err, ErrCannotCancel)
}
