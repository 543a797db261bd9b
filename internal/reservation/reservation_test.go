package reservation

import (
	"database/sql"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spotx/internal/models"
	"spotx/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()
	if os.Getenv("DB_DSN") == "" {
		t.Skip("DB_DSN environment variable not set, skipping integration test")
	}

	db, err := store.Connect()
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM assets WHERE symbol = 'RSVTEST'")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM users WHERE email LIKE 'rsv-itest-%'")
	require.NoError(t, err)

	st, err := store.New(db)
	require.NoError(t, err)
	return st, db
}

func TestReserveBuy_DebitsBalanceWithCommission(t *testing.T) {
	st, db := newTestStore(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Dana", "rsv-itest-dana@example.com", decimal.RequireFromString("100000"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	err = Reserve(tx, st, user.ID, "RSVTEST", models.Buy, decimal.RequireFromString("50000"), decimal.RequireFromString("1"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	updated, err := st.GetUser(user.ID)
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.RequireFromString("49250")))
}

func TestReserveBuy_InsufficientBalance(t *testing.T) {
	st, db := newTestStore(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Evan", "rsv-itest-evan@example.com", decimal.RequireFromString("100"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	err = Reserve(tx, st, user.ID, "RSVTEST", models.Buy, decimal.RequireFromString("50000"), decimal.RequireFromString("1"))
	tx.Rollback()
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestReserveSell_LocksInventory(t *testing.T) {
	st, db := newTestStore(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Frank", "rsv-itest-frank@example.com", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = db.Exec("INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES (?, 'RSVTEST', '2', '0')", user.ID)
	require.NoError(t, err)

	tx, err = db.Begin()
	require.NoError(t, err)
	err = Reserve(tx, st, user.ID, "RSVTEST", models.Sell, decimal.RequireFromString("50000"), decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	asset, err := st.LockAsset(mustTx(t, db), user.ID, "RSVTEST")
	require.NoError(t, err)
	require.True(t, asset.LockedAmount.Equal(decimal.RequireFromString("1.5")))
	require.True(t, asset.Available().Equal(decimal.RequireFromString("0.5")))
}

func TestReserveSell_NoAssetRow(t *testing.T) {
	st, db := newTestStore(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Grace", "rsv-itest-grace@example.com", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	err = Reserve(tx, st, user.ID, "RSVTEST", models.Sell, decimal.RequireFromString("50000"), decimal.RequireFromString("1"))
	tx.Rollback()
	require.ErrorIs(t, err, ErrAssetNotFound)
}

func TestRefund_ReturnsUnfilledBuyReservation(t *testing.T) {
	st, db := newTestStore(t)
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	user, err := st.CreateUser(tx, "Heidi", "rsv-itest-heidi@example.com", decimal.RequireFromString("100000"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, Reserve(tx, st, user.ID, "RSVTEST", models.Buy, decimal.RequireFromString("50000"), decimal.RequireFromString("1")))
	require.NoError(t, tx.Commit())

	order := &models.Order{
		UserID: user.ID,
		Symbol: "RSVTEST",
		Side:   models.Buy,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.RequireFromString("1"),
	}

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, Refund(tx, st, order))
	require.NoError(t, tx.Commit())

	refunded, err := st.GetUser(user.ID)
	require.NoError(t, err)
	require.True(t, refunded.Balance.Equal(decimal.RequireFromString("100000")))
}

func mustTx(t *testing.T, db *sql.DB) *sql.Tx {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	t.Cleanup(func() { tx.Commit() })
	return tx
}
