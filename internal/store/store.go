// Package store is the ledger's transactional persistence layer: users,
// per-symbol assets, orders, and trades, over MySQL. Mutating operations
// run inside a caller-supplied *sql.Tx, and the Lock* methods acquire row
// locks with SELECT ... FOR UPDATE. Submissions on the same symbol are
// additionally serialized in-process by the engine's per-symbol mutex.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"spotx/internal/models"
)

// ErrNotFound is returned when a row looked up by id does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a *sql.DB with prepared statements for the ledger's hot
// paths.
type Store struct {
	db *sql.DB

	insertOrder       *sql.Stmt
	updateOrder       *sql.Stmt
	selectOrderForUpd *sql.Stmt
	selectOrder       *sql.Stmt
	selectOrdersByUsr *sql.Stmt
	selectOpenOrders  *sql.Stmt

	insertTrade      *sql.Stmt
	selectTradesBySy *sql.Stmt

	insertUser        *sql.Stmt
	selectUser        *sql.Stmt
	selectUserByEmail *sql.Stmt
	selectUserForUpd  *sql.Stmt
	updateUserBalance *sql.Stmt

	selectAssetForUpd *sql.Stmt
	insertAsset       *sql.Stmt
	updateAsset       *sql.Stmt
	selectAssetsByUsr *sql.Stmt
}

// New constructs a Store and prepares its statements.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.prepare(); err != nil {
		return nil, fmt.Errorf("store: failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepare() error {
	type stmt struct {
		dst **sql.Stmt
		sql string
	}
	stmts := []stmt{
		{&s.insertOrder, `INSERT INTO orders (user_id, symbol, side, price, amount, filled_amount, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&s.updateOrder, `UPDATE orders SET filled_amount = ?, status = ?, updated_at = ? WHERE id = ?`},
		{&s.selectOrderForUpd, `SELECT id, user_id, symbol, side, price, amount, filled_amount, status, created_at, updated_at FROM orders WHERE id = ? FOR UPDATE`},
		{&s.selectOrder, `SELECT id, user_id, symbol, side, price, amount, filled_amount, status, created_at, updated_at FROM orders WHERE id = ?`},
		{&s.selectOrdersByUsr, `SELECT id, user_id, symbol, side, price, amount, filled_amount, status, created_at, updated_at FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`},
		{&s.selectOpenOrders, `SELECT id, user_id, symbol, side, price, amount, filled_amount, status, created_at, updated_at FROM orders WHERE symbol = ? AND status = ? ORDER BY created_at ASC, id ASC`},

		{&s.insertTrade, `INSERT INTO trades (buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, amount, executed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`},
		{&s.selectTradesBySy, `SELECT id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, amount, executed_at FROM trades WHERE symbol = ? ORDER BY executed_at DESC, id DESC`},

		{&s.insertUser, `INSERT INTO users (name, email, balance) VALUES (?, ?, ?)`},
		{&s.selectUser, `SELECT id, name, email, balance FROM users WHERE id = ?`},
		{&s.selectUserByEmail, `SELECT id, name, email, balance FROM users WHERE email = ?`},
		{&s.selectUserForUpd, `SELECT id, name, email, balance FROM users WHERE id = ? FOR UPDATE`},
		{&s.updateUserBalance, `UPDATE users SET balance = ? WHERE id = ?`},

		{&s.selectAssetForUpd, `SELECT user_id, symbol, amount, locked_amount FROM assets WHERE user_id = ? AND symbol = ? FOR UPDATE`},
		{&s.insertAsset, `INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES (?, ?, ?, ?)`},
		{&s.updateAsset, `UPDATE assets SET amount = ?, locked_amount = ? WHERE user_id = ? AND symbol = ?`},
		{&s.selectAssetsByUsr, `SELECT user_id, symbol, amount, locked_amount FROM assets WHERE user_id = ?`},
	}

	for _, st := range stmts {
		prepared, err := s.db.Prepare(st.sql)
		if err != nil {
			return fmt.Errorf("prepare %q: %w", st.sql, err)
		}
		*st.dst = prepared
	}
	return nil
}

// Close releases all prepared statements.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.insertOrder, s.updateOrder, s.selectOrderForUpd, s.selectOrder,
		s.selectOrdersByUsr, s.selectOpenOrders, s.insertTrade, s.selectTradesBySy,
		s.insertUser, s.selectUser, s.selectUserByEmail, s.selectUserForUpd,
		s.updateUserBalance, s.selectAssetForUpd, s.insertAsset, s.updateAsset,
		s.selectAssetsByUsr,
	}
	for _, st := range stmts {
		if st != nil {
			st.Close()
		}
	}
	return nil
}

// Begin starts a new transaction.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// --- users ---

// CreateUser inserts a new user with the given starting balance.
func (s *Store) CreateUser(tx *sql.Tx, name, email string, balance decimal.Decimal) (*models.User, error) {
	res, err := tx.Stmt(s.insertUser).Exec(name, email, balance)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get user id: %w", err)
	}
	return &models.User{ID: id, Name: name, Email: email, Balance: balance}, nil
}

// GetUser fetches a user by id without locking.
func (s *Store) GetUser(id int64) (*models.User, error) {
	return s.scanUser(s.selectUser.QueryRow(id))
}

// GetUserByEmail fetches a user by email without locking.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	return s.scanUser(s.selectUserByEmail.QueryRow(email))
}

// LockUser fetches a user for update within tx.
func (s *Store) LockUser(tx *sql.Tx, id int64) (*models.User, error) {
	return s.scanUser(tx.Stmt(s.selectUserForUpd).QueryRow(id))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// UpdateUserBalance persists a user's new balance within tx.
func (s *Store) UpdateUserBalance(tx *sql.Tx, userID int64, balance decimal.Decimal) error {
	_, err := tx.Stmt(s.updateUserBalance).Exec(balance, userID)
	if err != nil {
		return fmt.Errorf("update user balance: %w", err)
	}
	return nil
}

// --- assets ---

// LockAsset fetches the (user, symbol) asset row for update within tx. It
// returns ErrNotFound if no row exists; callers that want lazy creation
// should use LockOrCreateAsset instead.
func (s *Store) LockAsset(tx *sql.Tx, userID int64, symbol string) (*models.Asset, error) {
	return s.scanAsset(tx.Stmt(s.selectAssetForUpd).QueryRow(userID, symbol))
}

// LockOrCreateAsset fetches the (user, symbol) asset row for update,
// creating a zeroed row first if it does not exist. Used by buy-side
// settlement, which lazily creates the buyer's asset row on first fill.
func (s *Store) LockOrCreateAsset(tx *sql.Tx, userID int64, symbol string) (*models.Asset, error) {
	asset, err := s.LockAsset(tx, userID, symbol)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := tx.Stmt(s.insertAsset).Exec(userID, symbol, decimal.Zero, decimal.Zero); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}
	return s.LockAsset(tx, userID, symbol)
}

func (s *Store) scanAsset(row *sql.Row) (*models.Asset, error) {
	var a models.Asset
	if err := row.Scan(&a.UserID, &a.Symbol, &a.Amount, &a.LockedAmount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	return &a, nil
}

// UpdateAsset persists an asset's amount/locked_amount within tx.
func (s *Store) UpdateAsset(tx *sql.Tx, asset *models.Asset) error {
	_, err := tx.Stmt(s.updateAsset).Exec(asset.Amount, asset.LockedAmount, asset.UserID, asset.Symbol)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// ListAssets returns all asset rows for a user.
func (s *Store) ListAssets(userID int64) ([]*models.Asset, error) {
	rows, err := s.selectAssetsByUsr.Query(userID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.UserID, &a.Symbol, &a.Amount, &a.LockedAmount); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- orders ---

// InsertOrder persists a new OPEN order and assigns its id.
func (s *Store) InsertOrder(tx *sql.Tx, o *models.Order) error {
	res, err := tx.Stmt(s.insertOrder).Exec(o.UserID, o.Symbol, o.Side, o.Price, o.Amount, o.FilledAmount, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get order id: %w", err)
	}
	o.ID = id
	return nil
}

// UpdateOrder persists an order's filled_amount/status/updated_at within tx.
func (s *Store) UpdateOrder(tx *sql.Tx, o *models.Order) error {
	_, err := tx.Stmt(s.updateOrder).Exec(o.FilledAmount, o.Status, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// LockOrder fetches an order for update within tx.
func (s *Store) LockOrder(tx *sql.Tx, id int64) (*models.Order, error) {
	return s.scanOrder(tx.Stmt(s.selectOrderForUpd).QueryRow(id))
}

// GetOrder fetches an order without locking.
func (s *Store) GetOrder(id int64) (*models.Order, error) {
	return s.scanOrder(s.selectOrder.QueryRow(id))
}

func (s *Store) scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	var side string
	var status int
	if err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &o.Price, &o.Amount, &o.FilledAmount, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Side = models.OrderSide(side)
	o.Status = models.OrderStatus(status)
	return &o, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (s *Store) ListOrdersByUser(userID int64) ([]*models.Order, error) {
	rows, err := s.selectOrdersByUsr.Query(userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return s.scanOrders(rows)
}

// ListOpenOrders returns all OPEN orders for a symbol, in persisted
// (created_at ASC, id ASC) order; callers sort into book priority order.
func (s *Store) ListOpenOrders(symbol string) ([]*models.Order, error) {
	rows, err := s.selectOpenOrders.Query(symbol, models.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()
	return s.scanOrders(rows)
}

func (s *Store) scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		var o models.Order
		var side string
		var status int
		if err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &o.Price, &o.Amount, &o.FilledAmount, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = models.OrderSide(side)
		o.Status = models.OrderStatus(status)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// --- trades ---

// InsertTrade appends an immutable trade record.
func (s *Store) InsertTrade(tx *sql.Tx, t *models.Trade) error {
	res, err := tx.Stmt(s.insertTrade).Exec(t.BuyOrderID, t.SellOrderID, t.BuyerID, t.SellerID, t.Symbol, t.Price, t.Amount, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get trade id: %w", err)
	}
	t.ID = id
	return nil
}

// ListTradesBySymbol returns recent trades for a symbol, newest first.
func (s *Store) ListTradesBySymbol(symbol string, limit int) ([]*models.Trade, error) {
	rows, err := s.selectTradesBySy.Query(symbol)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID, &t.Symbol, &t.Price, &t.Amount, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
