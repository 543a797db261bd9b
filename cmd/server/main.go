package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"spotx/internal/auth"
	"spotx/internal/engine"
	"spotx/internal/metrics"
	"spotx/internal/models"
	"spotx/internal/money"
	"spotx/internal/notify"
	"spotx/internal/store"
)

// Server wires together the store, matching engine, auth issuer, and
// notification hub, and exposes the HTTP handlers.
type Server struct {
	store  *store.Store
	engine *engine.Engine
	auth   *auth.Issuer
	hub    *notify.Hub
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] .env not loaded: %v", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	log.Println("[INFO] Starting spot-exchange matching engine...")

	db, err := store.Connect()
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to database: %v", err)
	}
	defer func() {
		log.Println("[INFO] Closing database connection...")
		db.Close()
	}()
	log.Println("[INFO] Database connection established")

	st, err := store.New(db)
	if err != nil {
		log.Fatalf("[ERROR] Failed to prepare store: %v", err)
	}
	defer st.Close()

	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(hub, 1024)
	dispatcher.Start()
	defer dispatcher.Stop()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	eng := engine.New(st, dispatcher, collector)

	symbols := strings.Split(envOr("SPOTX_SYMBOLS", "BTCUSD,ETHUSD"), ",")
	log.Println("[INFO] Loading open orders from database...")
	if err := eng.LoadOpenOrders(symbols); err != nil {
		log.Fatalf("[ERROR] Failed to load open orders: %v", err)
	}

	srv := &Server{
		store:  st,
		engine: eng,
		auth:   auth.NewIssuer(st),
		hub:    hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", srv.handleLogin)
	mux.HandleFunc("/logout", srv.authenticated(srv.handleLogout))
	mux.HandleFunc("/profile", srv.authenticated(srv.handleProfile))
	mux.HandleFunc("/orders", srv.authenticated(srv.handleOrders))
	mux.HandleFunc("/orders/", srv.authenticated(srv.handleOrderCancel))
	mux.HandleFunc("/ws", srv.authenticated(srv.handleWebSocket))
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    envOr("SPOTX_ADDR", ":8080"),
		Handler: mux,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[INFO] Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[ERROR] Server failed: %v", err)
		}
	}()

	<-stop
	log.Println("[INFO] Shutdown signal received, initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] Server forced to shutdown: %v", err)
	} else {
		log.Println("[INFO] Server gracefully stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// authenticated wraps h, resolving the Authorization: Bearer <token> header
// to a user id that is passed to h as its userID argument.
func (s *Server) authenticated(h func(w http.ResponseWriter, r *http.Request, userID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		h(w, r, user.ID)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	token, user, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		zlog.Warn().Str("email", req.Email).Msg("login failed")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  userWire(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.auth.Logout(token)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, err := s.store.GetUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	assets, err := s.store.ListAssets(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load assets")
		return
	}

	assetWires := make([]map[string]any, 0, len(assets))
	for _, a := range assets {
		assetWires = append(assetWires, map[string]any{
			"symbol":           a.Symbol,
			"amount":           a.Amount.StringFixed(8),
			"locked_amount":    a.LockedAmount.StringFixed(8),
			"available_amount": a.Available().StringFixed(8),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userWire(user),
		"assets": assetWires,
	})
}

// handleOrders handles GET /orders?symbol=X (the order book) and
// POST /orders (submit a new order).
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		s.handleOrderBook(w, r)
	case http.MethodPost:
		s.handleSubmitOrder(w, r, userID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter is required")
		return
	}
	buys, sells := s.engine.Book(symbol)
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      symbol,
		"buy_orders":  orderWires(buys),
		"sell_orders": orderWires(sells),
	})
}

type submitOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request, userID int64) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	fieldErrors := map[string]string{}
	if req.Symbol == "" || len(req.Symbol) > 10 {
		fieldErrors["symbol"] = "required, max length 10"
	}
	side := models.OrderSide(strings.ToUpper(req.Side))
	if side != models.Buy && side != models.Sell {
		fieldErrors["side"] = "must be 'buy' or 'sell'"
	}
	price, priceErr := money.Parse(req.Price)
	if priceErr != nil || !money.IsPositive(price) {
		fieldErrors["price"] = "required, numeric, > 0"
	}
	amount, amountErr := money.Parse(req.Amount)
	if amountErr != nil || !money.IsPositive(amount) {
		fieldErrors["amount"] = "required, numeric, > 0"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrors})
		return
	}

	zlog.Info().Int64("user_id", userID).Str("symbol", req.Symbol).Str("side", req.Side).
		Str("price", price.String()).Str("amount", amount.String()).Msg("submitting order")

	order, trades, err := s.engine.Submit(engine.SubmitRequest{
		UserID: userID,
		Symbol: req.Symbol,
		Side:   side,
		Price:  price,
		Amount: amount,
	})
	if err != nil {
		zlog.Error().Err(err).Int64("user_id", userID).Str("symbol", req.Symbol).Msg("order submission failed")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Failed to create order",
			"error":   err.Error(),
		})
		return
	}

	zlog.Info().Int64("order_id", order.ID).Str("status", order.Status.String()).Int("trades", len(trades)).Msg("order processed")

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Order created successfully",
		"order":   orderWire(order),
	})
}

// handleOrderCancel handles POST /orders/{id}/cancel.
func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	path = strings.TrimSuffix(path, "/cancel")
	orderID, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := s.engine.Cancel(userID, orderID)
	if err != nil {
		zlog.Warn().Err(err).Int64("order_id", orderID).Int64("user_id", userID).Msg("cancel failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order cancelled successfully",
		"order":   orderWire(order),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and registers it on the caller's
// private channel; incoming messages are read and discarded until the
// connection fails or closes, which unregisters it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Register(userID, conn)

	go func() {
		defer s.hub.Unregister(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func userWire(u *models.User) map[string]any {
	return map[string]any{
		"id":      u.ID,
		"name":    u.Name,
		"email":   u.Email,
		"balance": u.Balance.StringFixed(8),
	}
}

func orderWire(o *models.Order) map[string]any {
	return map[string]any{
		"id":               o.ID,
		"user_id":          o.UserID,
		"symbol":           o.Symbol,
		"side":             strings.ToLower(string(o.Side)),
		"price":            o.Price.StringFixed(8),
		"amount":           o.Amount.StringFixed(8),
		"filled_amount":    o.FilledAmount.StringFixed(8),
		"remaining_amount": o.Remaining().StringFixed(8),
		"status":           int(o.Status),
		"status_text":      o.Status.String(),
		"created_at":       o.CreatedAt,
		"updated_at":       o.UpdatedAt,
	}
}

func orderWires(orders []*models.Order) []map[string]any {
	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderWire(o))
	}
	return out
}
