// Package api provides the HTTP API for observing and steering the economy.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/news"
	"github.com/talgya/magnate/internal/persistence"
	"github.com/talgya/magnate/internal/production"
	"github.com/talgya/magnate/internal/sim"
)

// headlineCacheTicks is how long a generated headline set stays fresh.
const headlineCacheTicks = 30

// Server serves the world state over HTTP and WebSocket.
type Server struct {
	Sim      *sim.Simulation
	Eng      *sim.Engine
	News     *news.Client
	DB       *persistence.DB
	Hub      *Hub
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Cached headlines (regenerated at most once per cache window).
	headlineMu    sync.Mutex
	lastHeadlines []string
	headlineTick  uint64
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	// Rate limiters for LLM-consuming endpoints.
	headlineLimiter := NewRateLimiter(60, time.Hour)
	researchLimiter := NewRateLimiter(20, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only observation).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/prices", s.handlePrices)
	mux.HandleFunc("/api/v1/companies", s.handleCompanies)
	mux.HandleFunc("/api/v1/company/", s.handleCompanyDetail)
	mux.HandleFunc("/api/v1/book/", s.handleBook)
	mux.HandleFunc("/api/v1/trades/", s.handleTrades)
	mux.HandleFunc("/api/v1/share/", s.handleShare)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/headlines", RateLimitMiddleware(headlineLimiter, s.handleHeadlines))
	mux.HandleFunc("/api/v1/catalog/goods", s.handleGoodsCatalog)
	mux.HandleFunc("/api/v1/catalog/buildings", s.handleBuildingCatalog)

	// Player endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/orders", s.authOnly(s.handleOrders))
	mux.HandleFunc("/api/v1/orders/cancel", s.authOnly(s.handleOrderCancel))
	mux.HandleFunc("/api/v1/autotrade", s.authOnly(s.handleAutoTrade))
	mux.HandleFunc("/api/v1/buildings", s.authOnly(s.handleBuildings))
	mux.HandleFunc("/api/v1/buildings/purchase", s.authOnly(s.handleBuildingPurchase))
	mux.HandleFunc("/api/v1/buildings/pause", s.authOnly(s.handleBuildingPause))
	mux.HandleFunc("/api/v1/buildings/method", s.authOnly(s.handleBuildingMethod))
	mux.HandleFunc("/api/v1/research", RateLimitMiddleware(researchLimiter, s.authOnly(s.handleResearch)))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.authOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/save", s.authOnly(s.handleSave))

	// WebSocket snapshot stream.
	if s.Hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.Hub, w, r)
		})
	}

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// authOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) authOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "control endpoints disabled (no MAGNATE_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Latest()
	writeJSON(w, map[string]any{
		"name":        "Magnate",
		"tick":        s.Sim.CurrentTick(),
		"speed":       s.Eng.Speed(),
		"running":     s.Eng.Running(),
		"goods":       s.Sim.Goods.Len(),
		"companies":   len(snap.Companies),
		"trade_count": snap.TradeCount,
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Latest().Prices)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Latest().Companies)
}

func (s *Server) handleCompanyDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/company/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid company id", http.StatusBadRequest)
		return
	}
	inventory, err := s.Sim.CompanyInventory(company.ID(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var report *sim.CompanyReport
	for _, c := range s.Sim.Latest().Companies {
		if c.ID == company.ID(id) {
			report = &c
			break
		}
	}
	writeJSON(w, map[string]any{
		"company":   report,
		"inventory": inventory,
	})
}

// goodsFromPath extracts and validates the goods id suffix of a URL path.
func (s *Server) goodsFromPath(w http.ResponseWriter, r *http.Request, prefix string) (catalog.GoodsID, bool) {
	id := catalog.GoodsID(strings.TrimPrefix(r.URL.Path, prefix))
	if _, ok := s.Sim.Goods.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown_goods", fmt.Sprintf("unknown goods %q", id))
		return "", false
	}
	return id, true
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	goods, ok := s.goodsFromPath(w, r, "/api/v1/book/")
	if !ok {
		return
	}
	depth, err := s.Sim.Depth(goods)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, depth)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	goods, ok := s.goodsFromPath(w, r, "/api/v1/trades/")
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	writeJSON(w, s.Sim.RecentTrades(goods, limit))
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	goods, ok := s.goodsFromPath(w, r, "/api/v1/share/")
	if !ok {
		return
	}
	writeJSON(w, s.Sim.Shares(goods))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, s.Sim.RecentEvents(limit))
}

// handleHeadlines serves the current headlines, regenerating them from a
// fresh market digest when the cached set has gone stale.
func (s *Server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	s.headlineMu.Lock()
	defer s.headlineMu.Unlock()

	tick := s.Sim.CurrentTick()
	if s.lastHeadlines != nil && tick/headlineCacheTicks == s.headlineTick/headlineCacheTicks {
		writeJSON(w, map[string]any{"tick": s.headlineTick, "headlines": s.lastHeadlines})
		return
	}

	digest := s.buildDigest(tick)
	headlines := news.GenerateHeadlines(s.News, digest, 5)
	s.lastHeadlines = headlines
	s.headlineTick = tick
	s.Sim.SetHeadlines(headlines)

	writeJSON(w, map[string]any{"tick": tick, "headlines": headlines})
}

// buildDigest assembles the raw market material headlines are written from.
func (s *Server) buildDigest(tick uint64) *news.Digest {
	snap := s.Sim.Latest()
	d := &news.Digest{
		Tick:       int64(tick),
		PriceMoves: make(map[string]float64),
		Leaders:    make(map[string]string),
	}

	names := make(map[company.ID]string)
	for _, c := range snap.Companies {
		names[c.ID] = c.Name
	}

	for _, p := range snap.Prices {
		gd, ok := s.Sim.Goods.Get(p.Goods)
		if !ok {
			continue
		}
		prev := p.Price - p.Delta
		if prev > 0 && p.Delta != 0 {
			d.PriceMoves[gd.Name] = 100 * p.Delta / prev
		}
		shares := s.Sim.Shares(p.Goods)
		if len(shares) > 0 {
			if name, ok := names[shares[0].CompanyID]; ok {
				d.Leaders[gd.Name] = name
			}
		}
	}

	for _, e := range s.Sim.RecentEvents(10) {
		name := names[e.CompanyID]
		d.Events = append(d.Events, fmt.Sprintf("%s: %s (%s)", name, e.Detail, e.Severity))
	}
	return d
}

func (s *Server) handleGoodsCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Goods.All())
}

func (s *Server) handleBuildingCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.BuildingDefs.All())
}

// handleOrders lists the player's open orders on GET and places an order on
// POST. Rejections come back as structured JSON, not bare 500s.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, s.Sim.OpenPlayerOrders())
		return
	}

	var req struct {
		Goods    catalog.GoodsID `json:"goods"`
		Side     string          `json:"side"`
		Price    float64         `json:"price"`
		Quantity int             `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var side market.Side
	switch req.Side {
	case "buy":
		side = market.Buy
	case "sell":
		side = market.Sell
	default:
		writeError(w, http.StatusBadRequest, "invalid_side", "side must be \"buy\" or \"sell\"")
		return
	}

	id, err := s.Sim.SubmitPlayerOrder(req.Goods, side, req.Price, req.Quantity)
	if err != nil {
		writeRejection(w, err)
		return
	}
	slog.Info("player order placed", "order", id, "goods", req.Goods, "side", req.Side,
		"price", req.Price, "quantity", req.Quantity)
	writeJSON(w, map[string]any{"order_id": id})
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		OrderID market.OrderID `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.CancelOrder(req.OrderID); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, map[string]any{"order_id": req.OrderID, "cancelling": true})
}

// handleAutoTrade reads (GET) or replaces (POST) a per-goods auto-trade
// policy. POSTing a null policy removes it.
func (s *Server) handleAutoTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, s.Sim.AutoTradePolicies())
		return
	}
	var req struct {
		Goods  catalog.GoodsID      `json:"goods"`
		Policy *sim.AutoTradePolicy `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetAutoTrade(req.Goods, req.Policy); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, map[string]any{"goods": req.Goods, "configured": req.Policy != nil})
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	type buildingDetail struct {
		production.Building
		Income float64 `json:"income"`
		Cost   float64 `json:"cost"`
		Net    float64 `json:"net"`
	}
	buildings := s.Sim.PlayerBuildings()
	out := make([]buildingDetail, 0, len(buildings))
	for i := range buildings {
		income, cost, net := buildings[i].Profitability()
		out = append(out, buildingDetail{
			Building: buildings[i],
			Income:   income,
			Cost:     cost,
			Net:      net,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleBuildingPurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Definition catalog.BuildingID `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	b, err := s.Sim.PurchaseBuilding(req.Definition)
	if err != nil {
		writeRejection(w, err)
		return
	}
	slog.Info("player building purchased", "building", b.ID, "definition", req.Definition)
	writeJSON(w, map[string]any{"building_id": b.ID, "status": b.Status})
}

func (s *Server) handleBuildingPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Building uint64 `json:"building"`
		Paused   bool   `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetBuildingPaused(req.Building, req.Paused); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, map[string]any{"building": req.Building, "paused": req.Paused})
}

func (s *Server) handleBuildingMethod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Building uint64 `json:"building"`
		Slot     string `json:"slot"`
		Method   string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetBuildingMethod(req.Building, req.Slot, req.Method); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, map[string]any{"building": req.Building, "slot": req.Slot, "method": req.Method})
}

// handleResearch forwards a research topic to the content service and applies
// any returned technology effects as production efficiency bonuses.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		http.Error(w, "topic required", http.StatusBadRequest)
		return
	}

	result, err := news.RequestResearch(s.News, req.Topic)
	if err != nil {
		slog.Error("research request failed", "topic", req.Topic, "error", err)
		http.Error(w, "research request failed", http.StatusBadGateway)
		return
	}
	if len(result.Effects) > 0 {
		s.Sim.ApplyTechnology(result.Effects)
	}
	writeJSON(w, result)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 100 {
			http.Error(w, "speed must be 0-100", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	st := s.Sim.State()
	if err := s.DB.SaveState(st); err != nil {
		slog.Error("manual save failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true, "tick": st.Tick})
}

// rejectionCode maps engine errors to stable machine-readable codes.
func rejectionCode(err error) (int, string) {
	switch {
	case errors.Is(err, market.ErrInsufficientFunds), errors.Is(err, production.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, market.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, market.ErrUnknownGoods):
		return http.StatusNotFound, "unknown_goods"
	case errors.Is(err, market.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid_price"
	case errors.Is(err, market.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, market.ErrUnknownOrder):
		return http.StatusNotFound, "unknown_order"
	case errors.Is(err, market.ErrOrderNotOpen):
		return http.StatusConflict, "order_not_open"
	case errors.Is(err, market.ErrUnknownCompany):
		return http.StatusNotFound, "unknown_company"
	case errors.Is(err, production.ErrUnknownDefinition):
		return http.StatusNotFound, "unknown_definition"
	default:
		return http.StatusUnprocessableEntity, "rejected"
	}
}

func writeRejection(w http.ResponseWriter, err error) {
	status, code := rejectionCode(err)
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
