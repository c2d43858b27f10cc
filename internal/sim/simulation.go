// Package sim ties the four engines together and advances them in the fixed
// per-tick order: production → demand → AI → matching → snapshot. The
// ordering is part of the contract: later stages read state the earlier
// stages mutated within the same tick.
package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/demand"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/news"
	"github.com/talgya/magnate/internal/production"
)

// maxRecentEvents bounds the retained competition-event history.
const maxRecentEvents = 200

// Simulation holds the complete world state and wires the engines together.
type Simulation struct {
	mu sync.Mutex

	Goods        *catalog.GoodsCatalog
	BuildingDefs *catalog.BuildingCatalog
	Companies    *company.Registry
	Market       *market.Market
	Production   *production.Calculator
	Demand       *demand.Manager
	AI           *ai.Director

	PlayerID company.ID

	autoTrade map[catalog.GoodsID]*AutoTradePolicy
	events    []ai.Event
	headlines []string
	lastTick  uint64
	lastSnap  Snapshot

	// Snapshots receives one value per tick. Sends never block; a slow
	// consumer drops snapshots, not ticks.
	Snapshots chan Snapshot
}

// CurrentTick returns the most recently completed tick.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Step advances the world one tick and returns the tick's snapshot.
func (s *Simulation) Step(tick uint64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Production: advance cycles, mutate inventories and status.
	prodRes := s.Production.Tick(tick, s.Market)

	// 2. Player auto-trade policies synthesize orders from the policy table.
	s.evalAutoTrade(tick)

	// 3. Aggregate consumer demand becomes buy orders under the consumer id.
	for _, intent := range s.Demand.Tick(tick, s.Market) {
		if _, err := s.Market.Submit(tick, company.Consumer, intent.Goods, market.Buy, intent.Price, intent.Quantity); err != nil {
			slog.Error("demand order rejected", "goods", intent.Goods, "error", err)
		}
	}

	// 4. Competitor decisions: orders, production changes, strategy events.
	tickEvents := s.AI.Tick(tick)

	// 5. Matching is the sole writer of order/trade state.
	trades := s.Market.MatchAll(tick)

	s.events = append(s.events, tickEvents...)
	if len(s.events) > maxRecentEvents {
		s.events = s.events[len(s.events)-maxRecentEvents:]
	}
	s.lastTick = tick

	snap := s.buildSnapshot(tick, prodRes, len(trades))
	s.lastSnap = snap
	select {
	case s.Snapshots <- snap:
	default:
	}
	return snap
}

func (s *Simulation) buildSnapshot(tick uint64, prodRes production.Result, tradeCount int) Snapshot {
	snap := Snapshot{
		Tick:       tick,
		Shortages:  prodRes.Shortages,
		TradeCount: tradeCount,
	}

	for _, g := range s.Goods.All() {
		snap.Prices = append(snap.Prices, GoodsPrice{
			Goods: g.ID,
			Price: s.Market.Price(g.ID),
			Delta: s.Market.PriceDelta(g.ID),
		})
	}

	for _, co := range s.Companies.All() {
		report := CompanyReport{ID: co.ID, Name: co.Name, Cash: co.Cash}
		for _, b := range s.Production.Owned(co.ID) {
			income, cost, net := b.Profitability()
			report.Income += income
			report.Maintenance += b.Definition().MaintenanceCost
			report.Net += net
			report.Buildings = append(report.Buildings, BuildingReport{
				Building:   b.ID,
				Definition: b.DefinitionID,
				Status:     b.Status,
				Income:     income,
				Cost:       cost,
				Net:        net,
			})
		}
		snap.Companies = append(snap.Companies, report)
	}

	if player, ok := s.Companies.Get(s.PlayerID); ok {
		ids := make([]catalog.GoodsID, 0, len(player.Inventory))
		for id := range player.Inventory {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			st := player.Inventory[id]
			if st.Quantity == 0 && st.ReservedForSale == 0 && st.ReservedForProduction == 0 {
				continue
			}
			snap.Inventory = append(snap.Inventory, StockReport{
				Goods:                 id,
				Quantity:              st.Quantity,
				ReservedForSale:       st.ReservedForSale,
				ReservedForProduction: st.ReservedForProduction,
				AvgCost:               st.AvgCost,
			})
		}
	}

	if n := len(s.events); n > 0 {
		start := n - 20
		if start < 0 {
			start = 0
		}
		snap.Events = append(snap.Events, s.events[start:]...)
	}
	snap.Headlines = append(snap.Headlines, s.headlines...)
	return snap
}

// SubmitPlayerOrder places a player order. It is created for the upcoming
// tick, so it matches in that tick's pass as a new (non-resting) order.
func (s *Simulation) SubmitPlayerOrder(goods catalog.GoodsID, side market.Side, price float64, qty int) (market.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.Market.Submit(s.lastTick+1, s.PlayerID, goods, side, price, qty)
	if err != nil {
		return 0, err
	}
	return o.ID, nil
}

// CancelOrder queues an order cancellation for the next tick boundary.
func (s *Simulation) CancelOrder(id market.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Market.Order(id)
	if !ok {
		return fmt.Errorf("%w: %d", market.ErrUnknownOrder, id)
	}
	if o.CompanyID != s.PlayerID {
		return fmt.Errorf("%w: %d", market.ErrUnknownOrder, id)
	}
	return s.Market.Cancel(id)
}

// PurchaseBuilding buys a building for the player.
func (s *Simulation) PurchaseBuilding(defID catalog.BuildingID) (*production.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Production.Purchase(s.PlayerID, defID)
}

// SetBuildingPaused sets the explicit pause flag on a player building.
func (s *Simulation) SetBuildingPaused(id uint64, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Production.Get(id)
	if !ok || b.Owner != s.PlayerID {
		return fmt.Errorf("unknown building %d", id)
	}
	b.SetPaused(paused)
	return nil
}

// SetBuildingMethod switches a player building's slot to another method.
func (s *Simulation) SetBuildingMethod(id uint64, slotID, methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Production.Get(id)
	if !ok || b.Owner != s.PlayerID {
		return fmt.Errorf("unknown building %d", id)
	}
	return b.SetMethod(slotID, methodID)
}

// ApplyTechnology applies externally supplied technology effects as
// production efficiency bonuses.
func (s *Simulation) ApplyTechnology(effects []news.TechnologyEffect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range effects {
		s.Production.SetEfficiencyBonus(e.BuildingCategory, e.EfficiencyBonus)
		slog.Info("technology applied",
			"id", e.ID, "category", e.BuildingCategory, "bonus", e.EfficiencyBonus)
	}
}

// SetHeadlines replaces the current headline set carried in snapshots.
func (s *Simulation) SetHeadlines(headlines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headlines = headlines
}

// RecentEvents returns up to limit competition events, most recent first.
func (s *Simulation) RecentEvents(limit int) []ai.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ai.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

// Depth returns the order book snapshot for goods.
func (s *Simulation) Depth(goods catalog.GoodsID) (market.Depth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Market.Depth(goods)
}

// RecentTrades returns up to limit trades for goods, most recent first.
func (s *Simulation) RecentTrades(goods catalog.GoodsID, limit int) []market.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Market.RecentTrades(goods, limit)
}

// Shares returns the trailing-window market share table for goods.
func (s *Simulation) Shares(goods catalog.GoodsID) []market.ShareEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Market.Shares(goods)
}

// Latest returns the snapshot from the most recently completed tick.
func (s *Simulation) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap
}

// Headlines returns the current headline set.
func (s *Simulation) Headlines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headlines...)
}

// OpenPlayerOrders returns copies of the player's open orders, oldest first.
func (s *Simulation) OpenPlayerOrders() []market.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.Order
	for _, o := range s.Market.OpenOrders() {
		if o.CompanyID == s.PlayerID {
			out = append(out, *o)
		}
	}
	return out
}

// CompanyInventory returns a company's inventory as stock reports, sorted by
// goods id.
func (s *Simulation) CompanyInventory(id company.ID) ([]StockReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	co, ok := s.Companies.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown company %d", id)
	}
	ids := make([]catalog.GoodsID, 0, len(co.Inventory))
	for goodsID := range co.Inventory {
		ids = append(ids, goodsID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]StockReport, 0, len(ids))
	for _, goodsID := range ids {
		st := co.Inventory[goodsID]
		out = append(out, StockReport{
			Goods:                 goodsID,
			Quantity:              st.Quantity,
			ReservedForSale:       st.ReservedForSale,
			ReservedForProduction: st.ReservedForProduction,
			AvgCost:               st.AvgCost,
		})
	}
	return out, nil
}

// PlayerBuildings returns copies of the player's buildings, id order.
func (s *Simulation) PlayerBuildings() []production.Building {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.Production.Owned(s.PlayerID)
	out := make([]production.Building, 0, len(owned))
	for _, b := range owned {
		cp := *b
		cp.Slots = append([]production.SlotState(nil), b.Slots...)
		out = append(out, cp)
	}
	return out
}
