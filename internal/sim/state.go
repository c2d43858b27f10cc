package sim

import (
	"fmt"

	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/demand"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
)

// CompetitorState is the persisted slice of an AI competitor: its personality
// plus the stance values that drift over time.
type CompetitorState struct {
	CompanyID   company.ID `json:"company_id" db:"company_id"`
	Personality string     `json:"personality" db:"personality"`
	Trust       float64    `json:"trust" db:"trust"`
	Hostility   float64    `json:"hostility" db:"hostility"`
}

// State is a deep copy of everything needed to resume a world: company
// balances and inventories, building progress, open orders, prices, AI
// stances, and the player's auto-trade policies.
type State struct {
	Tick        uint64
	Companies   []company.Company
	Competitors []CompetitorState
	Buildings   []production.Building
	Orders      []market.Order
	Prices      map[catalog.GoodsID]float64
	AutoTrade   map[catalog.GoodsID]AutoTradePolicy
	Events      []ai.Event
}

// State captures a consistent snapshot of the world for persistence. The
// simulation lock is held for the duration, so callers see a tick boundary.
func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Tick:      s.lastTick,
		Prices:    s.Market.Prices(),
		AutoTrade: make(map[catalog.GoodsID]AutoTradePolicy, len(s.autoTrade)),
		Events:    append([]ai.Event(nil), s.events...),
	}

	for _, co := range s.Companies.All() {
		cp := *co
		cp.Inventory = make(map[catalog.GoodsID]*company.Stock, len(co.Inventory))
		for goods, stock := range co.Inventory {
			sc := *stock
			cp.Inventory[goods] = &sc
		}
		st.Companies = append(st.Companies, cp)
	}

	for _, comp := range s.AI.Competitors() {
		st.Competitors = append(st.Competitors, CompetitorState{
			CompanyID:   comp.CompanyID,
			Personality: comp.Personality.String(),
			Trust:       comp.TrustWithPlayer,
			Hostility:   comp.HostilityToPlayer,
		})
	}

	for _, b := range s.Production.All() {
		cp := *b
		cp.Slots = append([]production.SlotState(nil), b.Slots...)
		st.Buildings = append(st.Buildings, cp)
	}

	for _, o := range s.Market.OpenOrders() {
		st.Orders = append(st.Orders, *o)
	}

	for goods, p := range s.autoTrade {
		st.AutoTrade[goods] = *p
	}

	return st
}

// BuildRestored assembles a simulation from catalogs, a world config, and a
// saved state. The config supplies tuning (seed, demand groups, engine
// parameters); all mutable state comes from the save. Starting buildings and
// inventories in the config are ignored.
func BuildRestored(goods *catalog.GoodsCatalog, defs *catalog.BuildingCatalog, wc *WorldConfig, st State) (*Simulation, error) {
	companies := company.NewRegistry()
	for i := range st.Companies {
		saved := st.Companies[i]
		co := company.New(saved.ID, saved.Name, saved.Cash, saved.AI)
		for goodsID, stock := range saved.Inventory {
			if _, ok := goods.Get(goodsID); !ok {
				return nil, fmt.Errorf("restore company %q: unknown goods %q", saved.Name, goodsID)
			}
			sc := *stock
			co.Inventory[goodsID] = &sc
		}
		if err := companies.Add(co); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	playerID := company.ID(wc.Player)
	if _, ok := companies.Get(playerID); !ok {
		return nil, fmt.Errorf("restore: player company %d not in saved state", wc.Player)
	}

	mkt := market.New(goods, companies, wc.Market)
	if err := mkt.Restore(st.Orders, st.Prices); err != nil {
		return nil, fmt.Errorf("restore market: %w", err)
	}

	prod := production.NewCalculator(goods, defs, companies)
	if err := prod.Restore(st.Buildings); err != nil {
		return nil, fmt.Errorf("restore buildings: %w", err)
	}

	dm, err := demand.NewManager(goods, wc.DemandGroups, wc.Demand, wc.Seed)
	if err != nil {
		return nil, fmt.Errorf("demand groups: %w", err)
	}

	director := ai.NewDirector(goods, companies, mkt, prod, playerID, wc.AI, wc.Seed+1)
	for _, cs := range st.Competitors {
		p, err := ai.ParsePersonality(cs.Personality)
		if err != nil {
			return nil, fmt.Errorf("restore competitor %d: %w", cs.CompanyID, err)
		}
		comp := ai.NewCompetitor(cs.CompanyID, p)
		comp.TrustWithPlayer = cs.Trust
		comp.HostilityToPlayer = cs.Hostility
		director.Add(comp)
	}

	s := &Simulation{
		Goods:        goods,
		BuildingDefs: defs,
		Companies:    companies,
		Market:       mkt,
		Production:   prod,
		Demand:       dm,
		AI:           director,
		PlayerID:     playerID,
		autoTrade:    make(map[catalog.GoodsID]*AutoTradePolicy),
		events:       append([]ai.Event(nil), st.Events...),
		lastTick:     st.Tick,
		Snapshots:    make(chan Snapshot, 8),
	}
	for goodsID, policy := range st.AutoTrade {
		p := policy
		if err := s.SetAutoTrade(goodsID, &p); err != nil {
			return nil, fmt.Errorf("restore auto-trade %q: %w", goodsID, err)
		}
	}
	return s, nil
}
