package ai

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
)

// Config tunes the competitor director.
type Config struct {
	// StockCoverTicks is how many ticks of input consumption the AI buys ahead.
	StockCoverTicks int `yaml:"stock_cover_ticks"`
	// BudgetFraction caps one tick's buy spending as a fraction of cash.
	BudgetFraction float64 `yaml:"budget_fraction"`
	// UndercutThreshold is the relative margin below the AI's ask at which a
	// player price counts as undercutting.
	UndercutThreshold float64 `yaml:"undercut_threshold"`
	// DominanceShare is the trailing share above which the AI treats a goods
	// market as its own.
	DominanceShare float64 `yaml:"dominance_share"`
	// ExpansionCashFactor is how many times a building's cost the AI wants in
	// cash before considering the purchase.
	ExpansionCashFactor float64 `yaml:"expansion_cash_factor"`
}

// DefaultConfig returns the standard director tuning.
func DefaultConfig() Config {
	return Config{
		StockCoverTicks:     10,
		BudgetFraction:      0.5,
		UndercutThreshold:   0.08,
		DominanceShare:      0.4,
		ExpansionCashFactor: 3,
	}
}

// Competitor is the AI-side state attached to one company.
type Competitor struct {
	CompanyID         company.ID  `json:"company_id"`
	Personality       Personality `json:"personality"`
	TrustWithPlayer   float64     `json:"trust_with_player"`   // [-100, 100]
	HostilityToPlayer float64     `json:"hostility_to_player"` // [-100, 100]

	enteredCategories map[string]bool
	prevPlayerShare   map[catalog.GoodsID]float64
	prevOwnShare      map[catalog.GoodsID]float64
	withheld          map[catalog.GoodsID]bool // supply block, current tick only
}

// NewCompetitor creates AI state for a company.
func NewCompetitor(id company.ID, p Personality) *Competitor {
	return &Competitor{
		CompanyID:         id,
		Personality:       p,
		enteredCategories: make(map[string]bool),
		prevPlayerShare:   make(map[catalog.GoodsID]float64),
		prevOwnShare:      make(map[catalog.GoodsID]float64),
		withheld:          make(map[catalog.GoodsID]bool),
	}
}

// Director runs every competitor's decision loop each tick.
type Director struct {
	cfg       Config
	goods     *catalog.GoodsCatalog
	companies *company.Registry
	mkt       *market.Market
	prod      *production.Calculator
	player    company.ID
	rng       *rand.Rand

	competitors []*Competitor
	index       map[company.ID]*Competitor
}

// NewDirector creates a director. The seed fixes the decision randomness so a
// run is reproducible; competitors are processed in company-id order.
func NewDirector(goods *catalog.GoodsCatalog, companies *company.Registry, mkt *market.Market, prod *production.Calculator, player company.ID, cfg Config, seed int64) *Director {
	if cfg.StockCoverTicks <= 0 {
		cfg.StockCoverTicks = 10
	}
	if cfg.BudgetFraction <= 0 {
		cfg.BudgetFraction = 0.5
	}
	if cfg.ExpansionCashFactor <= 0 {
		cfg.ExpansionCashFactor = 3
	}
	return &Director{
		cfg:       cfg,
		goods:     goods,
		companies: companies,
		mkt:       mkt,
		prod:      prod,
		player:    player,
		rng:       rand.New(rand.NewSource(seed)),
		index:     make(map[company.ID]*Competitor),
	}
}

// Add registers a competitor, keeping id order.
func (d *Director) Add(c *Competitor) {
	d.competitors = append(d.competitors, c)
	sort.Slice(d.competitors, func(i, j int) bool {
		return d.competitors[i].CompanyID < d.competitors[j].CompanyID
	})
	d.index[c.CompanyID] = c
}

// Competitors returns all competitors in id order.
func (d *Director) Competitors() []*Competitor {
	return d.competitors
}

// Get returns the competitor state for a company.
func (d *Director) Get(id company.ID) (*Competitor, bool) {
	c, ok := d.index[id]
	return c, ok
}

// Tick runs each competitor's decision loop and returns the tick's
// competition events. One competitor's failure never stops the others.
func (d *Director) Tick(tick uint64) []Event {
	var events []Event
	for _, comp := range d.competitors {
		co, ok := d.companies.Get(comp.CompanyID)
		if !ok {
			slog.Error("competitor has no company, skipping", "company", comp.CompanyID)
			continue
		}
		events = append(events, d.decide(tick, comp, co)...)
	}
	return events
}

// decide is one company's decision loop for one tick.
func (d *Director) decide(tick uint64, comp *Competitor, co *company.Company) []Event {
	w := comp.Personality.Params()
	var events []Event

	for g := range comp.withheld {
		delete(comp.withheld, g)
	}

	// Categories the company already builds in never count as new entries.
	for _, b := range d.prod.Owned(comp.CompanyID) {
		comp.enteredCategories[b.Definition().Category] = true
	}

	events = append(events, d.updateStance(tick, comp, w)...)
	events = append(events, d.considerSupplyBlock(tick, comp, co, w)...)
	d.placeSellOrders(tick, comp, co, w)
	d.placeBuyOrders(tick, comp, co, w)
	events = append(events, d.considerMethodSwitch(tick, comp, co, w)...)
	events = append(events, d.considerExpansion(tick, comp, co, w)...)

	return events
}

// updateStance adjusts the bounded trust/hostility accumulators from the
// player's pricing and market-share movement.
func (d *Director) updateStance(tick uint64, comp *Competitor, w Weights) []Event {
	var events []Event
	undercutThisTick := false
	grewThisTick := false

	for _, id := range d.prod.ProducedGoods(comp.CompanyID) {
		ownAsk, ownOK := d.mkt.LowestAskBy(id, comp.CompanyID)
		playerAsk, playerOK := d.mkt.LowestAskBy(id, d.player)

		// Player undercutting our ask raises hostility; a wide enough margin
		// on a market we dominate can start a price war.
		if ownOK && playerOK && playerAsk < ownAsk*(1-d.cfg.UndercutThreshold) {
			undercutThisTick = true
			comp.HostilityToPlayer = clampStance(comp.HostilityToPlayer + 2*w.TrustSensitivity)
			dominated := d.mkt.ShareOf(id, comp.CompanyID) >= d.cfg.DominanceShare
			if dominated && d.rng.Float64() < w.RiskTolerance*w.Aggressiveness {
				margin := 1 - playerAsk/ownAsk
				events = append(events, Event{
					CompanyID: comp.CompanyID,
					Type:      EventPriceWarStart,
					Severity:  marginSeverity(margin),
					Tick:      tick,
					Detail:    fmt.Sprintf("undercut by %.0f%% on %s", margin*100, id),
				})
			}
		}

		ownShare := d.mkt.ShareOf(id, comp.CompanyID)

		// Player share growth in dominated goods raises hostility.
		playerShare := d.mkt.ShareOf(id, d.player)
		prev := comp.prevPlayerShare[id]
		if ownShare >= d.cfg.DominanceShare && playerShare > prev+0.01 {
			comp.HostilityToPlayer = clampStance(comp.HostilityToPlayer + w.TrustSensitivity)
		}
		comp.prevPlayerShare[id] = playerShare

		if ownShare > comp.prevOwnShare[id]+0.01 {
			grewThisTick = true
		}
		comp.prevOwnShare[id] = ownShare
	}

	// Growing own supply share while the player leaves our prices alone reads
	// as parallel, non-competing growth and builds trust slowly.
	if grewThisTick && !undercutThisTick {
		comp.TrustWithPlayer = clampStance(comp.TrustWithPlayer + 0.2*w.TrustSensitivity)
	}
	return events
}

// placeSellOrders offers a personality-sized fraction of uncommitted stock of
// every goods the company produces.
func (d *Director) placeSellOrders(tick uint64, comp *Competitor, co *company.Company, w Weights) {
	for _, id := range d.prod.ProducedGoods(comp.CompanyID) {
		if comp.withheld[id] {
			continue
		}
		avail := co.Available(id)
		qty := int(float64(avail) * w.OrderSize)
		if qty <= 0 {
			continue
		}
		price := d.mkt.Price(id) * (1 + w.SellSkew)
		if def, ok := d.goods.Get(id); ok {
			if floor := def.BasePrice * 0.25; price < floor {
				price = floor
			}
		}
		if _, err := d.mkt.Submit(tick, comp.CompanyID, id, market.Sell, price, qty); err != nil {
			slog.Debug("ai sell rejected", "company", comp.CompanyID, "goods", id, "error", err)
		}
	}
}

// placeBuyOrders restocks production inputs up to the configured cover,
// silently downsizing to what the company can afford.
func (d *Director) placeBuyOrders(tick uint64, comp *Competitor, co *company.Company, w Weights) {
	budget := co.Cash * d.cfg.BudgetFraction
	for _, need := range d.prod.InputNeeds(comp.CompanyID) {
		target := need.Amount * d.cfg.StockCoverTicks
		held := co.Quantity(need.Goods)
		if held >= target {
			continue
		}
		qty := target - held
		price := d.mkt.Price(need.Goods) * (1 + w.BuyPremium)
		if price <= 0 {
			continue
		}
		if affordable := int(budget / price); qty > affordable {
			// Insufficient cash is not a failed tick; shrink the order.
			qty = affordable
		}
		if qty <= 0 {
			continue
		}
		if _, err := d.mkt.Submit(tick, comp.CompanyID, need.Goods, market.Buy, price, qty); err != nil {
			slog.Debug("ai buy rejected", "company", comp.CompanyID, "goods", need.Goods, "error", err)
			continue
		}
		budget -= price * float64(qty)
	}
}

// considerMethodSwitch occasionally re-evaluates slot methods against current
// prices and switches to a better-margin recipe.
func (d *Director) considerMethodSwitch(tick uint64, comp *Competitor, co *company.Company, w Weights) []Event {
	var events []Event
	for _, b := range d.prod.Owned(comp.CompanyID) {
		if b.Status != production.StatusOperational && b.Status != production.StatusLackingInputs {
			continue
		}
		if d.rng.Float64() >= 0.05*w.SwitchAffinity {
			continue
		}
		def := b.Definition()
		for _, st := range b.Slots {
			slot, ok := def.Slot(st.SlotID)
			if !ok || len(slot.Methods) < 2 {
				continue
			}
			bestID, bestMargin := st.ActiveMethodID, math.Inf(-1)
			var activeMargin float64
			for i := range slot.Methods {
				m := &slot.Methods[i]
				margin := d.methodMargin(m, def.MaintenanceCost)
				if m.ID == st.ActiveMethodID {
					activeMargin = margin
				}
				if margin > bestMargin {
					bestID, bestMargin = m.ID, margin
				}
			}
			if bestID == st.ActiveMethodID || bestMargin <= activeMargin*1.1 {
				continue
			}
			if err := b.SetMethod(st.SlotID, bestID); err != nil {
				slog.Debug("ai method switch failed", "company", comp.CompanyID, "building", b.ID, "error", err)
				continue
			}
			events = append(events, Event{
				CompanyID: comp.CompanyID,
				Type:      EventStrategyChange,
				Severity:  SeverityMinor,
				Tick:      tick,
				Detail: fmt.Sprintf("%s retooled %s to %s for a better margin at current prices",
					co.Name, def.Name, bestID),
			})
		}
	}
	return events
}

// methodMargin estimates a method's per-tick margin at current prices.
func (d *Director) methodMargin(m *catalog.ProductionMethod, maintenance float64) float64 {
	income := 0.0
	for _, out := range m.Outputs {
		income += float64(out.Amount) * m.Efficiency * d.mkt.Price(out.Goods)
	}
	cost := maintenance
	perTickInputs := 0.0
	for _, in := range m.Inputs {
		perTickInputs += float64(in.Amount) * d.mkt.Price(in.Goods)
	}
	cost += perTickInputs * float64(m.TicksRequired)
	return (income - cost) / float64(m.TicksRequired)
}

// considerExpansion buys a new building when cash comfortably covers it.
func (d *Director) considerExpansion(tick uint64, comp *Competitor, co *company.Company, w Weights) []Event {
	if d.rng.Float64() >= 0.02*w.RiskTolerance {
		return nil
	}
	defs := d.prod.Definitions()
	var pick *catalog.BuildingDefinition
	bestRatio := 0.0
	for i := range defs {
		def := &defs[i]
		if co.Cash < def.BaseCost*d.cfg.ExpansionCashFactor {
			continue
		}
		if ratio := d.definitionAppeal(def); ratio > bestRatio {
			bestRatio = ratio
			pick = def
		}
	}
	if pick == nil {
		return nil
	}

	b, err := d.prod.Purchase(comp.CompanyID, pick.ID)
	if err != nil {
		slog.Debug("ai expansion failed", "company", comp.CompanyID, "definition", pick.ID, "error", err)
		return nil
	}
	events := []Event{{
		CompanyID: comp.CompanyID,
		Type:      EventExpansion,
		Severity:  costSeverity(pick.BaseCost),
		Tick:      tick,
		Detail:    fmt.Sprintf("%s broke ground on a new %s", co.Name, pick.Name),
	}}

	// First production footprint in a goods category is a market entry.
	if !comp.enteredCategories[pick.Category] {
		comp.enteredCategories[pick.Category] = true
		events = append(events, Event{
			CompanyID: comp.CompanyID,
			Type:      EventMarketEntry,
			Severity:  SeverityModerate,
			Tick:      tick,
			Detail:    fmt.Sprintf("%s entered the %s market with building %d", co.Name, pick.Category, b.ID),
		})
	}
	return events
}

// definitionAppeal scores a building type by the current price inflation of
// its default outputs: hot goods attract expansion.
func (d *Director) definitionAppeal(def *catalog.BuildingDefinition) float64 {
	best := 0.0
	for _, slot := range def.Slots {
		m, ok := slot.Method(slot.DefaultMethodID)
		if !ok {
			continue
		}
		for _, out := range m.Outputs {
			g, ok := d.goods.Get(out.Goods)
			if !ok || g.BasePrice <= 0 {
				continue
			}
			if ratio := d.mkt.Price(out.Goods) / g.BasePrice; ratio > best {
				best = ratio
			}
		}
	}
	return best
}

// considerSupplyBlock lets a dominant monopolist withhold supply for a tick.
func (d *Director) considerSupplyBlock(tick uint64, comp *Competitor, co *company.Company, w Weights) []Event {
	if comp.Personality != Monopolist {
		return nil
	}
	var events []Event
	for _, id := range d.prod.ProducedGoods(comp.CompanyID) {
		if d.mkt.ShareOf(id, comp.CompanyID) < 0.6 {
			continue
		}
		if d.rng.Float64() >= 0.05*w.RiskTolerance {
			continue
		}
		comp.withheld[id] = true
		events = append(events, Event{
			CompanyID: comp.CompanyID,
			Type:      EventSupplyBlock,
			Severity:  SeverityMajor,
			Tick:      tick,
			Detail:    fmt.Sprintf("%s is holding %s off the market", co.Name, id),
		})
	}
	return events
}

func clampStance(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

func marginSeverity(margin float64) Severity {
	switch {
	case margin >= 0.4:
		return SeverityCritical
	case margin >= 0.25:
		return SeverityMajor
	case margin >= 0.15:
		return SeverityModerate
	}
	return SeverityMinor
}

func costSeverity(cost float64) Severity {
	switch {
	case cost >= 100000:
		return SeverityMajor
	case cost >= 20000:
		return SeverityModerate
	}
	return SeverityMinor
}
