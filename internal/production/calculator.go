package production

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
)

var (
	ErrUnknownDefinition = errors.New("unknown building definition")
	ErrUnknownOwner      = errors.New("unknown owner company")
	ErrInsufficientFunds = errors.New("insufficient funds for purchase")
)

// PriceSource supplies current market prices for income/cost accrual.
type PriceSource interface {
	Price(goods catalog.GoodsID) float64
}

// Resources supplies the externally provided labor and power availability
// signals for one building on the current tick.
type Resources interface {
	Labor(b *Building) int
	Power(b *Building) int
}

// Unlimited is the default resource signal: labor and power never constrain.
type Unlimited struct{}

func (Unlimited) Labor(*Building) int { return math.MaxInt32 }
func (Unlimited) Power(*Building) int { return math.MaxInt32 }

// FixedResources caps every building at flat per-tick labor and power.
type FixedResources struct {
	LaborPerBuilding int
	PowerPerBuilding int
}

func (r FixedResources) Labor(*Building) int { return r.LaborPerBuilding }
func (r FixedResources) Power(*Building) int { return r.PowerPerBuilding }

// CycleEvent records one completed production cycle.
type CycleEvent struct {
	Tick     uint64                `json:"tick"`
	Building uint64                `json:"building"`
	Owner    company.ID            `json:"owner"`
	Slot     string                `json:"slot"`
	Method   string                `json:"method"`
	Outputs  []catalog.GoodsAmount `json:"outputs"`
	Income   float64               `json:"income"`
	Cost     float64               `json:"cost"`
}

// Shortage reports goods a stalled building needs versus what its owner has.
type Shortage struct {
	Building  uint64          `json:"building"`
	Owner     company.ID      `json:"owner"`
	Goods     catalog.GoodsID `json:"goods"`
	Needed    int             `json:"needed"`
	Available int             `json:"available"`
}

// Result is one tick's production outcome.
type Result struct {
	Completed []CycleEvent
	Shortages []Shortage
}

// Calculator advances all building instances each tick.
type Calculator struct {
	goods     *catalog.GoodsCatalog
	defs      *catalog.BuildingCatalog
	companies *company.Registry

	buildings []*Building
	index     map[uint64]*Building
	nextID    uint64

	// Resources is the labor/power availability signal. Defaults to Unlimited.
	Resources Resources

	// effBonus holds additive efficiency bonuses per building category,
	// applied from externally supplied technology effects.
	effBonus map[string]float64
}

// NewCalculator creates a calculator over the given catalogs and companies.
func NewCalculator(goods *catalog.GoodsCatalog, defs *catalog.BuildingCatalog, companies *company.Registry) *Calculator {
	return &Calculator{
		goods:     goods,
		defs:      defs,
		companies: companies,
		index:     make(map[uint64]*Building),
		nextID:    1,
		Resources: Unlimited{},
		effBonus:  make(map[string]float64),
	}
}

// SetEfficiencyBonus applies an additive efficiency modifier to every method
// run by buildings of the given category (technology effect hook).
func (c *Calculator) SetEfficiencyBonus(category string, bonus float64) {
	c.effBonus[category] = bonus
}

// Purchase debits the definition's base cost and creates the instance. The
// building enters waiting_materials when a construction bill is due,
// under_construction when construction only needs time, and operational when
// neither applies.
func (c *Calculator) Purchase(owner company.ID, defID catalog.BuildingID) (*Building, error) {
	def, ok := c.defs.Get(defID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefinition, defID)
	}
	buyer, ok := c.companies.Get(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOwner, owner)
	}
	if buyer.Cash < def.BaseCost {
		return nil, fmt.Errorf("%w: %q costs %.2f, have %.2f", ErrInsufficientFunds, defID, def.BaseCost, buyer.Cash)
	}
	buyer.Debit(def.BaseCost)

	b := &Building{
		ID:           c.nextID,
		DefinitionID: defID,
		Owner:        owner,
		def:          def,
	}
	c.nextID++
	for _, s := range def.Slots {
		b.Slots = append(b.Slots, SlotState{SlotID: s.ID, ActiveMethodID: s.DefaultMethodID})
	}

	switch {
	case len(def.ConstructionMaterials) > 0:
		b.Status = StatusWaitingMaterials
		c.tryStartConstruction(b, buyer)
	case def.ConstructionTicks > 0:
		b.Status = StatusUnderConstruction
	default:
		b.Status = StatusOperational
	}

	c.buildings = append(c.buildings, b)
	c.index[b.ID] = b
	slog.Info("building purchased",
		"building", b.ID, "definition", defID, "owner", owner, "status", b.Status)
	return b, nil
}

// Definitions returns the building catalog in canonical order.
func (c *Calculator) Definitions() []catalog.BuildingDefinition {
	return c.defs.All()
}

// Get returns the building with the given id.
func (c *Calculator) Get(id uint64) (*Building, bool) {
	b, ok := c.index[id]
	return b, ok
}

// All returns every building in id order.
func (c *Calculator) All() []*Building {
	return c.buildings
}

// Owned returns one company's buildings in id order.
func (c *Calculator) Owned(owner company.ID) []*Building {
	var out []*Building
	for _, b := range c.buildings {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	return out
}

// Tick advances every building one tick, in id order for determinism.
// A failure in one building never halts the others.
func (c *Calculator) Tick(tick uint64, prices PriceSource) Result {
	var res Result
	for _, b := range c.buildings {
		owner, ok := c.companies.Get(b.Owner)
		if !ok {
			slog.Error("building has no owner, pausing", "building", b.ID, "owner", b.Owner)
			b.ConfigError = true
			b.Status = StatusPaused
			continue
		}
		c.tickBuilding(tick, b, owner, prices, &res)
	}
	return res
}

func (c *Calculator) tickBuilding(tick uint64, b *Building, owner *company.Company, prices PriceSource, res *Result) {
	if b.ConfigError {
		b.Status = StatusPaused
		return
	}

	switch b.Status {
	case StatusWaitingMaterials:
		if !c.tryStartConstruction(b, owner) {
			for _, m := range b.def.ConstructionMaterials {
				if owner.Available(m.Goods) < m.Amount {
					res.Shortages = append(res.Shortages, Shortage{
						Building: b.ID, Owner: b.Owner, Goods: m.Goods,
						Needed: m.Amount, Available: owner.Available(m.Goods),
					})
				}
			}
		}
		return
	case StatusUnderConstruction:
		b.ConstructionProgress++
		if b.ConstructionProgress >= b.def.ConstructionTicks {
			b.Status = StatusOperational
			slog.Info("construction complete", "building", b.ID, "definition", b.DefinitionID)
		}
		return
	}

	// Operational family. Transition priority:
	// explicit pause > missing inputs > missing power > missing workers > running.
	if b.Paused {
		b.Status = StatusPaused
		return
	}

	laborNeed, powerNeed := 0, 0
	type runnable struct {
		state  *SlotState
		method *catalog.ProductionMethod
	}
	var slots []runnable
	for i := range b.Slots {
		st := &b.Slots[i]
		slotDef, ok := b.def.Slot(st.SlotID)
		if !ok {
			c.flagConfigError(b, fmt.Sprintf("slot %q missing from definition", st.SlotID))
			return
		}
		method, ok := slotDef.Method(st.ActiveMethodID)
		if !ok {
			c.flagConfigError(b, fmt.Sprintf("slot %q references missing method %q", st.SlotID, st.ActiveMethodID))
			return
		}
		laborNeed += method.LaborRequired
		powerNeed += method.PowerRequired
		slots = append(slots, runnable{state: st, method: method})
	}

	// Input availability per slot; any shortfall marks the whole building.
	inputsShort := false
	for _, r := range slots {
		for _, in := range r.method.Inputs {
			avail := owner.Available(in.Goods) + owner.StockOf(in.Goods).ReservedForProduction
			if avail < in.Amount {
				inputsShort = true
				res.Shortages = append(res.Shortages, Shortage{
					Building: b.ID, Owner: b.Owner, Goods: in.Goods,
					Needed: in.Amount, Available: avail,
				})
			}
		}
	}
	if inputsShort {
		b.Status = StatusLackingInputs
		return
	}
	if powerNeed > c.Resources.Power(b) {
		b.Status = StatusLackingEnergy
		return
	}
	if laborNeed > b.def.MaxWorkers || laborNeed > c.Resources.Labor(b) {
		b.Status = StatusLackingWorkers
		return
	}

	b.Status = StatusOperational
	for _, r := range slots {
		c.advanceSlot(tick, b, owner, r.state, r.method, prices, res)
	}
}

// advanceSlot consumes one tick's inputs and, on the final tick of the cycle,
// books the outputs and the cycle's income/cost into the profit window.
func (c *Calculator) advanceSlot(tick uint64, b *Building, owner *company.Company, st *SlotState, method *catalog.ProductionMethod, prices PriceSource, res *Result) {
	for _, in := range method.Inputs {
		if err := owner.ConsumeForProduction(in.Goods, in.Amount); err != nil {
			// Re-checked above; a failure here means concurrent mutation.
			slog.Error("input consumption failed", "building", b.ID, "goods", in.Goods, "error", err)
			b.Status = StatusLackingInputs
			return
		}
		st.AccruedCost += float64(in.Amount) * prices.Price(in.Goods)
	}
	st.Progress++
	if st.Progress < method.TicksRequired {
		return
	}

	// Cycle complete.
	eff := method.Efficiency + c.effBonus[b.def.Category]
	income := 0.0
	var outputs []catalog.GoodsAmount
	totalOut := 0
	for _, out := range method.Outputs {
		qty := int(math.Round(float64(out.Amount) * eff))
		if qty <= 0 {
			continue
		}
		outputs = append(outputs, catalog.GoodsAmount{Goods: out.Goods, Amount: qty})
		income += float64(qty) * prices.Price(out.Goods)
		totalOut += qty
	}
	cost := st.AccruedCost + b.def.MaintenanceCost
	unitCost := 0.0
	if totalOut > 0 {
		unitCost = cost / float64(totalOut)
	}
	for _, out := range outputs {
		owner.AddStock(out.Goods, out.Amount, unitCost)
	}

	b.Profit.push(income, cost)
	res.Completed = append(res.Completed, CycleEvent{
		Tick: tick, Building: b.ID, Owner: b.Owner,
		Slot: st.SlotID, Method: method.ID,
		Outputs: outputs, Income: income, Cost: cost,
	})
	st.Progress = 0
	st.AccruedCost = 0
}

// tryStartConstruction consumes the construction bill when fully stocked.
func (c *Calculator) tryStartConstruction(b *Building, owner *company.Company) bool {
	for _, m := range b.def.ConstructionMaterials {
		if owner.Available(m.Goods) < m.Amount {
			return false
		}
	}
	for _, m := range b.def.ConstructionMaterials {
		if err := owner.RemoveStock(m.Goods, m.Amount); err != nil {
			slog.Error("construction material consumption failed", "building", b.ID, "goods", m.Goods, "error", err)
			return false
		}
	}
	if b.def.ConstructionTicks > 0 {
		b.Status = StatusUnderConstruction
	} else {
		b.Status = StatusOperational
	}
	return true
}

// flagConfigError forces a building into a terminal paused state with a
// diagnostic; other buildings keep running.
func (c *Calculator) flagConfigError(b *Building, reason string) {
	b.ConfigError = true
	b.Status = StatusPaused
	slog.Error("production config error, building paused",
		"building", b.ID, "definition", b.DefinitionID, "reason", reason)
}

// ProducedGoods returns the goods a company's buildings output with their
// active methods, in canonical order.
func (c *Calculator) ProducedGoods(owner company.ID) []catalog.GoodsID {
	set := make(map[catalog.GoodsID]bool)
	for _, b := range c.Owned(owner) {
		for _, st := range b.Slots {
			slotDef, ok := b.def.Slot(st.SlotID)
			if !ok {
				continue
			}
			if m, ok := slotDef.Method(st.ActiveMethodID); ok {
				for _, out := range m.Outputs {
					set[out.Goods] = true
				}
			}
		}
	}
	ids := make([]catalog.GoodsID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InputNeeds returns the per-tick input quantities a company's operational
// buildings require with their active methods, in canonical order.
func (c *Calculator) InputNeeds(owner company.ID) []catalog.GoodsAmount {
	needs := make(map[catalog.GoodsID]int)
	for _, b := range c.Owned(owner) {
		if b.Status == StatusPaused || b.Status == StatusWaitingMaterials || b.Status == StatusUnderConstruction {
			continue
		}
		for _, st := range b.Slots {
			slotDef, ok := b.def.Slot(st.SlotID)
			if !ok {
				continue
			}
			if m, ok := slotDef.Method(st.ActiveMethodID); ok {
				for _, in := range m.Inputs {
					needs[in.Goods] += in.Amount
				}
			}
		}
	}
	ids := make([]catalog.GoodsID, 0, len(needs))
	for id := range needs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]catalog.GoodsAmount, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.GoodsAmount{Goods: id, Amount: needs[id]})
	}
	return out
}

// Restore reattaches saved buildings after a load.
func (c *Calculator) Restore(buildings []Building) error {
	sort.Slice(buildings, func(i, j int) bool { return buildings[i].ID < buildings[j].ID })
	for i := range buildings {
		saved := buildings[i]
		def, ok := c.defs.Get(saved.DefinitionID)
		if !ok {
			return fmt.Errorf("restore building %d: %w: %q", saved.ID, ErrUnknownDefinition, saved.DefinitionID)
		}
		b := saved
		b.def = def
		c.buildings = append(c.buildings, &b)
		c.index[b.ID] = &b
		if b.ID >= c.nextID {
			c.nextID = b.ID + 1
		}
	}
	return nil
}
