// Package company holds the economic actors: player, AI competitors, and the
// reserved consumer id, each with cash and per-goods stock. Stock reservations
// keep goods committed to resting sell orders or production out of double use.
package company

import (
	"fmt"
	"sort"

	"github.com/talgya/magnate/internal/catalog"
)

// ID identifies a company. The zero id is reserved for aggregate consumer
// demand and never holds inventory or cash.
type ID uint64

// Consumer is the reserved company id for demand-group buy orders.
const Consumer ID = 0

// Stock is one company's holdings of one goods.
type Stock struct {
	Quantity              int     `json:"quantity"`
	ReservedForSale       int     `json:"reserved_for_sale"`
	ReservedForProduction int     `json:"reserved_for_production"`
	AvgCost               float64 `json:"avg_cost"`
}

// Available returns the quantity not committed to sale or production.
func (s *Stock) Available() int {
	return s.Quantity - s.ReservedForSale - s.ReservedForProduction
}

// Company is a player- or AI-controlled economic actor.
type Company struct {
	ID        ID                         `json:"id"`
	Name      string                     `json:"name"`
	Cash      float64                    `json:"cash"`
	AI        bool                       `json:"ai"`
	Inventory map[catalog.GoodsID]*Stock `json:"inventory"`
}

// New creates a company with the given starting cash.
func New(id ID, name string, cash float64, ai bool) *Company {
	return &Company{
		ID:        id,
		Name:      name,
		Cash:      cash,
		AI:        ai,
		Inventory: make(map[catalog.GoodsID]*Stock),
	}
}

// StockOf returns the stock entry for goods, creating it if absent.
func (c *Company) StockOf(goods catalog.GoodsID) *Stock {
	s, ok := c.Inventory[goods]
	if !ok {
		s = &Stock{}
		c.Inventory[goods] = s
	}
	return s
}

// Quantity returns the total held quantity of goods, reservations included.
func (c *Company) Quantity(goods catalog.GoodsID) int {
	if s, ok := c.Inventory[goods]; ok {
		return s.Quantity
	}
	return 0
}

// Available returns the uncommitted quantity of goods.
func (c *Company) Available(goods catalog.GoodsID) int {
	if s, ok := c.Inventory[goods]; ok {
		return s.Available()
	}
	return 0
}

// AddStock adds qty units acquired at unitCost, updating the moving average cost.
func (c *Company) AddStock(goods catalog.GoodsID, qty int, unitCost float64) {
	if qty <= 0 {
		return
	}
	s := c.StockOf(goods)
	total := s.AvgCost*float64(s.Quantity) + unitCost*float64(qty)
	s.Quantity += qty
	s.AvgCost = total / float64(s.Quantity)
}

// RemoveStock removes qty uncommitted units. Fails if fewer are available.
func (c *Company) RemoveStock(goods catalog.GoodsID, qty int) error {
	s := c.StockOf(goods)
	if s.Available() < qty {
		return fmt.Errorf("company %d: %d of %q available, need %d", c.ID, s.Available(), goods, qty)
	}
	s.Quantity -= qty
	if s.Quantity == 0 {
		s.AvgCost = 0
	}
	return nil
}

// ReserveForSale commits qty uncommitted units to a resting sell order.
func (c *Company) ReserveForSale(goods catalog.GoodsID, qty int) error {
	s := c.StockOf(goods)
	if s.Available() < qty {
		return fmt.Errorf("company %d: %d of %q available, cannot reserve %d for sale", c.ID, s.Available(), goods, qty)
	}
	s.ReservedForSale += qty
	return nil
}

// ReleaseSale returns qty units from sale reservation to general stock.
func (c *Company) ReleaseSale(goods catalog.GoodsID, qty int) {
	s := c.StockOf(goods)
	s.ReservedForSale -= qty
	if s.ReservedForSale < 0 {
		s.ReservedForSale = 0
	}
}

// SettleSale removes qty sold units from both the reservation and the quantity.
func (c *Company) SettleSale(goods catalog.GoodsID, qty int) {
	s := c.StockOf(goods)
	s.ReservedForSale -= qty
	s.Quantity -= qty
	if s.ReservedForSale < 0 {
		s.ReservedForSale = 0
	}
	if s.Quantity < 0 {
		s.Quantity = 0
	}
	if s.Quantity == 0 {
		s.AvgCost = 0
	}
}

// ReserveForProduction commits qty uncommitted units to production use.
func (c *Company) ReserveForProduction(goods catalog.GoodsID, qty int) error {
	s := c.StockOf(goods)
	if s.Available() < qty {
		return fmt.Errorf("company %d: %d of %q available, cannot reserve %d for production", c.ID, s.Available(), goods, qty)
	}
	s.ReservedForProduction += qty
	return nil
}

// ConsumeForProduction removes qty units, drawing from the production
// reservation first and then from uncommitted stock.
func (c *Company) ConsumeForProduction(goods catalog.GoodsID, qty int) error {
	s := c.StockOf(goods)
	if s.ReservedForProduction+s.Available() < qty {
		return fmt.Errorf("company %d: cannot consume %d of %q", c.ID, qty, goods)
	}
	fromReserved := qty
	if fromReserved > s.ReservedForProduction {
		fromReserved = s.ReservedForProduction
	}
	s.ReservedForProduction -= fromReserved
	s.Quantity -= qty
	if s.Quantity == 0 {
		s.AvgCost = 0
	}
	return nil
}

// Credit adds cash.
func (c *Company) Credit(amount float64) {
	c.Cash += amount
}

// Debit removes cash. Cash may go transiently negative; bankruptcy handling is
// the orchestrator's concern, not the ledger's.
func (c *Company) Debit(amount float64) {
	c.Cash -= amount
}

// Registry is the dense store of companies, indexed by id.
type Registry struct {
	companies []*Company
	index     map[ID]*Company
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[ID]*Company)}
}

// Add inserts a company, keeping the store sorted by id.
func (r *Registry) Add(c *Company) error {
	if c.ID == Consumer {
		return fmt.Errorf("company id %d is reserved for consumer demand", Consumer)
	}
	if _, dup := r.index[c.ID]; dup {
		return fmt.Errorf("duplicate company id %d", c.ID)
	}
	r.companies = append(r.companies, c)
	sort.Slice(r.companies, func(i, j int) bool { return r.companies[i].ID < r.companies[j].ID })
	r.index[c.ID] = c
	return nil
}

// Get returns the company with the given id.
func (r *Registry) Get(id ID) (*Company, bool) {
	c, ok := r.index[id]
	return c, ok
}

// All returns every company in id order.
func (r *Registry) All() []*Company {
	return r.companies
}

// Len returns the number of companies.
func (r *Registry) Len() int { return len(r.companies) }
