// Package catalog provides the immutable goods and building definitions the
// simulation runs on. Catalogs are loaded once at startup from YAML and stored
// as dense slices with id indexes; every lookup after load is by stable id.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// GoodsID identifies a goods definition ("steel", "iron-ore").
type GoodsID string

// GoodsDefinition describes one tradeable commodity.
type GoodsDefinition struct {
	ID        GoodsID `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Category  string  `yaml:"category" json:"category"`
	BasePrice float64 `yaml:"base_price" json:"base_price"`
}

// GoodsAmount is a quantity of one goods, used in recipes and construction bills.
type GoodsAmount struct {
	Goods  GoodsID `yaml:"goods" json:"goods"`
	Amount int     `yaml:"amount" json:"amount"`
}

// ProductionMethod is one recipe variant a production slot can run.
type ProductionMethod struct {
	ID            string        `yaml:"id" json:"id"`
	Name          string        `yaml:"name" json:"name"`
	Inputs        []GoodsAmount `yaml:"inputs" json:"inputs"`
	Outputs       []GoodsAmount `yaml:"outputs" json:"outputs"`
	TicksRequired int           `yaml:"ticks_required" json:"ticks_required"`
	LaborRequired int           `yaml:"labor_required" json:"labor_required"`
	PowerRequired int           `yaml:"power_required" json:"power_required"`
	Efficiency    float64       `yaml:"efficiency" json:"efficiency"`
}

// ProductionSlot offers alternative methods; exactly one is active per building.
type ProductionSlot struct {
	ID              string             `yaml:"id" json:"id"`
	DefaultMethodID string             `yaml:"default_method" json:"default_method"`
	Methods         []ProductionMethod `yaml:"methods" json:"methods"`
}

// Method returns the slot's method with the given id.
func (s *ProductionSlot) Method(id string) (*ProductionMethod, bool) {
	for i := range s.Methods {
		if s.Methods[i].ID == id {
			return &s.Methods[i], true
		}
	}
	return nil, false
}

// BuildingID identifies a building definition ("steel-mill").
type BuildingID string

// BuildingDefinition describes one purchasable building type.
type BuildingDefinition struct {
	ID                    BuildingID       `yaml:"id" json:"id"`
	Name                  string           `yaml:"name" json:"name"`
	Category              string           `yaml:"category" json:"category"`
	Size                  int              `yaml:"size" json:"size"`
	BaseCost              float64          `yaml:"base_cost" json:"base_cost"`
	MaintenanceCost       float64          `yaml:"maintenance_cost" json:"maintenance_cost"`
	MaxWorkers            int              `yaml:"max_workers" json:"max_workers"`
	ConstructionTicks     int              `yaml:"construction_ticks" json:"construction_ticks"`
	ConstructionMaterials []GoodsAmount    `yaml:"construction_materials" json:"construction_materials"`
	Slots                 []ProductionSlot `yaml:"slots" json:"slots"`
}

// Slot returns the slot with the given id.
func (d *BuildingDefinition) Slot(id string) (*ProductionSlot, bool) {
	for i := range d.Slots {
		if d.Slots[i].ID == id {
			return &d.Slots[i], true
		}
	}
	return nil, false
}

// GoodsCatalog is the dense store of goods definitions.
type GoodsCatalog struct {
	goods []GoodsDefinition
	index map[GoodsID]int
}

// NewGoodsCatalog validates and indexes a set of goods definitions.
// Definitions are sorted by id so iteration order is canonical.
func NewGoodsCatalog(defs []GoodsDefinition) (*GoodsCatalog, error) {
	sorted := make([]GoodsDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	index := make(map[GoodsID]int, len(sorted))
	for i, g := range sorted {
		if g.ID == "" {
			return nil, fmt.Errorf("goods %d: empty id", i)
		}
		if _, dup := index[g.ID]; dup {
			return nil, fmt.Errorf("goods %q: duplicate id", g.ID)
		}
		if g.BasePrice <= 0 {
			return nil, fmt.Errorf("goods %q: base price must be positive, got %v", g.ID, g.BasePrice)
		}
		index[g.ID] = i
	}
	return &GoodsCatalog{goods: sorted, index: index}, nil
}

// Get returns the definition for id.
func (c *GoodsCatalog) Get(id GoodsID) (*GoodsDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.goods[i], true
}

// All returns every definition in canonical (id-sorted) order.
func (c *GoodsCatalog) All() []GoodsDefinition {
	return c.goods
}

// IDs returns every goods id in canonical order.
func (c *GoodsCatalog) IDs() []GoodsID {
	ids := make([]GoodsID, len(c.goods))
	for i, g := range c.goods {
		ids[i] = g.ID
	}
	return ids
}

// Len returns the number of goods.
func (c *GoodsCatalog) Len() int { return len(c.goods) }

// BuildingCatalog is the dense store of building definitions.
type BuildingCatalog struct {
	buildings []BuildingDefinition
	index     map[BuildingID]int
}

// NewBuildingCatalog validates building definitions against the goods catalog.
func NewBuildingCatalog(defs []BuildingDefinition, goods *GoodsCatalog) (*BuildingCatalog, error) {
	sorted := make([]BuildingDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	index := make(map[BuildingID]int, len(sorted))
	for i := range sorted {
		b := &sorted[i]
		if b.ID == "" {
			return nil, fmt.Errorf("building %d: empty id", i)
		}
		if _, dup := index[b.ID]; dup {
			return nil, fmt.Errorf("building %q: duplicate id", b.ID)
		}
		if b.BaseCost < 0 || b.MaintenanceCost < 0 {
			return nil, fmt.Errorf("building %q: negative cost", b.ID)
		}
		for _, m := range b.ConstructionMaterials {
			if _, ok := goods.Get(m.Goods); !ok {
				return nil, fmt.Errorf("building %q: unknown construction material %q", b.ID, m.Goods)
			}
			if m.Amount < 0 {
				return nil, fmt.Errorf("building %q: negative material amount for %q", b.ID, m.Goods)
			}
		}
		for si := range b.Slots {
			if err := validateSlot(&b.Slots[si], goods); err != nil {
				return nil, fmt.Errorf("building %q slot %q: %w", b.ID, b.Slots[si].ID, err)
			}
		}
		index[b.ID] = i
	}
	return &BuildingCatalog{buildings: sorted, index: index}, nil
}

func validateSlot(s *ProductionSlot, goods *GoodsCatalog) error {
	if len(s.Methods) == 0 {
		return fmt.Errorf("no production methods")
	}
	if _, ok := s.Method(s.DefaultMethodID); !ok {
		return fmt.Errorf("default method %q not among methods", s.DefaultMethodID)
	}
	seen := make(map[string]bool, len(s.Methods))
	for i := range s.Methods {
		m := &s.Methods[i]
		if seen[m.ID] {
			return fmt.Errorf("duplicate method id %q", m.ID)
		}
		seen[m.ID] = true
		if m.TicksRequired < 1 {
			return fmt.Errorf("method %q: ticks required must be >= 1", m.ID)
		}
		if m.Efficiency <= 0 {
			return fmt.Errorf("method %q: efficiency must be positive", m.ID)
		}
		for _, ga := range append(append([]GoodsAmount{}, m.Inputs...), m.Outputs...) {
			if _, ok := goods.Get(ga.Goods); !ok {
				return fmt.Errorf("method %q: unknown goods %q", m.ID, ga.Goods)
			}
			if ga.Amount < 0 {
				return fmt.Errorf("method %q: negative amount for %q", m.ID, ga.Goods)
			}
		}
	}
	return nil
}

// Get returns the definition for id.
func (c *BuildingCatalog) Get(id BuildingID) (*BuildingDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.buildings[i], true
}

// All returns every definition in canonical (id-sorted) order.
func (c *BuildingCatalog) All() []BuildingDefinition {
	return c.buildings
}

// Len returns the number of building definitions.
func (c *BuildingCatalog) Len() int { return len(c.buildings) }

// goodsFile is the YAML shape of a goods catalog file.
type goodsFile struct {
	Goods []GoodsDefinition `yaml:"goods"`
}

// buildingsFile is the YAML shape of a building catalog file.
type buildingsFile struct {
	Buildings []BuildingDefinition `yaml:"buildings"`
}

// LoadGoods reads and validates a goods catalog from a YAML file.
func LoadGoods(path string) (*GoodsCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goods catalog: %w", err)
	}
	var f goodsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse goods catalog: %w", err)
	}
	cat, err := NewGoodsCatalog(f.Goods)
	if err != nil {
		return nil, fmt.Errorf("goods catalog %s: %w", path, err)
	}
	return cat, nil
}

// LoadBuildings reads and validates a building catalog from a YAML file.
func LoadBuildings(path string, goods *GoodsCatalog) (*BuildingCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read building catalog: %w", err)
	}
	var f buildingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse building catalog: %w", err)
	}
	cat, err := NewBuildingCatalog(f.Buildings, goods)
	if err != nil {
		return nil, fmt.Errorf("building catalog %s: %w", path, err)
	}
	return cat, nil
}
