package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/demand"
	"github.com/talgya/magnate/internal/market"
	"github.com/talgya/magnate/internal/production"
)

// CompanyConfig seeds one company at world creation.
type CompanyConfig struct {
	ID          uint64                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Cash        float64                 `yaml:"cash"`
	AI          bool                    `yaml:"ai"`
	Personality string                  `yaml:"personality"`
	Buildings   []catalog.BuildingID    `yaml:"buildings"`
	Inventory   map[catalog.GoodsID]int `yaml:"inventory"`
}

// WorldConfig is the YAML world/tuning file.
type WorldConfig struct {
	Seed         int64           `yaml:"seed"`
	Player       uint64          `yaml:"player"`
	Companies    []CompanyConfig `yaml:"companies"`
	DemandGroups []demand.Group  `yaml:"demand_groups"`
	Market       market.Config   `yaml:"market"`
	Demand       demand.Config   `yaml:"demand"`
	AI           ai.Config       `yaml:"ai"`
}

// LoadWorld reads a world config from a YAML file.
func LoadWorld(path string) (*WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world config: %w", err)
	}
	var wc WorldConfig
	if err := yaml.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("parse world config: %w", err)
	}
	if wc.Player == 0 {
		return nil, fmt.Errorf("world config: player id must be set (0 is the consumer id)")
	}
	return &wc, nil
}

// Build assembles a fresh simulation from catalogs and a world config.
// Initial buildings are granted through the normal purchase path, so starting
// cash in the config is pre-purchase.
func Build(goods *catalog.GoodsCatalog, defs *catalog.BuildingCatalog, wc *WorldConfig) (*Simulation, error) {
	companies := company.NewRegistry()
	for _, cc := range wc.Companies {
		co := company.New(company.ID(cc.ID), cc.Name, cc.Cash, cc.AI)
		for id, qty := range cc.Inventory {
			if _, ok := goods.Get(id); !ok {
				return nil, fmt.Errorf("company %q: unknown inventory goods %q", cc.Name, id)
			}
			if qty > 0 {
				gd, _ := goods.Get(id)
				co.AddStock(id, qty, gd.BasePrice)
			}
		}
		if err := companies.Add(co); err != nil {
			return nil, fmt.Errorf("world config: %w", err)
		}
	}
	playerID := company.ID(wc.Player)
	if _, ok := companies.Get(playerID); !ok {
		return nil, fmt.Errorf("world config: player company %d not defined", wc.Player)
	}

	mkt := market.New(goods, companies, wc.Market)
	prod := production.NewCalculator(goods, defs, companies)

	dm, err := demand.NewManager(goods, wc.DemandGroups, wc.Demand, wc.Seed)
	if err != nil {
		return nil, fmt.Errorf("demand groups: %w", err)
	}

	director := ai.NewDirector(goods, companies, mkt, prod, playerID, wc.AI, wc.Seed+1)
	for _, cc := range wc.Companies {
		if !cc.AI {
			continue
		}
		p, err := ai.ParsePersonality(cc.Personality)
		if err != nil {
			return nil, fmt.Errorf("company %q: %w", cc.Name, err)
		}
		director.Add(ai.NewCompetitor(company.ID(cc.ID), p))
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
		Snapshots:    make(chan Snapshot, 8),
	}

	for _, cc := range wc.Companies {
		for _, defID := range cc.Buildings {
			if _, err := prod.Purchase(company.ID(cc.ID), defID); err != nil {
				return nil, fmt.Errorf("company %q starting building %q: %w", cc.Name, defID, err)
			}
		}
	}
	return s, nil
}
