package sim

import (
	"github.com/talgya/magnate/internal/ai"
	"github.com/talgya/magnate/internal/catalog"
	"github.com/talgya/magnate/internal/company"
	"github.com/talgya/magnate/internal/production"
)

// GoodsPrice is one goods' current price and last-tick delta.
type GoodsPrice struct {
	Goods catalog.GoodsID `json:"goods"`
	Price float64         `json:"price"`
	Delta float64         `json:"delta"`
}

// BuildingReport is one building's per-cycle rolling financials.
type BuildingReport struct {
	Building   uint64             `json:"building"`
	Definition catalog.BuildingID `json:"definition"`
	Status     production.Status  `json:"status"`
	Income     float64            `json:"income"`
	Cost       float64            `json:"cost"`
	Net        float64            `json:"net"`
}

// CompanyReport is one company's financial summary with per-building breakdown.
type CompanyReport struct {
	ID          company.ID       `json:"id"`
	Name        string           `json:"name"`
	Cash        float64          `json:"cash"`
	Income      float64          `json:"income"`
	Maintenance float64          `json:"maintenance"`
	Net         float64          `json:"net"`
	Buildings   []BuildingReport `json:"buildings"`
}

// StockReport is one line of the player inventory snapshot.
type StockReport struct {
	Goods                 catalog.GoodsID `json:"goods"`
	Quantity              int             `json:"quantity"`
	ReservedForSale       int             `json:"reserved_for_sale"`
	ReservedForProduction int             `json:"reserved_for_production"`
	AvgCost               float64         `json:"avg_cost"`
}

// Snapshot is the complete outward-facing result of one tick. The core
// produces it as a value once per tick; all broadcasting happens outside.
type Snapshot struct {
	Tick       uint64                `json:"tick"`
	Prices     []GoodsPrice          `json:"prices"`
	Companies  []CompanyReport       `json:"companies"`
	Inventory  []StockReport         `json:"inventory"`
	Shortages  []production.Shortage `json:"shortages"`
	Events     []ai.Event            `json:"events"`
	Headlines  []string              `json:"headlines"`
	TradeCount int                   `json:"trade_count"`
}
