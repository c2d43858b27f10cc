// Package demand turns consumer population segments into recurring buy-side
// market orders. Groups are aggregates: no individual consumers are modeled,
// and demand orders are always considered funded.
package demand

import (
	"fmt"
	"math"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/magnate/internal/catalog"
)

// Group is one consumer population segment for one goods.
type Group struct {
	Goods      catalog.GoodsID `yaml:"goods" json:"goods"`
	BaseDemand float64         `yaml:"base_demand" json:"base_demand"`
	Elasticity float64         `yaml:"elasticity" json:"elasticity"`
}

// Config tunes demand generation.
type Config struct {
	// PriceMarkup is applied over the current market price so demand orders
	// are generally fillable against resting supply.
	PriceMarkup float64 `yaml:"price_markup"`
	// MaxFactor caps the elasticity factor so cheap goods cannot produce
	// unbounded demand.
	MaxFactor float64 `yaml:"max_factor"`
	// NoiseAmplitude scales the smooth per-tick demand drift (0 disables).
	NoiseAmplitude float64 `yaml:"noise_amplitude"`
	// NoiseFrequency is the drift's tick-axis frequency.
	NoiseFrequency float64 `yaml:"noise_frequency"`
}

// DefaultConfig returns the standard demand tuning.
func DefaultConfig() Config {
	return Config{
		PriceMarkup:    1.05,
		MaxFactor:      2.0,
		NoiseAmplitude: 0.15,
		NoiseFrequency: 0.02,
	}
}

// PriceSource supplies current and base prices.
type PriceSource interface {
	Price(goods catalog.GoodsID) float64
}

// Intent is one synthesized consumer buy order, tagged by the caller with the
// reserved consumer company id.
type Intent struct {
	Goods    catalog.GoodsID
	Quantity int
	Price    float64
}

// Manager aggregates demand groups into per-tick buy intents.
type Manager struct {
	cfg    Config
	goods  *catalog.GoodsCatalog
	groups []Group
	noise  opensimplex.Noise
}

// NewManager validates the groups against the catalog and seeds the drift
// noise. The same seed yields the same drift sequence.
func NewManager(goods *catalog.GoodsCatalog, groups []Group, cfg Config, seed int64) (*Manager, error) {
	if cfg.PriceMarkup <= 0 {
		cfg.PriceMarkup = 1.05
	}
	if cfg.MaxFactor <= 0 {
		cfg.MaxFactor = 2.0
	}
	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Goods < sorted[j].Goods })
	for _, g := range sorted {
		if _, ok := goods.Get(g.Goods); !ok {
			return nil, fmt.Errorf("demand group: unknown goods %q", g.Goods)
		}
		if g.BaseDemand < 0 {
			return nil, fmt.Errorf("demand group %q: negative base demand", g.Goods)
		}
		if g.Elasticity < 0 {
			return nil, fmt.Errorf("demand group %q: negative elasticity", g.Goods)
		}
	}
	return &Manager{
		cfg:    cfg,
		goods:  goods,
		groups: sorted,
		noise:  opensimplex.NewNormalized(seed),
	}, nil
}

// Groups returns the configured groups in canonical order.
func (m *Manager) Groups() []Group {
	return m.groups
}

// Tick produces this tick's buy intents, one per goods with configured
// demand, in canonical goods order. The quantity follows
// baseDemand × elasticityFactor(price/base) × drift, clamped to [0, cap];
// the price is the current market price with the configured markup.
func (m *Manager) Tick(tick uint64, prices PriceSource) []Intent {
	intents := make([]Intent, 0, len(m.groups))
	for i, g := range m.groups {
		def, _ := m.goods.Get(g.Goods)
		price := prices.Price(g.Goods)
		if price <= 0 {
			price = def.BasePrice
		}

		qty := g.BaseDemand * m.elasticityFactor(price, def.BasePrice, g.Elasticity) * m.drift(tick, i)
		units := int(math.Floor(qty))
		if units <= 0 {
			continue
		}
		intents = append(intents, Intent{
			Goods:    g.Goods,
			Quantity: units,
			Price:    price * m.cfg.PriceMarkup,
		})
	}
	return intents
}

// elasticityFactor shrinks demand as price rises above base and grows it as
// price falls below, clamped to [0, MaxFactor].
func (m *Manager) elasticityFactor(price, basePrice, elasticity float64) float64 {
	if basePrice <= 0 {
		return 1
	}
	factor := math.Pow(basePrice/price, elasticity)
	if factor < 0 {
		factor = 0
	}
	if factor > m.cfg.MaxFactor {
		factor = m.cfg.MaxFactor
	}
	return factor
}

// drift is a smooth multiplicative wobble around 1.0, deterministic per seed.
// Each group gets its own noise row so goods don't move in lockstep.
func (m *Manager) drift(tick uint64, group int) float64 {
	if m.cfg.NoiseAmplitude <= 0 {
		return 1
	}
	n := m.noise.Eval2(float64(tick)*m.cfg.NoiseFrequency, float64(group)*17.31)
	return 1 + m.cfg.NoiseAmplitude*(2*n-1)
}
